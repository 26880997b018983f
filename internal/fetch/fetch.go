// Package fetch retrieves repository content: the versioned ZIP archive at
// indexing time and raw file content at retrieval time.
package fetch

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const rawContentHost = "https://raw.githubusercontent.com"

// DownloadArchive downloads the GitHub ZIP archive for a version tag and
// extracts it into destDir, stripping the single top-level directory the
// archive wraps everything in. version "latest" (or empty) downloads the
// default branch instead of a tag.
func DownloadArchive(ctx context.Context, client *http.Client, repoURL, version, destDir string) error {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	base := strings.TrimSuffix(repoURL, "/")
	zipURL := base + "/archive/refs/tags/" + version + ".zip"
	if version == "" || version == "latest" {
		zipURL = base + "/archive/refs/heads/main.zip"
	}

	log.Info().Str("url", zipURL).Msg("downloading repository archive")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, zipURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download archive: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download archive: %s", resp.Status)
	}

	tmp, err := os.CreateTemp("", "ragstral-archive-*.zip")
	if err != nil {
		return err
	}
	defer func() {
		tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil {
			log.Warn().Err(err).Str("path", tmp.Name()).Msg("failed to remove archive temp file")
		}
	}()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		return fmt.Errorf("save archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return extractArchive(tmp.Name(), destDir)
}

// extractArchive unpacks a GitHub archive ZIP, dropping the `repo-tag/`
// top-level directory so destDir holds the repository root directly.
func extractArchive(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		rel := stripTopDir(f.Name)
		if rel == "" {
			continue
		}
		target := filepath.Join(destDir, filepath.FromSlash(rel))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes destination: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := writeEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

func stripTopDir(name string) string {
	if i := strings.Index(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return ""
}

// BlobToRawURL rewrites a browsable GitHub blob URL to its raw-content
// counterpart: .../blob/<version>/<path> becomes
// raw.githubusercontent.com/<owner>/<repo>/refs/tags/<version>/<path>.
func BlobToRawURL(blobURL string) (string, error) {
	u, err := url.Parse(blobURL)
	if err != nil {
		return "", fmt.Errorf("parse file URL: %w", err)
	}
	if u.Host != "github.com" {
		return "", fmt.Errorf("not a github blob URL: %s", blobURL)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// owner / repo / "blob" / version / path...
	if len(parts) < 5 || parts[2] != "blob" {
		return "", fmt.Errorf("not a github blob URL: %s", blobURL)
	}
	owner, repo, version := parts[0], parts[1], parts[3]
	path := strings.Join(parts[4:], "/")

	return fmt.Sprintf("%s/%s/%s/refs/tags/%s/%s", rawContentHost, owner, repo, version, path), nil
}

// Hydrator fetches the full raw content behind a browsable file URL.
type Hydrator interface {
	Hydrate(ctx context.Context, blobURL string) (string, error)
}

// RawClient is the HTTP Hydrator. It is safe for concurrent use.
type RawClient struct {
	http *http.Client
}

// NewRawClient creates a RawClient with a bounded per-request timeout.
func NewRawClient(timeout time.Duration) *RawClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &RawClient{http: &http.Client{Timeout: timeout}}
}

// Hydrate rewrites blobURL to its raw form and fetches it.
func (c *RawClient) Hydrate(ctx context.Context, blobURL string) (string, error) {
	rawURL, err := BlobToRawURL(blobURL)
	if err != nil {
		return "", err
	}
	return c.Fetch(ctx, rawURL)
}

// Fetch retrieves the text behind an already-raw URL.
func (c *RawClient) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("raw fetch %s: %s", rawURL, resp.Status)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
