// Package chunker splits source files into contiguous, independently
// embeddable chunks. Splitting is structural (function/class boundaries)
// where the language is known and falls back to a fixed-size sliding
// window with overlap otherwise.
package chunker

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-enry/go-enry/v2"
	"github.com/ragstral/ragstral/pkg/models"
)

const (
	// DefaultSize and DefaultOverlap are in characters.
	DefaultSize    = 3000
	DefaultOverlap = 1000
)

// Splitter chunks file content. Zero-valued fields fall back to defaults.
type Splitter struct {
	Size    int
	Overlap int
}

// New creates a Splitter with explicit size and overlap.
func New(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 3
	}
	return &Splitter{Size: size, Overlap: overlap}
}

// structural boundary markers per language, tried in order. The marker
// stays with the segment it opens.
var separators = map[string][]string{
	"go":         {"\nfunc ", "\ntype ", "\nconst ", "\nvar ", "\n\n"},
	"python":     {"\nclass ", "\ndef ", "\n\tdef ", "\n    def ", "\n\n"},
	"javascript": {"\nfunction ", "\nclass ", "\nexport ", "\nconst ", "\n\n"},
	"typescript": {"\nfunction ", "\nclass ", "\nexport ", "\nconst ", "\ninterface ", "\n\n"},
	"java":       {"\nclass ", "\npublic ", "\nprotected ", "\nprivate ", "\n\n"},
	"c":          {"\nstruct ", "\nstatic ", "\nvoid ", "\nint ", "\n\n"},
	"c++":        {"\nclass ", "\nstruct ", "\nnamespace ", "\nvoid ", "\n\n"},
	"c#":         {"\nclass ", "\nnamespace ", "\npublic ", "\nprivate ", "\n\n"},
	"rust":       {"\nfn ", "\npub fn ", "\nimpl ", "\nstruct ", "\nenum ", "\n\n"},
	"ruby":       {"\nclass ", "\nmodule ", "\ndef ", "\n\n"},
	"php":        {"\nfunction ", "\nclass ", "\n\n"},
	"swift":      {"\nfunc ", "\nclass ", "\nstruct ", "\nenum ", "\n\n"},
	"kotlin":     {"\nfun ", "\nclass ", "\nobject ", "\n\n"},
	"scala":      {"\ndef ", "\nclass ", "\nobject ", "\ntrait ", "\n\n"},
	"shell":      {"\nfunction ", "\n\n"},
	"markdown":   {"\n## ", "\n# ", "\n\n"},
}

// Chunk splits text into ordered chunks with deterministic IDs. Empty and
// whitespace-only pieces are dropped. Re-chunking an unchanged file yields
// identical IDs.
func (s *Splitter) Chunk(sourceFile, text, languageHint string) []models.Chunk {
	lang := strings.ToLower(strings.TrimSpace(languageHint))
	if lang == "" {
		lang = strings.ToLower(enry.GetLanguage(filepath.Base(sourceFile), []byte(text)))
	}

	var pieces []string
	if seps, ok := separators[lang]; ok {
		pieces = s.structural(text, seps)
	} else {
		pieces = s.window(text)
	}

	chunks := make([]models.Chunk, 0, len(pieces))
	for _, p := range pieces {
		if strings.TrimSpace(p) == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{
			ID:         fmt.Sprintf("%s#%d", sourceFile, len(chunks)),
			SourceFile: sourceFile,
			Text:       p,
		})
	}
	return chunks
}

// structural cuts text at boundary markers, then greedily merges adjacent
// segments up to Size. A single segment larger than Size is windowed.
func (s *Splitter) structural(text string, seps []string) []string {
	segs := cutAt(text, seps)

	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}

	for _, seg := range segs {
		if len(seg) > s.Size {
			flush()
			out = append(out, s.window(seg)...)
			continue
		}
		if cur.Len()+len(seg) > s.Size {
			flush()
		}
		cur.WriteString(seg)
	}
	flush()
	return out
}

// cutAt splits text at every occurrence of any separator; the separator
// opens the following segment.
func cutAt(text string, seps []string) []string {
	var segs []string
	start := 0
	pos := 1
	for pos < len(text) {
		next := -1
		for _, sep := range seps {
			if i := strings.Index(text[pos:], sep); i >= 0 {
				if next == -1 || pos+i < next {
					next = pos + i
				}
			}
		}
		if next == -1 {
			break
		}
		if next > start {
			segs = append(segs, text[start:next])
		}
		start = next
		pos = next + 1
	}
	return append(segs, text[start:])
}

// window slides a fixed-size window across text with overlap; consecutive
// windows share Overlap characters so their union covers the input with
// no gap.
func (s *Splitter) window(text string) []string {
	if len(text) <= s.Size {
		return []string{text}
	}
	step := s.Size - s.Overlap
	var out []string
	for start := 0; ; start += step {
		end := start + s.Size
		if end >= len(text) {
			out = append(out, text[start:])
			break
		}
		out = append(out, text[start:end])
	}
	return out
}
