package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/ragstral/ragstral/internal/ai"
	"github.com/ragstral/ragstral/internal/chunker"
	"github.com/ragstral/ragstral/internal/config"
	"github.com/ragstral/ragstral/internal/indexer"
	"github.com/ragstral/ragstral/internal/vecindex"
	"github.com/spf13/pflag"
)

func main() {
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("ragstral-indexer", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	if cfg.RepoURL == "" {
		log.Fatal("repo URL must be set")
	}

	ctx := context.Background()

	client, err := buildClient(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create AI client: %v", err)
	}
	if client.Dim() == 0 {
		log.Fatal("embedding dimension must be set")
	}

	index, cleanup, err := buildIndex(ctx, cfg, client.Dim())
	if err != nil {
		log.Fatalf("Failed to initialize vector index: %v", err)
	}
	defer cleanup()

	pipeline := indexer.New(client, index, cfg.RepoURL, cfg.Version, indexer.Options{
		MaxBatchSize:      cfg.MaxBatchSize,
		MaxTotalTokens:    cfg.MaxTotalTokens,
		MaxSequenceLength: cfg.MaxSequenceLength,
		FailureBudget:     cfg.FailureBudget,
	})
	pipeline.Splitter = chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)

	logger.Info().Str("repo", pipeline.RepoName).Str("version", cfg.Version).Str("provider", cfg.Provider).Msg("starting index run")

	report, err := pipeline.Run(ctx)

	logger.Info().
		Int("chunks_indexed", report.ChunksIndexed).
		Int("chunks_failed", report.FailedChunks).
		Int("files_skipped", report.FilesSkipped).
		Msg("index run complete")
	for _, f := range report.SkippedFiles {
		logger.Warn().Str("file", f).Msg("skipped")
	}
	for _, e := range report.Errors {
		logger.Error().Str("error", e).Msg("index error")
	}

	if err != nil {
		log.Fatalf("index run failed: %v", err)
	}
}

func buildClient(ctx context.Context, cfg config.Specification) (ai.Client, error) {
	clientConfig := &ai.ClientConfig{
		APIKey:          cfg.APIKey,
		EmbedModel:      cfg.EmbedModel,
		CompletionModel: cfg.CompletionModel,
		Dim:             cfg.Dim,
		Timeout:         time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
	switch strings.ToLower(cfg.Provider) {
	case "mistral":
		clientConfig.Provider = ai.ProviderMistral
	case "openai":
		clientConfig.Provider = ai.ProviderOpenAI
	case "gemini", "google":
		clientConfig.Provider = ai.ProviderGemini
	case "stub":
		clientConfig.Provider = ai.ProviderStub
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	return ai.NewClient(ctx, clientConfig)
}

func buildIndex(ctx context.Context, cfg config.Specification, dim int) (vecindex.Index, func(), error) {
	switch strings.ToLower(cfg.VectorBackend) {
	case "pgvector":
		st, err := vecindex.NewPGVectorIndex(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		if err := st.Migrate(ctx, dim); err != nil {
			st.Close()
			return nil, nil, err
		}
		return st, st.Close, nil
	case "pinecone":
		idx, err := vecindex.NewPineconeIndex(vecindex.PineconeConfig{
			Host:    cfg.PineconeHost,
			APIKey:  cfg.PineconeAPIKey,
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		return idx, func() {}, nil
	case "memory":
		return vecindex.NewMemoryIndex(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported vector backend: %s", cfg.VectorBackend)
	}
}
