package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/ragstral/ragstral/internal/ai"
	"github.com/ragstral/ragstral/internal/answer"
	"github.com/ragstral/ragstral/internal/config"
	"github.com/ragstral/ragstral/internal/fetch"
	"github.com/ragstral/ragstral/internal/gate"
	"github.com/ragstral/ragstral/internal/retrieval"
	"github.com/ragstral/ragstral/internal/vecindex"
	"github.com/ragstral/ragstral/pkg/models"
	"github.com/spf13/pflag"
)

type gateRequest struct {
	Query string `json:"query"`
}

type gateResponse struct {
	Success  bool   `json:"success"`
	Continue bool   `json:"continue"`
	Message  string `json:"message,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type retrieveRequest struct {
	Query    string        `json:"query"`
	Context  []chatMessage `json:"context,omitempty"`
	Metadata struct {
		RepoName string `json:"repo_name"`
		Version  string `json:"version"`
	} `json:"metadata"`
}

type retrieveResponse struct {
	Success  bool            `json:"success"`
	Kind     string          `json:"kind,omitempty"`
	Response string          `json:"response,omitempty"`
	Sources  []models.Source `json:"sources,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func main() {
	// .env is optional; real deployments set environment directly
	_ = godotenv.Load()

	fs := pflag.NewFlagSet("ragstral-api", pflag.ExitOnError)

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
	logger.Info().Str("provider", cfg.Provider).Str("backend", cfg.VectorBackend).Str("log_level", cfg.LogLevel).Msg("starting ragstral api")

	ctx := context.Background()

	client, err := buildClient(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create AI client: %v", err)
	}
	logger.Info().Int("embedding_dim", client.Dim()).Str("embed_model", client.Model()).Msg("AI client initialized")

	index, cleanup, err := buildIndex(ctx, cfg, client.Dim())
	if err != nil {
		log.Fatalf("Failed to initialize vector index: %v", err)
	}
	defer cleanup()

	hydrator := fetch.NewRawClient(time.Duration(cfg.TimeoutSeconds) * time.Second)
	g := gate.New(client)
	orch := answer.New(g, retrieval.New(client, index, hydrator), client)
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	mux.HandleFunc("/gate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req gateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			http.Error(w, "query must not be empty", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		decision, err := g.Check(ctx, req.Query, nil)
		if err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("gate check degraded")
		}
		message := decision.Question
		if decision.Proceed {
			message = "query is clear"
		}
		writeJSON(w, gateResponse{
			Success:  true,
			Continue: decision.Proceed,
			Message:  message,
		})
	})

	mux.HandleFunc("/retrieve", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req retrieveRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			http.Error(w, "query must not be empty", http.StatusBadRequest)
			return
		}
		filter := vecindex.Filter{RepoName: req.Metadata.RepoName, Version: req.Metadata.Version}
		if err := filter.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		resp, err := orch.Answer(ctx, req.Query, history(req.Context), filter)
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("answer failed")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(retrieveResponse{Success: false, Error: "failed to answer query"})
			return
		}

		writeJSON(w, retrieveResponse{
			Success:  true,
			Kind:     resp.Kind,
			Response: resp.Text,
			Sources:  resp.Sources,
		})
		hlog.FromRequest(r).Info().Str("path", "/retrieve").Str("kind", resp.Kind).Int("sources", len(resp.Sources)).Dur("dur", time.Since(start)).Msg("served")
	})

	handler := hlog.NewHandler(logger)(
		hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
			logger.Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
		})(mux),
	)

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{Addr: address, Handler: handler}
	logger.Info().Str("addr", s.Addr).Msg("api server listening")
	log.Fatal(s.ListenAndServe())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// history maps the request's chat context onto conversation messages,
// dropping entries with unknown roles.
func history(msgs []chatMessage) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		var sender string
		switch strings.ToLower(m.Role) {
		case "user":
			sender = models.SenderUser
		case "assistant":
			sender = models.SenderAssistant
		default:
			continue
		}
		out = append(out, models.Message{Text: m.Content, Sender: sender})
	}
	return out
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
