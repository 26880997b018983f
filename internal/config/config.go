package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

type Specification struct {
	Provider        string `yaml:"provider"`
	APIKey          string `yaml:"providerApiKey" envconfig:"PROVIDER_API_KEY"`
	EmbedModel      string `yaml:"embedModel" envconfig:"EMBED_MODEL"`
	CompletionModel string `yaml:"completionModel" envconfig:"COMPLETION_MODEL"`
	Dim             int    `yaml:"embedDim" envconfig:"EMBED_DIM"`

	VectorBackend  string `yaml:"vectorBackend" split_words:"true"`
	Database       string `yaml:"database" envconfig:"DB_URL"`
	PineconeAPIKey string `yaml:"pineconeApiKey" envconfig:"PINECONE_API_KEY"`
	PineconeHost   string `yaml:"pineconeHost" envconfig:"PINECONE_HOST"`

	RepoURL string `yaml:"repoURL" split_words:"true"`
	Version string `yaml:"version"`

	ChunkSize         int `yaml:"chunkSize" split_words:"true"`
	ChunkOverlap      int `yaml:"chunkOverlap" split_words:"true"`
	MaxBatchSize      int `yaml:"maxBatchSize" split_words:"true"`
	MaxTotalTokens    int `yaml:"maxTotalTokens" split_words:"true"`
	MaxSequenceLength int `yaml:"maxSequenceLength" split_words:"true"`

	// FailureBudget is the fraction of chunks that may fail embedding before
	// an indexing run is reported as failed.
	FailureBudget float64 `yaml:"failureBudget" split_words:"true"`

	LogLevel       string `yaml:"logLevel" split_words:"true"`
	Port           int    `yaml:"port" split_words:"true"`
	TimeoutSeconds int    `yaml:"timeoutSeconds" split_words:"true"`

	flags *pflag.FlagSet `ignored:"true"`
}

const envPrefix = "RAGSTRAL"

func (s *Specification) Usage() {
	fmt.Fprint(os.Stderr, s.flags.FlagUsages())
}

// Load => defaults < YAML < env < flags.
// configPath may be ""; if so we auto-discover.
func Load(configPath string, fs *pflag.FlagSet) (Specification, error) {
	var cfg Specification

	// set defaults (lowest precedence)
	setDefaults(&cfg)
	bindFlags(fs, &cfg)

	// config file
	path := configPath
	if path == "" {
		if v := os.Getenv(envPrefix + "_CONFIG"); v != "" {
			path = v
		} else {
			for _, cand := range []string{
				"config/ragstral.yaml",
				"config/config.yaml",
				"./ragstral.yaml",
				"./config.yaml",
			} {
				if fileExists(cand) {
					path = cand
					break
				}
			}
		}
	}

	if path != "" {
		if !fileExists(path) {
			return Specification{}, fmt.Errorf("config file not found: %s", path)
		}
		if err := loadYAML(path, &cfg); err != nil {
			return Specification{}, fmt.Errorf("load yaml %s: %w", path, err)
		}
	}

	// env overrides config file
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Specification{}, fmt.Errorf("env override: %w", err)
	}

	// flags override everything
	if err := fs.Parse(os.Args[1:]); err != nil {
		return Specification{}, err
	}
	applyChangedFlags(fs, &cfg)

	if err := validate(&cfg); err != nil {
		return Specification{}, err
	}
	return cfg, nil
}

func validate(c *Specification) error {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	switch strings.ToLower(c.VectorBackend) {
	case "pgvector":
		if strings.TrimSpace(c.Database) == "" {
			return fmt.Errorf("RAGSTRAL_DB_URL is required for the pgvector backend (env/file/flag)")
		}
	case "pinecone":
		if strings.TrimSpace(c.PineconeAPIKey) == "" {
			return fmt.Errorf("RAGSTRAL_PINECONE_API_KEY is required for the pinecone backend")
		}
		if strings.TrimSpace(c.PineconeHost) == "" {
			return fmt.Errorf("RAGSTRAL_PINECONE_HOST is required for the pinecone backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported vector backend: %s", c.VectorBackend)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)", c.ChunkOverlap, c.ChunkSize)
	}
	if c.FailureBudget < 0 || c.FailureBudget > 1 {
		return fmt.Errorf("failure budget must be in [0,1], got %v", c.FailureBudget)
	}
	return nil
}

// ---------- helpers ----------

func loadYAML(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, into)
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

func bindFlags(fs *pflag.FlagSet, c *Specification) {
	fs.String("config", "", "Path to config file")

	// If --config is provided on the command line, capture it now so
	// config discovery (which runs before flags.Parse) can use it.
	for i, a := range os.Args {
		if a == "--config" {
			if i+1 < len(os.Args) && !strings.HasPrefix(os.Args[i+1], "-") {
				_ = os.Setenv(envPrefix+"_CONFIG", os.Args[i+1])
			}
		} else if strings.HasPrefix(a, "--config=") {
			parts := strings.SplitN(a, "=", 2)
			if len(parts) == 2 {
				_ = os.Setenv(envPrefix+"_CONFIG", parts[1])
			}
		}
	}

	fs.String("provider", c.Provider, "Provider (stub, mistral, openai, gemini)")
	fs.String("provider-api-key", c.APIKey, "Provider API key")
	fs.String("embed-model", c.EmbedModel, "Embedding model (shared by indexing and queries)")
	fs.String("completion-model", c.CompletionModel, "Completion model")
	fs.Int("embed-dim", c.Dim, "Embedding dimensionality")

	fs.String("vector-backend", c.VectorBackend, "Vector index backend (pgvector, pinecone, memory)")
	fs.String("db-url", c.Database, "Database URL (DSN) for pgvector")
	fs.String("pinecone-api-key", c.PineconeAPIKey, "Pinecone API key")
	fs.String("pinecone-host", c.PineconeHost, "Pinecone index host URL")

	fs.String("repo-url", c.RepoURL, "GitHub repository URL to index")
	fs.String("version", c.Version, "Repository version tag to index")

	fs.Int("chunk-size", c.ChunkSize, "Chunk size in characters")
	fs.Int("chunk-overlap", c.ChunkOverlap, "Chunk overlap in characters")
	fs.Int("max-batch-size", c.MaxBatchSize, "Maximum chunks per embedding batch")
	fs.Int("max-total-tokens", c.MaxTotalTokens, "Maximum tokens per embedding batch")
	fs.Int("max-sequence-length", c.MaxSequenceLength, "Maximum tokens per embedded text")
	fs.Float64("failure-budget", c.FailureBudget, "Fraction of chunks allowed to fail embedding before the run fails")

	fs.String("log-level", c.LogLevel, "Log level (debug|info|warn|error)")
	fs.Int("port", c.Port, "API server port")
	fs.Int("timeout-seconds", c.TimeoutSeconds, "Per-request timeout for external calls")

	// Used later for usage/help
	copied := pflag.NewFlagSet("temp", pflag.ContinueOnError)
	*copied = *fs
	c.flags = copied
}

func applyChangedFlags(fs *pflag.FlagSet, c *Specification) {
	setStr := func(name string, dst *string) {
		if fs.Changed(name) {
			v, _ := fs.GetString(name)
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if fs.Changed(name) {
			v, _ := fs.GetInt(name)
			*dst = v
		}
	}
	setFloat := func(name string, dst *float64) {
		if fs.Changed(name) {
			v, _ := fs.GetFloat64(name)
			*dst = v
		}
	}

	// (We ignore --config here; it's for discovery.)
	setStr("provider", &c.Provider)
	setStr("provider-api-key", &c.APIKey)
	setStr("embed-model", &c.EmbedModel)
	setStr("completion-model", &c.CompletionModel)
	setInt("embed-dim", &c.Dim)

	setStr("vector-backend", &c.VectorBackend)
	setStr("db-url", &c.Database)
	setStr("pinecone-api-key", &c.PineconeAPIKey)
	setStr("pinecone-host", &c.PineconeHost)

	setStr("repo-url", &c.RepoURL)
	setStr("version", &c.Version)

	setInt("chunk-size", &c.ChunkSize)
	setInt("chunk-overlap", &c.ChunkOverlap)
	setInt("max-batch-size", &c.MaxBatchSize)
	setInt("max-total-tokens", &c.MaxTotalTokens)
	setInt("max-sequence-length", &c.MaxSequenceLength)
	setFloat("failure-budget", &c.FailureBudget)

	setStr("log-level", &c.LogLevel)
	setInt("port", &c.Port)
	setInt("timeout-seconds", &c.TimeoutSeconds)
}

func setDefaults(c *Specification) {
	c.Provider = "stub"
	c.VectorBackend = "memory"
	c.Version = "latest"
	c.ChunkSize = 3000
	c.ChunkOverlap = 1000
	c.MaxBatchSize = 128
	c.MaxTotalTokens = 16384
	c.MaxSequenceLength = 8192
	c.FailureBudget = 0.2
	c.LogLevel = "info"
	c.Port = 8080
	c.TimeoutSeconds = 30
	c.Dim = 0
}
