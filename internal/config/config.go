package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalid         = errors.New("invalid configuration")
)

// Embedding provider names accepted by EMBEDDING_PROVIDER.
const (
	ProviderAuto   = "auto"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"funds"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"funds"`

	DoclingURL     string `envconfig:"DOCLING_URL" default:"http://docling:8000"`
	DoclingEnabled bool   `envconfig:"DOCLING_ENABLED" default:"true"`

	NSQLookupd            string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost              string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP              string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	ProcessingConcurrency int    `envconfig:"PROCESSING_CONCURRENCY" default:"4"`
	MigrationPath         string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Embeddings
	EmbeddingProvider      string  `envconfig:"EMBEDDING_PROVIDER" default:"auto"`
	GeminiAPIKey           string  `envconfig:"GEMINI_API_KEY"`
	GeminiEmbedModel       string  `envconfig:"GEMINI_EMBED_MODEL" default:"text-embedding-004"`
	GeminiEmbedDimension   int     `envconfig:"GEMINI_EMBED_DIMENSION" default:"768"`
	OllamaBaseURL          string  `envconfig:"OLLAMA_BASE_URL"`
	OllamaEmbedModel       string  `envconfig:"OLLAMA_EMBED_MODEL" default:"nomic-embed-text"`
	OllamaEmbedDimension   int     `envconfig:"OLLAMA_EMBED_DIMENSION" default:"768"`
	LocalEmbedDimension    int     `envconfig:"LOCAL_EMBED_DIMENSION" default:"384"`
	EmbedRequestsPerSecond float64 `envconfig:"EMBED_REQUESTS_PER_SECOND" default:"5"`
	EmbedBurst             int     `envconfig:"EMBED_BURST" default:"10"`

	// Chunking & search
	ChunkSize          int           `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap       int           `envconfig:"CHUNK_OVERLAP" default:"200"`
	VectorStorePath    string        `envconfig:"VECTOR_STORE_PATH" default:"./data/vector_store"`
	ApproxIndexEnabled bool          `envconfig:"APPROX_INDEX_ENABLED" default:"true"`
	SearchBackend      string        `envconfig:"SEARCH_BACKEND"`
	SearchCacheTTL     time.Duration `envconfig:"SEARCH_CACHE_TTL" default:"5m"`
	RerankProvider     string        `envconfig:"RERANK_PROVIDER"`
	RerankAPIKey       string        `envconfig:"RERANK_API_KEY"`

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	UploadDir       string `envconfig:"UPLOAD_DIR" default:"./uploads"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	// The processing queue is not optional: without it uploads would never be processed.
	if c.NSQDHost == "" {
		return fmt.Errorf("%w: NSQD_HOST", ErrMissingRequired)
	}
	if c.NSQLookupd == "" {
		return fmt.Errorf("%w: NSQ_LOOKUPD", ErrMissingRequired)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrInvalid)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: CHUNK_OVERLAP must not be negative", ErrInvalid)
	}
	switch c.ResolvedProvider() {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingRequired)
		}
	case ProviderOllama:
		if c.OllamaBaseURL == "" {
			return fmt.Errorf("%w: OLLAMA_BASE_URL", ErrMissingRequired)
		}
	case ProviderLocal:
	default:
		return fmt.Errorf("%w: unknown EMBEDDING_PROVIDER %q", ErrInvalid, c.EmbeddingProvider)
	}
	switch strings.ToLower(strings.TrimSpace(c.RerankProvider)) {
	case "", "none":
	case "jina", "cohere":
		if c.RerankAPIKey == "" {
			return fmt.Errorf("%w: RERANK_API_KEY", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: unknown RERANK_PROVIDER %q", ErrInvalid, c.RerankProvider)
	}
	if c.EmbeddingDimension() <= 0 {
		return fmt.Errorf("%w: embedding dimension must be positive", ErrInvalid)
	}
	return nil
}

// ResolvedProvider returns the embedding provider in effect. "auto" prefers
// Gemini when a key is present, then Ollama, then the local hashing provider.
func (c *Config) ResolvedProvider() string {
	p := strings.ToLower(strings.TrimSpace(c.EmbeddingProvider))
	if p != "" && p != ProviderAuto {
		return p
	}
	switch {
	case c.GeminiAPIKey != "":
		return ProviderGemini
	case c.OllamaBaseURL != "":
		return ProviderOllama
	default:
		return ProviderLocal
	}
}

// EmbeddingDimension is the process-wide vector width, derived from the active provider.
func (c *Config) EmbeddingDimension() int {
	switch c.ResolvedProvider() {
	case ProviderGemini:
		return c.GeminiEmbedDimension
	case ProviderOllama:
		return c.OllamaEmbedDimension
	default:
		return c.LocalEmbedDimension
	}
}
