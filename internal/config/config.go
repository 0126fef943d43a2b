// Package config provides application configuration loaded from environment
// variables with defaults and validation. An optional YAML file (CONFIG_FILE)
// can supply values for the same keys; the environment always wins.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tbourn/go-rag-backend/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AuthConfig controls bearer tokens and administrative access.
type AuthConfig struct {
	TokenTTL        time.Duration // AUTH_TOKEN_TTL
	BcryptCost      int           // AUTH_BCRYPT_COST
	TrustUserHeader bool          // AUTH_TRUST_HEADER: accept X-User-ID (dev/test only)
	AdminUserIDs    []string      // ADMIN_USER_IDS
}

// IngestConfig controls the chunking engine and upload limits.
type IngestConfig struct {
	ChunkSize      int      // CHUNK_SIZE (runes)
	ChunkOverlap   int      // CHUNK_OVERLAP (runes)
	MaxUploadBytes int64    // MAX_UPLOAD_BYTES
	OCRCommand     string   // OCR_COMMAND
	OCRLanguages   []string // OCR_LANGUAGES, joined with '+' for tesseract
	Mode           string   // INGEST_MODE: direct|summarize
}

// IndexConfig selects and tunes the vector index.
type IndexConfig struct {
	Backend         string // INDEX_BACKEND: memory|pgvector
	BatchSize       int    // INDEX_BATCH_SIZE
	TopK            int    // RETRIEVAL_TOP_K
	FetchMultiplier int    // RETRIEVAL_FETCH_MULTIPLIER
	PGVectorDSN     string // PGVECTOR_DSN
	PGVectorTable   string // PGVECTOR_TABLE

	LexicalWeight float64  // RERANK_LEXICAL_WEIGHT in [0,1]
	Stopwords     []string // RERANK_STOPWORDS (CSV)
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider    string  // EMBEDDING_PROVIDER: hashing|openai|ollama
	Model       string  // EMBEDDING_MODEL
	Dimension   int     // EMBEDDING_DIM
	RPS         float64 // EMBEDDING_RPS (0 = unlimited)
	Concurrency int     // EMBEDDING_CONCURRENCY
}

// LLMConfig configures the language-model backends.
type LLMConfig struct {
	DefaultModel     string // LLM_DEFAULT_MODEL
	OpenAIAPIKey     string // OPENAI_API_KEY
	OpenAIBaseURL    string // OPENAI_BASE_URL
	OllamaURL        string // OLLAMA_URL
	Llama31Tag       string // OLLAMA_LLAMA31_TAG
	Llama32Tag       string // OLLAMA_LLAMA32_TAG
	SystemPrompt     string // LLM_SYSTEM_PROMPT
	HistoryTurns     int    // LLM_HISTORY_TURNS
	MaxQuestionRunes int    // MAX_QUESTION_RUNES
}

// TimeoutConfig bounds every external call.
type TimeoutConfig struct {
	Parse    time.Duration // PARSE_TIMEOUT
	Embed    time.Duration // EMBED_TIMEOUT
	Generate time.Duration // GENERATE_TIMEOUT
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	ShutdownTimeout   time.Duration // graceful shutdown budget
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DBPath string // SQLite path

	Auth      AuthConfig
	Ingest    IngestConfig
	Index     IndexConfig
	Embedding EmbeddingConfig
	LLM       LLMConfig
	Timeouts  TimeoutConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// Supported language-model names.
var supportedModels = []string{"gpt-4o", "gpt-4o-mini", "llama3.1", "llama3.2"}

// DefaultSystemPrompt instructs the model to answer from the supplied context.
const DefaultSystemPrompt = "You are a helpful assistant. Use the following pieces of context to answer the question at the end. " +
	"If you don't know the answer, just say that you don't know, don't try to make up an answer."

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from the environment (and CONFIG_FILE, when set),
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	src := source{}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		file, err := readYAML(path)
		if err != nil {
			return Config{}, err
		}
		src.file = file
	}
	return load(src)
}

func load(src source) (Config, error) {
	cfg := Config{
		// Server
		Port:              src.getenv("PORT", "8080"),
		ReadTimeout:       src.getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: src.getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      src.getdur("WRITE_TIMEOUT", 180*time.Second),
		IdleTimeout:       src.getdur("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   src.getdur("SHUTDOWN_TIMEOUT", 20*time.Second),
		MaxHeaderBytes:    src.getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(src.getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(src.getenv("LOG_LEVEL", "info")),
		LogPretty:      src.getbool("LOG_PRETTY", false),
		SwaggerEnabled: src.getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(src.getenv("API_BASE_PATH", "/api/v1")),

		DBPath: src.getenv("DB_PATH", "app.db"),

		Auth: AuthConfig{
			TokenTTL:        src.getdur("AUTH_TOKEN_TTL", 30*time.Minute),
			BcryptCost:      src.getint("AUTH_BCRYPT_COST", 10),
			TrustUserHeader: src.getbool("AUTH_TRUST_HEADER", false),
			AdminUserIDs:    splitCSV(src.getenv("ADMIN_USER_IDS", "")),
		},

		Ingest: IngestConfig{
			ChunkSize:      src.getint("CHUNK_SIZE", 1000),
			ChunkOverlap:   src.getint("CHUNK_OVERLAP", 200),
			MaxUploadBytes: int64(src.getint("MAX_UPLOAD_BYTES", 50<<20)),
			OCRCommand:     src.getenv("OCR_COMMAND", "tesseract"),
			OCRLanguages:   splitCSV(src.getenv("OCR_LANGUAGES", "eng")),
			Mode:           strings.ToLower(src.getenv("INGEST_MODE", "direct")),
		},

		Index: IndexConfig{
			Backend:         strings.ToLower(src.getenv("INDEX_BACKEND", "memory")),
			BatchSize:       src.getint("INDEX_BATCH_SIZE", 5000),
			TopK:            src.getint("RETRIEVAL_TOP_K", 4),
			FetchMultiplier: src.getint("RETRIEVAL_FETCH_MULTIPLIER", 2),
			PGVectorDSN:     src.getenv("PGVECTOR_DSN", ""),
			PGVectorTable:   src.getenv("PGVECTOR_TABLE", "chunk_vectors"),
			LexicalWeight:   src.getfloat("RERANK_LEXICAL_WEIGHT", 0.2),
			Stopwords:       splitCSV(src.getenv("RERANK_STOPWORDS", "")),
		},

		Embedding: EmbeddingConfig{
			Provider:    strings.ToLower(src.getenv("EMBEDDING_PROVIDER", "hashing")),
			Model:       src.getenv("EMBEDDING_MODEL", ""),
			Dimension:   src.getint("EMBEDDING_DIM", 0),
			RPS:         src.getfloat("EMBEDDING_RPS", 0),
			Concurrency: src.getint("EMBEDDING_CONCURRENCY", 4),
		},

		LLM: LLMConfig{
			DefaultModel:     strings.ToLower(src.getenv("LLM_DEFAULT_MODEL", "gpt-4o-mini")),
			OpenAIAPIKey:     src.getenv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:    src.getenv("OPENAI_BASE_URL", ""),
			OllamaURL:        src.getenv("OLLAMA_URL", "http://localhost:11434"),
			Llama31Tag:       src.getenv("OLLAMA_LLAMA31_TAG", "llama3.1:latest"),
			Llama32Tag:       src.getenv("OLLAMA_LLAMA32_TAG", "llama3.2:3b"),
			SystemPrompt:     src.getenv("LLM_SYSTEM_PROMPT", DefaultSystemPrompt),
			HistoryTurns:     src.getint("LLM_HISTORY_TURNS", 10),
			MaxQuestionRunes: src.getint("MAX_QUESTION_RUNES", 4000),
		},

		Timeouts: TimeoutConfig{
			Parse:    src.getdur("PARSE_TIMEOUT", 60*time.Second),
			Embed:    src.getdur("EMBED_TIMEOUT", 60*time.Second),
			Generate: src.getdur("GENERATE_TIMEOUT", 120*time.Second),
		},

		// Rate limiting
		RateRPS:   src.getfloat("RATE_RPS", 5.0),
		RateBurst: src.getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(src.getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: src.getbool("ENABLE_HSTS", false),
			HSTSMaxAge: src.getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: src.getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     src.getbool("OTEL_ENABLED", false),
			Endpoint:    src.getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    src.getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: src.getenv("OTEL_SERVICE_NAME", "go-rag-backend"),
			SampleRatio: src.getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = defaultEmbeddingModel(cfg.Embedding.Provider)
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = defaultEmbeddingDim(cfg.Embedding.Provider, cfg.Embedding.Model)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return errors.New("DB_PATH must not be empty")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return errors.New("AUTH_TOKEN_TTL must be > 0")
	}
	if cfg.Auth.BcryptCost < 4 || cfg.Auth.BcryptCost > 31 {
		return errors.New("AUTH_BCRYPT_COST must be between 4 and 31")
	}
	if cfg.Ingest.ChunkSize < 2 {
		return errors.New("CHUNK_SIZE must be >= 2")
	}
	if cfg.Ingest.ChunkOverlap < 0 || cfg.Ingest.ChunkOverlap >= cfg.Ingest.ChunkSize {
		return errors.New("CHUNK_OVERLAP must be >= 0 and < CHUNK_SIZE")
	}
	if cfg.Ingest.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	if len(cfg.Ingest.OCRLanguages) == 0 {
		return errors.New("OCR_LANGUAGES must not be empty")
	}
	switch cfg.Ingest.Mode {
	case "direct", "summarize":
	default:
		return errors.New("INGEST_MODE must be one of: direct, summarize")
	}
	switch cfg.Index.Backend {
	case "memory":
	case "pgvector":
		if strings.TrimSpace(cfg.Index.PGVectorDSN) == "" {
			return errors.New("PGVECTOR_DSN is required when INDEX_BACKEND=pgvector")
		}
	default:
		return errors.New("INDEX_BACKEND must be one of: memory, pgvector")
	}
	if cfg.Index.BatchSize < 1 {
		return errors.New("INDEX_BATCH_SIZE must be >= 1")
	}
	if cfg.Index.TopK < 1 {
		return errors.New("RETRIEVAL_TOP_K must be >= 1")
	}
	if cfg.Index.FetchMultiplier < 1 {
		return errors.New("RETRIEVAL_FETCH_MULTIPLIER must be >= 1")
	}
	if cfg.Index.LexicalWeight < 0 || cfg.Index.LexicalWeight > 1 {
		return errors.New("RERANK_LEXICAL_WEIGHT must be in [0,1]")
	}
	switch cfg.Embedding.Provider {
	case "hashing", "ollama":
	case "openai":
		if cfg.LLM.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY is required when EMBEDDING_PROVIDER=openai")
		}
	default:
		return errors.New("EMBEDDING_PROVIDER must be one of: hashing, openai, ollama")
	}
	if cfg.Embedding.Dimension < 1 {
		return errors.New("EMBEDDING_DIM must be >= 1")
	}
	if cfg.Embedding.RPS < 0 {
		return errors.New("EMBEDDING_RPS must be >= 0")
	}
	if cfg.Embedding.Concurrency < 1 {
		return errors.New("EMBEDDING_CONCURRENCY must be >= 1")
	}
	if !IsSupportedModel(cfg.LLM.DefaultModel) {
		return fmt.Errorf("LLM_DEFAULT_MODEL must be one of: %s", strings.Join(supportedModels, ", "))
	}
	if cfg.LLM.HistoryTurns < 0 {
		return errors.New("LLM_HISTORY_TURNS must be >= 0")
	}
	if cfg.LLM.MaxQuestionRunes < 1 {
		return errors.New("MAX_QUESTION_RUNES must be >= 1")
	}
	if cfg.Timeouts.Parse <= 0 || cfg.Timeouts.Embed <= 0 || cfg.Timeouts.Generate <= 0 {
		return errors.New("PARSE_TIMEOUT, EMBED_TIMEOUT and GENERATE_TIMEOUT must be positive")
	}
	if cfg.RateRPS < 0 {
		return errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return nil
}

// IsSupportedModel reports whether name is one of the selectable model names.
func IsSupportedModel(name string) bool {
	for _, m := range supportedModels {
		if m == name {
			return true
		}
	}
	return false
}

// SupportedModels returns the selectable model names.
func SupportedModels() []string {
	out := make([]string, len(supportedModels))
	copy(out, supportedModels)
	return out
}

// IsAdmin reports whether userID may run administrative operations.
func (c AuthConfig) IsAdmin(userID string) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func defaultEmbeddingModel(provider string) string {
	switch provider {
	case "openai":
		return "text-embedding-3-small"
	case "ollama":
		return "nomic-embed-text:latest"
	default:
		return "hashing"
	}
}

func defaultEmbeddingDim(provider, model string) int {
	switch provider {
	case "openai":
		if model == "text-embedding-3-large" {
			return 3072
		}
		return 1536
	case "ollama":
		return 768
	default:
		return 256
	}
}

// ---- sources ----

// source resolves keys from the environment first, then from the optional
// YAML file.
type source struct {
	file map[string]string
}

func readYAML(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CONFIG_FILE: %w", err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse CONFIG_FILE: %w", err)
	}
	out := make(map[string]string, len(doc))
	for k, v := range doc {
		key := strings.ToUpper(strings.TrimSpace(k))
		switch vv := v.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(vv))
			for _, p := range vv {
				parts = append(parts, fmt.Sprint(p))
			}
			out[key] = strings.Join(parts, ",")
		default:
			out[key] = fmt.Sprint(vv)
		}
	}
	return out, nil
}

func (s source) lookup(k string) (string, bool) {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v, true
	}
	if v, ok := s.file[k]; ok && v != "" {
		return v, true
	}
	return "", false
}

func (s source) getenv(k, def string) string {
	if v, ok := s.lookup(k); ok {
		return v
	}
	return def
}

func (s source) getfloat(k string, def float64) float64 {
	if v, ok := s.lookup(k); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func (s source) getint(k string, def int) int {
	if v, ok := s.lookup(k); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func (s source) getbool(k string, def bool) bool {
	if v, ok := s.lookup(k); ok {
		if b, ok := sysutil.ParseBool(v); ok {
			return b
		}
	}
	return def
}

func (s source) getdur(k string, def time.Duration) time.Duration {
	if v, ok := s.lookup(k); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
