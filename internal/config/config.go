// Package config loads ragcore's runtime configuration from environment
// variables: required variables fail fast, everything else carries a
// documented default.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the retrieval-and-assembly pipeline. It
// is immutable after Load returns.
type Config struct {
	Port        int
	Environment string
	FrontendURL string

	// Vector store (pgvector over pgx).
	DatabaseURL      string
	DatabaseMaxConns int

	// Knowledge graph (neo4j).
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Cache (redis, optional; when REDIS_ADDR is set it is used instead
	// of the in-process LRU).
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Vertex AI (chat + embeddings).
	GCPProject          string
	VertexAILocation    string
	VertexAIModel       string
	EmbeddingModel      string
	EmbeddingDimensions int

	// Classifier thresholds.
	ClassifierSimpleMaxWords  int
	ClassifierComplexMinWords int

	// Hybrid retriever defaults.
	RetrieverTopK               int
	RetrieverAlpha              float64
	RetrieverGraphWeight        float64
	RetrieverCandidateMultiplier int
	RetrieverMinScore           float64
	RRFK                        int

	// BM25 defaults.
	BM25K1              float64
	BM25B               float64
	BM25MinDocFreq      int
	BM25MaxDocFreqRatio float64

	// Assembler defaults.
	AssemblerSimilarityThreshold float64
	AssemblerContextWindow      int
	AssemblerBudgetPercentage   float64
	AssemblerCharsPerToken      int
	AssemblerOverheadTokens     int

	// Verifier defaults.
	VerifierSkipThreshold   float64
	VerifierFilterThreshold float64
	VerifierConcurrency     int

	// Engine cache.
	CacheEnabled bool
	CacheMaxSize int
	CacheTTL     time.Duration

	// Silence Protocol: refuse to assemble a low-confidence answer
	// instead of returning it.
	SilenceEnabled   bool
	SilenceThreshold float64
}

// Load reads configuration from environment variables, with an optional
// YAML file layered beneath them: set RAGCORE_CONFIG_FILE to a path and
// its keys (the same upper-snake-case names as the environment
// variables below) become the fallback for any variable the
// environment doesn't set, before the hardcoded default applies.
// DATABASE_URL and GOOGLE_CLOUD_PROJECT are required; everything else
// uses a documented default.
func Load() (*Config, error) {
	fileDefaults, err := loadFileOverlay(os.Getenv("RAGCORE_CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	env := envLookup{file: fileDefaults}

	dbURL := env.str("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("config.Load: DATABASE_URL is required")
	}
	gcpProject := env.str("GOOGLE_CLOUD_PROJECT", "")
	if gcpProject == "" {
		return nil, fmt.Errorf("config.Load: GOOGLE_CLOUD_PROJECT is required")
	}

	cfg := &Config{
		Port:             env.int("PORT", 8080),
		Environment:      env.str("ENVIRONMENT", "development"),
		FrontendURL:      env.str("FRONTEND_URL", ""),
		DatabaseURL:      dbURL,
		DatabaseMaxConns: env.int("DATABASE_MAX_CONNS", 25),

		Neo4jURI:      env.str("NEO4J_URI", ""),
		Neo4jUser:     env.str("NEO4J_USER", "neo4j"),
		Neo4jPassword: env.str("NEO4J_PASSWORD", ""),

		RedisAddr:     env.str("REDIS_ADDR", ""),
		RedisPassword: env.str("REDIS_PASSWORD", ""),
		RedisDB:       env.int("REDIS_DB", 0),

		GCPProject:          gcpProject,
		VertexAILocation:    env.str("VERTEX_AI_LOCATION", "us-central1"),
		VertexAIModel:       env.str("VERTEX_AI_MODEL", "gemini-2.0-flash"),
		EmbeddingModel:      env.str("VERTEX_AI_EMBEDDING_MODEL", "text-embedding-004"),
		EmbeddingDimensions: env.int("EMBEDDING_DIMENSIONS", 768),

		ClassifierSimpleMaxWords:  env.int("CLASSIFIER_SIMPLE_MAX_WORDS", 4),
		ClassifierComplexMinWords: env.int("CLASSIFIER_COMPLEX_MIN_WORDS", 15),

		RetrieverTopK:                env.int("RETRIEVER_TOP_K", 5),
		RetrieverAlpha:               env.float("RETRIEVER_ALPHA", 0.5),
		RetrieverGraphWeight:         env.float("RETRIEVER_GRAPH_WEIGHT", 0.2),
		RetrieverCandidateMultiplier: env.int("RETRIEVER_CANDIDATE_MULTIPLIER", 3),
		RetrieverMinScore:            env.float("RETRIEVER_MIN_SCORE", 0),
		RRFK:                         env.int("RRF_K", 60),

		BM25K1:              env.float("BM25_K1", 1.2),
		BM25B:               env.float("BM25_B", 0.75),
		BM25MinDocFreq:      env.int("BM25_MIN_DOC_FREQ", 1),
		BM25MaxDocFreqRatio: env.float("BM25_MAX_DOC_FREQ_RATIO", 1.0),

		AssemblerSimilarityThreshold: env.float("ASSEMBLER_SIMILARITY_THRESHOLD", 0.8),
		AssemblerContextWindow:       env.int("ASSEMBLER_CONTEXT_WINDOW", 8000),
		AssemblerBudgetPercentage:    env.float("ASSEMBLER_BUDGET_PERCENTAGE", 0.5),
		AssemblerCharsPerToken:       env.int("ASSEMBLER_CHARS_PER_TOKEN", 4),
		AssemblerOverheadTokens:      env.int("ASSEMBLER_OVERHEAD_TOKENS", 10),

		VerifierSkipThreshold:   env.float("VERIFIER_SKIP_THRESHOLD", 0.8),
		VerifierFilterThreshold: env.float("VERIFIER_FILTER_THRESHOLD", 0.3),
		VerifierConcurrency:     env.int("VERIFIER_CONCURRENCY", 5),

		CacheEnabled: env.bool("CACHE_ENABLED", true),
		CacheMaxSize: env.int("CACHE_MAX_SIZE", 1000),
		CacheTTL:     env.duration("CACHE_TTL", 5*time.Minute),

		SilenceEnabled:   env.bool("SILENCE_ENABLED", false),
		SilenceThreshold: env.float("SILENCE_THRESHOLD", 0.3),
	}

	if cfg.RetrieverAlpha < 0 || cfg.RetrieverAlpha > 1 {
		return nil, fmt.Errorf("config.Load: RETRIEVER_ALPHA must be in [0,1], got %v", cfg.RetrieverAlpha)
	}
	if cfg.RetrieverGraphWeight < 0 || cfg.RetrieverGraphWeight > 1 {
		return nil, fmt.Errorf("config.Load: RETRIEVER_GRAPH_WEIGHT must be in [0,1], got %v", cfg.RetrieverGraphWeight)
	}

	return cfg, nil
}

// loadFileOverlay reads an optional YAML file of upper-snake-case
// key/value pairs. An empty path (the common case) is a no-op.
func loadFileOverlay(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read config file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config.Load: parse config file: %w", err)
	}
	overlay := make(map[string]string, len(raw))
	for k, v := range raw {
		overlay[k] = fmt.Sprintf("%v", v)
	}
	return overlay, nil
}

// envLookup resolves a key from the environment, falling back to the
// YAML file overlay, then to the caller-supplied default.
type envLookup struct {
	file map[string]string
}

func (e envLookup) raw(key string) (string, bool) {
	if v := os.Getenv(key); v != "" {
		return v, true
	}
	if v, ok := e.file[key]; ok && v != "" {
		return v, true
	}
	return "", false
}

func (e envLookup) str(key, fallback string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return fallback
}

func (e envLookup) int(key string, fallback int) int {
	v, ok := e.raw(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (e envLookup) float(key string, fallback float64) float64 {
	v, ok := e.raw(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func (e envLookup) bool(key string, fallback bool) bool {
	v, ok := e.raw(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func (e envLookup) duration(key string, fallback time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
