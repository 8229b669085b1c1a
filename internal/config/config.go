package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	LLMBaseURL         string
	LLMModelName       string
	LLMAPIKey          string
	LLMAutoload        bool
	EmbeddingBaseURL   string
	EmbeddingModelName string
	DBPath             string
	FinancialPath      string
	StandardsPath      string
	QdrantURL          string
	QdrantCollection   string
	QdrantVectorSize   int
	APIPort            string
	RetrievalMode      string
	ScopeTopN          int
	RetrievalTopK      int
	ContextBudget      int
	SnippetMax         int
	RerankEnabled      bool
	BuildWorkers       int
	CollabTimeoutMS    int
	LogLevel           slog.Level
	LogFormat          string
}

// Load reads configuration from environment variables and returns a Config struct.
// It applies defaults for optional fields and validates required fields.
// If a .env file exists in the current directory or project root, it will be loaded automatically.
// Environment variables already set take precedence over .env file values.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	// Check current directory first, then walk up to find project root (where go.mod is)
	_ = godotenv.Load() // Try current directory

	// Try to find project root by looking for go.mod
	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ { // Limit search depth
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break // Reached filesystem root
			}
			dir = parent
		}
	}

	cfg := &Config{
		LLMBaseURL:         getEnv("LLM_BASE_URL", "http://localhost:8080"),
		LLMModelName:       getEnv("LLM_MODEL", "Llama-3.1-8B-Instruct"),
		LLMAPIKey:          getEnv("LLM_API_KEY", "dummy-key"),
		LLMAutoload:        getEnv("LLM_AUTOLOAD", "false") == "true",
		EmbeddingBaseURL:   getEnv("EMBEDDING_BASE_URL", "http://localhost:8081"), // Default to embeddings server
		EmbeddingModelName: getEnv("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),
		// Note: granite-embedding-278m-multilingual has n_ctx=512 tokens (hard limit enforced by model).
		DBPath:           getEnv("DB_PATH", "./data/auditrag.db"),
		FinancialPath:    getEnv("FINANCIAL_CORPUS_PATH", ""),
		StandardsPath:    getEnv("STANDARDS_CORPUS_PATH", ""),
		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "auditrag"),
		APIPort:          getEnv("API_PORT", "9000"),
		RetrievalMode:    getEnv("RETRIEVAL_MODE", "hybrid"),
		RerankEnabled:    getEnv("RERANK_ENABLED", "false") == "true",
		LogFormat:        getEnv("LOG_FORMAT", "text"),
	}

	level, err := parseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	// Parse QDRANT_VECTOR_SIZE
	// Note: This must match the output vector size of the embeddings model.
	// If the vector size changes, the Qdrant collections must be recreated.
	vectorSizeStr := getEnv("QDRANT_VECTOR_SIZE", "")
	if vectorSizeStr == "" {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE is required")
	}
	vectorSize, err := strconv.Atoi(vectorSizeStr)
	if err != nil {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be a valid integer: %w", err)
	}
	if vectorSize <= 0 {
		return nil, fmt.Errorf("QDRANT_VECTOR_SIZE must be greater than 0")
	}
	cfg.QdrantVectorSize = vectorSize

	if cfg.ScopeTopN, err = getEnvInt("SCOPE_TOP_N", 3); err != nil {
		return nil, err
	}
	if cfg.RetrievalTopK, err = getEnvInt("RETRIEVAL_TOP_K", 5); err != nil {
		return nil, err
	}
	if cfg.ContextBudget, err = getEnvInt("CONTEXT_BUDGET", 4000); err != nil {
		return nil, err
	}
	if cfg.SnippetMax, err = getEnvInt("SNIPPET_MAX", 500); err != nil {
		return nil, err
	}
	if cfg.BuildWorkers, err = getEnvInt("BUILD_WORKERS", 0); err != nil {
		return nil, err
	}
	if cfg.CollabTimeoutMS, err = getEnvInt("COLLAB_TIMEOUT_MS", 10000); err != nil {
		return nil, err
	}

	// Validate required fields
	if cfg.FinancialPath == "" {
		return nil, fmt.Errorf("FINANCIAL_CORPUS_PATH is required")
	}
	if cfg.StandardsPath == "" {
		return nil, fmt.Errorf("STANDARDS_CORPUS_PATH is required")
	}

	switch cfg.RetrievalMode {
	case "hybrid", "vector", "lexical":
	default:
		return nil, fmt.Errorf("RETRIEVAL_MODE must be one of hybrid, vector, lexical (got %q)", cfg.RetrievalMode)
	}

	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT must be text or json (got %q)", cfg.LogFormat)
	}

	if cfg.ScopeTopN <= 0 {
		return nil, fmt.Errorf("SCOPE_TOP_N must be greater than 0")
	}
	if cfg.RetrievalTopK <= 0 {
		return nil, fmt.Errorf("RETRIEVAL_TOP_K must be greater than 0")
	}
	// The assembler guarantees at least 1800 characters of context and callers
	// downstream assume the block never exceeds 4000.
	if cfg.ContextBudget < 1800 || cfg.ContextBudget > 4000 {
		return nil, fmt.Errorf("CONTEXT_BUDGET must be between 1800 and 4000 (got %d)", cfg.ContextBudget)
	}
	if cfg.SnippetMax <= 0 || cfg.SnippetMax > cfg.ContextBudget {
		return nil, fmt.Errorf("SNIPPET_MAX must be between 1 and CONTEXT_BUDGET (got %d)", cfg.SnippetMax)
	}
	if cfg.CollabTimeoutMS <= 0 {
		return nil, fmt.Errorf("COLLAB_TIMEOUT_MS must be greater than 0")
	}

	// Create ./data directory if it doesn't exist (for future DB file)
	dataDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return cfg, nil
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseLogLevel maps a LOG_LEVEL string to a slog.Level.
func parseLogLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error (got %q)", s)
	}
}

// getEnvInt gets an integer environment variable or returns a default value.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return n, nil
}
