package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment  string
	HTTPPort     string
	Domains      []string
	CertCacheDir string
	LogDir       string

	DatabaseURL     string
	DBMaxRetries    int
	DBRetryDelay    time.Duration

	LLMProvider  string
	LLMAPIURL    string
	LLMAPIKey    string
	LLMModel     string
	LLMTimeout   time.Duration
	LLMMaxTokens int

	EmbeddingProvider   string
	EmbeddingAPIURL     string
	EmbeddingAPIKey     string
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingRateLimit  float64

	ChunkSize           int
	ChunkOverlap        int
	RetrievalTopK       int
	QuestionConcurrency int
	IngestTimeout       time.Duration
	BackendRetries      int
	BackendRetryDelay   time.Duration
	DefaultMode         string
	FactSchemaPath      string

	SourceDocsPath     string
	WatchInterval      time.Duration
	ExecutionRetention time.Duration
	RequestTimeout     time.Duration
}

var isTest bool

func init() {
	isTest = os.Getenv("GO_ENVIRONMENT") == "test"
	if !isTest {
		err := godotenv.Load()
		if err != nil {
			log.Println("Warning: Error loading .env file:", err)
		}
	}
}

func Load() Config {
	return Config{
		Environment:  getEnv("ENVIRONMENT", "development"),
		HTTPPort:     getEnv("HTTP_PORT", "8086"),
		Domains:      getEnvAsList("DOMAINS", []string{"example.com"}),
		CertCacheDir: getEnv("CERT_CACHE_DIR", "../claimdesk_certs"),
		LogDir:       getEnv("LOG_DIR", "logs"),

		DatabaseURL:  getEnv("DATABASE_URL", ""),
		DBMaxRetries: getEnvAsInt("DB_MAX_RETRIES", 10),
		DBRetryDelay: getEnvAsDuration("DB_RETRY_DELAY", 10*time.Second),

		// An empty model or zero dimensions selects the provider default.
		LLMProvider:  getEnv("LLM_PROVIDER", "ollama"),
		LLMAPIURL:    getEnv("LLM_API_URL", ""),
		LLMAPIKey:    getEnv("LLM_API_KEY", ""),
		LLMModel:     getEnv("LLM_MODEL", ""),
		LLMTimeout:   getEnvAsDuration("LLM_TIMEOUT", 120*time.Second),
		LLMMaxTokens: getEnvAsInt("LLM_MAX_TOKENS", 1024),

		EmbeddingProvider:   getEnv("EMBEDDING_PROVIDER", "ollama"),
		EmbeddingAPIURL:     getEnv("EMBEDDING_API_URL", ""),
		EmbeddingAPIKey:     getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", ""),
		EmbeddingDimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 0),
		EmbeddingRateLimit:  getEnvAsFloat("EMBEDDING_RATE_LIMIT", 20),

		ChunkSize:           getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:        getEnvAsInt("CHUNK_OVERLAP", 100),
		RetrievalTopK:       getEnvAsInt("RETRIEVAL_TOP_K", 5),
		QuestionConcurrency: getEnvAsInt("QUESTION_CONCURRENCY", 4),
		IngestTimeout:       getEnvAsDuration("INGEST_TIMEOUT", 10*time.Minute),
		BackendRetries:      getEnvAsInt("BACKEND_RETRIES", 3),
		BackendRetryDelay:   getEnvAsDuration("BACKEND_RETRY_DELAY", 2*time.Second),
		DefaultMode:         getEnv("DEFAULT_MODE", "claim"),
		FactSchemaPath:      getEnv("FACT_SCHEMA_PATH", ""),

		SourceDocsPath:     getEnv("SOURCE_DOCS_PATH", "source_documents"),
		WatchInterval:      getEnvAsDuration("WATCH_INTERVAL", 20*time.Minute),
		ExecutionRetention: getEnvAsDuration("EXECUTION_RETENTION", 24*time.Hour),
		RequestTimeout:     getEnvAsDuration("REQUEST_TIMEOUT", 15*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("90s") or a plain number of seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if d, err := time.ParseDuration(strValue); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	var values []string
	for _, v := range strings.Split(strValue, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
