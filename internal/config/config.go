package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	AWSRegion string

	// Database connection
	DBName     string
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBSSLMode  string

	// Model ids
	EmbeddingsModel  string
	MainLLMModel     string
	FallbackLLMModel string
	OutputTokens     int

	// Default agent seeded on first ingestion for a tenant/agent pair.
	// AgentModelID is read for the external agent wrapper; the core does
	// not consume it.
	AgentModelID     string
	AgentName        string
	AgentDescription string

	Port        string
	GinMode     string
	CORSOrigins []string
	MaxBodySize int64

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	RateLimitReqs   int
	RateLimitWindow int

	// Requests-per-minute budget shared by the Bedrock clients
	AIRequestsPerMinute int

	// Scratch space for downloaded objects
	ScratchDir string

	// OCR polling bounds
	OCRMaxAttempts int
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		AWSRegion: getEnv("AWS_REGION", "us-east-1"),

		DBName:     getEnv("DB_NAME", ""),
		DBUser:     getEnv("DB_USER", ""),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBSSLMode:  getEnv("DB_SSLMODE", "prefer"),

		EmbeddingsModel:  getEnv("EMBEDDINGS_MODEL", "cohere.embed-v4:0"),
		MainLLMModel:     getEnv("MAIN_LLM_MODEL", "openai.gpt-oss-120b-1:0"),
		FallbackLLMModel: getEnv("FALLBACK_LLM_MODEL", "openai.gpt-oss-20b-1:0"),
		OutputTokens:     getEnvInt("OUTPUT_TOKENS", 2048),

		AgentModelID:     getEnv("AGENT_MODEL_ID", ""),
		AgentName:        getEnv("AGENT_NAME", "RAG Knowledge Agent"),
		AgentDescription: getEnv("AGENT_DESCRIPTION", "Agente de conocimiento sobre documentos ingeridos"),

		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),
		MaxBodySize: getEnvInt64("MAX_BODY_SIZE", 10485760), // 10MB; uploads go to object storage, not this API

		// Redis Configuration
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		AIRequestsPerMinute: getEnvInt("AI_REQUESTS_PER_MINUTE", 120),

		ScratchDir: getEnv("SCRATCH_DIR", os.TempDir()),

		OCRMaxAttempts: getEnvInt("OCR_MAX_ATTEMPTS", 30),
	}

	// Validate required fields
	if cfg.DBName == "" {
		return nil, fmt.Errorf("DB_NAME is required - set it in .env file")
	}

	if cfg.DBUser == "" {
		return nil, fmt.Errorf("DB_USER is required - set it in .env file")
	}

	if cfg.DBPassword == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required - set it in .env file")
	}

	return cfg, nil
}

// PostgresDSN renders the connection string in key/value form so passwords
// with URL metacharacters need no escaping.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
