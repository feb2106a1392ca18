package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Supabase auth
	SupabaseJWTSecret string
	AuthRequired      bool

	// External services (Modal)
	ScrapeEndpoint  string
	RAGEndpoint     string
	GetDataEndpoint string
	ModalAuthToken  string

	// Gemini AI
	GeminiAPIKey string

	// Per-user quota. Window 0 means the counter never resets.
	RateLimit              int
	RateLimitWindowSeconds int

	// Ambient per-IP limiter on the API surface.
	IPRateLimit              int
	IPRateLimitWindowSeconds int

	// Static frontend
	StaticDir   string
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:              getEnvOrDefault("PORT", "3000"),
		Env:               getEnvOrDefault("ENV", "development"),
		DatabaseURL:       mustGetEnv("DATABASE_URL"),
		RedisURL:          mustGetEnv("REDIS_URL"),
		SupabaseJWTSecret: getEnvOrDefault("SUPABASE_JWT_SECRET", ""),
		AuthRequired:      getEnvAsBoolOrDefault("AUTH_REQUIRED", false),
		ScrapeEndpoint:    mustGetEnv("SCRAPE_ENDPOINT"),
		RAGEndpoint:       mustGetEnv("RAG_ENDPOINT"),
		GetDataEndpoint:   mustGetEnv("GET_DATA_ENDPOINT"),
		ModalAuthToken:    mustGetEnv("MIRAGE_AUTH_TOKEN_MODAL"),
		GeminiAPIKey:      mustGetEnv("GEMINI_API_KEY"),

		RateLimit:              getEnvAsIntOrDefault("RATE_LIMIT", 30),
		RateLimitWindowSeconds: getEnvAsIntOrDefault("RATE_LIMIT_WINDOW_SECONDS", 0),

		IPRateLimit:              getEnvAsIntOrDefault("IP_RATE_LIMIT", 60),
		IPRateLimitWindowSeconds: getEnvAsIntOrDefault("IP_RATE_LIMIT_WINDOW_SECONDS", 60),

		StaticDir:   getEnvOrDefault("STATIC_DIR", "./dist"),
		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
