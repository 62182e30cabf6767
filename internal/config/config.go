package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	GoogleAPIKey      string
	RedisURL          string
	CacheTTLSeconds   int
	ShopifyAPIVersion string
	MaxRetries        int
	LLMModel          string
	LLMTemperature    float64
	HTTPPort          string
	LogLevel          string
	ServiceJWTSecret  string
	HistoryDB         string
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		GoogleAPIKey:      getEnv("GOOGLE_API_KEY", ""),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379"),
		CacheTTLSeconds:   getEnvAsInt("CACHE_TTL_SECONDS", 300),
		ShopifyAPIVersion: getEnv("SHOPIFY_API_VERSION", "2024-01"),
		MaxRetries:        getEnvAsInt("MAX_RETRIES", 3),
		LLMModel:          getEnv("LLM_MODEL", "gemini-1.5-flash"),
		LLMTemperature:    getEnvAsFloat("LLM_TEMPERATURE", 0.3),
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "INFO"),
		ServiceJWTSecret:  getEnv("SERVICE_JWT_SECRET", ""),
		HistoryDB:         getEnv("HISTORY_DB", ""),
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
