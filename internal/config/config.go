package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	JWTSecret   string
	SkipAuth    bool
	Environment string
	AppId       string

	MongoURI string
	DBName   string

	PostgRESTURL   string
	PostgRESTToken string // Service-role token for metadata reads; user tokens pass through.
	PostgresDSN    string // Optional direct connection for large reference reads.

	FSPath string // Physical directory for uploaded import files

	MaxImportFileMB int
	ExportRowLimit  int
	JobRetentionHrs int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		SkipAuth:    getEnv("SKIP_AUTH", "false") == "true",
		Environment: getEnv("ENVIRONMENT", "development"),
		AppId:       getEnv("APP_ID", "civic-os"),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:   getEnv("DB_NAME", "civic-os"),

		PostgRESTURL:   getEnv("POSTGREST_URL", "http://localhost:3000"),
		PostgRESTToken: getEnv("POSTGREST_TOKEN", ""),
		PostgresDSN:    getEnv("PG_DSN", ""),

		FSPath: getEnv("FS_PATH", "./uploads"),

		MaxImportFileMB: getEnvInt("MAX_IMPORT_FILE_MB", 10),
		ExportRowLimit:  getEnvInt("EXPORT_ROW_LIMIT", 50000),
		JobRetentionHrs: getEnvInt("JOB_RETENTION_HOURS", 72),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
