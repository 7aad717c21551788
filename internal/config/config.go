package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// JWTConfig defines issuer/secret pair for auth verification.
type JWTConfig struct {
	Issuer string
	Secret []byte
}

// Config holds runtime configuration shared across the application.
type Config struct {
	Addr                  string
	DBDriver              string
	MongoURI              string
	MongoDatabase         string
	ApplicationCollection string
	PostgresDSN           string
	ConnectTimeout        time.Duration
	MaxConnectAttempts    int
	RetryInterval         time.Duration
	UploadDir             string
	UploadBaseURL         string
	MaxFileSize           int64
	MaxCertificates       int
	Timezone              string
	ServerLog             *log.Logger
	JWTConfigs            []JWTConfig
	JWTAudience           string
	StaffRoles            []string
	AllowedOrigins        []string
}

// Load reads environment variables and returns a fully populated Config.
func Load() Config {
	connectTimeout := 5 * time.Second
	if v := strings.TrimSpace(os.Getenv("DB_CONNECT_TIMEOUT")); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			connectTimeout = parsed
		}
	}

	retryInterval := 3 * time.Second
	if v := strings.TrimSpace(os.Getenv("DB_RETRY_INTERVAL")); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			retryInterval = parsed
		}
	}

	maxAttempts := 5
	if v := strings.TrimSpace(os.Getenv("DB_MAX_CONNECT_ATTEMPTS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			maxAttempts = parsed
		}
	}

	maxFileSize := int64(5 << 20)
	if v := strings.TrimSpace(os.Getenv("UPLOAD_MAX_FILE_SIZE")); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil && parsed > 0 {
			maxFileSize = parsed
		}
	}

	maxCertificates := 50
	if v := strings.TrimSpace(os.Getenv("UPLOAD_MAX_CERTIFICATES")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			maxCertificates = parsed
		}
	}

	driver := strings.ToLower(envOrDefault("DB_DRIVER", "mongo"))
	if driver != "mongo" && driver != "postgres" {
		log.Fatalf("DB_DRIVER must be mongo or postgres, got %q", driver)
	}

	var jwtConfigs []JWTConfig
	if secret := strings.TrimSpace(os.Getenv("AUTH_JWT_SECRET")); secret != "" {
		jwtConfigs = append(jwtConfigs, JWTConfig{
			Issuer: envOrDefault("AUTH_JWT_ISSUER", "sakura-gakuin-auth"),
			Secret: []byte(secret),
		})
	}
	if secret := strings.TrimSpace(os.Getenv("AUTH_LEGACY_JWT_SECRET")); secret != "" {
		jwtConfigs = append(jwtConfigs, JWTConfig{
			Issuer: envOrDefault("AUTH_LEGACY_JWT_ISSUER", "school-portal"),
			Secret: []byte(secret),
		})
	}
	if len(jwtConfigs) == 0 {
		log.Fatal("JWT secrets not configured. Set AUTH_JWT_SECRET or AUTH_LEGACY_JWT_SECRET.")
	}

	cfg := Config{
		Addr:                  envOrDefault("HTTP_ADDR", ":4000"),
		DBDriver:              driver,
		MongoURI:              envOrDefault("MONGO_URI", "mongodb://mongo:27017"),
		MongoDatabase:         envOrDefault("MONGO_DB", "admissions"),
		ApplicationCollection: envOrDefault("APPLICATION_COLLECTION", "applications"),
		PostgresDSN:           strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
		ConnectTimeout:        connectTimeout,
		MaxConnectAttempts:    maxAttempts,
		RetryInterval:         retryInterval,
		UploadDir:             envOrDefault("UPLOAD_DIR", "uploads"),
		UploadBaseURL:         envOrDefault("UPLOAD_BASE_URL", "/uploads"),
		MaxFileSize:           maxFileSize,
		MaxCertificates:       maxCertificates,
		Timezone:              envOrDefault("TIMEZONE", "Asia/Tokyo"),
		ServerLog:             log.New(os.Stdout, "[admissions-api] ", log.LstdFlags|log.Lshortfile),
		JWTConfigs:            jwtConfigs,
		JWTAudience:           strings.TrimSpace(os.Getenv("AUTH_JWT_AUDIENCE")),
		StaffRoles:            parseList("STAFF_ROLES", []string{"admin", "admissions"}),
		AllowedOrigins:        parseList("API_ALLOWED_ORIGINS", []string{"*"}),
	}

	if cfg.DBDriver == "postgres" && cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN must be configured when DB_DRIVER=postgres")
	}

	cfg.ServerLog.Printf("loaded config: driver=%s addr=%s uploadDir=%s", cfg.DBDriver, cfg.Addr, cfg.UploadDir)

	return cfg
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseList(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			values = append(values, part)
		}
	}

	if len(values) == 0 {
		return fallback
	}
	return values
}
