package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPPort    string
	ServiceName string

	// AuthSecret signs the authorization server's own session cookie.
	AuthSecret string
	// ClientID and ClientSecret identify the single federated builder
	// client. The client secret also keys code and access tokens, so it
	// must be provisioned identically on every host that runs the
	// authorize or token endpoint.
	ClientID     string
	ClientSecret string

	TokenIssuer    string
	CodeTokenTTL   time.Duration
	AccessTokenTTL time.Duration
	SessionTTL     time.Duration
	ReturnToTTL    time.Duration
	SecureCookies  bool

	DevLogin        bool
	DevUserID       string
	DevPasswordHash string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ProjectAccess seeds the static access directory with
	// "userID:projectID" pairs when no database is configured.
	ProjectAccess   []string
	UserEmailDomain string

	RateLimitRPM      int
	TelemetryEndpoint string
	TelemetryInsecure bool

	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	authSecret := strings.TrimSpace(os.Getenv("AUTH_SECRET"))
	if authSecret == "" {
		return Config{}, fmt.Errorf("AUTH_SECRET is required")
	}
	clientID := strings.TrimSpace(os.Getenv("AUTH_WS_CLIENT_ID"))
	if clientID == "" {
		return Config{}, fmt.Errorf("AUTH_WS_CLIENT_ID is required")
	}
	clientSecret := strings.TrimSpace(os.Getenv("AUTH_WS_CLIENT_SECRET"))
	if clientSecret == "" {
		return Config{}, fmt.Errorf("AUTH_WS_CLIENT_SECRET is required")
	}

	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		ServiceName:          getEnv("SERVICE_NAME", "smallbiznis-builder-auth"),
		AuthSecret:           authSecret,
		ClientID:             clientID,
		ClientSecret:         clientSecret,
		TokenIssuer:          getEnv("TOKEN_ISSUER", "builder-auth"),
		CodeTokenTTL:         getDuration("CODE_TOKEN_TTL", 5*time.Minute),
		AccessTokenTTL:       getDuration("ACCESS_TOKEN_TTL", time.Minute),
		SessionTTL:           getDuration("SESSION_TTL", 30*24*time.Hour),
		ReturnToTTL:          getDuration("RETURN_TO_TTL", time.Minute),
		SecureCookies:        getBool("SECURE_COOKIES", true),
		DevLogin:             getBool("DEV_LOGIN", false),
		DevUserID:            getEnv("DEV_USER_ID", ""),
		DevPasswordHash:      os.Getenv("DEV_PASSWORD_HASH"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		ProjectAccess:        getList("PROJECT_ACCESS", nil),
		UserEmailDomain:      getEnv("USER_EMAIL_DOMAIN", "example.com"),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.DevLogin && strings.TrimSpace(cfg.DevUserID) == "" {
		return Config{}, fmt.Errorf("DEV_USER_ID is required when DEV_LOGIN is enabled")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
