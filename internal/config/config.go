package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                 string
	DatabaseURL          string
	DBMaxOpenConns       int
	DBMaxIdleConns       int
	DBConnMaxLifetimeMin int
	RedisAddr            string
	RedisPassword        string
	FrontendURL          string
	AllowedOrigins       []string
	JWTSecret            string
	TokenTTLMinutes      int
	LoginRatePerMinute   int
	LoginBurst           int
	OAuth                OAuthConfig
}

// Load reads configuration from the environment.
//
// The JWT signing secret is mandatory: without it every minted token would be
// forgeable, so its absence is a fatal startup error rather than a
// per-request failure.
func Load() (*Config, error) {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}

	frontendURL := GetEnv("FRONTEND_URL", "http://localhost:5173")

	// Build allowed origins list (frontend URL + CSV extras)
	allowedOrigins := []string{frontendURL}
	if extras := os.Getenv("ALLOWED_ORIGINS"); extras != "" {
		for _, origin := range strings.Split(extras, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				allowedOrigins = append(allowedOrigins, trimmed)
			}
		}
	}

	cfg := &Config{
		Port:                 GetEnv("PORT", "8080"),
		DatabaseURL:          GetEnv("DATABASE_URL", ""),
		DBMaxOpenConns:       GetEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:       GetEnvAsInt("DB_MAX_IDLE_CONNS", 25),
		DBConnMaxLifetimeMin: GetEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 5),
		RedisAddr:            GetEnv("REDIS_URL", "localhost:6379"),
		RedisPassword:        GetEnv("REDIS_PASSWORD", ""),
		FrontendURL:          frontendURL,
		AllowedOrigins:       allowedOrigins,
		JWTSecret:            jwtSecret,
		TokenTTLMinutes:      GetEnvAsInt("TOKEN_TTL_MINUTES", 60),
		LoginRatePerMinute:   GetEnvAsInt("LOGIN_RATE_PER_MINUTE", 10),
		LoginBurst:           GetEnvAsInt("LOGIN_BURST", 10),
		OAuth:                LoadOAuthConfig(),
	}

	return cfg, nil
}

func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func GetEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s: %s, using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}
