package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	Port           int
	Environment    string
	AllowedOrigins []string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int32

	// RedisAddr is optional; the column schema cache is off when empty.
	RedisAddr string

	AccessTokenSecret []byte
	QueryTimeout      time.Duration
	ExportDir         string
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:         8080,
		Environment:  os.Getenv("ENVIRONMENT"),
		DBMaxConns:   25,
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		QueryTimeout: 30 * time.Second,
		ExportDir:    os.Getenv("EXPORT_DIR"),
	}

	required := map[string]*string{
		"DB_HOST":     &cfg.DBHost,
		"DB_PORT":     &cfg.DBPort,
		"DB_USERNAME": &cfg.DBUser,
		"DB_PASSWORD": &cfg.DBPassword,
		"DB_DATABASE": &cfg.DBName,
	}
	for _, key := range []string{"DB_HOST", "DB_PORT", "DB_USERNAME", "DB_PASSWORD", "DB_DATABASE"} {
		v := os.Getenv(key)
		if v == "" {
			return nil, fmt.Errorf("%s environment variable is required", key)
		}
		*required[key] = v
	}

	secret := os.Getenv("ACCESS_TOKEN_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("ACCESS_TOKEN_SECRET environment variable is required")
	}
	cfg.AccessTokenSecret = []byte(secret)

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid DB_MAX_CONNS %q", v)
		}
		cfg.DBMaxConns = int32(n)
	}
	if v := os.Getenv("QUERY_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid QUERY_TIMEOUT %q: %w", v, err)
		}
		cfg.QueryTimeout = d
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = os.TempDir()
	}
	for _, origin := range strings.Split(os.Getenv("ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	return cfg, nil
}

func NewLogger(cfg *Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsProduction() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
