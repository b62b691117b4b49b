package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"quest-battle-service/middleware"
)

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	BucketName      string
	Endpoint        string
}

// Enabled is true when sweep reports should be archived.
func (r R2Config) Enabled() bool {
	return r.BucketName != ""
}

type Config struct {
	Port           string
	DatabaseURL    string
	GatewayToken   string // shared with the API gateway
	CronSecret     string // presented by the external scheduler
	AllowedOrigins string
	OperatorRoles  []string

	// SweepInterval > 0 also runs the sweep in-process.
	SweepInterval    time.Duration
	SweepConcurrency int
	SweepBatchSize   int

	R2 R2Config
}

// Load reads the environment. Call godotenv.Load first if a .env file is used.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "5200"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		GatewayToken:   os.Getenv("GATEWAY_TOKEN"),
		CronSecret:     os.Getenv("CRON_SECRET"),
		AllowedOrigins: normalizeOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		OperatorRoles:  middleware.ParseRoles(getEnv("OPERATOR_ROLES", "admin,operator")),
		R2: R2Config{
			AccountID:       os.Getenv("R2_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			BucketName:      os.Getenv("R2_BUCKET_NAME"),
			Endpoint:        os.Getenv("R2_ENDPOINT"),
		},
	}

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.GatewayToken == "" {
		missing = append(missing, "GATEWAY_TOKEN")
	}
	if cfg.CronSecret == "" {
		missing = append(missing, "CRON_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	var err error
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		if cfg.SweepInterval, err = time.ParseDuration(v); err != nil || cfg.SweepInterval < 0 {
			return nil, fmt.Errorf("SWEEP_INTERVAL must be a non-negative duration like 1h, got %q", v)
		}
	}
	if cfg.SweepConcurrency, err = getPositiveInt("SWEEP_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.SweepBatchSize, err = getPositiveInt("SWEEP_BATCH_SIZE", 200); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getPositiveInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

// normalizeOrigins trims spaces around each comma-separated origin.
func normalizeOrigins(s string) string {
	parts := strings.Split(s, ",")
	for i, origin := range parts {
		parts[i] = strings.TrimSpace(origin)
	}
	return strings.Join(parts, ",")
}
