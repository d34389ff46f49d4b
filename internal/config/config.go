// Package config loads server configuration from an optional YAML overlay
// plus environment variables, env vars always winning.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageBackend selects which object-storage adapter pkg/storage wires up.
type StorageBackend string

const (
	StorageS3  StorageBackend = "s3"
	StorageGCS StorageBackend = "gcs"
)

// Config holds every knob the server needs at startup.
type Config struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"log_level"`
	DatabaseURL string `yaml:"database_url"`
	RedisAddr   string `yaml:"redis_addr"`

	StorageBackend StorageBackend `yaml:"storage_backend"`
	S3Bucket       string         `yaml:"s3_bucket"`
	S3Region       string         `yaml:"s3_region"`
	GCSBucket      string         `yaml:"gcs_bucket"`
	GCSProjectID   string         `yaml:"gcs_project_id"`

	JWTIssuer     string        `yaml:"jwt_issuer"`
	JWTAccessTTL  time.Duration `yaml:"jwt_access_ttl"`
	JWTKeyRotate  time.Duration `yaml:"jwt_key_rotate"`

	LoginRPM      int `yaml:"login_rpm"`
	InvitationRPH int `yaml:"invitation_rph"`
	LLMDraftRPM   int `yaml:"llm_draft_rpm"`

	LLMServiceURL string `yaml:"llm_service_url"`
}

func defaults() *Config {
	return &Config{
		Port:           "8080",
		LogLevel:       "INFO",
		DatabaseURL:    "postgres://annexops@localhost:5433/annexops?sslmode=disable",
		RedisAddr:      "localhost:6379",
		StorageBackend: StorageS3,
		S3Bucket:       "annexops-exports",
		S3Region:       "eu-central-1",
		JWTIssuer:      "annexops-registry",
		JWTAccessTTL:   time.Hour,
		JWTKeyRotate:   24 * time.Hour,
		LoginRPM:       10,
		InvitationRPH:  5,
		LLMDraftRPM:    30,
		LLMServiceURL:  "http://localhost:1234/v1/chat/completions",
	}
}

// Load builds a Config from, in increasing priority: built-in defaults, an
// optional CONFIG_FILE YAML overlay, then environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading CONFIG_FILE %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing CONFIG_FILE %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.RedisAddr, "REDIS_ADDR")

	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.StorageBackend = StorageBackend(v)
	}
	setString(&cfg.S3Bucket, "S3_BUCKET")
	setString(&cfg.S3Region, "S3_REGION")
	setString(&cfg.GCSBucket, "GCS_BUCKET")
	setString(&cfg.GCSProjectID, "GCS_PROJECT_ID")

	setString(&cfg.JWTIssuer, "JWT_ISSUER")
	setDuration(&cfg.JWTAccessTTL, "JWT_ACCESS_TTL")
	setDuration(&cfg.JWTKeyRotate, "JWT_KEY_ROTATE")

	setInt(&cfg.LoginRPM, "RATE_LIMIT_LOGIN_RPM")
	setInt(&cfg.InvitationRPH, "RATE_LIMIT_INVITATION_RPH")
	setInt(&cfg.LLMDraftRPM, "RATE_LIMIT_LLM_DRAFT_RPM")

	setString(&cfg.LLMServiceURL, "LLM_SERVICE_URL")
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, env string) {
	if v := os.Getenv(env); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
