package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"invoicing-backend/internal/shared/telemetry"
	"invoicing-backend/internal/vault"
)

// Config holds application configuration.
type Config struct {
	Port            string   `yaml:"port"`
	Env             string   `yaml:"env"`
	LogLevel        string   `yaml:"log_level"`
	CORSAllowOrigin []string `yaml:"cors_allow_origins"`
	DatabaseURL     string   `yaml:"database_url"`
	JWTSecret       string   `yaml:"jwt_secret"`

	ObjectStoreType   string `yaml:"object_store"`
	LocalStoreDir     string `yaml:"local_store_dir"`
	PublicBaseURL     string `yaml:"public_base_url"`
	LinkSigningSecret string `yaml:"link_signing_secret"`
	AWSRegion         string `yaml:"aws_region"`
	S3Bucket          string `yaml:"s3_bucket"`
	S3Prefix          string `yaml:"s3_prefix"`
	S3Endpoint        string `yaml:"s3_endpoint"`
	S3AccessKeyID     string `yaml:"s3_access_key_id"`
	S3SecretAccessKey string `yaml:"s3_secret_access_key"`
	SSEKMSKeyID       string `yaml:"sse_kms_key_id"`
	SQSQueueURL       string `yaml:"sqs_queue_url"`

	CredentialKey            string `yaml:"credential_key"`
	GoogleClientID           string `yaml:"google_client_id"`
	GoogleClientSecret       string `yaml:"google_client_secret"`
	GoogleRedirectURL        string `yaml:"google_redirect_url"`
	GoogleServiceAccountJSON string `yaml:"google_service_account_json"`
	UIRedirectURL            string `yaml:"ui_redirect_url"`
	OAuthStateSecret         string `yaml:"oauth_state_secret"`

	EmailAPIURL string `yaml:"email_api_url"`
	EmailAPIKey string `yaml:"email_api_key"`
	EmailFrom   string `yaml:"email_from"`

	TenantCacheTTL      time.Duration `yaml:"tenant_cache_ttl"`
	SignedURLTTL        time.Duration `yaml:"signed_url_ttl"`
	ExternalCallTimeout time.Duration `yaml:"external_call_timeout"`
}

// Defaults returns the baseline configuration before YAML and env overlays.
func Defaults() Config {
	return Config{
		Port:                "8080",
		Env:                 "dev",
		LogLevel:            "info",
		CORSAllowOrigin:     []string{"http://localhost:5173"},
		ObjectStoreType:     "local",
		LocalStoreDir:       "./data",
		PublicBaseURL:       "http://localhost:8080",
		EmailAPIURL:         "https://api.resend.com/emails",
		TenantCacheTTL:      30 * time.Second,
		SignedURLTTL:        30 * 24 * time.Hour,
		ExternalCallTimeout: 20 * time.Second,
	}
}

// Load reads configuration using defaults < YAML (CONFIG_FILE) < environment.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadYAML(&cfg, path); err != nil {
			telemetry.Error("config.yaml_failed", map[string]any{"path": path, "error": err})
		}
	}
	loadEnv(&cfg)

	cfg.Env = normalizeEnv(cfg.Env)
	cfg.ObjectStoreType = normalizeStoreType(cfg.ObjectStoreType)

	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		telemetry.Warn("config.database_url_missing", map[string]any{"env": cfg.Env})
	}
	return cfg
}

// Validate reports configuration the service must not start with.
func (c Config) Validate() error {
	var errs []error
	if _, err := vault.DecodeKey(c.CredentialKey); err != nil {
		errs = append(errs, fmt.Errorf("CREDENTIAL_KEY: %w", err))
	}
	if c.ObjectStoreType == "s3" && strings.TrimSpace(c.S3Bucket) == "" {
		errs = append(errs, errors.New("OBJECT_STORE=s3 requires S3_BUCKET"))
	}
	if c.ObjectStoreType == "local" && c.Env == "production" && strings.TrimSpace(c.LinkSigningSecret) == "" {
		errs = append(errs, errors.New("LINK_SIGNING_SECRET is required for the local store in production"))
	}
	if c.Env == "production" && strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}
	if c.Env == "production" && c.GoogleClientID != "" && strings.TrimSpace(c.OAuthStateSecret) == "" {
		errs = append(errs, errors.New("OAUTH_STATE_SECRET is required for Google authorization in production"))
	}
	if c.SignedURLTTL <= 0 {
		errs = append(errs, errors.New("SIGNED_URL_TTL must be positive"))
	}
	return errors.Join(errs...)
}

func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func loadEnv(cfg *Config) {
	setString(&cfg.Port, "PORT")
	setString(&cfg.Env, "ENV")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	if raw := os.Getenv("CORS_ALLOW_ORIGINS"); raw != "" {
		cfg.CORSAllowOrigin = splitAndTrim(raw)
	}
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.JWTSecret, "JWT_SECRET")

	setString(&cfg.ObjectStoreType, "OBJECT_STORE")
	setString(&cfg.LocalStoreDir, "LOCAL_STORE_DIR")
	setString(&cfg.PublicBaseURL, "PUBLIC_BASE_URL")
	setString(&cfg.LinkSigningSecret, "LINK_SIGNING_SECRET")
	setString(&cfg.AWSRegion, "AWS_REGION")
	setString(&cfg.S3Bucket, "S3_BUCKET")
	setString(&cfg.S3Prefix, "S3_PREFIX")
	setString(&cfg.S3Endpoint, "S3_ENDPOINT")
	setString(&cfg.S3AccessKeyID, "S3_ACCESS_KEY_ID")
	setString(&cfg.S3SecretAccessKey, "S3_SECRET_ACCESS_KEY")
	setString(&cfg.SSEKMSKeyID, "SSE_KMS_KEY_ID")
	setString(&cfg.SQSQueueURL, "RA_SQS_QUEUE_URL")

	setString(&cfg.CredentialKey, "CREDENTIAL_KEY")
	setString(&cfg.GoogleClientID, "GOOGLE_CLIENT_ID")
	setString(&cfg.GoogleClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&cfg.GoogleRedirectURL, "GOOGLE_REDIRECT_URL")
	setString(&cfg.GoogleServiceAccountJSON, "GOOGLE_SERVICE_ACCOUNT_JSON")
	setString(&cfg.UIRedirectURL, "UI_REDIRECT_URL")
	setString(&cfg.OAuthStateSecret, "OAUTH_STATE_SECRET")

	setString(&cfg.EmailAPIURL, "EMAIL_API_URL")
	setString(&cfg.EmailAPIKey, "EMAIL_API_KEY")
	setString(&cfg.EmailFrom, "EMAIL_FROM")

	setDuration(&cfg.TenantCacheTTL, "TENANT_CACHE_TTL")
	setDuration(&cfg.SignedURLTTL, "SIGNED_URL_TTL")
	setDuration(&cfg.ExternalCallTimeout, "EXTERNAL_CALL_TIMEOUT")
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setDuration(dst *time.Duration, key string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		telemetry.Warn("config.invalid_duration", map[string]any{"key": key, "error": err})
		return
	}
	*dst = val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
