package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Environment   string
	Telegram      TelegramConfig
	Store         StoreConfig
	Relay         RelayConfig
	Proxy         ProxyConfig
	Observability ObservabilityConfig
}

// TelegramConfig holds chat transport configuration.
type TelegramConfig struct {
	APIID    int
	APIHash  string
	BotToken string
}

// StoreConfig holds asset store configuration. Backend selects the
// implementation: "github" (release assets) or "s3".
type StoreConfig struct {
	Backend     string
	GitHubToken string
	GitHubRepo  string
	ReleaseTag  string
	S3Bucket    string
	AWSRegion   string
}

// RelayConfig holds pipeline configuration.
type RelayConfig struct {
	AdminUserIDs []int64
	MaxFileSize  int64
	StagingDir   string
	MetricsPort  int
}

// ProxyConfig holds signed-link proxy configuration.
type ProxyConfig struct {
	Enabled   bool
	Domain    string
	JWTSecret string
	Port      string
}

// ObservabilityConfig holds observability configuration.
type ObservabilityConfig struct {
	OTLPEndpoint string
}

// Default values
const (
	DefaultMaxFileSize  = 4 * 1024 * 1024 * 1024
	DefaultStagingDir   = "/tmp/relay-staging"
	DefaultMetricsPort  = 2112
	DefaultProxyPort    = "8080"
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultStoreBackend = "github"
	DefaultAWSRegion    = "us-west-2"
)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	adminIDs, err := parseAdminIDs(os.Getenv("ADMIN_USER_IDS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment: getEnv("ENV", "dev"),
		Telegram: TelegramConfig{
			APIID:    getEnvInt("TELEGRAM_API_ID", 0),
			APIHash:  os.Getenv("TELEGRAM_API_HASH"),
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		},
		Store: StoreConfig{
			Backend:     getEnv("STORE_BACKEND", DefaultStoreBackend),
			GitHubToken: os.Getenv("GITHUB_TOKEN"),
			GitHubRepo:  os.Getenv("GITHUB_REPO"),
			ReleaseTag:  os.Getenv("GITHUB_RELEASE_TAG"),
			S3Bucket:    os.Getenv("S3_BUCKET"),
			AWSRegion:   getEnv("AWS_REGION", DefaultAWSRegion),
		},
		Relay: RelayConfig{
			AdminUserIDs: adminIDs,
			MaxFileSize:  getEnvInt64("MAX_FILE_SIZE", DefaultMaxFileSize),
			StagingDir:   getEnv("STAGING_DIR", DefaultStagingDir),
			MetricsPort:  getEnvInt("METRICS_PORT", DefaultMetricsPort),
		},
		Proxy: ProxyConfig{
			Enabled:   getEnvBool("PROXY_ENABLED", false),
			Domain:    os.Getenv("PROXY_DOMAIN"),
			JWTSecret: os.Getenv("PROXY_JWT_SECRET"),
			Port:      getEnv("PROXY_PORT", DefaultProxyPort),
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", DefaultOTLPEndpoint),
		},
	}

	return cfg, nil
}

// LoadRelay loads configuration required for the relay service.
func LoadRelay() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.ValidateRelay(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadProxy loads configuration required for the link proxy service.
func LoadProxy() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if err := cfg.ValidateProxy(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateRelay validates configuration required for the relay service.
func (c *Config) ValidateRelay() error {
	var errs []string

	if c.Telegram.APIID == 0 {
		errs = append(errs, "TELEGRAM_API_ID is required")
	}
	if c.Telegram.APIHash == "" {
		errs = append(errs, "TELEGRAM_API_HASH is required")
	}
	if c.Telegram.BotToken == "" {
		errs = append(errs, "TELEGRAM_BOT_TOKEN is required")
	}
	if len(c.Relay.AdminUserIDs) == 0 {
		errs = append(errs, "ADMIN_USER_IDS is required")
	}
	if c.Relay.MaxFileSize <= 0 {
		errs = append(errs, "MAX_FILE_SIZE must be positive")
	}

	errs = append(errs, c.storeErrors()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ValidateProxy validates configuration required for the link proxy service.
func (c *Config) ValidateProxy() error {
	var errs []string

	if c.Proxy.Domain == "" {
		errs = append(errs, "PROXY_DOMAIN is required")
	}
	if c.Proxy.JWTSecret == "" {
		errs = append(errs, "PROXY_JWT_SECRET is required")
	}
	if c.IsProduction() && len(c.Proxy.JWTSecret) < 32 {
		errs = append(errs, "PROXY_JWT_SECRET must be at least 32 characters in production")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) storeErrors() []string {
	var errs []string

	switch c.Store.Backend {
	case "github":
		if c.Store.GitHubToken == "" {
			errs = append(errs, "GITHUB_TOKEN is required")
		}
		if c.Store.GitHubRepo == "" {
			errs = append(errs, "GITHUB_REPO is required")
		}
		if c.Store.ReleaseTag == "" {
			errs = append(errs, "GITHUB_RELEASE_TAG is required")
		}
	case "s3":
		if c.Store.S3Bucket == "" {
			errs = append(errs, "S3_BUCKET is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORE_BACKEND must be github or s3, got %q", c.Store.Backend))
	}

	return errs
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "prod" || env == "production"
}

// IsAdmin returns true if the user id is in the admin list.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Relay.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Helper functions

func parseAdminIDs(value string) ([]int64, error) {
	if value == "" {
		return nil, nil
	}

	parts := strings.Split(value, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		id, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ADMIN_USER_IDS must be comma-separated integers: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil && intVal > 0 {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil && intVal > 0 {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.EqualFold(value, "true") || value == "1"
	}
	return defaultValue
}
