package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	os.Setenv("TELEGRAM_API_ID", "12345")
	os.Setenv("TELEGRAM_API_HASH", "hash")
	os.Setenv("TELEGRAM_BOT_TOKEN", "token")
	os.Setenv("GITHUB_TOKEN", "ghtoken")
	os.Setenv("GITHUB_REPO", "owner/repo")
	os.Setenv("GITHUB_RELEASE_TAG", "v1")
	os.Setenv("ADMIN_USER_IDS", "42, 43")
	defer func() {
		os.Unsetenv("TELEGRAM_API_ID")
		os.Unsetenv("TELEGRAM_API_HASH")
		os.Unsetenv("TELEGRAM_BOT_TOKEN")
		os.Unsetenv("GITHUB_TOKEN")
		os.Unsetenv("GITHUB_REPO")
		os.Unsetenv("GITHUB_RELEASE_TAG")
		os.Unsetenv("ADMIN_USER_IDS")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.GitHubRepo != "owner/repo" {
		t.Errorf("GitHubRepo = %v, want %v", cfg.Store.GitHubRepo, "owner/repo")
	}
	if cfg.Relay.MaxFileSize != DefaultMaxFileSize {
		t.Errorf("MaxFileSize = %v, want %v", cfg.Relay.MaxFileSize, int64(DefaultMaxFileSize))
	}
	if len(cfg.Relay.AdminUserIDs) != 2 || cfg.Relay.AdminUserIDs[0] != 42 {
		t.Errorf("AdminUserIDs = %v, want [42 43]", cfg.Relay.AdminUserIDs)
	}
}

func TestLoad_BadAdminIDs(t *testing.T) {
	os.Setenv("ADMIN_USER_IDS", "42,abc")
	defer os.Unsetenv("ADMIN_USER_IDS")

	if _, err := Load(); err == nil {
		t.Error("Load() expected error for non-integer admin ids")
	}
}

func TestValidateRelay_MissingRequired(t *testing.T) {
	cfg := &Config{
		Environment: "dev",
		Store:       StoreConfig{Backend: "github"},
	}

	err := cfg.ValidateRelay()
	if err == nil {
		t.Error("ValidateRelay() expected error for missing required fields")
	}
}

func TestValidateRelay_AllPresent(t *testing.T) {
	cfg := &Config{
		Environment: "dev",
		Telegram:    TelegramConfig{APIID: 1, APIHash: "h", BotToken: "t"},
		Store: StoreConfig{
			Backend:     "github",
			GitHubToken: "tok",
			GitHubRepo:  "o/r",
			ReleaseTag:  "v1",
		},
		Relay: RelayConfig{AdminUserIDs: []int64{42}, MaxFileSize: DefaultMaxFileSize},
	}

	if err := cfg.ValidateRelay(); err != nil {
		t.Errorf("ValidateRelay() unexpected error = %v", err)
	}
}

func TestValidateRelay_S3Backend(t *testing.T) {
	cfg := &Config{
		Environment: "dev",
		Telegram:    TelegramConfig{APIID: 1, APIHash: "h", BotToken: "t"},
		Store:       StoreConfig{Backend: "s3", S3Bucket: "assets"},
		Relay:       RelayConfig{AdminUserIDs: []int64{42}, MaxFileSize: 1},
	}

	if err := cfg.ValidateRelay(); err != nil {
		t.Errorf("ValidateRelay() unexpected error = %v", err)
	}
}

func TestValidateRelay_UnknownBackend(t *testing.T) {
	cfg := &Config{
		Environment: "dev",
		Telegram:    TelegramConfig{APIID: 1, APIHash: "h", BotToken: "t"},
		Store:       StoreConfig{Backend: "ftp"},
		Relay:       RelayConfig{AdminUserIDs: []int64{42}, MaxFileSize: 1},
	}

	if err := cfg.ValidateRelay(); err == nil {
		t.Error("ValidateRelay() expected error for unknown backend")
	}
}

func TestValidateProxy_ProductionSecretLength(t *testing.T) {
	cfg := &Config{
		Environment: "production",
		Proxy:       ProxyConfig{Domain: "dl.example.com", JWTSecret: "short"},
	}

	if err := cfg.ValidateProxy(); err == nil {
		t.Error("ValidateProxy() expected error for short secret in production")
	}
}

func TestIsProduction(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"prod", true},
		{"production", true},
		{"PROD", true},
		{"dev", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := &Config{Environment: tt.env}
			if got := cfg.IsProduction(); got != tt.want {
				t.Errorf("IsProduction() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsAdmin(t *testing.T) {
	cfg := &Config{Relay: RelayConfig{AdminUserIDs: []int64{42, 99}}}

	if !cfg.IsAdmin(42) {
		t.Error("IsAdmin(42) = false, want true")
	}
	if cfg.IsAdmin(7) {
		t.Error("IsAdmin(7) = true, want false")
	}
}
