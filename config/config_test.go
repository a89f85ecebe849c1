package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "DB_URL=postgres://localhost/giftcase\n" +
		"DEPOSIT_ADDRESS=UQAbc\n" +
		"DEPOSIT_TTL=45m\n" +
		"ADMIN_CHAT_ID=42\n" +
		"REFERRAL_PERCENT=7.5\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.DB_URL != "postgres://localhost/giftcase" {
		t.Fatalf("expected DB_URL from file, got %q", cfg.DB_URL)
	}
	if cfg.DepositTTL != 45*time.Minute {
		t.Fatalf("expected 45m deposit ttl, got %s", cfg.DepositTTL)
	}
	if cfg.AdminChatID != 42 {
		t.Fatalf("expected admin chat 42, got %d", cfg.AdminChatID)
	}
	if cfg.ReferralPercent != "7.5" {
		t.Fatalf("expected referral percent 7.5, got %q", cfg.ReferralPercent)
	}
	if cfg.DepositComment != "giftcase" {
		t.Fatalf("expected default deposit comment, got %q", cfg.DepositComment)
	}
	if cfg.MarketPurchaseTimeout != 60*time.Second {
		t.Fatalf("expected default purchase timeout, got %s", cfg.MarketPurchaseTimeout)
	}
	if cfg.MarketEnabled() {
		t.Fatal("expected market to be disabled without base url")
	}
}

func TestLoadConfigWithoutFileUsesEnvironment(t *testing.T) {
	t.Setenv("DB_URL", "postgres://env/giftcase")
	t.Setenv("DEPOSIT_ADDRESS", "UQenv")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), ".env"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DB_URL != "postgres://env/giftcase" {
		t.Fatalf("expected DB_URL from env, got %q", cfg.DB_URL)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		DB_URL:              "postgres://x",
		DepositAddress:      "UQx",
		DepositComment:      "c",
		DepositTTL:          time.Minute,
		DepositPollInterval: time.Second,
		DepositScanLimit:    10,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing db", mutate: func(c *Config) { c.DB_URL = "" }, wantErr: true},
		{name: "missing address", mutate: func(c *Config) { c.DepositAddress = "" }, wantErr: true},
		{name: "empty comment", mutate: func(c *Config) { c.DepositComment = "" }, wantErr: true},
		{name: "zero ttl", mutate: func(c *Config) { c.DepositTTL = 0 }, wantErr: true},
		{name: "market without passphrase", mutate: func(c *Config) { c.MarketBaseURL = "https://m" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}
