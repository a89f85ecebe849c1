package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	DB_URL   string `mapstructure:"DB_URL"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	HTTPPort    string `mapstructure:"HTTP_PORT"`
	CORSOrigins string `mapstructure:"CORS_ORIGINS"`

	TelegramBotToken string        `mapstructure:"TELEGRAM_BOT_TOKEN"`
	AdminChatID      int64         `mapstructure:"ADMIN_CHAT_ID"`
	InitDataTTL      time.Duration `mapstructure:"INIT_DATA_TTL"`
	WebAppURL        string        `mapstructure:"WEBAPP_URL"`

	CatalogPath string `mapstructure:"CATALOG_PATH"`

	DepositAddress      string        `mapstructure:"DEPOSIT_ADDRESS"`
	DepositComment      string        `mapstructure:"DEPOSIT_COMMENT"`
	DepositTTL          time.Duration `mapstructure:"DEPOSIT_TTL"`
	DepositMinAmount    string        `mapstructure:"DEPOSIT_MIN_AMOUNT"`
	DepositScanLimit    int           `mapstructure:"DEPOSIT_SCAN_LIMIT"`
	DepositPollInterval time.Duration `mapstructure:"DEPOSIT_POLL_INTERVAL"`
	DepositGrace        time.Duration `mapstructure:"DEPOSIT_GRACE"`
	ReferralPercent     string        `mapstructure:"REFERRAL_PERCENT"`

	TonAPIBaseURL string `mapstructure:"TONAPI_BASE_URL"`
	TonAPIKey     string `mapstructure:"TONAPI_KEY"`

	MarketBaseURL         string        `mapstructure:"MARKET_BASE_URL"`
	MarketAuth            string        `mapstructure:"MARKET_AUTH"`
	MarketPassphrase      string        `mapstructure:"MARKET_PASSPHRASE"`
	MarketStatusTimeout   time.Duration `mapstructure:"MARKET_STATUS_TIMEOUT"`
	MarketPurchaseTimeout time.Duration `mapstructure:"MARKET_PURCHASE_TIMEOUT"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("INIT_DATA_TTL", 24*time.Hour)
	v.SetDefault("DEPOSIT_COMMENT", "giftcase")
	v.SetDefault("DEPOSIT_TTL", 30*time.Minute)
	v.SetDefault("DEPOSIT_MIN_AMOUNT", "0.1")
	v.SetDefault("DEPOSIT_SCAN_LIMIT", 50)
	v.SetDefault("DEPOSIT_POLL_INTERVAL", 15*time.Second)
	v.SetDefault("DEPOSIT_GRACE", 2*time.Minute)
	v.SetDefault("REFERRAL_PERCENT", "10")
	v.SetDefault("TONAPI_BASE_URL", "https://tonapi.io/v2")
	v.SetDefault("MARKET_STATUS_TIMEOUT", 10*time.Second)
	v.SetDefault("MARKET_PURCHASE_TIMEOUT", 60*time.Second)
}

// keys lists every setting so AutomaticEnv can see them during Unmarshal even without a file.
var keys = []string{
	"DB_URL", "LOG_LEVEL", "HTTP_PORT", "CORS_ORIGINS", "TELEGRAM_BOT_TOKEN", "ADMIN_CHAT_ID",
	"INIT_DATA_TTL", "WEBAPP_URL", "CATALOG_PATH", "DEPOSIT_ADDRESS", "DEPOSIT_COMMENT", "DEPOSIT_TTL",
	"DEPOSIT_MIN_AMOUNT", "DEPOSIT_SCAN_LIMIT", "DEPOSIT_POLL_INTERVAL", "DEPOSIT_GRACE",
	"REFERRAL_PERCENT", "TONAPI_BASE_URL", "TONAPI_KEY", "MARKET_BASE_URL", "MARKET_AUTH",
	"MARKET_PASSPHRASE", "MARKET_STATUS_TIMEOUT", "MARKET_PURCHASE_TIMEOUT",
}

func LoadConfig(path string) (config Config, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return config, fmt.Errorf("failed to resolve config path: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(filepath.Dir(absPath))
	v.SetConfigName(filepath.Base(absPath))
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return config, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}

	return config, config.Validate()
}

func (c Config) Validate() error {
	if c.DB_URL == "" {
		return errors.New("DB_URL is required")
	}
	if c.DepositAddress == "" {
		return errors.New("DEPOSIT_ADDRESS is required")
	}
	if c.DepositComment == "" {
		return errors.New("DEPOSIT_COMMENT must not be empty")
	}
	if c.DepositTTL <= 0 || c.DepositPollInterval <= 0 {
		return errors.New("DEPOSIT_TTL and DEPOSIT_POLL_INTERVAL must be positive")
	}
	if c.DepositScanLimit <= 0 {
		return errors.New("DEPOSIT_SCAN_LIMIT must be positive")
	}
	if c.MarketBaseURL != "" && c.MarketPassphrase == "" {
		return errors.New("MARKET_PASSPHRASE is required when MARKET_BASE_URL is set")
	}
	return nil
}

// MarketEnabled reports whether gift settlement is configured.
func (c Config) MarketEnabled() bool {
	return c.MarketBaseURL != "" && c.MarketAuth != ""
}
