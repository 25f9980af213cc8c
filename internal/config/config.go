// Package config defines the top-level configuration for the open oracle
// publisher and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by OPENORACLE_* environment variables.
type Config struct {
	Account  AccountConfig  `toml:"account"`
	Ledger   LedgerConfig   `toml:"ledger"`
	OKX      OKXConfig      `toml:"okx"`
	Coinbase CoinbaseConfig `toml:"coinbase"`
	Publish  PublishConfig  `toml:"publish"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// AccountConfig holds the publisher account credentials.
type AccountConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// LedgerConfig holds the chain endpoint and the contracts transactions are
// sent to.
type LedgerConfig struct {
	RPCURL           string   `toml:"rpc_url"`
	ChainID          int64    `toml:"chain_id"`
	ContractAddress  string   `toml:"contract_address"`
	MulticallAddress string   `toml:"multicall_address"`
	WaitReceipt      bool     `toml:"wait_receipt"`
	ReceiptTimeout   duration `toml:"receipt_timeout"`
}

// OKXConfig holds the OKX open-oracle endpoint settings.
type OKXConfig struct {
	Enabled         bool   `toml:"enabled"`
	BaseURL         string `toml:"base_url"`
	Publisher       string `toml:"publisher"`
	RateLimitPerMin int    `toml:"rate_limit_per_min"`
}

// CoinbaseConfig holds the Coinbase oracle endpoint settings and API
// credentials.
type CoinbaseConfig struct {
	Enabled         bool   `toml:"enabled"`
	BaseURL         string `toml:"base_url"`
	Publisher       string `toml:"publisher"`
	APIKey          string `toml:"api_key"`
	APISecret       string `toml:"api_secret"`
	APIPassphrase   string `toml:"api_passphrase"`
	RateLimitPerMin int    `toml:"rate_limit_per_min"`
}

// PublishConfig controls what is published and how failures are retried.
type PublishConfig struct {
	Assets        []string `toml:"assets"`
	Mode          string   `toml:"mode"`
	MaxRetries    int      `toml:"max_retries"`
	RetryDelay    duration `toml:"retry_delay"`
	Interval      duration `toml:"interval"`
	LockTTL       duration `toml:"lock_ttl"`
	RetentionDays int      `toml:"retention_days"`
}

// PostgresConfig holds PostgreSQL connection parameters for publication
// history.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	PriceTTL   duration `toml:"price_ttl"`
}

// S3Config holds S3-compatible object storage parameters for the batch
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ServerConfig holds the daemon's operator HTTP API parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	APIKey          string   `toml:"api_key"`
	CORSOrigins     []string `toml:"cors_origins"`
	RateLimitPerMin int      `toml:"rate_limit_per_min"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			ChainID:          1,
			MulticallAddress: "0xcA11bde05977b3631167028862bE2a173976CA11",
			WaitReceipt:      true,
			ReceiptTimeout:   duration{2 * time.Minute},
		},
		OKX: OKXConfig{
			Enabled:         true,
			BaseURL:         "https://www.okx.com",
			Publisher:       "0x85615b076615317c80f14cbad6501eec031cd51c",
			RateLimitPerMin: 60,
		},
		Coinbase: CoinbaseConfig{
			Enabled:         false,
			BaseURL:         "https://api.exchange.coinbase.com",
			Publisher:       "0xfCEAdAFab14d46e20144F48824d0C09B1a03F2BC",
			RateLimitPerMin: 60,
		},
		Publish: PublishConfig{
			Assets:        []string{"btc", "eth"},
			Mode:          "sequential",
			MaxRetries:    3,
			RetryDelay:    duration{10 * time.Second},
			Interval:      duration{5 * time.Minute},
			LockTTL:       duration{10 * time.Minute},
			RetentionDays: 30,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			PriceTTL:   duration{24 * time.Hour},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "openoracle-archive",
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"venue_failed", "cycle_failed"},
		},
		Server: ServerConfig{
			Port:            8000,
			RateLimitPerMin: 120,
		},
		Mode:     "once",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"once":   true,
	"daemon": true,
	"status": true,
}

// validPublishModes enumerates the accepted values for PublishConfig.Mode.
var validPublishModes = map[string]bool{
	"sequential": true,
	"batched":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NeedsLedger reports whether the configured mode sends transactions.
func (c *Config) NeedsLedger() bool {
	return strings.ToLower(c.Mode) != "status"
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: once, daemon, status)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.NeedsLedger() {
		// Account
		if c.Account.PrivateKey == "" && c.Account.EncryptedKeyPath == "" {
			errs = append(errs, "account: either private_key or encrypted_key_path must be set for mode "+c.Mode)
		}
		if c.Account.EncryptedKeyPath != "" && c.Account.KeyPassword == "" {
			errs = append(errs, "account: key_password is required when encrypted_key_path is set")
		}

		// Ledger
		if c.Ledger.RPCURL == "" {
			errs = append(errs, "ledger: rpc_url must not be empty")
		}
		if c.Ledger.ChainID <= 0 {
			errs = append(errs, "ledger: chain_id must be positive")
		}
		if !common.IsHexAddress(c.Ledger.ContractAddress) {
			errs = append(errs, fmt.Sprintf("ledger: contract_address %q is not a hex address", c.Ledger.ContractAddress))
		}
		if c.Ledger.MulticallAddress != "" && !common.IsHexAddress(c.Ledger.MulticallAddress) {
			errs = append(errs, fmt.Sprintf("ledger: multicall_address %q is not a hex address", c.Ledger.MulticallAddress))
		}
		if strings.EqualFold(c.Publish.Mode, "batched") && c.Ledger.MulticallAddress == "" {
			errs = append(errs, "ledger: multicall_address is required for publish.mode batched")
		}
		if c.Ledger.WaitReceipt && c.Ledger.ReceiptTimeout.Duration <= 0 {
			errs = append(errs, "ledger: receipt_timeout must be > 0 when wait_receipt is set")
		}

		// Venues
		if !c.OKX.Enabled && !c.Coinbase.Enabled {
			errs = append(errs, "venues: at least one of okx.enabled or coinbase.enabled must be true")
		}
		if c.OKX.Enabled {
			if c.OKX.BaseURL == "" {
				errs = append(errs, "okx: base_url must not be empty")
			}
			if !common.IsHexAddress(c.OKX.Publisher) {
				errs = append(errs, fmt.Sprintf("okx: publisher %q is not a hex address", c.OKX.Publisher))
			}
		}
		if c.Coinbase.Enabled {
			if c.Coinbase.BaseURL == "" {
				errs = append(errs, "coinbase: base_url must not be empty")
			}
			if !common.IsHexAddress(c.Coinbase.Publisher) {
				errs = append(errs, fmt.Sprintf("coinbase: publisher %q is not a hex address", c.Coinbase.Publisher))
			}
			if c.Coinbase.APIKey == "" || c.Coinbase.APISecret == "" {
				errs = append(errs, "coinbase: api_key and api_secret are required when enabled")
			}
		}

		// Publish
		if len(c.Publish.Assets) == 0 {
			errs = append(errs, "publish: assets must not be empty")
		}
		if !validPublishModes[strings.ToLower(c.Publish.Mode)] {
			errs = append(errs, fmt.Sprintf("publish: unknown mode %q (valid: sequential, batched)", c.Publish.Mode))
		}
		if c.Publish.MaxRetries < 1 {
			errs = append(errs, "publish: max_retries must be >= 1")
		}
		if c.Publish.RetryDelay.Duration < 0 {
			errs = append(errs, "publish: retry_delay must not be negative")
		}
		if strings.EqualFold(c.Mode, "daemon") && c.Publish.Interval.Duration <= 0 {
			errs = append(errs, "publish: interval must be > 0 in daemon mode")
		}
	} else if !c.Postgres.Enabled && !c.Redis.Enabled {
		errs = append(errs, "status: postgres or redis must be enabled")
	}
	if c.Publish.RetentionDays < 0 {
		errs = append(errs, "publish: retention_days must be >= 0")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMin < 0 {
			errs = append(errs, "server: rate_limit_per_min must be >= 0")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
