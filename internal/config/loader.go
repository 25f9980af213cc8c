package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies OPENORACLE_* environment variable overrides, and
// returns the final Config. An empty path skips the file and uses defaults
// plus the environment. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known OPENORACLE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Account ──
	setStr(&cfg.Account.PrivateKey, "OPENORACLE_ACCOUNT_PRIVATE_KEY")
	setStr(&cfg.Account.PrivateKey, "PRIVATE_KEY") // compatibility alias
	setStr(&cfg.Account.EncryptedKeyPath, "OPENORACLE_ACCOUNT_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Account.KeyPassword, "OPENORACLE_ACCOUNT_KEY_PASSWORD")

	// ── Ledger ──
	setStr(&cfg.Ledger.RPCURL, "OPENORACLE_LEDGER_RPC_URL")
	setStr(&cfg.Ledger.RPCURL, "RPC_URL") // compatibility alias
	setInt64(&cfg.Ledger.ChainID, "OPENORACLE_LEDGER_CHAIN_ID")
	setStr(&cfg.Ledger.ContractAddress, "OPENORACLE_LEDGER_CONTRACT_ADDRESS")
	setStr(&cfg.Ledger.ContractAddress, "CONTRACT_ADDRESS") // compatibility alias
	setStr(&cfg.Ledger.MulticallAddress, "OPENORACLE_LEDGER_MULTICALL_ADDRESS")
	setBool(&cfg.Ledger.WaitReceipt, "OPENORACLE_LEDGER_WAIT_RECEIPT")
	setDuration(&cfg.Ledger.ReceiptTimeout, "OPENORACLE_LEDGER_RECEIPT_TIMEOUT")

	// ── OKX ──
	setBool(&cfg.OKX.Enabled, "OPENORACLE_OKX_ENABLED")
	setStr(&cfg.OKX.BaseURL, "OPENORACLE_OKX_BASE_URL")
	setStr(&cfg.OKX.Publisher, "OPENORACLE_OKX_PUBLISHER")
	setInt(&cfg.OKX.RateLimitPerMin, "OPENORACLE_OKX_RATE_LIMIT_PER_MIN")

	// ── Coinbase ──
	setBool(&cfg.Coinbase.Enabled, "OPENORACLE_COINBASE_ENABLED")
	setStr(&cfg.Coinbase.BaseURL, "OPENORACLE_COINBASE_BASE_URL")
	setStr(&cfg.Coinbase.Publisher, "OPENORACLE_COINBASE_PUBLISHER")
	setStr(&cfg.Coinbase.APIKey, "OPENORACLE_COINBASE_API_KEY")
	setStr(&cfg.Coinbase.APIKey, "API_KEY") // compatibility alias
	setStr(&cfg.Coinbase.APISecret, "OPENORACLE_COINBASE_API_SECRET")
	setStr(&cfg.Coinbase.APISecret, "API_SECRET") // compatibility alias
	setStr(&cfg.Coinbase.APIPassphrase, "OPENORACLE_COINBASE_API_PASSPHRASE")
	setStr(&cfg.Coinbase.APIPassphrase, "API_PASSPHRASE") // compatibility alias
	setInt(&cfg.Coinbase.RateLimitPerMin, "OPENORACLE_COINBASE_RATE_LIMIT_PER_MIN")

	// ── Publish ──
	setStringSlice(&cfg.Publish.Assets, "OPENORACLE_PUBLISH_ASSETS")
	setStr(&cfg.Publish.Mode, "OPENORACLE_PUBLISH_MODE")
	setInt(&cfg.Publish.MaxRetries, "OPENORACLE_PUBLISH_MAX_RETRIES")
	setDuration(&cfg.Publish.RetryDelay, "OPENORACLE_PUBLISH_RETRY_DELAY")
	setDuration(&cfg.Publish.Interval, "OPENORACLE_PUBLISH_INTERVAL")
	setDuration(&cfg.Publish.LockTTL, "OPENORACLE_PUBLISH_LOCK_TTL")
	setInt(&cfg.Publish.RetentionDays, "OPENORACLE_PUBLISH_RETENTION_DAYS")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "OPENORACLE_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "OPENORACLE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "OPENORACLE_POSTGRES_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "OPENORACLE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "OPENORACLE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "OPENORACLE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "OPENORACLE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "OPENORACLE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "OPENORACLE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "OPENORACLE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "OPENORACLE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "OPENORACLE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "OPENORACLE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "OPENORACLE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "OPENORACLE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "OPENORACLE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "OPENORACLE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "OPENORACLE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "OPENORACLE_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.PriceTTL, "OPENORACLE_REDIS_PRICE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "OPENORACLE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "OPENORACLE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "OPENORACLE_S3_REGION")
	setStr(&cfg.S3.Bucket, "OPENORACLE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "OPENORACLE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "OPENORACLE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "OPENORACLE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "OPENORACLE_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "OPENORACLE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "OPENORACLE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "OPENORACLE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "OPENORACLE_NOTIFY_EVENTS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "OPENORACLE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "OPENORACLE_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "OPENORACLE_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "OPENORACLE_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitPerMin, "OPENORACLE_SERVER_RATE_LIMIT_PER_MIN")

	// ── Top-level ──
	setStr(&cfg.Mode, "OPENORACLE_MODE")
	setStr(&cfg.LogLevel, "OPENORACLE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
