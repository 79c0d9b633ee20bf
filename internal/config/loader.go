package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies GAVEL_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known GAVEL_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setInt64(&cfg.Market.PlatformFeeBps, "GAVEL_MARKET_PLATFORM_FEE_BPS")
	setStr(&cfg.Market.FeeRecipient, "GAVEL_MARKET_FEE_RECIPIENT")
	setStr(&cfg.Market.Owner, "GAVEL_MARKET_OWNER")
	setStr(&cfg.Market.EscrowAccount, "GAVEL_MARKET_ESCROW_ACCOUNT")

	// ── Oracle ──
	setBool(&cfg.Oracle.Enabled, "GAVEL_ORACLE_ENABLED")
	setStr(&cfg.Oracle.RPCURL, "GAVEL_ORACLE_RPC_URL")
	setStr(&cfg.Oracle.Contract, "GAVEL_ORACLE_CONTRACT")
	setInt64(&cfg.Oracle.ChainID, "GAVEL_ORACLE_CHAIN_ID")
	setUint64(&cfg.Oracle.GasLimit, "GAVEL_ORACLE_GAS_LIMIT")
	setDuration(&cfg.Oracle.ReceiptTimeout, "GAVEL_ORACLE_RECEIPT_TIMEOUT")
	setStr(&cfg.Oracle.PrivateKey, "GAVEL_ORACLE_PRIVATE_KEY")
	setStr(&cfg.Oracle.EncryptedKeyPath, "GAVEL_ORACLE_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Oracle.KeyPassword, "GAVEL_ORACLE_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "GAVEL_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "GAVEL_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "GAVEL_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "GAVEL_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "GAVEL_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "GAVEL_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "GAVEL_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "GAVEL_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "GAVEL_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "GAVEL_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "GAVEL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "GAVEL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "GAVEL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "GAVEL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "GAVEL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "GAVEL_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "GAVEL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "GAVEL_S3_REGION")
	setStr(&cfg.S3.Bucket, "GAVEL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "GAVEL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "GAVEL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "GAVEL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "GAVEL_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "GAVEL_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "GAVEL_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "GAVEL_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "GAVEL_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "GAVEL_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "GAVEL_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "GAVEL_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "GAVEL_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "GAVEL_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "GAVEL_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "GAVEL_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "GAVEL_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "GAVEL_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "GAVEL_MODE")
	setStr(&cfg.LogLevel, "GAVEL_LOG_LEVEL")
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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
