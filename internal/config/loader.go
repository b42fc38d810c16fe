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
// built-in defaults, applies CIPHERBET_* environment variable overrides, and
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

// applyEnvOverrides reads well-known CIPHERBET_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "CIPHERBET_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "CIPHERBET_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "CIPHERBET_WALLET_KEY_PASSWORD")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "CIPHERBET_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "CIPHERBET_CHAIN_ID")
	setStr(&cfg.Chain.ContractAddress, "CIPHERBET_CHAIN_CONTRACT_ADDRESS")
	setDuration(&cfg.Chain.ConfirmTimeout, "CIPHERBET_CHAIN_CONFIRM_TIMEOUT")

	// ── Relayer ──
	setStr(&cfg.Relayer.BaseURL, "CIPHERBET_RELAYER_BASE_URL")
	setStr(&cfg.Relayer.APIKey, "CIPHERBET_RELAYER_API_KEY")
	setDuration(&cfg.Relayer.Timeout, "CIPHERBET_RELAYER_TIMEOUT")
	setInt(&cfg.Relayer.GrantDurationDays, "CIPHERBET_RELAYER_GRANT_DURATION_DAYS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "CIPHERBET_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "CIPHERBET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "CIPHERBET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "CIPHERBET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "CIPHERBET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "CIPHERBET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "CIPHERBET_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "CIPHERBET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "CIPHERBET_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "CIPHERBET_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "CIPHERBET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "CIPHERBET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "CIPHERBET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "CIPHERBET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "CIPHERBET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "CIPHERBET_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "CIPHERBET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "CIPHERBET_S3_REGION")
	setStr(&cfg.S3.Bucket, "CIPHERBET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "CIPHERBET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "CIPHERBET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "CIPHERBET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "CIPHERBET_S3_FORCE_PATH_STYLE")

	// ── Watcher ──
	setBool(&cfg.Watcher.Enabled, "CIPHERBET_WATCHER_ENABLED")
	setDuration(&cfg.Watcher.PollInterval, "CIPHERBET_WATCHER_POLL_INTERVAL")
	setBool(&cfg.Watcher.ResolveOwn, "CIPHERBET_WATCHER_RESOLVE_OWN")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "CIPHERBET_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "CIPHERBET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "CIPHERBET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "CIPHERBET_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "CIPHERBET_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "CIPHERBET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "CIPHERBET_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "CIPHERBET_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "CIPHERBET_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "CIPHERBET_MODE")
	setStr(&cfg.LogLevel, "CIPHERBET_LOG_LEVEL")
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
