package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies LIMITBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known LIMITBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "LIMITBOT_MODE")
	setStr(&cfg.LogLevel, "LIMITBOT_LOG_LEVEL")

	// ── Server ──
	setStr(&cfg.Server.Addr, "LIMITBOT_SERVER_ADDR")

	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "LIMITBOT_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "LIMITBOT_CHAIN_ID")
	setStr(&cfg.Chain.CoreAddress, "LIMITBOT_CHAIN_CORE_ADDRESS")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "LIMITBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "LIMITBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "LIMITBOT_WALLET_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "LIMITBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "LIMITBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "LIMITBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "LIMITBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "LIMITBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "LIMITBOT_POSTGRES_PASSWORD")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "LIMITBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LIMITBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LIMITBOT_REDIS_DB")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "LIMITBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LIMITBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "LIMITBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LIMITBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LIMITBOT_S3_SECRET_KEY")

	// ── Feed ──
	setStr(&cfg.Feed.WSURL, "LIMITBOT_FEED_WS_URL")
	if v := os.Getenv("LIMITBOT_FEED_PAIRS"); v != "" {
		parts := strings.Split(v, ",")
		pairs := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				pairs = append(pairs, p)
			}
		}
		cfg.Feed.Pairs = pairs
	}
}

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
