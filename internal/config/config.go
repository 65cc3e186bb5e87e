// Package config defines the TOML configuration for limitbot, with
// environment overrides for secrets and a validation pass run at startup.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration object.
type Config struct {
	// Mode selects what the process runs: "serve", "archive", or "keygen".
	Mode     string `toml:"mode"`
	LogLevel string `toml:"log_level"`

	Server   ServerConfig   `toml:"server"`
	Chain    ChainConfig    `toml:"chain"`
	Wallet   WalletConfig   `toml:"wallet"`
	Order    OrderConfig    `toml:"order"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Feed     FeedConfig     `toml:"feed"`
}

// ServerConfig configures the HTTP order API.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// ChainConfig describes the target chain and the order-core deployment.
type ChainConfig struct {
	RPCURL  string `toml:"rpc_url"`
	ChainID int64  `toml:"chain_id"`

	// CoreAddress is the order-core contract every deposit and cancel
	// targets.
	CoreAddress string `toml:"core_address"`

	// Handler module addresses per order kind.
	LimitHandler     string `toml:"limit_handler"`
	StopLimitHandler string `toml:"stop_limit_handler"`
	StopLossHandler  string `toml:"stop_loss_handler"`

	// ExecutionFeeBps is the protocol fee the execution layer charges on
	// output. Zero for chains with no fee.
	ExecutionFeeBps int64 `toml:"execution_fee_bps"`
}

// WalletConfig resolves the signing key.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// OrderConfig carries order-entry defaults.
type OrderConfig struct {
	DefaultSlippageBps int64 `toml:"default_slippage_bps"`
}

// PostgresConfig configures the order history store.
type PostgresConfig struct {
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

// RedisConfig configures the market-rate cache.
type RedisConfig struct {
	Addr           string `toml:"addr"`
	Password       string `toml:"password"`
	DB             int    `toml:"db"`
	PoolSize       int    `toml:"pool_size"`
	MaxRetries     int    `toml:"max_retries"`
	TLSEnabled     bool   `toml:"tls_enabled"`
	RateTTLSeconds int    `toml:"rate_ttl_seconds"`
}

// S3Config configures history archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// ArchiveAfterDays is the terminal-record age cutoff for archive mode.
	ArchiveAfterDays int `toml:"archive_after_days"`
}

// FeedConfig configures the websocket market-rate feed.
type FeedConfig struct {
	WSURL string   `toml:"ws_url"`
	Pairs []string `toml:"pairs"` // "BASE/QUOTE"
}

// Defaults returns the built-in configuration a TOML file is merged over.
func Defaults() Config {
	return Config{
		Mode:     "serve",
		LogLevel: "info",
		Server: ServerConfig{
			Addr: ":8080",
		},
		Order: OrderConfig{
			DefaultSlippageBps: 50,
		},
		Postgres: PostgresConfig{
			Port:          5432,
			SSLMode:       "disable",
			PoolMaxConns:  8,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			PoolSize:       8,
			MaxRetries:     3,
			RateTTLSeconds: 120,
		},
		S3: S3Config{
			Region:           "us-east-1",
			ArchiveAfterDays: 30,
		},
	}
}

// Validate checks the configuration for the selected mode.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "serve", "archive", "keygen":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	if c.Mode == "serve" {
		if c.Server.Addr == "" {
			return fmt.Errorf("config: server.addr is required in serve mode")
		}
		if c.Chain.RPCURL == "" {
			return fmt.Errorf("config: chain.rpc_url is required in serve mode")
		}
		if c.Chain.ChainID <= 0 {
			return fmt.Errorf("config: chain.chain_id must be positive")
		}
		if c.Chain.CoreAddress == "" {
			return fmt.Errorf("config: chain.core_address is required")
		}
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			return fmt.Errorf("config: wallet needs private_key or encrypted_key_path")
		}
	}

	if c.Mode == "archive" && c.S3.Bucket == "" {
		return fmt.Errorf("config: s3.bucket is required in archive mode")
	}

	if c.Mode == "keygen" {
		if c.Wallet.EncryptedKeyPath == "" {
			return fmt.Errorf("config: wallet.encrypted_key_path is required in keygen mode")
		}
		if c.Wallet.KeyPassword == "" {
			return fmt.Errorf("config: wallet.key_password is required in keygen mode")
		}
	}

	if c.Order.DefaultSlippageBps < 0 || c.Order.DefaultSlippageBps >= 10_000 {
		return fmt.Errorf("config: order.default_slippage_bps out of range")
	}

	if c.Chain.ExecutionFeeBps < 0 || c.Chain.ExecutionFeeBps >= 10_000 {
		return fmt.Errorf("config: chain.execution_fee_bps out of range")
	}

	return nil
}
