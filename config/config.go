// Package config loads gateway configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is the gateway configuration.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	// Payment rail
	Network    string `env:"NETWORK" envDefault:"sepolia"`
	ChainID    int64  `env:"CHAIN_ID" envDefault:"11155111"`
	RPCURL     string `env:"RPC_URL"`
	PrivateKey string `env:"PRIVATE_KEY"`

	// Payment asset (decimals are fixed per asset, never inferred)
	AssetAddress  string `env:"ASSET_ADDRESS"`
	AssetDecimals int    `env:"ASSET_DECIMALS" envDefault:"6"`
	AssetName     string `env:"ASSET_NAME" envDefault:"USDC"`
	AssetVersion  string `env:"ASSET_VERSION" envDefault:"2"`

	// Challenge validity window
	MaxTimeoutSeconds int64 `env:"MAX_TIMEOUT_SECONDS" envDefault:"60"`

	// Admin authentication (at most one of the two)
	StaticAPIKey string `env:"STATIC_API_KEY"`
	AuthDBURL    string `env:"AUTH_DATABASE_URL"`

	// Optional backing stores; in-memory defaults when unset
	RegistryDBURL string `env:"REGISTRY_DATABASE_URL"`
	RedisAddr     string `env:"REDIS_ADDR"`
}

// Load parses the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
