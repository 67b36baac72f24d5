// Package config loads daemon settings from an env file or the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the daemon needs to start.
type Config struct {
	// ListenAddr is the HTTP API listen address.
	ListenAddr string `mapstructure:"LISTEN_ADDR"`

	// FactoryAuthority is the identity allowed to create rounds and toggle
	// the emergency halt.
	FactoryAuthority string `mapstructure:"FACTORY_AUTHORITY"`

	// RegistryURL is the base URL of the actor registry service.
	RegistryURL string `mapstructure:"REGISTRY_URL"`

	// TreasuryURL is the base URL of the collateral custody service.
	TreasuryURL string `mapstructure:"TREASURY_URL"`

	// PostgresConn is the journal database connection string. Empty keeps
	// the journal in memory.
	PostgresConn string `mapstructure:"POSTGRES_CONN"`

	// MigrationURL locates the schema migrations (e.g. file://migrations).
	MigrationURL string `mapstructure:"MIGRATION_URL"`

	// ReceiptKeyFile is the PEM-encoded ECDSA P-384 key used to sign
	// settlement receipts. Empty disables the receipt endpoint.
	ReceiptKeyFile string `mapstructure:"RECEIPT_KEY_FILE"`

	ReadTimeout              time.Duration `mapstructure:"READ_TIMEOUT"`
	WriteTimeout             time.Duration `mapstructure:"WRITE_TIMEOUT"`
	GracefulShutdownDuration time.Duration `mapstructure:"GRACEFUL_SHUTDOWN_DURATION"`
}

// Load reads app.env from the given path, falling back to the process
// environment for any unset key.
func Load(path string) (Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("app")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("LISTEN_ADDR", ":8080")
	viper.SetDefault("READ_TIMEOUT", 10*time.Second)
	viper.SetDefault("WRITE_TIMEOUT", 10*time.Second)
	viper.SetDefault("GRACEFUL_SHUTDOWN_DURATION", 30*time.Second)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.FactoryAuthority == "" {
		return fmt.Errorf("FACTORY_AUTHORITY must be set")
	}
	if c.RegistryURL == "" {
		return fmt.Errorf("REGISTRY_URL must be set")
	}
	if c.TreasuryURL == "" {
		return fmt.Errorf("TREASURY_URL must be set")
	}
	return nil
}
