// tenderd is the tender engine daemon: it wires the round manager, the
// external registry and treasury adapters, the Postgres journal and the HTTP
// API together.
package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	logging "github.com/ipfs/go-log/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opentender-io/opentender/config"
	"github.com/opentender-io/opentender/core"
	"github.com/opentender-io/opentender/engine"
	"github.com/opentender-io/opentender/journal"
	"github.com/opentender-io/opentender/receipt"
	"github.com/opentender-io/opentender/registry"
	"github.com/opentender-io/opentender/server"
)

var log = logging.Logger("tenderd")

func main() {
	if err := run(); err != nil {
		log.Fatalf("tenderd: %v", err)
	}
}

func run() error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sink, cleanup, err := buildSink(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	registryClient := registry.NewClient(cfg.RegistryURL)
	treasuryClient := registry.NewTreasuryClient(cfg.TreasuryURL)
	manager := engine.NewManager(cfg.FactoryAuthority, registryClient, treasuryClient,
		core.WithEventSink(sink))

	signer, err := loadSigner(cfg.ReceiptKeyFile)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		ListenAddr:               cfg.ListenAddr,
		ReadTimeout:              cfg.ReadTimeout,
		WriteTimeout:             cfg.WriteTimeout,
		GracefulShutdownDuration: cfg.GracefulShutdownDuration,
	}, server.NewHandler(manager, signer))

	srv.RunInBackground()
	log.Infow("tenderd started", "listen", cfg.ListenAddr, "factory", cfg.FactoryAuthority)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	srv.Shutdown()
	return nil
}

// buildSink returns the Postgres journal when a connection string is
// configured, or the in-memory journal otherwise.
func buildSink(cfg config.Config) (core.EventSink, func(), error) {
	if cfg.PostgresConn == "" {
		log.Info("no POSTGRES_CONN configured, journaling in memory")
		return journal.NewMemorySink(), func() {}, nil
	}

	if cfg.MigrationURL != "" {
		if err := runMigrations(cfg.MigrationURL, cfg.PostgresConn); err != nil {
			return nil, nil, err
		}
	}

	pool, err := pgxpool.New(context.Background(), cfg.PostgresConn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	return journal.NewPostgresSink(pool), pool.Close, nil
}

func runMigrations(migrationURL, conn string) error {
	m, err := migrate.New(migrationURL, conn)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrated")
	return nil
}

// loadSigner reads the receipt signing key; an empty path disables receipts.
func loadSigner(path string) (*receipt.Signer, error) {
	if path == "" {
		log.Info("no RECEIPT_KEY_FILE configured, receipt endpoint disabled")
		return nil, nil
	}

	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read receipt key: %w", err)
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("receipt key %s is not PEM", path)
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		parsed, pkcs8Err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if pkcs8Err != nil {
			return nil, fmt.Errorf("parse receipt key: %w", err)
		}
		ecKey, ok := parsed.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("receipt key %s is not ECDSA", path)
		}
		key = ecKey
	}

	return receipt.NewSigner(key)
}
