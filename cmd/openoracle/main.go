// Command openoracle publishes signed Open Oracle price attestations from OKX
// and Coinbase to the on-chain oracle contract. It loads configuration,
// validates it, wires dependencies, sets up signal handling, and runs the
// configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/openoracle/internal/app"
	"github.com/alanyoungcy/openoracle/internal/config"
	"github.com/alanyoungcy/openoracle/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file (empty for defaults and environment only)")
	mode := flag.String("mode", "", "override the configured mode (once, daemon, status)")
	encryptKey := flag.String("encrypt-key", "", "encrypt account.private_key with account.key_password into this file and exit")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	if *encryptKey != "" {
		if err := writeEncryptedKey(cfg, *encryptKey); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("encrypted key written to %s\n", *encryptKey)
		return
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	redacted := config.RedactedConfig(cfg)
	logger.Info("openoracle starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("publish", redacted.Publish),
		slog.Any("ledger", redacted.Ledger),
	)

	application := app.New(cfg, logger)

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err = application.Run(ctx)
	application.Close()
	stop()

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		// context.Canceled is expected on clean shutdown.
		logger.Info("application shut down gracefully")
	case errors.Is(err, app.ErrAllVenuesFailed):
		logger.Error("no venue published", slog.String("error", err.Error()))
		os.Exit(1)
	default:
		logger.Error("application exited with error",
			slog.String("error", err.Error()),
		)
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	logger.Info("openoracle stopped")
}

func writeEncryptedKey(cfg *config.Config, path string) error {
	if cfg.Account.PrivateKey == "" {
		return crypto.ErrNoKey
	}
	blob, err := crypto.EncryptKey(cfg.Account.PrivateKey, cfg.Account.KeyPassword)
	if err != nil {
		return err
	}
	return os.WriteFile(path, blob, 0o600)
}
