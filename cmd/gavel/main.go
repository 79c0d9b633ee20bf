// Command gavel is the marketplace daemon entry point. It loads
// configuration, validates it, wires dependencies, sets up signal handling,
// and starts the application in the configured mode.
//
// With -encrypt-key it instead encrypts the operator private key from
// GAVEL_ORACLE_PRIVATE_KEY with the password from GAVEL_ORACLE_KEY_PASSWORD,
// writes the file the [oracle] encrypted_key_path setting points at, and
// exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gavelhq/gavel/internal/app"
	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	encryptKeyPath := flag.String("encrypt-key", "", "encrypt the operator key from the environment into this file and exit")
	flag.Parse()

	if *encryptKeyPath != "" {
		if err := encryptKeyFile(*encryptKeyPath); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("encrypted operator key written to %s\n", *encryptKeyPath)
		return
	}

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

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
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

	logger.Info("gavel starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	// Create the application.
	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the application.
	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if err == context.Canceled {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("gavel stopped")
}

// encryptKeyFile produces an encrypted operator key file from the raw key
// and password in the environment. Both come from the environment so neither
// lands in shell history or the config file.
func encryptKeyFile(path string) error {
	rawKey := os.Getenv("GAVEL_ORACLE_PRIVATE_KEY")
	if rawKey == "" {
		return fmt.Errorf("GAVEL_ORACLE_PRIVATE_KEY is not set")
	}
	password := os.Getenv("GAVEL_ORACLE_KEY_PASSWORD")
	if password == "" {
		return fmt.Errorf("GAVEL_ORACLE_KEY_PASSWORD is not set")
	}

	blob, err := crypto.EncryptKey(rawKey, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}
