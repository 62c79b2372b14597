// Copyright 2024-2026 Aiku AI

// Command mcrelay relays chat and game events between a Minecraft server and
// Discord or Mattermost channels. Game chat and events are posted through
// webhooks; chat-platform messages are shown in game with tellraw.
package main

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aiku/mcrelay/pkg/config"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	configPath string
	envFile    string
)

func main() {
	root := &cobra.Command{
		Use:           "mcrelay",
		Short:         "Minecraft chat relay for Discord and Mattermost",
		Version:       Tag + " (" + Commit + ", built " + BuildTime + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnvFile(envFile)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the config file")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file with secret overrides")

	root.AddCommand(runCmd())
	root.AddCommand(checkConfigCmd())
	root.AddCommand(exampleConfigCmd())
	root.AddCommand(prefsCmd())
	root.AddCommand(linkCmd())
	root.AddCommand(unlinkCmd())
	root.AddCommand(linksCmd())

	if err := root.Execute(); err != nil {
		logger := bootstrapLogger()
		logger.Error().Err(err).Msg("mcrelay failed")
		os.Exit(1)
	}
}

// loadEnvFile loads dotenv overrides. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// bootstrapLogger is used before the config is loaded.
func bootstrapLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

// newLogger builds the application logger from the logging config.
func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.Format == "json" {
		log = zerolog.New(os.Stderr)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return log.Level(level).With().Timestamp().Logger()
}
