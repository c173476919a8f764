package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arturoeanton/repolens/internal/adapter/store"
	"github.com/arturoeanton/repolens/pkg/config"
)

// Set by the linker at release time.
var version = "dev"

var (
	configFile string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "repolens",
	Short:         "Discover local git repositories and analyze their history.",
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		cfg = loaded
		slog.SetDefault(newLogger(cfg.LogLevel, cfg.LogFormat))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file (default ./repolens.yaml)")
	rootCmd.AddCommand(serveCmd, migrateCmd, discoverCmd, analyzeCmd, jobsCmd)
}

// newLogger writes to stderr so stdout stays free for command output and the
// MCP stdio transport.
func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openStore connects to the configured database.
func openStore(ctx context.Context) (*store.Store, error) {
	backend, err := store.ParseBackend(cfg.DBBackend)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, backend, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", backend, err)
	}
	return st, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
