// Command termmux is the terminal multiplexer companion CLI. It talks
// to a running host process over the line-framed WebSocket protocol and
// can also run a standalone host for local development.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/termmux-dev/termmux/pkg/mux"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags shared by all subcommands.
var (
	flagConfig  string
	flagURL     string
	flagVerbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "termmux",
		Short: "Terminal multiplexer protocol client",
		Long: `termmux speaks the line-framed multiplexer protocol used between
terminal front-ends and their host process.

Commands connect to a running host (ping, exec, watch) or start a
development host locally (host).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to config file (TOML)")
	rootCmd.PersistentFlags().StringVar(&flagURL, "url", "", "Host endpoint URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		pingCmd(),
		execCmd(),
		watchCmd(),
		hostCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// newLogger builds the CLI logger. Debug level when --verbose is set.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadEffectiveConfig merges the config file with command line
// overrides.
func loadEffectiveConfig() (*Config, error) {
	cfg, err := LoadConfig(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagURL != "" {
		cfg.URL = flagURL
	}
	return cfg, nil
}

// dialClient connects a multiplexer client to the configured host.
func dialClient(ctx context.Context, cfg *Config, logger *slog.Logger) (*mux.Client, error) {
	sock, err := mux.DialWebSocket(ctx, cfg.URL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.URL, err)
	}

	opts := []mux.Option{
		mux.WithLogger(logger),
		mux.WithGzip(cfg.Gzip),
	}
	if cfg.SessionID != "" {
		opts = append(opts, mux.WithSessionID(cfg.SessionID))
	}
	return mux.NewClient(sock, opts...), nil
}
