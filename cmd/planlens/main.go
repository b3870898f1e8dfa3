// Package main provides the planlens binary entry point. PlanLens scores
// policy planning documents against a structured questionnaire; this binary
// runs the signal distribution orchestrator that routes extracted facts
// between pipeline stages, plus tooling for configuration and dead-letter
// replay.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const (
	// Version is the binary version.
	Version = "0.1.0"

	appName = "planlens"
)

var logLevel string

func main() {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Signal distribution orchestrator for policy plan analysis",
		Version: Version,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			setupLogging(logLevel)
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newReplayCommand())
	rootCmd.AddCommand(newConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging installs a text slog handler at the requested level.
func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
