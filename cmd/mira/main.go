// Package main is Mira's CLI entry point: serve (default, stdio
// service), tool <name> <json> (invoke one tool), and index [path]
// [--no-embed] (trigger a project re-index), per spec.md §6.
//
// Grounded on cmd/nerd/main.go's root-command + PersistentPreRunE/
// PersistentPostRun logging-lifecycle idiom, trimmed to Mira's three
// subcommands and adapted to internal/logging's dir+Config Initialize
// signature.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mira/internal/logging"
)

var (
	verbose   bool
	workspace string

	logger *zap.Logger
)

// embeddingDim is the vector width used for the fallback (Null/
// Deterministic) embedding engines when no concrete provider is wired.
// A real provider (not shipped in core) would dictate its own width;
// 1536 matches the common OpenAI-class embedding size so a future
// provider swap doesn't require a vector-table migration.
const embeddingDim = 1536

var rootCmd = &cobra.Command{
	Use:   "mira",
	Short: "Mira - persistent memory and code intelligence for AI coding assistants",
	Long: `Mira augments an AI coding assistant with cross-session memory and
code intelligence: it ingests tool calls, build output, and conversation
signals, distills them into facts and code structure, and serves relevant
context back to the assistant on demand.

Run without a subcommand to start the stdio service (the default).`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}

		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home directory: %w", err)
		}
		logsDir := filepath.Join(home, ".mira", "logs")
		level := "info"
		if verbose {
			level = "debug"
		}
		if err := logging.Initialize(logsDir, logging.Config{DebugMode: verbose, Level: level}); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "project root (default: current directory)")

	rootCmd.AddCommand(serveCmd, toolCmd, indexCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func resolveWorkspace() (string, error) {
	if workspace != "" {
		return filepath.Abs(workspace)
	}
	return os.Getwd()
}
