package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/joshuapare/freetree/internal/logger"
)

var (
	// Global flags
	verbose bool
	quiet   bool
	jsonOut bool

	// Logging flags
	logFile  string
	logJSON  bool
	logDebug bool

	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "freetreectl",
	Short: "Drive and inspect a size-indexed free chunk dictionary",
	Long: `freetreectl runs allocation workloads against a free-list space and
reports the state of its free chunk dictionary: size tree statistics, the
per-size census and the free lists themselves.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: initLogging,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")

	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().BoolVar(&logDebug, "debug", false, "Enable debug logging")
}

func initLogging(cmd *cobra.Command, args []string) error {
	opts := logger.Options{
		Enabled: verbose || logDebug || logFile != "",
		File:    logFile,
		JSON:    logJSON,
		Level:   slog.LevelInfo,
	}
	if logDebug {
		opts.Level = slog.LevelDebug
	}
	closer, err := logger.Init(opts)
	if err != nil {
		return errors.Wrap(err, "failed to initialize logging")
	}
	closeLog = closer
	return nil
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}
