package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/memgrafter/flatagents/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "flatagents",
	Short: "flatagents runs declarative agent state machines",
	Long:  `flatagents executes workflow machines defined as YAML documents: states call agents through pluggable execution strategies (retry, parallel, voting) and route on conditional transitions.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return logging.New(level)
}
