// Package main provides the CLI entry point for coreagent, a
// multi-provider LLM agent runtime.
//
// coreagent drives an agent loop against whichever provider a model
// resolves to (Anthropic, Bedrock, Google, or an OpenAI-compatible
// gateway), with tool execution, context compaction, and human-in-the-
// loop approval layered on top.
//
// # Basic Usage
//
// Run one prompt to completion:
//
//	coreagent run "summarize internal/providers"
//
// Inspect the resolved model catalog:
//
//	coreagent models
//
// # Environment Variables
//
//   - COREAGENT_CATALOG: directory holding models.yml (default: ./config)
//   - ANTHROPIC_API_KEY, OPENAI_API_KEY, GOOGLE_API_KEY: provider credentials
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() so tests can exercise it without os.Exit.
func buildRootCmd() *cobra.Command {
	var catalogDir string

	rootCmd := &cobra.Command{
		Use:     "coreagent",
		Short:   "coreagent - multi-provider LLM agent runtime",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Long: `coreagent streams turns against a resolved model, dispatches tool
calls through a type-erased tool registry, and compacts context once the
estimated token count crosses the model's window.

Supported providers: Anthropic, AWS Bedrock, Google Gemini, and any
OpenAI-compatible chat-completions gateway.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&catalogDir, "catalog", os.Getenv("COREAGENT_CATALOG"), "directory holding models.yml (default ./config)")

	rootCmd.AddCommand(
		buildRunCmd(&catalogDir),
		buildModelsCmd(&catalogDir),
		buildDoctorCmd(&catalogDir),
	)

	return rootCmd
}
