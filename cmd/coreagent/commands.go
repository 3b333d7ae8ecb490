// commands.go contains the cobra command definitions and their flag
// configuration. Each build*Cmd function creates one command and wires
// it to a handler in run.go.
package main

import (
	"fmt"

	"github.com/loomrun/coreagent/internal/catalog"
	"github.com/loomrun/coreagent/pkg/models"
	"github.com/spf13/cobra"
)

// buildRunCmd creates the "run" command, coreagent's primary entry
// point: resolve a model, stream one agentic turn over the given
// prompt, print the assistant's text as it arrives.
func buildRunCmd(catalogDir *string) *cobra.Command {
	var (
		provider   string
		model      string
		journalAt  string
		maxTurns   int
		systemText string
	)

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run the agent loop once against a prompt",
		Example: `  # Ask the default model a question
  coreagent run "what does internal/compaction do?"

  # Pin a specific provider and model
  coreagent run --provider anthropic --model claude-3-5-sonnet "hello"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), runOptions{
				catalogDir: *catalogDir,
				provider:   provider,
				model:      model,
				prompt:     args[0],
				systemText: systemText,
				journalAt:  journalAt,
				maxTurns:   maxTurns,
			})
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "provider id to pin (spec 6.4 CLI provider)")
	cmd.Flags().StringVar(&model, "model", "", "model id or fuzzy pattern to pin (spec 6.4 CLI model)")
	cmd.Flags().StringVar(&systemText, "system", "", "system prompt for this run")
	cmd.Flags().StringVar(&journalAt, "journal", "", "path to persist the session journal (.jsonl or .db)")
	cmd.Flags().IntVar(&maxTurns, "max-turns", 0, "turn ceiling for this run (default 40)")

	return cmd
}

// buildModelsCmd lists every model the catalog resolves, one per line.
func buildModelsCmd(catalogDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List every model in the resolved catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := catalog.Load(resolveCatalogDir(*catalogDir))
			if err := reg.Err(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "catalog warning: %v\n", err)
			}
			for _, m := range reg.AllModels() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s\tapi=%s\tcontextWindow=%d\n", m.Provider, m.ID, m.Api, m.ContextWindow)
			}
			return nil
		},
	}
}

// buildDoctorCmd reports which providers resolved a usable adapter and
// credential, without making any network call.
func buildDoctorCmd(catalogDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check provider credentials and catalog health",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := buildRuntime(ctx, *catalogDir)
			if err != nil {
				return fmt.Errorf("build runtime: %w", err)
			}
			defer rt.close(ctx)

			ids := configuredProviders(rt.catalog)
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no providers configured")
				return nil
			}
			for _, id := range ids {
				reportProviderHealth(cmd, rt, id)
			}
			return nil
		},
	}
}

func reportProviderHealth(cmd *cobra.Command, rt *runtime, id models.ProviderId) {
	pcfg, _ := rt.catalog.Provider(id)
	_, hasKey := rt.resolver.Resolve(id)
	_, registered := rt.registry.Get(pcfg.Api)
	status := "ok"
	switch {
	case !hasKey:
		status = "missing credential"
	case !registered:
		status = "adapter unavailable"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%-20s api=%-16s %s\n", id, pcfg.Api, status)
}
