package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/loomrun/coreagent/internal/agentloop"
	"github.com/loomrun/coreagent/internal/agenttool"
	"github.com/loomrun/coreagent/internal/catalog"
	"github.com/loomrun/coreagent/internal/compaction"
	"github.com/loomrun/coreagent/internal/eventstream"
	"github.com/loomrun/coreagent/internal/journal"
	"github.com/loomrun/coreagent/internal/providers"
	"github.com/loomrun/coreagent/pkg/models"
)

// runOptions is one "run" invocation's resolved flags.
type runOptions struct {
	catalogDir string
	provider   string
	model      string
	prompt     string
	systemText string
	journalAt  string
	maxTurns   int
}

// runOnce resolves a model, opens a journal if one was requested, and
// drives agentloop.Loop to completion over a single prompt, printing
// assistant text to stdout as it streams in (spec 4.H, spec 4.K).
func runOnce(ctx context.Context, opts runOptions) error {
	rt, err := buildRuntime(ctx, opts.catalogDir)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	defer rt.close(ctx)

	model, ok := catalog.Resolve(rt.catalog, catalog.Selection{
		CLIProvider: models.ProviderId(opts.provider),
		CLIModel:    opts.model,
	})
	if !ok {
		return fmt.Errorf("no model resolved from catalog %q (provider=%q model=%q)", resolveCatalogDir(opts.catalogDir), opts.provider, opts.model)
	}

	store, err := openJournal(opts.journalAt)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	seed := models.MessageList{}
	if store != nil {
		seed, err = store.ReadAll()
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}
	}

	tools := newToolRegistry(rt.extensions)
	agentCtx := agentloop.NewContext(opts.systemText, tools, rt.extensions.BeforeAgent(seed))

	streamFn := streamFuncFor(rt.registry)
	cfg := agentloop.Config{
		Model:       model,
		MaxTurns:    opts.maxTurns,
		ResultGuard: agenttool.DefaultResultGuard(),
	}
	loop := agentloop.New(agentCtx, cfg, streamFn)

	prompt := models.User{Content: models.ContentBlocks{models.Text{TextValue: opts.prompt}}, At: currentTime()}
	out := loop.Run(ctx, []models.User{prompt})

	for ev := range out.Events() {
		printEvent(ev)
	}

	final := agentCtx.Messages()
	rt.extensions.AfterAgent(final)

	if store != nil {
		// Prune before persisting so the next invocation's seed starts
		// from an already-trimmed history instead of re-growing forever
		// across a long string of CLI calls sharing one journal.
		pruned := compaction.PruneToolResults(final, compaction.DefaultPruningSettings(), currentTime())
		if err := journalNewMessages(store, seed, pruned); err != nil {
			return fmt.Errorf("persist journal: %w", err)
		}
	}

	return nil
}

// streamFuncFor adapts a provider registry lookup into the function
// shape agentloop.Config wants: resolve the model's Api to a registered
// ApiProvider and delegate (spec 4.E: "missing api is a fatal
// configuration error").
func streamFuncFor(reg *providers.Registry) agentloop.StreamFunc {
	return func(ctx context.Context, model models.Model, reqCtx providers.Context, options *providers.Options) *eventstream.AssistantStream {
		provider, err := reg.MustGet(model.Api)
		if err != nil {
			out := eventstream.NewAssistantStream()
			out.Push(eventstream.ErrorEvent{
				Reason: models.StopReasonError,
				Error:  models.Assistant{StopReason: models.StopReasonError, ErrorMessage: err.Error()},
			})
			eventstream.EndWithoutTerminal(out)
			return out
		}
		return provider.Stream(ctx, model, reqCtx, options)
	}
}

func printEvent(ev agentloop.Event) {
	switch e := ev.(type) {
	case agentloop.StreamEvent:
		if delta, ok := e.Inner.(eventstream.TextDeltaEvent); ok {
			fmt.Fprint(os.Stdout, delta.Delta)
		}
	case agentloop.ToolExecutionStartEvent:
		fmt.Fprintf(os.Stderr, "\n[tool] %s\n", e.ToolName)
	case agentloop.ToolExecutionDeniedEvent:
		fmt.Fprintf(os.Stderr, "\n[tool denied] %s: %s\n", e.ToolName, e.Reason)
	case agentloop.FailoverEvent:
		fmt.Fprintf(os.Stderr, "\n[failover] %s -> %s (%s)\n", e.FromModel, e.ToModel, e.Reason)
	case agentloop.EndEvent:
		fmt.Fprintln(os.Stdout)
	}
}

// journalNewMessages appends whatever Run added beyond seed; the journal
// is append-only (spec 4.K) so replaying the whole history on every call
// would duplicate records.
func journalNewMessages(store journal.Store, seed, final models.MessageList) error {
	for _, m := range final[len(seed):] {
		if err := store.Append(m); err != nil {
			return err
		}
	}
	return nil
}

// currentTime is the one place run.go calls time.Now, kept out of
// agentloop and compaction so their own tests stay deterministic.
func currentTime() time.Time {
	return time.Now()
}
