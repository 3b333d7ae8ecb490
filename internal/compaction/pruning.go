package compaction

import (
	"time"

	"github.com/loomrun/coreagent/pkg/models"
)

// PruningSettings configures in-place trimming of old tool-result
// content, a cheaper, finer-grained complement to full compaction: where
// Compact replaces a whole prefix of history with one summary once a
// token budget is exceeded, pruning shrinks individual aged tool results
// in place, every turn, regardless of whether a compaction threshold has
// been hit at all.
type PruningSettings struct {
	Enabled bool

	// TTL is how long a tool result's content stays untouched before it
	// becomes eligible for pruning, measured from its own timestamp.
	TTL time.Duration

	// KeepLastAssistants protects tool results belonging to the most
	// recent N assistant turns from pruning regardless of age.
	KeepLastAssistants int

	// MinPrunableChars is the shortest tool-result content pruning will
	// touch; short results are left alone even if stale.
	MinPrunableChars int

	// SoftTrimChars is the length an eligible result is trimmed to,
	// keeping HeadChars from the start and TailChars from the end and
	// eliding the middle. Zero disables soft trimming.
	SoftTrimChars int
	HeadChars     int
	TailChars     int

	// Placeholder replaces a result's content entirely once it is older
	// than HardClearTTL (which must be >= TTL to take effect after soft
	// trimming has already applied). Zero HardClearTTL disables hard
	// clearing.
	HardClearTTL time.Duration
	Placeholder  string
}

// DefaultPruningSettings returns a conservative default: prune tool
// results older than 5 minutes down to head/tail snippets, clear them
// entirely past 30 minutes, but never touch the last 3 assistant turns.
func DefaultPruningSettings() PruningSettings {
	return PruningSettings{
		Enabled:            true,
		TTL:                5 * time.Minute,
		KeepLastAssistants: 3,
		MinPrunableChars:   4000,
		SoftTrimChars:      1200,
		HeadChars:          600,
		TailChars:          600,
		HardClearTTL:       30 * time.Minute,
		Placeholder:        "[older tool result content cleared]",
	}
}

// PruneToolResults returns messages with eligible ToolResult content
// trimmed or cleared in place. It never removes or reorders messages,
// only shrinks ToolResult.Content, so turn structure and message count
// are unaffected; callers needing more headroom should also run Compact.
func PruneToolResults(messages models.MessageList, settings PruningSettings, now time.Time) models.MessageList {
	if !settings.Enabled || len(messages) == 0 {
		return messages
	}

	protectedFrom := protectedIndex(messages, settings.KeepLastAssistants)

	out := make(models.MessageList, len(messages))
	copy(out, messages)

	for i := 0; i < protectedFrom; i++ {
		tr, ok := out[i].(models.ToolResult)
		if !ok || tr.IsError {
			continue
		}
		age := now.Sub(tr.At)
		if age < settings.TTL {
			continue
		}
		if contentLen(tr.Content) < settings.MinPrunableChars {
			continue
		}
		if settings.HardClearTTL > 0 && age >= settings.HardClearTTL {
			tr.Content = models.ContentBlocks{models.Text{TextValue: settings.Placeholder}}
			out[i] = tr
			continue
		}
		if settings.SoftTrimChars > 0 {
			tr.Content = softTrim(tr.Content, settings)
			out[i] = tr
		}
	}
	return out
}

// protectedIndex returns the index of the earliest message that belongs
// to one of the last KeepLastAssistants assistant turns; everything at
// or after it is never pruned.
func protectedIndex(messages models.MessageList, keepLastAssistants int) int {
	if keepLastAssistants <= 0 {
		return len(messages)
	}
	seen := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if _, ok := messages[i].(models.Assistant); ok {
			seen++
			if seen >= keepLastAssistants {
				return i
			}
		}
	}
	return 0
}

func contentLen(content models.ContentBlocks) int {
	total := 0
	for _, block := range content {
		if t, ok := block.(models.Text); ok {
			total += len(t.TextValue)
		}
	}
	return total
}

func softTrim(content models.ContentBlocks, settings PruningSettings) models.ContentBlocks {
	out := make(models.ContentBlocks, len(content))
	for i, block := range content {
		t, ok := block.(models.Text)
		if !ok || len(t.TextValue) <= settings.SoftTrimChars {
			out[i] = block
			continue
		}
		head := t.TextValue[:min(settings.HeadChars, len(t.TextValue))]
		tail := ""
		if settings.TailChars > 0 && settings.TailChars < len(t.TextValue) {
			tail = t.TextValue[len(t.TextValue)-settings.TailChars:]
		}
		t.TextValue = head + "\n...[trimmed]...\n" + tail
		out[i] = t
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
