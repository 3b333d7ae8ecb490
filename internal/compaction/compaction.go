package compaction

import (
	"fmt"
	"strings"

	"github.com/loomrun/coreagent/pkg/models"
)

// DefaultReserveTokens is shouldCompact's default safety margin held back
// from the model's context window (spec 4.I: "default reserve 16 384").
const DefaultReserveTokens = 16384

// Settings configures the compaction policy.
type Settings struct {
	Enabled bool

	// ReserveTokens overrides DefaultReserveTokens when positive.
	ReserveTokens int

	// KeepRecentTokens bounds how much of the tail findCutPoint keeps
	// verbatim.
	KeepRecentTokens int
}

func (s Settings) reserveTokens() int {
	if s.ReserveTokens > 0 {
		return s.ReserveTokens
	}
	return DefaultReserveTokens
}

// EstimateContextTokens computes the working estimate of a history's
// token footprint (spec 4.I estimateContextTokens): it takes the last
// non-ERROR, non-ABORTED assistant message's recorded usage as a
// baseline, then adds EstimateTokens for every message after it, since
// usage accounting already covers everything up to and including that
// message.
func EstimateContextTokens(model string, messages models.MessageList) int {
	baseline := 0
	trailingFrom := 0
	for i := len(messages) - 1; i >= 0; i-- {
		asst, ok := messages[i].(models.Assistant)
		if !ok {
			continue
		}
		if asst.StopReason == models.StopReasonError || asst.StopReason == models.StopReasonAborted {
			continue
		}
		if asst.Usage.IsZero() {
			continue
		}
		baseline = models.CalculateContextTokens(asst.Usage)
		trailingFrom = i + 1
		break
	}

	total := baseline
	for _, m := range messages[trailingFrom:] {
		total += EstimateTokens(model, m)
	}
	return total
}

// ShouldCompact reports whether a history's estimated token footprint
// leaves the model too little headroom to continue (spec 4.I
// shouldCompact).
func ShouldCompact(contextTokens, contextWindow int, settings Settings) bool {
	return settings.Enabled && contextTokens > contextWindow-settings.reserveTokens()
}

// FindCutPoint scans messages from the tail, accumulating EstimateTokens
// until keeping one more would exceed keepRecentTokens, then snaps the
// first kept index backwards to the nearest turn boundary (spec 4.I
// findCutPoint). It returns len(messages) if nothing should be kept, and
// 0 if everything should be.
func FindCutPoint(model string, messages models.MessageList, keepRecentTokens int) int {
	kept := 0
	accumulated := 0
	for i := len(messages) - 1; i >= 0; i-- {
		cost := EstimateTokens(model, messages[i])
		if kept > 0 && accumulated+cost > keepRecentTokens {
			break
		}
		accumulated += cost
		kept++
	}
	firstKept := len(messages) - kept
	for firstKept > 0 && !models.IsTurnBoundary(messages[firstKept]) {
		firstKept--
	}
	return firstKept
}

// Result is what Compact produces: the caller inserts a CompactionSummary
// built from it and drops messages[0:FirstKeptIndex) (spec 4.I: "The
// caller inserts a CompactionSummary message and drops messages
// [0, firstKeptEntryIndex) from the session history before the next
// turn").
type Result struct {
	Summary        string
	FirstKeptIndex int
	TokensBefore   int
}

// Compact produces the CompactionResult for replacing the prefix
// messages[:firstKeptIndex] with a single summary (spec 4.I compact). The
// summary is a plain-text digest, not an LLM-generated one: the core
// itself never calls a model mid-policy-decision, matching the "pure
// transforms" framing of the surrounding pipeline (spec 4.G).
func Compact(messages models.MessageList, firstKeptIndex, tokensBefore int) Result {
	dropped := messages[:firstKeptIndex]
	return Result{
		Summary:        digest(dropped),
		FirstKeptIndex: firstKeptIndex,
		TokensBefore:   tokensBefore,
	}
}

func digest(messages models.MessageList) string {
	if len(messages) == 0 {
		return "No prior history."
	}

	var userTurns, toolCalls, errors int
	toolNames := make(map[string]bool)
	var orderedTools []string
	for _, m := range messages {
		switch v := m.(type) {
		case models.User:
			userTurns++
		case models.Assistant:
			if v.StopReason == models.StopReasonError {
				errors++
			}
			for _, c := range models.ToolCallsOf(v.Content) {
				toolCalls++
				if !toolNames[c.Name] {
					toolNames[c.Name] = true
					orderedTools = append(orderedTools, c.Name)
				}
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Earlier conversation (%d messages, %d user turns, %d tool calls",
		len(messages), userTurns, toolCalls)
	if errors > 0 {
		fmt.Fprintf(&b, ", %d errored turns", errors)
	}
	b.WriteString(") compacted to free context space.")
	if len(orderedTools) > 0 {
		b.WriteString(" Tools used: ")
		b.WriteString(strings.Join(orderedTools, ", "))
		b.WriteString(".")
	}
	return b.String()
}
