// Package pipeline implements the pure message-list transforms the agent
// loop applies before handing history to a provider adapter (spec 4.G).
// Every transform takes a models.MessageList and returns a new one; none
// mutate their input, so the agent loop's own context.messages is never
// aliased by a prepared turn.
package pipeline

import (
	"strings"

	"github.com/loomrun/coreagent/pkg/models"
)

// SynthesizeOrphanToolResults backfills a ToolResult for every ToolCall left
// unmatched within its assistant turn's window (spec 4.G.1). Scanning is
// forward-only: a ToolResult appearing after the next assistant boundary is
// never considered a match for an earlier turn's calls.
func SynthesizeOrphanToolResults(msgs models.MessageList) models.MessageList {
	out := make(models.MessageList, 0, len(msgs))
	for i := 0; i < len(msgs); i++ {
		out = append(out, msgs[i])

		asst, ok := msgs[i].(models.Assistant)
		if !ok {
			continue
		}
		calls := models.ToolCallsOf(asst.Content)
		if len(calls) == 0 {
			continue
		}

		matched := make(map[string]bool, len(calls))
		lastMatchIdx := len(out) - 1
		j := i + 1
		for ; j < len(msgs); j++ {
			if _, isAssistant := msgs[j].(models.Assistant); isAssistant {
				break
			}
			out = append(out, msgs[j])
			if tr, isResult := msgs[j].(models.ToolResult); isResult {
				for _, c := range calls {
					if c.ID == tr.ToolCallID {
						matched[c.ID] = true
						lastMatchIdx = len(out) - 1
					}
				}
			}
		}

		var orphans []models.Message
		for _, c := range calls {
			if !matched[c.ID] {
				orphans = append(orphans, models.ToolResult{
					ToolCallID: c.ID,
					ToolName:   c.Name,
					Content:    models.ContentBlocks{models.Text{TextValue: "Tool call aborted."}},
					IsError:    true,
					At:         asst.At,
				})
			}
		}
		if len(orphans) > 0 {
			insertAt := lastMatchIdx + 1
			tail := append(models.MessageList{}, out[insertAt:]...)
			out = append(out[:insertAt], append(models.MessageList(orphans), tail...)...)
		}

		i = j - 1
	}
	return out
}

// SummarizeErrorTurns replaces a trailing errored assistant turn and its
// preceding tool exchange with a synthetic User message summarising what
// was attempted, back to the User message that started the turn (spec
// 4.G.2). Only the final window in the list is considered, matching the
// algorithm's "last assistant message" framing.
func SummarizeErrorTurns(msgs models.MessageList) models.MessageList {
	lastAssistant := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if _, ok := msgs[i].(models.Assistant); ok {
			lastAssistant = i
			break
		}
	}
	if lastAssistant == -1 {
		return append(models.MessageList{}, msgs...)
	}
	asst := msgs[lastAssistant].(models.Assistant)
	if asst.StopReason != models.StopReasonError {
		return append(models.MessageList{}, msgs...)
	}

	turnStart := 0
	for i := lastAssistant; i >= 0; i-- {
		if _, ok := msgs[i].(models.User); ok {
			turnStart = i
			break
		}
	}

	var toolNames []string
	seen := make(map[string]bool)
	for i := turnStart; i <= lastAssistant; i++ {
		if a, ok := msgs[i].(models.Assistant); ok {
			for _, c := range models.ToolCallsOf(a.Content) {
				if !seen[c.Name] {
					seen[c.Name] = true
					toolNames = append(toolNames, c.Name)
				}
			}
		}
	}

	var summary strings.Builder
	summary.WriteString("The previous tool exchange failed")
	if len(toolNames) > 0 {
		summary.WriteString(" after invoking: ")
		summary.WriteString(strings.Join(toolNames, ", "))
	}
	if asst.ErrorMessage != "" {
		summary.WriteString(". Error: ")
		summary.WriteString(asst.ErrorMessage)
	}

	out := append(models.MessageList{}, msgs[:turnStart+1]...)
	out = append(out, models.User{
		Content: models.ContentBlocks{models.Text{TextValue: summary.String()}},
		At:      asst.At,
	})
	out = append(out, msgs[lastAssistant+1:]...)
	return out
}

// TransformThinkingToText lowers every Thinking block in every message to a
// Text block wrapped in <thinking>...</thinking> tags (spec 4.G.3).
func TransformThinkingToText(msgs models.MessageList) models.MessageList {
	out := make(models.MessageList, len(msgs))
	for i, m := range msgs {
		asst, ok := m.(models.Assistant)
		if !ok {
			out[i] = m
			continue
		}
		asst.Content = lowerThinking(asst.Content)
		out[i] = asst
	}
	return out
}

// ConvertCrossProviderThinking lowers Thinking blocks the same way as
// TransformThinkingToText, but only for assistant messages whose api or
// provider differs from the target, and clears replay signatures that
// don't survive a provider boundary (spec 4.G.3).
func ConvertCrossProviderThinking(msgs models.MessageList, targetApi models.ApiId, targetProvider models.ProviderId) models.MessageList {
	out := make(models.MessageList, len(msgs))
	for i, m := range msgs {
		asst, ok := m.(models.Assistant)
		if !ok {
			out[i] = m
			continue
		}
		if asst.Api == targetApi && asst.Provider == targetProvider {
			out[i] = asst
			continue
		}
		asst.Content = stripSignatures(lowerThinking(asst.Content))
		out[i] = asst
	}
	return out
}

func lowerThinking(blocks models.ContentBlocks) models.ContentBlocks {
	out := make(models.ContentBlocks, len(blocks))
	for i, b := range blocks {
		if th, ok := b.(models.Thinking); ok {
			out[i] = models.Text{TextValue: "<thinking>" + th.ThinkingValue + "</thinking>"}
			continue
		}
		out[i] = b
	}
	return out
}

func stripSignatures(blocks models.ContentBlocks) models.ContentBlocks {
	out := make(models.ContentBlocks, len(blocks))
	for i, b := range blocks {
		switch v := b.(type) {
		case models.Text:
			v.TextSignature = ""
			out[i] = v
		case models.ToolCall:
			v.ThoughtSignature = ""
			out[i] = v
		default:
			out[i] = b
		}
	}
	return out
}

// StripSyntheticVariants removes journal-only message variants before a
// list is sent to a provider (spec 4.G.4).
func StripSyntheticVariants(msgs models.MessageList) models.MessageList {
	out := make(models.MessageList, 0, len(msgs))
	for _, m := range msgs {
		if models.IsSynthetic(m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// DefaultConvertToLlm is the agent loop's default config.convertToLlm: it
// composes 4.G.4, 4.G.2, 4.G.1, and 4.G.3 in that exact order (spec
// 4.G.5). It uses TransformThinkingToText rather than the cross-provider
// variant, since the loop's single-arg convertToLlm hook has no target
// api/provider to compare against; callers that switch providers mid
// session should compose ConvertCrossProviderThinking themselves.
func DefaultConvertToLlm(msgs models.MessageList) models.MessageList {
	out := StripSyntheticVariants(msgs)
	out = SummarizeErrorTurns(out)
	out = SynthesizeOrphanToolResults(out)
	out = TransformThinkingToText(out)
	return out
}
