// Package compaction implements the context-window compaction policy
// (spec 4.I): estimating how many tokens a history occupies, deciding
// when it must be trimmed, finding a safe cut point, and producing the
// replacement summary message.
package compaction

import (
	"encoding/json"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/loomrun/coreagent/pkg/models"
)

// charsPerToken is the fallback heuristic's divisor (spec 4.I
// estimateTokens: "ceil(totalChars/4)").
const charsPerToken = 4

// tokenCounter wraps a cached tiktoken encoding, falling back to the
// chars/4 heuristic when a model has no known tokenizer (spec 4.I:
// "Used as a fallback").
type tokenCounter struct {
	mu    sync.Mutex
	cache map[string]*tiktoken.Tiktoken
}

var counters = &tokenCounter{cache: make(map[string]*tiktoken.Tiktoken)}

func (c *tokenCounter) encodingFor(model string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.cache[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			c.cache[model] = nil
			return nil
		}
	}
	c.cache[model] = enc
	return enc
}

// countText returns model's tokenizer's count for text, or the chars/4
// heuristic if no tokenizer could be loaded for model.
func countText(model, text string) int {
	if text == "" {
		return 0
	}
	if enc := counters.encodingFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// EstimateTokens approximates the token cost of one message: its visible
// text, plus, for an assistant message, every tool call's name and
// stringified arguments (spec 4.I estimateTokens).
func EstimateTokens(model string, m models.Message) int {
	var text string
	switch v := m.(type) {
	case models.User:
		text = models.TextOf(v.Content)
	case models.Assistant:
		text = models.TextOf(v.Content)
		for _, c := range models.ToolCallsOf(v.Content) {
			text += c.Name
			if args, err := json.Marshal(c.Arguments); err == nil {
				text += string(args)
			}
		}
	case models.ToolResult:
		text = models.TextOf(v.Content)
	case models.Custom:
		text = models.TextOf(v.Content)
	case models.BashExecution:
		text = v.Command + v.Output
	case models.BranchSummary:
		text = v.Summary
	case models.CompactionSummary:
		text = v.Summary
	}
	return countText(model, text)
}
