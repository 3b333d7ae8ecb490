package agenttool

import (
	"regexp"
	"strings"

	"github.com/loomrun/coreagent/pkg/models"
)

// DefaultMaxResultChars caps a single tool result's text content before it
// re-enters the conversation, bounding both provider request size and
// storage cost for a single noisy tool call.
const DefaultMaxResultChars = 64 * 1024

// secretPatterns catches common credential shapes that tools (shell
// output, HTTP responses, file reads) can echo back verbatim.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*['"]?[\w-]{20,}['"]?`),
	regexp.MustCompile(`(?i)bearer\s+[\w-\.]+`),
	regexp.MustCompile(`(?i)(aws|amazon).*?(key|secret|token)\s*[:=]\s*['"]?[\w/+=]{20,}['"]?`),
	regexp.MustCompile(`(?i)(password|passwd|secret|token)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`),
	regexp.MustCompile(`-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`),
}

// ResultGuard redacts likely secrets out of tool result text and caps its
// size before the result is appended to conversation history. It runs on
// every tool call unconditionally when SanitizeSecrets or MaxChars is set;
// Denylist entries redact a result's content outright regardless.
type ResultGuard struct {
	Enabled         bool
	MaxChars        int
	Denylist        []string
	RedactionText   string
	SanitizeSecrets bool
}

// DefaultResultGuard redacts secrets and caps results at 64KB.
func DefaultResultGuard() ResultGuard {
	return ResultGuard{Enabled: true, MaxChars: DefaultMaxResultChars, SanitizeSecrets: true}
}

func (g ResultGuard) active() bool {
	return g.Enabled && (g.MaxChars > 0 || len(g.Denylist) > 0 || g.SanitizeSecrets)
}

// Apply rewrites result's text content blocks in place, returning the
// guarded result. Non-text blocks pass through untouched.
func (g ResultGuard) Apply(toolName string, result Result[any]) Result[any] {
	if !g.active() {
		return result
	}

	redaction := strings.TrimSpace(g.RedactionText)
	if redaction == "" {
		redaction = "[REDACTED]"
	}

	if matchesAny(g.Denylist, toolName) {
		result.Content = models.ContentBlocks{models.Text{TextValue: redaction}}
		return result
	}

	out := make(models.ContentBlocks, len(result.Content))
	for i, block := range result.Content {
		t, ok := block.(models.Text)
		if !ok {
			out[i] = block
			continue
		}
		if g.SanitizeSecrets {
			for _, re := range secretPatterns {
				t.TextValue = re.ReplaceAllString(t.TextValue, redaction)
			}
		}
		if g.MaxChars > 0 && len(t.TextValue) > g.MaxChars {
			t.TextValue = t.TextValue[:g.MaxChars] + "\n...[truncated]"
		}
		out[i] = t
	}
	result.Content = out
	return result
}

func matchesAny(patterns []string, name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range patterns {
		if strings.ToLower(strings.TrimSpace(p)) == name {
			return true
		}
	}
	return false
}
