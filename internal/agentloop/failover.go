package agentloop

import (
	"regexp"
	"strconv"

	"github.com/loomrun/coreagent/internal/providers"
	"github.com/loomrun/coreagent/pkg/models"
)

// Fallback names a secondary model and the StreamFunc that issues calls
// against it. The loop tries Fallbacks in order when the primary model's
// error classifies as ShouldFailover(), grounded on the teacher's
// internal/agent/failover.go orchestrator but trimmed to the single
// responsibility SPEC_FULL.md adds to the core loop: retry the same turn
// elsewhere and report it, leaving retry/backoff policy for non-failover
// errors to the caller.
type Fallback struct {
	Model  models.Model
	Stream StreamFunc
}

// statusPattern recovers an HTTP status two ways: "status=%d" is what
// providers.Error.Error() actually emits when Status is non-zero;
// "http %d:" is the raw prefix providers.NewStatusError embeds into
// Message, which adapters that surface Message directly (or tests
// simulating raw wire errors) use unwrapped.
var statusPattern = regexp.MustCompile(`(?:status=|http )(\d+)(?:[: ]|$)`)

// classifyFailure recovers the FailoverReason a provider error was
// constructed with. Adapters report failures as plain strings on the
// wire (spec 4.D step 4: a non-2xx response "becomes an ErrorEvent,
// never a thrown exception"), so the reason travels embedded in the
// error string's status token; failures that never carried a status
// (transport errors, timeouts) classify as FailoverUnknown and are
// never failed over.
func classifyFailure(errorMessage string) providers.FailoverReason {
	m := statusPattern.FindStringSubmatch(errorMessage)
	if m == nil {
		return providers.FailoverUnknown
	}
	status, err := strconv.Atoi(m[1])
	if err != nil {
		return providers.FailoverUnknown
	}
	return providers.ReasonFromStatus(status)
}
