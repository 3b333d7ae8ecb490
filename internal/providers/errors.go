package providers

import (
	"fmt"
	"net/http"
	"strings"
)

// FailoverReason categorizes why a provider request failed, grounded on
// the teacher's internal/agent/providers/errors.go. It drives both retry
// policy (outside the core, per spec's non-goals) and the additive
// provider-failover feature in SPEC_FULL.md.
type FailoverReason string

const (
	FailoverBilling          FailoverReason = "billing"
	FailoverRateLimit        FailoverReason = "rate_limit"
	FailoverAuth             FailoverReason = "auth"
	FailoverTimeout          FailoverReason = "timeout"
	FailoverServerError      FailoverReason = "server_error"
	FailoverInvalidRequest   FailoverReason = "invalid_request"
	FailoverModelUnavailable FailoverReason = "model_unavailable"
	FailoverContentFilter    FailoverReason = "content_filter"
	FailoverUnknown          FailoverReason = "unknown"
)

// IsRetryable reports whether retrying the same provider/model may
// succeed.
func (r FailoverReason) IsRetryable() bool {
	switch r {
	case FailoverRateLimit, FailoverTimeout, FailoverServerError:
		return true
	default:
		return false
	}
}

// ShouldFailover reports whether the error warrants trying a different
// provider or model entirely.
func (r FailoverReason) ShouldFailover() bool {
	switch r {
	case FailoverBilling, FailoverAuth, FailoverModelUnavailable:
		return true
	default:
		return false
	}
}

// ReasonFromStatus classifies an HTTP status code into a FailoverReason.
func ReasonFromStatus(status int) FailoverReason {
	switch {
	case status == http.StatusPaymentRequired:
		return FailoverBilling
	case status == http.StatusTooManyRequests:
		return FailoverRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailoverAuth
	case status == http.StatusRequestTimeout:
		return FailoverTimeout
	case status >= 500:
		return FailoverServerError
	case status == http.StatusBadRequest:
		return FailoverInvalidRequest
	case status == http.StatusNotFound:
		return FailoverModelUnavailable
	default:
		return FailoverUnknown
	}
}

// Error is a structured provider failure (spec 7's "Transport / network"
// and "Non-2xx response" rows): it always becomes an ErrorEvent, never a
// thrown exception, but carries enough context for retry/failover policy
// above the core.
type Error struct {
	Reason    FailoverReason
	Provider  string
	Model     string
	Status    int
	Code      string
	Message   string
	RequestID string
	Cause     error
}

func (e *Error) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Reason))
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error { return e.Cause }

// NewStatusError builds an Error from a non-2xx HTTP response, embedding
// the status code and response body in Message per spec 4.D step 4.
func NewStatusError(provider, model string, status int, body string) *Error {
	return &Error{
		Reason:   ReasonFromStatus(status),
		Provider: provider,
		Model:    model,
		Status:   status,
		Message:  fmt.Sprintf("http %d: %s", status, truncate(body, 2000)),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

// IsContextOverflow implements the heuristic regex-free check from spec 7
// ("Context overflow detected in errorMessage (heuristic regex)"):
// OverflowUtils.isContextOverflow.
func IsContextOverflow(errorMessage string) bool {
	lower := strings.ToLower(errorMessage)
	needles := []string{
		"context length", "context_length", "maximum context",
		"too many tokens", "context window", "reduce the length",
		"input is too long", "prompt is too long",
	}
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}
