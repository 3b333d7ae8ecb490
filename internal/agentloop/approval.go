package agentloop

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/loomrun/coreagent/pkg/models"
)

// ApprovalDecision is the result of checking a tool call against an
// ApprovalPolicy, per SPEC_FULL.md's supplemented human-in-the-loop
// tool approval feature.
type ApprovalDecision string

const (
	ApprovalAllowed ApprovalDecision = "allowed"
	ApprovalDenied  ApprovalDecision = "denied"
	ApprovalPending ApprovalDecision = "pending"
)

// ApprovalRequest is a pending approval for one tool call, persisted so
// a human operator (or a policy UI) can decide it asynchronously while
// the agent loop blocks on the decision.
type ApprovalRequest struct {
	ID         string
	ToolCallID string
	ToolName   string
	Arguments  models.JSONObject
	SessionID  string
	Reason     string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Decision   ApprovalDecision
	DecidedAt  time.Time
	DecidedBy  string
}

// ApprovalPolicy configures which tools run unattended, which are always
// blocked, and which require a human decision before execution.
type ApprovalPolicy struct {
	// Allowlist tools are always allowed (exact name, "prefix*", "*suffix", or "*").
	Allowlist []string
	// Denylist tools are always denied, checked before Allowlist.
	Denylist []string
	// RequireApproval tools always route to ApprovalPending.
	RequireApproval []string

	// AskFallback queues a pending request when no UI is available to
	// answer it, instead of auto-denying.
	AskFallback bool

	// DefaultDecision applies when no list matches. Defaults to
	// ApprovalPending.
	DefaultDecision ApprovalDecision

	// RequestTTL bounds how long a pending request stays valid. Defaults
	// to 5 minutes.
	RequestTTL time.Duration
}

// DefaultApprovalPolicy returns a conservative default: nothing
// pre-allowed, unmatched tools go to pending.
func DefaultApprovalPolicy() *ApprovalPolicy {
	return &ApprovalPolicy{
		AskFallback:     true,
		DefaultDecision: ApprovalPending,
		RequestTTL:      5 * time.Minute,
	}
}

func normalizeApprovalPolicy(policy *ApprovalPolicy) *ApprovalPolicy {
	defaults := DefaultApprovalPolicy()
	if policy == nil {
		return defaults
	}
	merged := *policy
	if merged.DefaultDecision == "" {
		merged.DefaultDecision = defaults.DefaultDecision
	}
	if merged.RequestTTL <= 0 {
		merged.RequestTTL = defaults.RequestTTL
	}
	return &merged
}

// ApprovalStore persists pending approval requests across the
// check-then-decide boundary a human operator sits on.
type ApprovalStore interface {
	Create(ctx context.Context, req *ApprovalRequest) error
	Get(ctx context.Context, id string) (*ApprovalRequest, error)
	Update(ctx context.Context, req *ApprovalRequest) error
	ListPending(ctx context.Context, sessionID string) ([]*ApprovalRequest, error)
}

// ApprovalChecker evaluates tool calls against a policy before the loop
// dispatches them, and tracks pending requests a store persists.
type ApprovalChecker struct {
	mu           sync.RWMutex
	policy       *ApprovalPolicy
	pendingStore ApprovalStore
	uiAvailable  func() bool
}

// NewApprovalChecker creates a checker with policy, or DefaultApprovalPolicy if nil.
func NewApprovalChecker(policy *ApprovalPolicy) *ApprovalChecker {
	return &ApprovalChecker{policy: normalizeApprovalPolicy(policy)}
}

// SetStore installs the store used to persist pending requests.
func (c *ApprovalChecker) SetStore(store ApprovalStore) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingStore = store
}

// SetUIAvailableCheck installs the callback Check consults when deciding
// whether AskFallback should queue a pending request or deny outright.
func (c *ApprovalChecker) SetUIAvailableCheck(fn func() bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uiAvailable = fn
}

// IsUIAvailable reports whether a UI can answer a pending approval.
func (c *ApprovalChecker) IsUIAvailable() bool {
	c.mu.RLock()
	fn := c.uiAvailable
	c.mu.RUnlock()
	if fn == nil {
		return false
	}
	return fn()
}

// Check evaluates toolCall against the policy and returns the decision
// plus a short human-readable reason.
func (c *ApprovalChecker) Check(call models.ToolCall) (ApprovalDecision, string) {
	c.mu.RLock()
	policy := c.policy
	c.mu.RUnlock()

	name := call.Name

	if matchesPattern(policy.Denylist, name) {
		return ApprovalDenied, "tool in denylist"
	}
	if matchesPattern(policy.Allowlist, name) {
		return ApprovalAllowed, "tool in allowlist"
	}
	if matchesPattern(policy.RequireApproval, name) {
		if !policy.AskFallback && !c.IsUIAvailable() {
			return ApprovalDenied, "approval unavailable"
		}
		return ApprovalPending, "tool requires approval"
	}
	if policy.DefaultDecision == ApprovalPending && !policy.AskFallback && !c.IsUIAvailable() {
		return ApprovalDenied, "approval unavailable"
	}
	return policy.DefaultDecision, "default policy"
}

// CreateApprovalRequest builds and persists a pending request for call.
func (c *ApprovalChecker) CreateApprovalRequest(ctx context.Context, sessionID string, call models.ToolCall, reason string) (*ApprovalRequest, error) {
	c.mu.RLock()
	ttl := c.policy.RequestTTL
	store := c.pendingStore
	c.mu.RUnlock()

	req := &ApprovalRequest{
		ID:         call.ID + "-approval",
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Arguments:  call.Arguments,
		SessionID:  sessionID,
		Reason:     reason,
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(ttl),
		Decision:   ApprovalPending,
	}
	if store != nil {
		if err := store.Create(ctx, req); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// HasStore reports whether a persistence store is configured.
func (c *ApprovalChecker) HasStore() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pendingStore != nil
}

// Get returns a pending request by id, or (nil, nil) if no store is
// configured or the request isn't found.
func (c *ApprovalChecker) Get(ctx context.Context, id string) (*ApprovalRequest, error) {
	c.mu.RLock()
	store := c.pendingStore
	c.mu.RUnlock()
	if store == nil {
		return nil, nil
	}
	return store.Get(ctx, id)
}

// Approve marks a pending request allowed.
func (c *ApprovalChecker) Approve(ctx context.Context, requestID, decidedBy string) error {
	return c.decide(ctx, requestID, decidedBy, ApprovalAllowed)
}

// Deny marks a pending request denied.
func (c *ApprovalChecker) Deny(ctx context.Context, requestID, decidedBy string) error {
	return c.decide(ctx, requestID, decidedBy, ApprovalDenied)
}

func (c *ApprovalChecker) decide(ctx context.Context, requestID, decidedBy string, decision ApprovalDecision) error {
	c.mu.RLock()
	store := c.pendingStore
	c.mu.RUnlock()
	if store == nil {
		return nil
	}
	req, err := store.Get(ctx, requestID)
	if err != nil || req == nil {
		return err
	}
	req.Decision = decision
	req.DecidedAt = time.Now()
	req.DecidedBy = decidedBy
	return store.Update(ctx, req)
}

// matchesPattern reports whether toolName matches any of patterns:
// exact, "*" (all), "prefix*", or "*suffix", case-insensitively.
func matchesPattern(patterns []string, toolName string) bool {
	name := strings.ToLower(strings.TrimSpace(toolName))
	for _, pattern := range patterns {
		p := strings.ToLower(strings.TrimSpace(pattern))
		switch {
		case p == "":
			continue
		case p == "*":
			return true
		case p == name:
			return true
		case len(p) > 1 && p[len(p)-1] == '*' && strings.HasPrefix(name, p[:len(p)-1]):
			return true
		case len(p) > 1 && p[0] == '*' && strings.HasSuffix(name, p[1:]):
			return true
		}
	}
	return false
}

// MemoryApprovalStore is an in-memory ApprovalStore for tests and
// single-process deployments.
type MemoryApprovalStore struct {
	mu       sync.RWMutex
	requests map[string]*ApprovalRequest
}

// NewMemoryApprovalStore creates an empty MemoryApprovalStore.
func NewMemoryApprovalStore() *MemoryApprovalStore {
	return &MemoryApprovalStore{requests: make(map[string]*ApprovalRequest)}
}

func (s *MemoryApprovalStore) Create(ctx context.Context, req *ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

func (s *MemoryApprovalStore) Get(ctx context.Context, id string) (*ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.requests[id], nil
}

func (s *MemoryApprovalStore) Update(ctx context.Context, req *ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

func (s *MemoryApprovalStore) ListPending(ctx context.Context, sessionID string) ([]*ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now()
	var out []*ApprovalRequest
	for _, req := range s.requests {
		if req.Decision != ApprovalPending {
			continue
		}
		if !req.ExpiresAt.IsZero() && req.ExpiresAt.Before(now) {
			continue
		}
		if sessionID != "" && req.SessionID != sessionID {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}
