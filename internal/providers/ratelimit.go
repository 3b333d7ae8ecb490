package providers

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/loomrun/coreagent/internal/eventstream"
	"github.com/loomrun/coreagent/pkg/models"
)

// RateLimiter applies a per-ApiProvider token-bucket limit around
// outbound HTTP calls, grounded on taipm-go-deep-agent's
// agent/rate_limiter_token_bucket.go. It is an ambient efficiency layer
// outside the spec's core contract (providers remain usable without one);
// RateLimitedProvider wires it into the ApiProvider seam.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// NewRateLimiter creates a limiter allowing rps requests/sec per key with
// the given burst capacity.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (r *RateLimiter) limiterFor(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(r.rps), r.burst)
		r.limiters[key] = l
	}
	return l
}

// Wait blocks until a token is available for key or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, key string) error {
	return r.limiterFor(key).Wait(ctx)
}

// RateLimitedProvider decorates an ApiProvider with a token-bucket wait
// before each request, keyed by the wrapped provider's ApiId so every
// caller sharing one RateLimiter is throttled per-provider rather than
// globally.
type RateLimitedProvider struct {
	ApiProvider
	limiter *RateLimiter
}

// NewRateLimitedProvider wraps provider so every Stream/StreamSimple
// call first waits for a token from limiter.
func NewRateLimitedProvider(provider ApiProvider, limiter *RateLimiter) *RateLimitedProvider {
	return &RateLimitedProvider{ApiProvider: provider, limiter: limiter}
}

// Stream waits for a rate-limit token before delegating to the wrapped
// provider. A limiter-wait failure (context cancelled/deadline exceeded)
// is reported as an ErrorEvent on the returned stream rather than a
// panic or a nil stream, keeping the ApiProvider contract's "exactly one
// terminal event" guarantee intact.
func (p *RateLimitedProvider) Stream(ctx context.Context, model models.Model, reqCtx Context, options *Options) *eventstream.AssistantStream {
	stream := eventstream.NewAssistantStream()
	go func() {
		if err := p.limiter.Wait(ctx, string(p.ApiProvider.Api())); err != nil {
			stream.Push(eventstream.ErrorEvent{
				Reason: models.StopReasonError,
				Error: models.Assistant{
					StopReason:   models.StopReasonError,
					ErrorMessage: "rate limit wait: " + err.Error(),
				},
			})
			return
		}
		inner := p.ApiProvider.Stream(ctx, model, reqCtx, options)
		relay(inner, stream)
	}()
	return stream
}

// StreamSimple lowers simpleOptions and calls Stream, matching every
// other adapter's StreamSimple shape.
func (p *RateLimitedProvider) StreamSimple(ctx context.Context, model models.Model, reqCtx Context, simpleOptions *SimpleOptions) *eventstream.AssistantStream {
	var opts *Options
	if simpleOptions != nil {
		opts = simpleOptions.Lower()
	}
	return p.Stream(ctx, model, reqCtx, opts)
}

// relay forwards every event from src to dst until src terminates,
// preserving ordering and the single-terminal-event contract.
func relay(src, dst *eventstream.AssistantStream) {
	for event := range src.Events() {
		dst.Push(event)
	}
}
