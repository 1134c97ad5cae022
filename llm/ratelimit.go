package llm

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/consortium/types"
)

// RateLimitedInvoker throttles invocations per agent identifier with a
// token-bucket limiter. Instances of the same agent share one bucket, so a
// roster entry like "gpt-4o:5" cannot burst past the provider's limit.
type RateLimitedInvoker struct {
	next     Invoker
	rps      rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	logger   *zap.Logger
}

// NewRateLimitedInvoker creates the wrapper. rps <= 0 disables throttling.
func NewRateLimitedInvoker(next Invoker, rps float64, burst int, logger *zap.Logger) *RateLimitedInvoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedInvoker{
		next:     next,
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
		logger:   logger.With(zap.String("component", "ratelimit_invoker")),
	}
}

func (r *RateLimitedInvoker) limiter(agentID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.limiters[agentID]
	if !ok {
		lim = rate.NewLimiter(r.rps, r.burst)
		r.limiters[agentID] = lim
	}
	return lim
}

// Invoke implements Invoker.
func (r *RateLimitedInvoker) Invoke(ctx context.Context, agentID, prompt, systemPrompt string) (string, error) {
	if r.rps > 0 {
		if err := r.limiter(agentID).Wait(ctx); err != nil {
			return "", types.NewError(types.ErrRunCancelled, "rate limit wait cancelled").
				WithAgent(agentID).WithCause(err)
		}
	}
	return r.next.Invoke(ctx, agentID, prompt, systemPrompt)
}
