package llm

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/consortium/types"
)

// RetryPolicy configures the exponential-backoff retry wrapper.
type RetryPolicy struct {
	MaxRetries   int           // 0 disables retry
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool // randomize delays to avoid synchronized retries
}

// DefaultRetryPolicy suits most hosted-model endpoints: three attempts with
// jittered exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// RetryInvoker wraps an Invoker with backoff retry on retryable errors
// (rate limits, timeouts, upstream 5xx). Non-retryable errors pass through
// on the first failure.
type RetryInvoker struct {
	next   Invoker
	policy RetryPolicy
	logger *zap.Logger
}

// NewRetryInvoker creates the retry wrapper, normalizing degenerate policy
// values to the defaults.
func NewRetryInvoker(next Invoker, policy RetryPolicy, logger *zap.Logger) *RetryInvoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = 1 * time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}

	return &RetryInvoker{
		next:   next,
		policy: policy,
		logger: logger.With(zap.String("component", "retry_invoker")),
	}
}

// Invoke implements Invoker.
func (r *RetryInvoker) Invoke(ctx context.Context, agentID, prompt, systemPrompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.calculateDelay(attempt)
			r.logger.Debug("retrying agent invocation",
				zap.String("agent_id", agentID),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return "", types.NewError(types.ErrRunCancelled, "retry cancelled").
					WithAgent(agentID).WithCause(ctx.Err())
			case <-time.After(delay):
			}
		}

		out, err := r.next.Invoke(ctx, agentID, prompt, systemPrompt)
		if err == nil {
			if attempt > 0 {
				r.logger.Info("agent invocation recovered",
					zap.String("agent_id", agentID),
					zap.Int("attempt", attempt),
				)
			}
			return out, nil
		}
		lastErr = err

		if !types.IsRetryable(err) {
			return "", err
		}
	}

	r.logger.Warn("retries exhausted",
		zap.String("agent_id", agentID),
		zap.Int("attempts", r.policy.MaxRetries+1),
		zap.Error(lastErr),
	)
	if e, ok := lastErr.(*types.Error); ok {
		return "", e
	}
	return "", fmt.Errorf("invocation failed after %d attempts: %w", r.policy.MaxRetries+1, lastErr)
}

// calculateDelay applies exponential backoff with optional ±25% jitter,
// clamped to [InitialDelay, MaxDelay].
func (r *RetryInvoker) calculateDelay(attempt int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
	}
	if delay < float64(r.policy.InitialDelay) {
		delay = float64(r.policy.InitialDelay)
	}
	return time.Duration(delay)
}
