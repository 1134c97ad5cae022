package llm

import (
	"context"
	"sync"

	"github.com/BaSui01/consortium/types"
)

// Registry routes agent identifiers to Invokers. A per-identifier binding
// wins over the default invoker; with neither, Invoke fails with
// AGENT_NOT_FOUND before any network traffic.
type Registry struct {
	mu       sync.RWMutex
	invokers map[string]Invoker
	fallback Invoker
}

// NewRegistry creates a registry with an optional default invoker.
func NewRegistry(fallback Invoker) *Registry {
	return &Registry{
		invokers: make(map[string]Invoker),
		fallback: fallback,
	}
}

// Register binds an invoker to an agent identifier, replacing any previous
// binding.
func (r *Registry) Register(agentID string, inv Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invokers[agentID] = inv
}

// Resolve returns the invoker bound to agentID, or the fallback.
func (r *Registry) Resolve(agentID string) (Invoker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if inv, ok := r.invokers[agentID]; ok {
		return inv, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

// Invoke implements Invoker by resolving the identifier first.
func (r *Registry) Invoke(ctx context.Context, agentID, prompt, systemPrompt string) (string, error) {
	inv, ok := r.Resolve(agentID)
	if !ok {
		return "", types.NewError(types.ErrAgentNotFound, "no invoker registered").WithAgent(agentID)
	}
	return inv.Invoke(ctx, agentID, prompt, systemPrompt)
}
