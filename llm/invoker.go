package llm

import (
	"context"
)

// Invoker sends one prompt to one addressable agent and returns its raw
// text output. Implementations map transport and provider failures to
// *types.Error with the Timeout/Transport/Provider codes so the core can
// classify per-task failures without knowing the wire protocol.
type Invoker interface {
	Invoke(ctx context.Context, agentID, prompt, systemPrompt string) (string, error)
}

// InvokerFunc adapts a plain function to the Invoker interface.
type InvokerFunc func(ctx context.Context, agentID, prompt, systemPrompt string) (string, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, agentID, prompt, systemPrompt string) (string, error) {
	return f(ctx, agentID, prompt, systemPrompt)
}
