package consortium

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/consortium/llm"
	"github.com/BaSui01/consortium/types"
)

// Dispatcher expands a roster into concrete invocation tasks and runs them
// concurrently. It is a pure fan-out/fan-in combinator: per-task failures
// are captured in the returned responses, never raised, and the barrier
// waits for every task (or its timeout) before returning.
type Dispatcher struct {
	invoker        llm.Invoker
	taskTimeout    time.Duration
	maxConcurrency int
	logger         *zap.Logger
}

// NewDispatcher creates a dispatcher. maxConcurrency <= 0 means unbounded.
func NewDispatcher(invoker llm.Invoker, taskTimeout time.Duration, maxConcurrency int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		invoker:        invoker,
		taskTimeout:    taskTimeout,
		maxConcurrency: maxConcurrency,
		logger:         logger.With(zap.String("component", "dispatcher")),
	}
}

type task struct {
	agentID  string
	instance int // 1-based within the agent's spec
}

// Dispatch runs one round's fan-out. The returned slice contains one
// response per dispatched task, in roster expansion order; failed tasks
// carry a populated Err.
func (d *Dispatcher) Dispatch(ctx context.Context, prompt, systemPrompt string, roster types.Roster) []types.AgentResponse {
	tasks := make([]task, 0, roster.TaskCount())
	for _, spec := range roster {
		for i := 1; i <= spec.Count; i++ {
			tasks = append(tasks, task{agentID: spec.ID, instance: i})
		}
	}

	d.logger.Debug("dispatching round",
		zap.Int("tasks", len(tasks)),
		zap.Int("agents", len(roster)),
	)

	limit := int64(d.maxConcurrency)
	if limit <= 0 {
		limit = int64(len(tasks))
	}
	sem := semaphore.NewWeighted(limit)

	responses := make([]types.AgentResponse, len(tasks))
	var wg sync.WaitGroup

	for i, tk := range tasks {
		wg.Add(1)
		go func(i int, tk task) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				responses[i] = failedResponse(tk, types.NewError(types.ErrRunCancelled, "dispatch cancelled").
					WithAgent(tk.agentID).WithCause(err))
				return
			}
			defer sem.Release(1)

			responses[i] = d.runTask(ctx, tk, prompt, systemPrompt)
		}(i, tk)
	}

	wg.Wait()
	return responses
}

func (d *Dispatcher) runTask(ctx context.Context, tk task, prompt, systemPrompt string) types.AgentResponse {
	taskCtx := ctx
	if d.taskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, d.taskTimeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := d.invoker.Invoke(taskCtx, tk.agentID, prompt, systemPrompt)
	if err != nil {
		if taskCtx.Err() == context.DeadlineExceeded && types.GetErrorCode(err) != types.ErrTimeout {
			err = types.NewError(types.ErrTimeout, "task exceeded timeout").
				WithAgent(tk.agentID).WithCause(err)
		}
		d.logger.Warn("agent task failed",
			zap.String("agent_id", tk.agentID),
			zap.Int("instance", tk.instance),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return failedResponse(tk, err)
	}

	d.logger.Debug("agent task completed",
		zap.String("agent_id", tk.agentID),
		zap.Int("instance", tk.instance),
		zap.Duration("elapsed", time.Since(start)),
	)
	return ParseAgentResponse(tk.agentID, tk.instance, raw)
}

func failedResponse(tk task, err error) types.AgentResponse {
	return types.AgentResponse{
		AgentID:    tk.agentID,
		Instance:   tk.instance,
		Err:        err,
		ErrMessage: err.Error(),
	}
}
