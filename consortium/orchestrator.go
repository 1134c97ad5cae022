package consortium

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/consortium/internal/metrics"
	"github.com/BaSui01/consortium/llm"
	"github.com/BaSui01/consortium/types"
)

// State names one phase of the iteration state machine.
type State string

const (
	StateDispatching  State = "dispatching"
	StateSynthesizing State = "synthesizing"
	StateEvaluating   State = "evaluating"
	StateContinuing   State = "continuing"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// RecordSink receives each completed round's record, append-only and
// fire-and-forget: implementations must not block, and their failures must
// never surface into orchestration.
type RecordSink interface {
	Append(rec types.IterationRecord)
}

// Orchestrator owns the iteration loop. It is safe to call Run
// concurrently: all per-run state lives on the stack of Run.
type Orchestrator struct {
	cfg         Config
	dispatcher  *Dispatcher
	synthesizer *Synthesizer
	sink        RecordSink
	collector   *metrics.Collector
	tracer      trace.Tracer
	logger      *zap.Logger
}

// NewOrchestrator validates the config and wires the dispatcher and
// synthesizer over the given invoker.
func NewOrchestrator(cfg Config, invoker llm.Invoker, logger *zap.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger = logger.With(zap.String("component", "orchestrator"))
	return &Orchestrator{
		cfg:         cfg,
		dispatcher:  NewDispatcher(invoker, cfg.TaskTimeout, cfg.MaxConcurrency, logger),
		synthesizer: NewSynthesizer(invoker, cfg.Arbiter, nil, logger),
		tracer:      otel.Tracer("consortium"),
		logger:      logger,
	}, nil
}

// SetRecordSink attaches the interaction log sink.
func (o *Orchestrator) SetRecordSink(sink RecordSink) { o.sink = sink }

// SetMetrics attaches the Prometheus collector.
func (o *Orchestrator) SetMetrics(c *metrics.Collector) { o.collector = c }

// SetTokenizer enables token budgeting of the arbiter prompt's history
// section.
func (o *Orchestrator) SetTokenizer(tok llm.Tokenizer) { o.synthesizer.tokenizer = tok }

// Config returns a copy of the normalized configuration.
func (o *Orchestrator) Config() Config { return o.cfg }

// Run executes one orchestration call: rounds of dispatch → synthesis →
// evaluation until convergence, the iteration ceiling, or a fatal error.
// Exactly one terminal outcome is produced — a Result or a typed error.
func (o *Orchestrator) Run(ctx context.Context, query string) (*types.Result, error) {
	runID := uuid.NewString()
	started := time.Now()

	ctx, span := o.tracer.Start(ctx, "consortium.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("arbiter", o.cfg.Arbiter),
			attribute.Int("roster.tasks", o.cfg.Roster.TaskCount()),
		))
	defer span.End()

	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("orchestration started",
		zap.Int("roster_tasks", o.cfg.Roster.TaskCount()),
		zap.Float64("threshold", o.cfg.ConfidenceThreshold),
		zap.Int("min_iterations", o.cfg.MinIterations),
		zap.Int("max_iterations", o.cfg.MaxIterations),
	)

	result := &types.Result{
		RunID:     runID,
		Query:     query,
		Arbiter:   o.cfg.Arbiter,
		Roster:    o.cfg.Roster,
		StartedAt: started,
	}

	systemPrompt := o.cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	currentPrompt := buildInitialPrompt(query, systemPrompt)

	var history []types.IterationRecord

	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, o.fail(logger, runID, round, started, len(history),
				types.NewError(types.ErrRunCancelled, "orchestration cancelled").WithRound(round).WithCause(err))
		}

		rec, err := o.runRound(ctx, logger, runID, round, query, currentPrompt, systemPrompt, history)
		if err != nil {
			return nil, o.fail(logger, runID, round, started, len(history), err)
		}
		history = append(history, *rec)
		if o.sink != nil {
			o.sink.Append(*rec)
		}

		o.transition(logger, round, StateEvaluating)
		if ShouldStop(rec.Synthesis.Confidence, round, o.cfg) {
			o.transition(logger, round, StateDone)
			result.Synthesis = rec.Synthesis
			result.Rounds = history
			result.FinishedAt = time.Now()

			logger.Info("orchestration converged",
				zap.Int("rounds", round),
				zap.Float64("confidence", rec.Synthesis.Confidence),
			)
			if o.collector != nil {
				o.collector.RecordRun("done", rec.Synthesis.Confidence, round, time.Since(started))
			}
			return result, nil
		}

		o.transition(logger, round, StateContinuing)
		currentPrompt = buildIterationPrompt(query, rec.Synthesis)
	}
}

// runRound executes one Dispatching → Synthesizing cycle and returns the
// completed, immutable record.
func (o *Orchestrator) runRound(ctx context.Context, logger *zap.Logger, runID string, round int, query, prompt, systemPrompt string, history []types.IterationRecord) (*types.IterationRecord, error) {
	roundStart := time.Now()
	ctx, span := o.tracer.Start(ctx, "consortium.round",
		trace.WithAttributes(attribute.Int("round", round)))
	defer span.End()

	o.transition(logger, round, StateDispatching)
	responses := o.dispatcher.Dispatch(ctx, prompt, systemPrompt, o.cfg.Roster)

	var taskErrs []error
	successes := make([]types.AgentResponse, 0, len(responses))
	for _, r := range responses {
		if o.collector != nil {
			o.collector.RecordTask(r.AgentID, string(types.GetErrorCode(r.Err)))
		}
		if r.Failed() {
			taskErrs = append(taskErrs, r.Err)
			continue
		}
		successes = append(successes, r)
	}

	if len(successes) == 0 {
		return nil, types.NewError(types.ErrAllAgentsFailed, "every dispatched task failed").
			WithRound(round).WithCause(errors.Join(taskErrs...))
	}

	o.transition(logger, round, StateSynthesizing)
	arbiterStart := time.Now()
	synthesis, err := o.synthesizer.Synthesize(ctx, query, history, successes)
	if o.collector != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		o.collector.RecordArbiter(status, time.Since(arbiterStart))
	}
	if err != nil {
		if e, ok := err.(*types.Error); ok {
			return nil, e.WithRound(round)
		}
		return nil, err
	}

	rec := &types.IterationRecord{
		RunID:       runID,
		Round:       round,
		Prompt:      prompt,
		Responses:   responses,
		Synthesis:   synthesis,
		StartedAt:   roundStart,
		CompletedAt: time.Now(),
	}

	logger.Info("round completed",
		zap.Int("round", round),
		zap.Int("responses", len(successes)),
		zap.Int("failures", len(taskErrs)),
		zap.Float64("confidence", synthesis.Confidence),
		zap.Duration("elapsed", time.Since(roundStart)),
	)
	if o.collector != nil {
		o.collector.RecordRound(time.Since(roundStart))
	}
	return rec, nil
}

func (o *Orchestrator) fail(logger *zap.Logger, runID string, round int, started time.Time, rounds int, err error) error {
	o.transition(logger, round, StateFailed)
	logger.Error("orchestration failed",
		zap.Int("round", round),
		zap.Error(err),
	)
	if o.collector != nil {
		o.collector.RecordRun("failed", 0, rounds, time.Since(started))
	}
	return err
}

func (o *Orchestrator) transition(logger *zap.Logger, round int, state State) {
	logger.Debug("state transition",
		zap.Int("round", round),
		zap.String("state", string(state)),
	)
}
