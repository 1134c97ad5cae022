package consortium

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/consortium/llm"
	"github.com/BaSui01/consortium/types"
)

// scriptedInvoker answers roster agents with a fixed reply and the arbiter
// with a per-round script. It records every prompt it sees.
type scriptedInvoker struct {
	mu             sync.Mutex
	arbiter        string
	arbiterReplies []string
	arbiterErrs    []error
	agentReply     func(agentID, prompt string) (string, error)

	arbiterCalls int
	agentCalls   int
	agentPrompts []string
}

func (s *scriptedInvoker) Invoke(ctx context.Context, agentID, prompt, system string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if agentID == s.arbiter {
		i := s.arbiterCalls
		s.arbiterCalls++
		if i < len(s.arbiterErrs) && s.arbiterErrs[i] != nil {
			return "", s.arbiterErrs[i]
		}
		if i < len(s.arbiterReplies) {
			return s.arbiterReplies[i], nil
		}
		return "<synthesis>default</synthesis><confidence>1.0</confidence>", nil
	}

	s.agentCalls++
	s.agentPrompts = append(s.agentPrompts, prompt)
	if s.agentReply != nil {
		return s.agentReply(agentID, prompt)
	}
	return "<answer>from " + agentID + "</answer><confidence>0.7</confidence>", nil
}

func synthReply(conf string) string {
	return `<synthesis>round answer</synthesis><confidence>` + conf + `</confidence>` +
		`<analysis>spread</analysis><refinement_areas><area>tighten the estimate</area></refinement_areas>`
}

type memorySink struct {
	mu      sync.Mutex
	records []types.IterationRecord
}

func (m *memorySink) Append(rec types.IterationRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
}

func newTestOrchestrator(t *testing.T, cfg Config, inv llm.Invoker) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(cfg, inv, nil)
	require.NoError(t, err)
	return o
}

func TestRun_EndToEndConvergence(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{
		arbiter:        "z",
		arbiterReplies: []string{synthReply("0.6"), synthReply("0.85")},
	}

	roster, err := ParseRoster([]string{"x:1", "y:1"}, 1)
	require.NoError(t, err)

	cfg := Config{
		Roster:              roster,
		Arbiter:             "z",
		ConfidenceThreshold: 0.8,
		MinIterations:       1,
		MaxIterations:       3,
	}

	sink := &memorySink{}
	o := newTestOrchestrator(t, cfg, inv)
	o.SetRecordSink(sink)

	result, err := o.Run(context.Background(), "the question")
	require.NoError(t, err)

	// round 1 at 0.6 continues, round 2 at 0.85 converges, round 3 never runs
	require.Len(t, result.Rounds, 2)
	assert.Equal(t, 0.85, result.Synthesis.Confidence)
	assert.Equal(t, 2, inv.arbiterCalls)
	assert.Equal(t, 4, inv.agentCalls, "2 agents x 2 rounds")

	assert.Equal(t, 1, result.Rounds[0].Round)
	assert.Equal(t, 2, result.Rounds[1].Round)
	assert.NotEmpty(t, result.RunID)
	for _, rec := range result.Rounds {
		assert.Equal(t, result.RunID, rec.RunID)
		assert.Len(t, rec.Responses, 2)
	}

	// sink saw the same ordered history
	require.Len(t, sink.records, 2)
	assert.Equal(t, 1, sink.records[0].Round)
	assert.Equal(t, 2, sink.records[1].Round)
}

func TestRun_RefinedPromptCarriesFeedback(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{
		arbiter:        "z",
		arbiterReplies: []string{synthReply("0.1"), synthReply("0.9")},
	}

	cfg := Config{
		Roster:              types.Roster{{ID: "x", Count: 1}},
		Arbiter:             "z",
		ConfidenceThreshold: 0.8,
		MinIterations:       1,
		MaxIterations:       3,
	}

	o := newTestOrchestrator(t, cfg, inv)
	_, err := o.Run(context.Background(), "the question")
	require.NoError(t, err)

	require.Len(t, inv.agentPrompts, 2)
	assert.Contains(t, inv.agentPrompts[0], "<instruction>")
	assert.Contains(t, inv.agentPrompts[1], "the question")
	assert.Contains(t, inv.agentPrompts[1], "tighten the estimate")
	assert.Contains(t, inv.agentPrompts[1], "Refining response")
}

func TestRun_ExactRoundsWhenMinEqualsMax(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{
		arbiter:        "z",
		arbiterReplies: []string{synthReply("1.0"), synthReply("1.0")},
	}

	cfg := Config{
		Roster:              types.Roster{{ID: "x", Count: 1}},
		Arbiter:             "z",
		ConfidenceThreshold: 0.5,
		MinIterations:       2,
		MaxIterations:       2,
	}

	o := newTestOrchestrator(t, cfg, inv)
	result, err := o.Run(context.Background(), "q")
	require.NoError(t, err)

	assert.Len(t, result.Rounds, 2, "min=max=2 forces exactly 2 rounds despite full confidence")
	assert.Equal(t, 2, inv.arbiterCalls)
}

func TestRun_HardCeiling(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{
		arbiter:        "z",
		arbiterReplies: []string{synthReply("0.1"), synthReply("0.1"), synthReply("0.1")},
	}

	cfg := Config{
		Roster:              types.Roster{{ID: "x", Count: 1}},
		Arbiter:             "z",
		ConfidenceThreshold: 0.99,
		MinIterations:       1,
		MaxIterations:       3,
	}

	o := newTestOrchestrator(t, cfg, inv)
	result, err := o.Run(context.Background(), "q")
	require.NoError(t, err)

	assert.Len(t, result.Rounds, 3)
	assert.InDelta(t, 0.1, result.Synthesis.Confidence, 1e-9)
}

func TestRun_ConfidenceRegressionHonored(t *testing.T) {
	t.Parallel()

	// Round 1 reports high confidence but cannot stop before min
	// iterations; round 2 regresses. There is no best-so-far retention:
	// the final synthesis is the last round's.
	inv := &scriptedInvoker{
		arbiter: "z",
		arbiterReplies: []string{
			`<synthesis>better early answer</synthesis><confidence>0.95</confidence>`,
			`<synthesis>worse late answer</synthesis><confidence>0.3</confidence>`,
		},
	}

	cfg := Config{
		Roster:              types.Roster{{ID: "x", Count: 1}},
		Arbiter:             "z",
		ConfidenceThreshold: 0.9,
		MinIterations:       2,
		MaxIterations:       2,
	}

	o := newTestOrchestrator(t, cfg, inv)
	result, err := o.Run(context.Background(), "q")
	require.NoError(t, err)

	assert.Equal(t, "worse late answer", result.Synthesis.Synthesis)
	assert.InDelta(t, 0.3, result.Synthesis.Confidence, 1e-9)
}

func TestRun_AllTasksFailedIsFatal(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{
		arbiter: "z",
		agentReply: func(agentID, prompt string) (string, error) {
			return "", types.NewError(types.ErrTransport, "down").WithAgent(agentID)
		},
	}

	cfg := Config{
		Roster:              types.Roster{{ID: "x", Count: 1}, {ID: "y", Count: 2}},
		Arbiter:             "z",
		ConfidenceThreshold: 0.8,
		MinIterations:       1,
		MaxIterations:       3,
	}

	o := newTestOrchestrator(t, cfg, inv)
	_, err := o.Run(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, types.ErrAllAgentsFailed, types.GetErrorCode(err))
	assert.Equal(t, 0, inv.arbiterCalls, "no synthesis may be attempted from zero responses")

	var typed *types.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, 1, typed.Round)
}

func TestRun_PartialFailureProceeds(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{
		arbiter:        "z",
		arbiterReplies: []string{synthReply("0.9")},
		agentReply: func(agentID, prompt string) (string, error) {
			if agentID == "flaky" {
				return "", types.NewError(types.ErrTimeout, "slow").WithAgent(agentID)
			}
			return "<answer>fine</answer>", nil
		},
	}

	cfg := Config{
		Roster:              types.Roster{{ID: "solid", Count: 1}, {ID: "flaky", Count: 1}},
		Arbiter:             "z",
		ConfidenceThreshold: 0.8,
		MinIterations:       1,
		MaxIterations:       3,
	}

	o := newTestOrchestrator(t, cfg, inv)
	result, err := o.Run(context.Background(), "q")
	require.NoError(t, err)

	rec := result.FinalRound()
	require.NotNil(t, rec)
	assert.Len(t, rec.Responses, 2, "failed task retained for the record")
	assert.Len(t, rec.Successes(), 1, "failed task excluded from synthesis input")
}

func TestRun_ArbiterFailureIsFatalAndDistinct(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{
		arbiter:     "z",
		arbiterErrs: []error{types.NewError(types.ErrTransport, "arbiter down")},
	}

	cfg := Config{
		Roster:              types.Roster{{ID: "x", Count: 1}},
		Arbiter:             "z",
		ConfidenceThreshold: 0.8,
		MinIterations:       1,
		MaxIterations:       3,
	}

	o := newTestOrchestrator(t, cfg, inv)
	_, err := o.Run(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, types.ErrArbiterUnavailable, types.GetErrorCode(err))
	assert.NotEqual(t, types.ErrAllAgentsFailed, types.GetErrorCode(err))
}

func TestRun_CancelledBeforeFirstRound(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(t, Config{
		Roster:              types.Roster{{ID: "x", Count: 1}},
		Arbiter:             "z",
		ConfidenceThreshold: 0.8,
		MinIterations:       1,
		MaxIterations:       3,
	}, &scriptedInvoker{arbiter: "z"})

	_, err := o.Run(ctx, "q")
	require.Error(t, err)
	assert.Equal(t, types.ErrRunCancelled, types.GetErrorCode(err))
}

func TestNewOrchestrator_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewOrchestrator(Config{}, &scriptedInvoker{}, nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrConfigInvalid, types.GetErrorCode(err))
}

func TestRun_TerminationBounds(t *testing.T) {
	t.Parallel()

	// rounds at termination always land in [min, max]
	for _, conf := range []string{"0.0", "0.5", "1.0"} {
		inv := &scriptedInvoker{
			arbiter:        "z",
			arbiterReplies: []string{synthReply(conf), synthReply(conf), synthReply(conf), synthReply(conf)},
		}
		cfg := Config{
			Roster:              types.Roster{{ID: "x", Count: 1}},
			Arbiter:             "z",
			ConfidenceThreshold: 0.7,
			MinIterations:       2,
			MaxIterations:       4,
		}
		o := newTestOrchestrator(t, cfg, inv)
		result, err := o.Run(context.Background(), "q")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(result.Rounds), cfg.MinIterations)
		assert.LessOrEqual(t, len(result.Rounds), cfg.MaxIterations)
	}
}
