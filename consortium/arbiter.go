package consortium

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/consortium/llm"
	"github.com/BaSui01/consortium/types"
)

// defaultHistoryTokenBudget caps the iteration-history section of the
// arbiter prompt. Oldest rounds are dropped first when over budget.
const defaultHistoryTokenBudget = 8000

// Synthesizer sends a round's successful responses plus a compact
// iteration history to the arbiter agent and parses its verdict.
type Synthesizer struct {
	invoker       llm.Invoker
	arbiter       string
	tokenizer     llm.Tokenizer
	historyBudget int
	logger        *zap.Logger
}

// NewSynthesizer creates a synthesizer addressed to the given arbiter
// identifier. A nil tokenizer disables history budgeting.
func NewSynthesizer(invoker llm.Invoker, arbiter string, tokenizer llm.Tokenizer, logger *zap.Logger) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{
		invoker:       invoker,
		arbiter:       arbiter,
		tokenizer:     tokenizer,
		historyBudget: defaultHistoryTokenBudget,
		logger:        logger.With(zap.String("component", "synthesizer"), zap.String("arbiter", arbiter)),
	}
}

// Synthesize invokes the arbiter exactly once. An invocation failure is
// fatal for the round — there is no fallback arbiter. Malformed arbiter
// output is never an error; the tolerant parser degrades to raw text with
// confidence 0.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, history []types.IterationRecord, responses []types.AgentResponse) (types.SynthesisResult, error) {
	prompt := buildArbiterPrompt(query, responses, s.budgetedHistory(history))

	raw, err := s.invoker.Invoke(ctx, s.arbiter, prompt, "")
	if err != nil {
		return types.SynthesisResult{}, types.NewError(types.ErrArbiterUnavailable, "arbiter invocation failed").
			WithAgent(s.arbiter).WithCause(err)
	}

	result := ParseSynthesis(raw)
	s.logger.Debug("synthesis parsed",
		zap.Float64("confidence", result.Confidence),
		zap.Bool("needs_iteration", result.NeedsIteration),
		zap.Int("refinement_areas", len(result.RefinementAreas)),
	)
	return result, nil
}

// budgetedHistory renders the iteration history, dropping oldest rounds
// until the rendered text fits the token budget.
func (s *Synthesizer) budgetedHistory(history []types.IterationRecord) string {
	rendered := formatHistory(history)
	if s.tokenizer == nil || s.historyBudget <= 0 {
		return rendered
	}

	for len(history) > 0 && s.tokenizer.CountTokens(rendered) > s.historyBudget {
		history = history[1:]
		rendered = formatHistory(history)
		s.logger.Debug("trimmed oldest iteration from arbiter history",
			zap.Int("remaining", len(history)),
		)
	}
	return rendered
}
