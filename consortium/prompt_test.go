package consortium

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/consortium/types"
)

func TestBuildInitialPrompt(t *testing.T) {
	t.Parallel()

	p := buildInitialPrompt("what is 6x7?", "be terse")
	assert.Contains(t, p, "<prompt>")
	assert.Contains(t, p, "<instruction>")
	assert.Contains(t, p, "[SYSTEM INSTRUCTIONS]\nbe terse\n[/SYSTEM INSTRUCTIONS]")
	assert.Contains(t, p, "Human: what is 6x7?")

	bare := buildInitialPrompt("q", "")
	assert.NotContains(t, bare, "[SYSTEM INSTRUCTIONS]")
}

func TestBuildIterationPrompt(t *testing.T) {
	t.Parallel()

	last := types.SynthesisResult{
		Synthesis:       "draft answer",
		Confidence:      0.6,
		Analysis:        "agents disagreed on units",
		RefinementAreas: []string{"clarify units", "show the derivation"},
	}

	p := buildIterationPrompt("original question", last)
	assert.Contains(t, p, "original question")
	assert.Contains(t, p, "draft answer")
	assert.Contains(t, p, "agents disagreed on units")
	assert.Contains(t, p, "- clarify units")
	assert.Contains(t, p, "- show the derivation")
	// refinement areas must appear in order
	assert.Less(t, strings.Index(p, "clarify units"), strings.Index(p, "show the derivation"))
	assert.Contains(t, p, "addressing the areas above")
}

func TestFormatResponses(t *testing.T) {
	t.Parallel()

	out := formatResponses([]types.AgentResponse{
		{AgentID: "a", Instance: 1, Answer: "A1", Reasoning: "R1", Confidence: types.Float64Ptr(0.9)},
		{AgentID: "b", Instance: 2, Answer: "B1"},
	})

	assert.Contains(t, out, "<id>1</id>")
	assert.Contains(t, out, "<id>2</id>")
	assert.Contains(t, out, "<model>a</model>")
	assert.Contains(t, out, "<instance>2</instance>")
	assert.Contains(t, out, "<confidence>0.90</confidence>")
	assert.Contains(t, out, "<confidence>N/A</confidence>")
	assert.Contains(t, out, "R1")
}

func TestFormatHistory(t *testing.T) {
	t.Parallel()

	assert.Contains(t, formatHistory(nil), "<no_previous_iterations>")

	history := []types.IterationRecord{
		{Round: 1, Synthesis: types.SynthesisResult{Synthesis: "first", Confidence: 0.5, RefinementAreas: []string{"x"}}},
		{Round: 2, Synthesis: types.SynthesisResult{Synthesis: "second", Confidence: 0.7}},
	}

	out := formatHistory(history)
	assert.Contains(t, out, "<iteration_number>1</iteration_number>")
	assert.Contains(t, out, "<iteration_number>2</iteration_number>")
	assert.Contains(t, out, "<area>x</area>")
	assert.Less(t, strings.Index(out, "first"), strings.Index(out, "second"))
}

func TestBuildArbiterPrompt(t *testing.T) {
	t.Parallel()

	p := buildArbiterPrompt("the query",
		[]types.AgentResponse{{AgentID: "a", Instance: 1, Answer: "x"}},
		formatHistory(nil))

	assert.Contains(t, p, "<original_prompt>the query</original_prompt>")
	assert.Contains(t, p, "<model_responses>")
	assert.Contains(t, p, "<no_previous_iterations>")
	assert.Contains(t, p, "<needs_iteration>")
	assert.Contains(t, p, "<refinement_areas>")
}
