package consortium

import (
	"fmt"
	"strings"

	"github.com/BaSui01/consortium/types"
)

// DefaultSystemPrompt tells agents which tag grammar the parser expects.
// Callers can override it via Config.SystemPrompt.
const DefaultSystemPrompt = `You are part of a consortium of assistants answering the same question independently.
Structure your reply with these tags:

<reasoning>your step-by-step reasoning</reasoning>
<answer>your final answer</answer>
<confidence>a value between 0 and 1 for how confident you are</confidence>`

const arbiterInstructions = `You are the arbiter of a consortium of assistants. Synthesize the responses above into a single authoritative answer.
Reply with exactly these tags:

<synthesis>the synthesized answer</synthesis>
<confidence>a value between 0 and 1 for the synthesis</confidence>
<analysis>how the responses agree and differ</analysis>
<dissent>notable minority or dissenting views, if any</dissent>
<needs_iteration>true or false</needs_iteration>
<refinement_areas>
<area>one concrete area to refine</area>
</refinement_areas>`

// buildInitialPrompt wraps the user query (and optional system
// instructions) in the instruction envelope every round-one task receives.
func buildInitialPrompt(query, systemPrompt string) string {
	var parts []string
	if systemPrompt != "" {
		parts = append(parts, fmt.Sprintf("[SYSTEM INSTRUCTIONS]\n%s\n[/SYSTEM INSTRUCTIONS]", systemPrompt))
	}
	parts = append(parts, fmt.Sprintf("Human: %s", query))

	return fmt.Sprintf("<prompt>\n    <instruction>%s</instruction>\n</prompt>", strings.Join(parts, "\n\n"))
}

// buildIterationPrompt folds the previous round's arbiter feedback into the
// next round's prompt. This is the only channel through which prior-round
// state re-enters the loop.
func buildIterationPrompt(query string, last types.SynthesisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Refining response for original prompt:\n%s\n\n", query)
	fmt.Fprintf(&b, "Previous synthesis (confidence %.2f):\n%s\n\n", last.Confidence, last.Synthesis)
	if last.Analysis != "" {
		fmt.Fprintf(&b, "Arbiter analysis:\n%s\n\n", last.Analysis)
	}
	if len(last.RefinementAreas) > 0 {
		b.WriteString("Areas needing refinement:\n")
		for _, area := range last.RefinementAreas {
			fmt.Fprintf(&b, "- %s\n", area)
		}
		b.WriteString("\n")
	}
	b.WriteString("Please improve your response, specifically addressing the areas above.")
	return b.String()
}

// formatResponses renders the current round's successful responses for the
// arbiter, numbered so it can reference them.
func formatResponses(responses []types.AgentResponse) string {
	var b strings.Builder
	for i, r := range responses {
		conf := "N/A"
		if r.Confidence != nil {
			conf = fmt.Sprintf("%.2f", *r.Confidence)
		}
		body := r.Answer
		if r.Reasoning != "" {
			body = fmt.Sprintf("%s\n\n%s", r.Reasoning, r.Answer)
		}
		fmt.Fprintf(&b, `<model_response>
    <id>%d</id>
    <model>%s</model>
    <instance>%d</instance>
    <confidence>%s</confidence>
    <response>%s</response>
</model_response>
`, i+1, r.AgentID, r.Instance, conf, body)
	}
	return b.String()
}

// formatHistory renders prior rounds compactly: synthesis, confidence, and
// refinement areas only, so settled points are not re-litigated in full.
func formatHistory(history []types.IterationRecord) string {
	if len(history) == 0 {
		return "<no_previous_iterations>No previous iterations available.</no_previous_iterations>"
	}

	var b strings.Builder
	for _, rec := range history {
		fmt.Fprintf(&b, `<iteration>
    <iteration_number>%d</iteration_number>
    <synthesis>%s</synthesis>
    <confidence>%.2f</confidence>
    <refinement_areas>
%s    </refinement_areas>
</iteration>
`, rec.Round, rec.Synthesis.Synthesis, rec.Synthesis.Confidence, formatAreas(rec.Synthesis.RefinementAreas))
	}
	return b.String()
}

func formatAreas(areas []string) string {
	var b strings.Builder
	for _, area := range areas {
		fmt.Fprintf(&b, "        <area>%s</area>\n", area)
	}
	return b.String()
}

// buildArbiterPrompt assembles the single prompt the arbiter receives:
// original query, the current round's responses, the (token-budgeted)
// iteration history, and the tag instructions.
func buildArbiterPrompt(query string, responses []types.AgentResponse, historyXML string) string {
	return fmt.Sprintf(`<arbiter_prompt>
<original_prompt>%s</original_prompt>
<model_responses>
%s</model_responses>
<iteration_history>
%s</iteration_history>
</arbiter_prompt>

%s`, query, formatResponses(responses), historyXML, arbiterInstructions)
}
