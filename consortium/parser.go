package consortium

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/BaSui01/consortium/types"
)

// Agent and arbiter output is untrusted free text. Parsing is best-effort
// extraction, never validation: every parse function returns a usable
// value, falling back to the raw text when the tag grammar is absent.

var (
	reasoningRe  = regexp.MustCompile(`(?is)<reasoning>(.*?)</reasoning>`)
	answerRe     = regexp.MustCompile(`(?is)<answer>(.*?)</answer>`)
	confidenceRe = regexp.MustCompile(`(?is)<confidence>\s*([\d.]+)\s*%?\s*</confidence>`)

	synthesisRe  = regexp.MustCompile(`(?is)<synthesis>(.*?)</synthesis>`)
	analysisRe   = regexp.MustCompile(`(?is)<analysis>(.*?)</analysis>`)
	dissentRe    = regexp.MustCompile(`(?is)<dissent>(.*?)</dissent>`)
	needsIterRe  = regexp.MustCompile(`(?is)<needs_iteration>\s*(true|false)\s*</needs_iteration>`)
	refinementRe = regexp.MustCompile(`(?is)<refinement_areas>(.*?)</refinement_areas>`)
	areaRe       = regexp.MustCompile(`(?is)<area>(.*?)</area>`)

	confidenceLineRe = regexp.MustCompile(`(\d*\.?\d+)\s*%?`)
)

// ParseAgentResponse extracts the tagged segments from one agent's raw
// output. Segments may appear in any order; any may be absent. A missing
// answer tag means the whole raw text is the answer and the structured
// fields stay absent.
func ParseAgentResponse(agentID string, instance int, raw string) types.AgentResponse {
	resp := types.AgentResponse{
		AgentID:  agentID,
		Instance: instance,
		Raw:      raw,
	}

	m := answerRe.FindStringSubmatch(raw)
	if m == nil {
		resp.Answer = strings.TrimSpace(raw)
		return resp
	}
	resp.Answer = strings.TrimSpace(m[1])

	if m := reasoningRe.FindStringSubmatch(raw); m != nil {
		resp.Reasoning = strings.TrimSpace(m[1])
	}
	resp.Confidence = parseConfidence(raw)
	return resp
}

// ParseSynthesis extracts the arbiter's structured verdict. Fallbacks: the
// raw text as the synthesis and confidence 0.
func ParseSynthesis(raw string) types.SynthesisResult {
	result := types.SynthesisResult{
		Synthesis: strings.TrimSpace(raw),
		Raw:       raw,
	}

	if m := synthesisRe.FindStringSubmatch(raw); m != nil {
		result.Synthesis = strings.TrimSpace(m[1])
	}
	if c := parseConfidence(raw); c != nil {
		result.Confidence = *c
	}
	if m := analysisRe.FindStringSubmatch(raw); m != nil {
		result.Analysis = strings.TrimSpace(m[1])
	}
	if m := dissentRe.FindStringSubmatch(raw); m != nil {
		result.Dissent = strings.TrimSpace(m[1])
	}
	if m := needsIterRe.FindStringSubmatch(raw); m != nil {
		result.NeedsIteration = strings.EqualFold(m[1], "true")
	}
	if m := refinementRe.FindStringSubmatch(raw); m != nil {
		result.RefinementAreas = parseRefinementAreas(m[1])
	}
	return result
}

// parseConfidence finds a confidence value in raw text: the XML tag first,
// then a "confidence:" plain-text line. Values above 1 are read as
// percentages. Returns nil when nothing parseable is present — absence must
// stay distinguishable from an explicit 0.
func parseConfidence(raw string) *float64 {
	if m := confidenceRe.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return types.Float64Ptr(normalizeConfidence(v))
		}
	}

	for _, line := range strings.Split(strings.ToLower(raw), "\n") {
		if !strings.Contains(line, "confidence:") && !strings.Contains(line, "confidence level:") {
			continue
		}
		if m := confidenceLineRe.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				return types.Float64Ptr(normalizeConfidence(v))
			}
		}
	}
	return nil
}

func normalizeConfidence(v float64) float64 {
	if v > 1 {
		v /= 100
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v
}

// parseRefinementAreas reads the ordered list inside <refinement_areas>:
// <area> children when present, otherwise one area per non-empty line.
func parseRefinementAreas(inner string) []string {
	var areas []string
	if matches := areaRe.FindAllStringSubmatch(inner, -1); len(matches) > 0 {
		for _, m := range matches {
			if a := strings.TrimSpace(m[1]); a != "" {
				areas = append(areas, a)
			}
		}
		return areas
	}
	for _, line := range strings.Split(inner, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line != "" {
			areas = append(areas, line)
		}
	}
	return areas
}
