package types

import "time"

// AgentSpec is one roster entry: an agent identifier plus the number of
// independent instances of it to query each round.
type AgentSpec struct {
	ID    string `json:"id" yaml:"id"`
	Count int    `json:"count" yaml:"count"`
}

// Roster is the ordered multiset of agents queried each round. Order has no
// semantic meaning; it only keeps logs readable.
type Roster []AgentSpec

// TaskCount returns the total number of tasks a single round dispatches.
func (r Roster) TaskCount() int {
	total := 0
	for _, spec := range r {
		total += spec.Count
	}
	return total
}

// Contains reports whether the roster includes the given agent identifier.
func (r Roster) Contains(agentID string) bool {
	for _, spec := range r {
		if spec.ID == agentID {
			return true
		}
	}
	return false
}

// AgentResponse is the structured record extracted from one dispatched
// task's raw output. Confidence is a pointer so that an absent value is
// distinguishable from an explicit 0.
type AgentResponse struct {
	AgentID    string   `json:"agent_id"`
	Instance   int      `json:"instance"` // 1-based within the agent's spec
	Reasoning  string   `json:"reasoning,omitempty"`
	Answer     string   `json:"answer,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Raw        string   `json:"raw,omitempty"`
	Err        error    `json:"-"`
	ErrMessage string   `json:"error,omitempty"`
}

// Failed reports whether the task behind this response failed to produce
// any output.
func (r *AgentResponse) Failed() bool {
	return r.Err != nil
}

// SynthesisResult is the arbiter's structured verdict for one round. Its
// Confidence field is the authoritative input to the convergence decision;
// NeedsIteration is advisory only.
type SynthesisResult struct {
	Synthesis       string   `json:"synthesis"`
	Confidence      float64  `json:"confidence"`
	Analysis        string   `json:"analysis,omitempty"`
	NeedsIteration  bool     `json:"needs_iteration"`
	RefinementAreas []string `json:"refinement_areas,omitempty"`
	Dissent         string   `json:"dissent,omitempty"`
	Raw             string   `json:"raw,omitempty"`
}

// IterationRecord captures one completed round. Immutable once appended to
// a run's history.
type IterationRecord struct {
	RunID       string          `json:"run_id"`
	Round       int             `json:"round"` // 1-based
	Prompt      string          `json:"prompt"`
	Responses   []AgentResponse `json:"responses"`
	Synthesis   SynthesisResult `json:"synthesis"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Successes returns the responses that carry usable output.
func (r *IterationRecord) Successes() []AgentResponse {
	out := make([]AgentResponse, 0, len(r.Responses))
	for _, resp := range r.Responses {
		if !resp.Failed() {
			out = append(out, resp)
		}
	}
	return out
}

// Result is the caller-facing payload of one orchestration run: the final
// synthesis plus the full ordered round history.
type Result struct {
	RunID      string            `json:"run_id"`
	Query      string            `json:"query"`
	Synthesis  SynthesisResult   `json:"synthesis"`
	Rounds     []IterationRecord `json:"rounds"`
	Arbiter    string            `json:"arbiter"`
	Roster     Roster            `json:"roster"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// FinalRound returns the last completed round, or nil if none completed.
func (r *Result) FinalRound() *IterationRecord {
	if len(r.Rounds) == 0 {
		return nil
	}
	return &r.Rounds[len(r.Rounds)-1]
}

// Float64Ptr returns a pointer to v. Convenience for optional confidences.
func Float64Ptr(v float64) *float64 { return &v }
