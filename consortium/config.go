package consortium

import (
	"fmt"
	"time"

	"github.com/BaSui01/consortium/types"
)

// Config is the immutable per-run orchestration configuration. Construct it
// once, validate it, and pass it by value; nothing in the core mutates it.
type Config struct {
	Roster              types.Roster  `json:"roster" yaml:"roster"`
	Arbiter             string        `json:"arbiter" yaml:"arbiter"`
	ConfidenceThreshold float64       `json:"confidence_threshold" yaml:"confidence_threshold"`
	MinIterations       int           `json:"min_iterations" yaml:"min_iterations"`
	MaxIterations       int           `json:"max_iterations" yaml:"max_iterations"`
	SystemPrompt        string        `json:"system_prompt,omitempty" yaml:"system_prompt"`
	TaskTimeout         time.Duration `json:"task_timeout,omitempty" yaml:"task_timeout"`
	MaxConcurrency      int           `json:"max_concurrency,omitempty" yaml:"max_concurrency"`
}

// DefaultConfig mirrors the historical defaults: threshold 0.8, at most 3
// rounds, at least 1.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.8,
		MinIterations:       1,
		MaxIterations:       3,
		TaskTimeout:         2 * time.Minute,
	}
}

// Normalize fills zero-value fields with defaults and accepts percentage
// thresholds in (1,100], scaling them to [0,1] the way the original CLI
// did.
func (c *Config) Normalize() {
	if c.ConfidenceThreshold > 1 && c.ConfidenceThreshold <= 100 {
		c.ConfidenceThreshold /= 100
	}
	if c.MinIterations == 0 {
		c.MinIterations = 1
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 3
	}
	for i := range c.Roster {
		if c.Roster[i].Count == 0 {
			c.Roster[i].Count = 1
		}
	}
}

// Validate checks the configuration. The arbiter does not have to be part
// of the roster.
func (c Config) Validate() error {
	if len(c.Roster) == 0 {
		return types.NewError(types.ErrConfigInvalid, "roster is empty")
	}
	for _, spec := range c.Roster {
		if spec.ID == "" {
			return types.NewError(types.ErrConfigInvalid, "roster entry has empty identifier")
		}
		if spec.Count < 1 {
			return types.NewError(types.ErrConfigInvalid,
				fmt.Sprintf("agent %q has non-positive instance count %d", spec.ID, spec.Count))
		}
	}
	if c.Arbiter == "" {
		return types.NewError(types.ErrConfigInvalid, "arbiter identifier is required")
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return types.NewError(types.ErrConfigInvalid,
			fmt.Sprintf("confidence threshold must be in [0,1], got %v", c.ConfidenceThreshold))
	}
	if c.MinIterations < 1 {
		return types.NewError(types.ErrConfigInvalid,
			fmt.Sprintf("min iterations must be >= 1, got %d", c.MinIterations))
	}
	if c.MaxIterations < c.MinIterations {
		return types.NewError(types.ErrConfigInvalid,
			fmt.Sprintf("max iterations (%d) must be >= min iterations (%d)", c.MaxIterations, c.MinIterations))
	}
	if c.MaxConcurrency < 0 {
		return types.NewError(types.ErrConfigInvalid,
			fmt.Sprintf("max concurrency must be >= 0, got %d", c.MaxConcurrency))
	}
	return nil
}
