package consortium

// ShouldStop is the binding convergence decision: stop when the hard
// iteration ceiling is reached, or when the round count has cleared the
// minimum and the arbiter's confidence clears the threshold.
//
// It is a pure function with no hidden state and no best-so-far retention:
// confidence is evaluated fresh each round, so a round that regresses after
// an earlier improvement is still honored.
func ShouldStop(confidence float64, round int, cfg Config) bool {
	if round >= cfg.MaxIterations {
		return true
	}
	return round >= cfg.MinIterations && confidence >= cfg.ConfidenceThreshold
}
