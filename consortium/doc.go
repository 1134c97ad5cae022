// Package consortium implements the consensus orchestration core: it fans a
// query out to a weighted roster of agents, parses their structured
// responses, asks a designated arbiter to synthesize one answer, and
// iterates with a refined prompt until the arbiter's confidence clears the
// configured threshold or the iteration ceiling is hit.
//
// The core is deliberately thin on policy. Retry, caching, and rate
// limiting live behind the llm.Invoker it is handed; interaction logging is
// a fire-and-forget RecordSink; the stopping rule is the pure function
// ShouldStop over (confidence, round, config) — the arbiter's own
// needs_iteration flag is advisory only.
package consortium
