// Package persistence stores the interaction log and saved consortium
// definitions. The orchestration loop never talks to a database directly:
// it writes records through an AsyncAppender, which absorbs storage latency
// and failures so they cannot stall or fail a run.
package persistence
