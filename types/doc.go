// Package types defines the core data model shared across the consortium
// framework: roster entries, per-round agent responses, synthesis results,
// iteration records, and the unified error type.
//
// The package is dependency-free so that every other package (orchestration
// core, invoker layer, persistence, CLI) can import it without cycles.
package types
