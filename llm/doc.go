// Package llm implements the agent invocation boundary: a small Invoker
// interface plus an OpenAI-compatible HTTP client, an identifier-based
// registry, and composable decorators for retry, rate limiting, and
// response caching.
//
// The orchestration core in package consortium only sees the Invoker
// interface; everything else here is collaborator-side policy. In
// particular, retry never lives in the core — wrap an Invoker with
// NewRetryInvoker if the deployment wants one.
package llm
