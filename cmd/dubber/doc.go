// Package main hosts the Dubber CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP
// calls against the daemon API: submitting videos, inspecting queue state,
// retrying failures, and configuration scaffolding. Heavy lifting stays in
// the internal packages; commands focus on flags and output.
package main
