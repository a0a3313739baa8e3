// Package workflow drives videos through the dubbing pipeline. A single
// manager polls the store for videos sitting at a stage-start status, claims
// them with a conditional status transition, and runs the configured stage
// handler under a heartbeat. Chunked and linear videos share the download
// and extraction stages and diverge afterwards; the manager resolves the
// stage table per video from its processing mode.
package workflow
