// Package pipeline implements the concrete stage handlers the workflow
// manager runs: download, audio extraction, the chunked fan-out, chunk
// assembly, the linear whole-video stages, and the optional lipsync
// finalization.
package pipeline
