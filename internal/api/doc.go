// Package api exposes the daemon's HTTP surface: video submission, status,
// retries, and playback artifacts (playlist and chunk files). The same
// package carries the typed client the CLI uses against it.
package api
