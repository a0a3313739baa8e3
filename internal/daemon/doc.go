// Package daemon ties the long-running pieces together: the workflow
// manager, the HTTP API, and a file lock that keeps a host to a single
// daemon instance.
package daemon
