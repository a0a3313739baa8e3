// Package stage defines the contract the workflow manager expects from each
// pipeline stage.
package stage

import (
	"context"

	"dubber/internal/store"
)

// Handler describes one pipeline stage. Prepare runs before the heartbeat
// loop starts and may mutate the video record; Execute does the work.
type Handler interface {
	Prepare(context.Context, *store.Video) error
	Execute(context.Context, *store.Video) error
	HealthCheck(context.Context) Health
}

// Health summarizes the readiness of a workflow stage.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
