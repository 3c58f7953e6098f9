package machine

import (
	"context"
	"time"
)

// Routine is an executing goroutine.
type Routine interface {
	// Context returns the goroutine's context. It is cancelled when the Machine is cancelled or the routine returns.
	Context() context.Context
	// PID is unique within the Machine.
	PID() uint64
	// Name is the name passed to Go.
	Name() string
	// Start is when the routine was started.
	Start() time.Time
	// Duration is how long the routine has been running.
	Duration() time.Duration
}

type routine struct {
	pid    uint64
	name   string
	start  time.Time
	ctx    context.Context
	cancel context.CancelFunc
}

func (r *routine) Context() context.Context {
	return r.ctx
}

func (r *routine) PID() uint64 {
	return r.pid
}

func (r *routine) Name() string {
	return r.name
}

func (r *routine) Start() time.Time {
	return r.start
}

func (r *routine) Duration() time.Duration {
	return time.Since(r.start)
}
