// Package machine supervises the long running goroutines of a process: servers, subscriptions and
// periodic jobs. It is like sync.WaitGroup, except routines share a cancellable context, may be
// throttled, can be wrapped in middleware, and report their errors to a single handler.
package machine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrCancel may be returned by a routine to cancel every routine in the Machine.
var ErrCancel = errors.New("machine: cancel")

// Func is a function asynchronously executed by the Machine.
type Func func(routine Routine) error

// CronFunc is executed on every tick of a Cron. Return false to stop the cron.
type CronFunc func(routine Routine) (bool, error)

// Middleware wraps a Func.
type Middleware func(fn Func) Func

// Options holds config options for a Machine.
type Options struct {
	maxRoutines int
	middlewares []Middleware
	logger      *zap.Logger
	errHandler  func(routine Routine, err error)
}

// Opt configures a Machine.
type Opt func(o *Options)

// WithMaxRoutines throttles the number of routines running at once. Go blocks while the limit is reached.
func WithMaxRoutines(max int) Opt {
	return func(o *Options) {
		o.maxRoutines = max
	}
}

// WithMiddlewares wraps every routine with the given middlewares, outermost first.
func WithMiddlewares(middlewares ...Middleware) Opt {
	return func(o *Options) {
		o.middlewares = append(o.middlewares, middlewares...)
	}
}

// WithLogger sets the logger used by the default error handler.
func WithLogger(logger *zap.Logger) Opt {
	return func(o *Options) {
		o.logger = logger
	}
}

// WithErrHandler overrides the default error handler, which logs the error.
func WithErrHandler(errHandler func(routine Routine, err error)) Opt {
	return func(o *Options) {
		o.errHandler = errHandler
	}
}

// Machine runs and tracks routines.
type Machine struct {
	ctx         context.Context
	cancel      context.CancelFunc
	sem         chan struct{}
	middlewares []Middleware
	errHandler  func(routine Routine, err error)
	wg          sync.WaitGroup
	nextPID     uint64
	started     int64
	finished    int64
	routineMu   sync.RWMutex
	routines    map[uint64]*routine
	errMu       sync.Mutex
	err         error
}

// New creates a Machine whose routines run under a child of ctx.
func New(ctx context.Context, opts ...Opt) *Machine {
	options := &Options{}
	for _, o := range opts {
		o(options)
	}
	if options.logger == nil {
		options.logger = zap.NewNop()
	}
	if options.errHandler == nil {
		logger := options.logger
		options.errHandler = func(routine Routine, err error) {
			logger.Error("routine failed",
				zap.String("routine", routine.Name()),
				zap.Uint64("pid", routine.PID()),
				zap.Error(err),
			)
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	m := &Machine{
		ctx:         ctx,
		cancel:      cancel,
		middlewares: options.middlewares,
		errHandler:  options.errHandler,
		routines:    map[uint64]*routine{},
	}
	if options.maxRoutines > 0 {
		m.sem = make(chan struct{}, options.maxRoutines)
	}
	return m
}

// Context returns the context shared by every routine.
func (m *Machine) Context() context.Context {
	return m.ctx
}

// Go runs fn in a new goroutine. It returns false without running fn if the Machine is cancelled,
// including while waiting for a free slot.
func (m *Machine) Go(name string, fn Func) bool {
	if m.ctx.Err() != nil {
		return false
	}
	if m.sem != nil {
		select {
		case m.sem <- struct{}{}:
		case <-m.ctx.Done():
			return false
		}
	}
	for i := len(m.middlewares) - 1; i >= 0; i-- {
		fn = m.middlewares[i](fn)
	}
	ctx, cancel := context.WithCancel(m.ctx)
	r := &routine{
		pid:    atomic.AddUint64(&m.nextPID, 1),
		name:   name,
		start:  time.Now(),
		ctx:    ctx,
		cancel: cancel,
	}
	m.routineMu.Lock()
	m.routines[r.pid] = r
	m.routineMu.Unlock()
	atomic.AddInt64(&m.started, 1)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			if m.sem != nil {
				<-m.sem
			}
		}()
		defer atomic.AddInt64(&m.finished, 1)
		defer func() {
			m.routineMu.Lock()
			delete(m.routines, r.pid)
			m.routineMu.Unlock()
		}()
		defer r.cancel()
		if err := fn(r); err != nil {
			m.handle(r, err)
		}
	}()
	return true
}

// Cron runs fn every interval until the Machine is cancelled, fn returns false, or fn returns an error.
func (m *Machine) Cron(name string, interval time.Duration, fn CronFunc) bool {
	return m.Go(name, func(routine Routine) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-routine.Context().Done():
				return nil
			case <-ticker.C:
				next, err := fn(routine)
				if err != nil {
					return err
				}
				if !next {
					return nil
				}
			}
		}
	})
}

func (m *Machine) handle(r Routine, err error) {
	if errors.Is(err, ErrCancel) {
		m.cancel()
		return
	}
	m.errMu.Lock()
	if m.err == nil {
		m.err = err
	}
	m.errMu.Unlock()
	m.errHandler(r, err)
}

// Cancel cancels every routine.
func (m *Machine) Cancel() {
	m.cancel()
}

// Wait blocks until every routine has exited and returns the first error one of them returned.
func (m *Machine) Wait() error {
	m.wg.Wait()
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.err
}

// Active returns the number of running routines.
func (m *Machine) Active() int {
	return int(atomic.LoadInt64(&m.started) - atomic.LoadInt64(&m.finished))
}

// Total returns the number of routines started over the lifetime of the Machine.
func (m *Machine) Total() int {
	return int(atomic.LoadInt64(&m.started))
}

// Stats returns a snapshot of the running routines ordered by PID.
func (m *Machine) Stats() Stats {
	m.routineMu.RLock()
	defer m.routineMu.RUnlock()
	stats := Stats{Count: len(m.routines)}
	for _, r := range m.routines {
		stats.Routines = append(stats.Routines, RoutineStats{
			PID:      r.pid,
			Name:     r.name,
			Start:    r.start,
			Duration: r.Duration(),
		})
	}
	sort.Slice(stats.Routines, func(i, j int) bool {
		return stats.Routines[i].PID < stats.Routines[j].PID
	})
	return stats
}
