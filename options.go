package pathfinder

import (
	"context"

	"go.uber.org/zap"

	"github.com/autom8ter/pathfinder/graph"
)

// RouteCache memoizes find_route results. Entries are tagged with the graph version they were computed
// at; Get must miss when the version differs. It is also reset after every local mutation.
type RouteCache interface {
	Get(from, to graph.Node, version uint64) (graph.Route, bool)
	Set(from, to graph.Node, version uint64, route graph.Route) error
	Reset() error
}

// Publisher receives RouteAdded events.
type Publisher interface {
	Publish(ctx context.Context, channel string, obj interface{}) error
}

// Observer is notified of graph activity, typically to record metrics.
type Observer interface {
	// RouteAdded is called after a successful mutation. created is false when an existing edge was overwritten.
	RouteAdded(created bool)
	// Unauthorized is called when a non-admin mutation is rejected
	Unauthorized()
	// RouteWalked is called after find_route with the number of hops taken and whether the destination was reached
	RouteWalked(hops int, reached bool)
	// CacheLookup is called on every route cache lookup
	CacheLookup(hit bool)
}

type nopObserver struct{}

func (nopObserver) RouteAdded(bool)       {}
func (nopObserver) Unauthorized()         {}
func (nopObserver) RouteWalked(int, bool) {}
func (nopObserver) CacheLookup(bool)      {}

type options struct {
	logger   *zap.Logger
	cache    RouteCache
	events   Publisher
	observer Observer
}

// Opt configures a Pathfinder.
type Opt func(o *options)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRouteCache caches find_route results.
func WithRouteCache(cache RouteCache) Opt {
	return func(o *options) {
		o.cache = cache
	}
}

// WithPublisher publishes a RouteAdded event on RoutesChannel after every successful mutation.
func WithPublisher(events Publisher) Opt {
	return func(o *options) {
		o.events = events
	}
}

// WithObserver registers an Observer.
func WithObserver(observer Observer) Opt {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

type routeOptions struct {
	sequence  int64
	sequenced bool
}

// RouteOpt configures a single AddRoute call.
type RouteOpt func(o *routeOptions)

// WithSequence makes AddRoute fail with ErrReplayed unless seq is greater than the last sequence
// accepted from the caller. The sequence is recorded in the same transaction as the edge.
func WithSequence(seq int64) RouteOpt {
	return func(o *routeOptions) {
		o.sequence = seq
		o.sequenced = true
	}
}
