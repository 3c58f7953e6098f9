// Package metrics records pathfinder activity as prometheus metrics. Metrics are registered on a
// registry owned by each Metrics value rather than the global default.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/autom8ter/pathfinder/machine"
)

const namespace = "pathfinder"

// Metrics implements pathfinder.Observer and provides middleware for the servers and the machine.
type Metrics struct {
	registry         *prometheus.Registry
	routesAdded      *prometheus.CounterVec
	unauthorized     prometheus.Counter
	routeHops        *prometheus.HistogramVec
	cacheLookups     *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	startedRoutines  *prometheus.CounterVec
	finishedRoutines *prometheus.CounterVec
	routineDuration  *prometheus.HistogramVec
	grpcRequests     *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

// New creates a Metrics with a fresh registry that also carries the go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		routesAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "routes_added_total",
			Help:      "Successful add_route calls. kind is created for new edges and updated for overwrites.",
		}, []string{"kind"}),
		unauthorized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "unauthorized_total",
			Help:      "add_route calls rejected because the caller is not the admin",
		}),
		routeHops: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "route_hops",
			Help:      "Hops taken by find_route",
			Buckets:   prometheus.LinearBuckets(0, 1, 11),
		}, []string{"reached"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Route cache lookups by result",
		}, []string{"result"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events not delivered to a watcher that fell behind",
		}, []string{"channel"}),
		startedRoutines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "machine",
			Name:      "started_routines_total",
			Help:      "total routines started",
		}, []string{"routine"}),
		finishedRoutines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "machine",
			Name:      "finished_routines_total",
			Help:      "total routines finished",
		}, []string{"routine", "status"}),
		routineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "machine",
			Name:      "routine_duration_seconds",
			Help:      "execution time of each routine",
			Buckets:   prometheus.ExponentialBuckets(0.001, 10, 8),
		}, []string{"routine"}),
		grpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "grpc",
			Name:      "requests_total",
			Help:      "gRPC requests by method and status code",
		}, []string{"method", "code"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Request latency by transport",
			Buckets:   prometheus.DefBuckets,
		}, []string{"transport"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.routesAdded,
		m.unauthorized,
		m.routeHops,
		m.cacheLookups,
		m.eventsDropped,
		m.startedRoutines,
		m.finishedRoutines,
		m.routineDuration,
		m.grpcRequests,
		m.httpRequests,
		m.requestDuration,
	)
	return m
}

// Registry returns the registry metrics are recorded on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RouteAdded(created bool) {
	kind := "updated"
	if created {
		kind = "created"
	}
	m.routesAdded.WithLabelValues(kind).Inc()
}

func (m *Metrics) Unauthorized() {
	m.unauthorized.Inc()
}

func (m *Metrics) RouteWalked(hops int, reached bool) {
	m.routeHops.WithLabelValues(strconv.FormatBool(reached)).Observe(float64(hops))
}

func (m *Metrics) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// EventDropped counts an event a slow subscriber missed. It matches pubsub.WithOnDrop.
func (m *Metrics) EventDropped(channel string) {
	m.eventsDropped.WithLabelValues(channel).Inc()
}

// Middleware is a machine.Middleware that counts routines and records how long they ran.
func (m *Metrics) Middleware() machine.Middleware {
	return func(fn machine.Func) machine.Func {
		return func(routine machine.Routine) error {
			m.startedRoutines.WithLabelValues(routine.Name()).Inc()
			err := fn(routine)
			result := "ok"
			if err != nil {
				result = "error"
			}
			m.finishedRoutines.WithLabelValues(routine.Name(), result).Inc()
			m.routineDuration.WithLabelValues(routine.Name()).Observe(routine.Duration().Seconds())
			return err
		}
	}
}

// UnaryServerInterceptor records every unary gRPC call.
func (m *Metrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		m.grpcRequests.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
		m.requestDuration.WithLabelValues("grpc").Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// StreamServerInterceptor records every streaming gRPC call when it ends.
func (m *Metrics) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		err := handler(srv, ss)
		m.grpcRequests.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
		return err
	}
}

// Gin records every HTTP request by its route template.
func (m *Metrics) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues("http").Observe(time.Since(start).Seconds())
	}
}
