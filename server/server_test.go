package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/autom8ter/pathfinder"
	"github.com/autom8ter/pathfinder/auth"
	"github.com/autom8ter/pathfinder/graph"
	"github.com/autom8ter/pathfinder/metrics"
	"github.com/autom8ter/pathfinder/pubsub"
	"github.com/autom8ter/pathfinder/server"
	"github.com/autom8ter/pathfinder/storage/memory"
)

type harness struct {
	admin  *auth.Signer
	other  *auth.Signer
	events pubsub.PubSub
	svc    *server.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	admin, err := auth.GenerateSigner()
	require.NoError(t, err)
	other, err := auth.GenerateSigner()
	require.NoError(t, err)
	events := pubsub.New()
	t.Cleanup(events.Close)
	st := memory.New()
	t.Cleanup(func() { st.Close() })
	pf, err := pathfinder.New(context.Background(), st, admin.Identity(), pathfinder.WithPublisher(events))
	require.NoError(t, err)
	return &harness{
		admin:  admin,
		other:  other,
		events: events,
		svc:    server.NewService(pf, server.WithEvents(events)),
	}
}

func (h *harness) dial(t *testing.T, signer *auth.Signer) *server.Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	m := metrics.New()
	srv := server.NewGRPCServer(h.svc,
		grpc.ChainUnaryInterceptor(m.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(m.StreamServerInterceptor()),
	)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)
	opts := []server.ClientOpt{
		server.WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})),
	}
	if signer != nil {
		opts = append(opts, server.WithSigner(signer))
	}
	client, err := server.NewClient("passthrough:///bufnet", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestGRPCScenario(t *testing.T) {
	h := newHarness(t)
	client := h.dial(t, h.admin)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, e := range []graph.Edge{
		{From: 1, To: 2, Cost: graph.NewCost(100)},
		{From: 2, To: 3, Cost: graph.NewCost(50)},
		{From: 1, To: 3, Cost: graph.NewCost(500)},
	} {
		edge, err := client.AddRoute(ctx, e.From, e.To, e.Cost)
		require.NoError(t, err)
		require.Equal(t, e.From, edge.From)
		require.Equal(t, e.Cost.String(), edge.Cost.String())
	}

	route, err := client.FindRoute(ctx, 1, 3)
	require.NoError(t, err)
	require.Equal(t, graph.Route{1, 2, 3}, route)

	cost, found, err := client.GetEdgeCost(ctx, 1, 3)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "500", cost.String())

	cost, found, err = client.GetEdgeCost(ctx, 3, 1)
	require.NoError(t, err)
	require.False(t, found)
	require.True(t, cost.IsZero())

	quote, err := client.QuoteRoute(ctx, 1, 3)
	require.NoError(t, err)
	require.Equal(t, "150", quote.TotalCost.String())
	require.True(t, quote.Reached)

	best, err := client.CheapestRoute(ctx, 1, 3)
	require.NoError(t, err)
	require.Equal(t, graph.Route{1, 2, 3}, best.Route)

	_, err = client.CheapestRoute(ctx, 3, 1)
	require.True(t, errors.Is(err, pathfinder.ErrNoRoute))

	neighbors, err := client.Neighbors(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, []graph.Node{2, 3}, neighbors)
}

func TestGRPCRejectsNonAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.dial(t, h.other).AddRoute(ctx, 1, 2, graph.NewCost(1))
	require.True(t, errors.Is(err, pathfinder.ErrUnauthorized))

	_, err = h.dial(t, nil).AddRoute(ctx, 1, 2, graph.NewCost(1))
	require.True(t, errors.Is(err, server.ErrNoSigner))

	route, err := h.dial(t, nil).FindRoute(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, graph.Route{1}, route)
}

func TestGRPCRejectsStaleRequest(t *testing.T) {
	h := newHarness(t)
	stale := func() time.Time { return time.Now().Add(-time.Hour) }
	lis := bufconn.Listen(1 << 20)
	srv := server.NewGRPCServer(h.svc)
	go srv.Serve(lis)
	defer srv.Stop()
	client, err := server.NewClient("passthrough:///bufnet",
		server.WithSigner(h.admin),
		server.WithClientClock(stale),
		server.WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})),
	)
	require.NoError(t, err)
	defer client.Close()
	_, err = client.AddRoute(context.Background(), 1, 2, graph.NewCost(1))
	require.True(t, errors.Is(err, auth.ErrBadSignature))
}

func TestGRPCWatchRoutes(t *testing.T) {
	h := newHarness(t)
	client := h.dial(t, h.admin)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	node := graph.Node(7)
	events := make(chan pathfinder.RouteAdded, 1)
	done := make(chan error, 1)
	go func() {
		done <- client.WatchRoutes(ctx, &server.WatchRequest{Node: &node}, func(evt pathfinder.RouteAdded) bool {
			events <- evt
			return false
		})
	}()
	require.Eventually(t, func() bool { return h.events.Subscribers() == 1 }, 5*time.Second, 10*time.Millisecond)

	_, err := client.AddRoute(ctx, 1, 2, graph.NewCost(1))
	require.NoError(t, err)
	_, err = client.AddRoute(ctx, 2, 7, graph.NewCost(9))
	require.NoError(t, err)

	evt := <-events
	require.Equal(t, graph.Node(2), evt.From)
	require.Equal(t, graph.Node(7), evt.To)
	require.Equal(t, "9", evt.Cost.String())
	require.True(t, evt.Created)
	require.Equal(t, h.admin.Identity(), evt.Caller)
	require.NoError(t, <-done)
}

var lastTimestamp int64

// timestamp returns Unix milliseconds, strictly increasing across calls.
func timestamp() int64 {
	for {
		last := atomic.LoadInt64(&lastTimestamp)
		ts := time.Now().UnixMilli()
		if ts <= last {
			ts = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, ts) {
			return ts
		}
	}
}

func signedBody(t *testing.T, signer *auth.Signer, from, to graph.Node, cost uint64) []byte {
	t.Helper()
	req := server.AddRouteRequest{
		From:      from,
		To:        to,
		Cost:      graph.NewCost(cost),
		Caller:    signer.Identity(),
		Timestamp: timestamp(),
	}
	sig, err := signer.Sign(req.Intent())
	require.NoError(t, err)
	req.Signature = hexutil.Encode(sig)
	bits, err := json.Marshal(req)
	require.NoError(t, err)
	return bits
}

func do(t *testing.T, handler http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHTTP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newHarness(t)
	handler := server.NewHTTPHandler(h.svc, server.HTTPOptions{Metrics: metrics.New()})

	for _, e := range [][3]uint64{{1, 2, 100}, {2, 3, 50}, {1, 3, 500}} {
		rec := do(t, handler, http.MethodPost, "/v1/routes", signedBody(t, h.admin, graph.Node(e[0]), graph.Node(e[1]), e[2]))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := do(t, handler, http.MethodPost, "/v1/routes", signedBody(t, h.other, 1, 4, 1))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, handler, http.MethodPost, "/v1/routes", []byte(`{"from":1,"to":2,"cost":"1"}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, handler, http.MethodGet, "/v1/routes/1/3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var route server.RouteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &route))
	require.Equal(t, graph.Route{1, 2, 3}, route.Route)

	rec = do(t, handler, http.MethodGet, "/v1/routes/1/3/quote", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var quote server.QuoteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
	require.Equal(t, "150", quote.TotalCost.String())

	rec = do(t, handler, http.MethodGet, "/v1/routes/3/1/cheapest", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, handler, http.MethodGet, "/v1/edges/2/3/cost", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cost server.EdgeCostResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cost))
	require.True(t, cost.Found)
	require.Equal(t, "50", cost.Cost.String())

	rec = do(t, handler, http.MethodGet, "/v1/nodes/1/neighbors", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"node":1,"neighbors":[2,3]}`, rec.Body.String())

	rec = do(t, handler, http.MethodGet, "/v1/routes/abc/3", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, handler, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"edges":3`)

	rec = do(t, handler, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "pathfinder_http_requests_total")
}

func TestHTTPRejectsReplayedRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newHarness(t)
	handler := server.NewHTTPHandler(h.svc, server.HTTPOptions{})

	first := signedBody(t, h.admin, 1, 2, 10)
	rec := do(t, handler, http.MethodPost, "/v1/routes", first)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(t, handler, http.MethodPost, "/v1/routes", signedBody(t, h.admin, 1, 2, 20))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, handler, http.MethodPost, "/v1/routes", first)
	require.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())

	rec = do(t, handler, http.MethodGet, "/v1/edges/1/2/cost", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cost server.EdgeCostResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cost))
	require.Equal(t, "20", cost.Cost.String())
}

func TestGRPCClientTimestampsIncrease(t *testing.T) {
	h := newHarness(t)
	frozen := time.Now()
	lis := bufconn.Listen(1 << 20)
	srv := server.NewGRPCServer(h.svc)
	go srv.Serve(lis)
	defer srv.Stop()
	client, err := server.NewClient("passthrough:///bufnet",
		server.WithSigner(h.admin),
		server.WithClientClock(func() time.Time { return frozen }),
		server.WithDialOptions(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		})),
	)
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()
	for i := uint64(1); i <= 3; i++ {
		_, err = client.AddRoute(ctx, 1, 2, graph.NewCost(i))
		require.NoError(t, err)
	}
	cost, _, err := client.GetEdgeCost(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, "3", cost.String())
}
