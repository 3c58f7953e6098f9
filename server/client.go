package server

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/autom8ter/pathfinder"
	"github.com/autom8ter/pathfinder/auth"
	"github.com/autom8ter/pathfinder/graph"
)

// ErrNoSigner is returned by Client.AddRoute when the client has no signing key.
var ErrNoSigner = errors.New("client: no signer configured")

// Client calls a pathfinder.v1.Pathfinder service.
type Client struct {
	conn   *grpc.ClientConn
	signer *auth.Signer
	now    func() time.Time

	mu   sync.Mutex
	last int64
}

type clientOptions struct {
	signer      *auth.Signer
	dialOptions []grpc.DialOption
	now         func() time.Time
}

// ClientOpt configures a Client.
type ClientOpt func(o *clientOptions)

// WithSigner signs AddRoute requests with signer.
func WithSigner(signer *auth.Signer) ClientOpt {
	return func(o *clientOptions) {
		o.signer = signer
	}
}

// WithDialOptions appends dial options. Transport credentials default to insecure.
func WithDialOptions(opts ...grpc.DialOption) ClientOpt {
	return func(o *clientOptions) {
		o.dialOptions = append(o.dialOptions, opts...)
	}
}

// WithClientClock overrides the clock used to timestamp signed requests.
func WithClientClock(now func() time.Time) ClientOpt {
	return func(o *clientOptions) {
		o.now = now
	}
}

// NewClient creates a client for target. No connection is made until the first call.
func NewClient(target string, opts ...ClientOpt) (*Client, error) {
	options := &clientOptions{now: time.Now}
	for _, o := range opts {
		o(options)
	}
	dialOptions := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, options.dialOptions...)
	conn, err := grpc.NewClient(target, dialOptions...)
	if err != nil {
		return nil, errors.Wrapf(err, "client: dial %s", target)
	}
	return &Client{conn: conn, signer: options.signer, now: options.now}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}) error {
	return fromStatus(c.conn.Invoke(ctx, fullMethod(method), req, resp))
}

// AddRoute signs and submits an add_route request.
func (c *Client) AddRoute(ctx context.Context, from, to graph.Node, cost graph.Cost) (graph.Edge, error) {
	if c.signer == nil {
		return graph.Edge{}, ErrNoSigner
	}
	req := &AddRouteRequest{
		From:      from,
		To:        to,
		Cost:      cost,
		Caller:    c.signer.Identity(),
		Timestamp: c.nextTimestamp(),
	}
	sig, err := c.signer.Sign(req.Intent())
	if err != nil {
		return graph.Edge{}, err
	}
	req.Signature = hexutil.Encode(sig)
	resp := &AddRouteResponse{}
	if err := c.invoke(ctx, "AddRoute", req, resp); err != nil {
		return graph.Edge{}, err
	}
	return resp.Edge, nil
}

// nextTimestamp returns the current time in Unix milliseconds, bumped past the previous value so two
// requests signed within the same millisecond are not rejected as replays.
func (c *Client) nextTimestamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now().UnixMilli()
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts
	return ts
}

func (c *Client) FindRoute(ctx context.Context, from, to graph.Node) (graph.Route, error) {
	resp := &RouteResponse{}
	if err := c.invoke(ctx, "FindRoute", &RouteRequest{From: from, To: to}, resp); err != nil {
		return nil, err
	}
	return resp.Route, nil
}

// GetEdgeCost returns the edge cost and whether the edge exists.
func (c *Client) GetEdgeCost(ctx context.Context, from, to graph.Node) (graph.Cost, bool, error) {
	resp := &EdgeCostResponse{}
	if err := c.invoke(ctx, "GetEdgeCost", &EdgeCostRequest{From: from, To: to}, resp); err != nil {
		return graph.Cost{}, false, err
	}
	return resp.Cost, resp.Found, nil
}

func (c *Client) QuoteRoute(ctx context.Context, from, to graph.Node) (pathfinder.Quote, error) {
	resp := &QuoteResponse{}
	if err := c.invoke(ctx, "QuoteRoute", &RouteRequest{From: from, To: to}, resp); err != nil {
		return pathfinder.Quote{}, err
	}
	return resp.Quote, nil
}

func (c *Client) CheapestRoute(ctx context.Context, from, to graph.Node) (pathfinder.Quote, error) {
	resp := &QuoteResponse{}
	if err := c.invoke(ctx, "CheapestRoute", &RouteRequest{From: from, To: to}, resp); err != nil {
		return pathfinder.Quote{}, err
	}
	return resp.Quote, nil
}

func (c *Client) Neighbors(ctx context.Context, node graph.Node) ([]graph.Node, error) {
	resp := &NeighborsResponse{}
	if err := c.invoke(ctx, "Neighbors", &NeighborsRequest{Node: node}, resp); err != nil {
		return nil, err
	}
	return resp.Neighbors, nil
}

// WatchRoutes calls fn for every RouteAdded event until fn returns false, ctx is cancelled or the
// stream ends.
func (c *Client) WatchRoutes(ctx context.Context, req *WatchRequest, fn func(evt pathfinder.RouteAdded) bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod("WatchRoutes"))
	if err != nil {
		return fromStatus(err)
	}
	if err := stream.SendMsg(req); err != nil {
		return fromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		return fromStatus(err)
	}
	for {
		var evt pathfinder.RouteAdded
		if err := stream.RecvMsg(&evt); err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return fromStatus(err)
		}
		if !fn(evt) {
			return nil
		}
	}
}
