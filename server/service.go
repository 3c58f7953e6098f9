// Package server exposes a Pathfinder over gRPC and HTTP and provides a gRPC client.
//
// gRPC messages are JSON encoded (content-subtype "json"), so the service is declared by hand in
// ServiceDesc instead of being generated from a proto file. Mutating requests are authenticated by a
// secp256k1 signature over the request (see auth.RouteIntent); the recovered identity is then
// checked against the graph's admin.
package server

import (
	"context"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/autom8ter/pathfinder"
	"github.com/autom8ter/pathfinder/auth"
	"github.com/autom8ter/pathfinder/graph"
	"github.com/autom8ter/pathfinder/pubsub"
)

// Service implements PathfinderServer on top of a Pathfinder. The HTTP handler calls the same methods.
type Service struct {
	pf       *pathfinder.Pathfinder
	verifier *auth.Verifier
	events   pubsub.PubSub
	logger   *zap.Logger
	validate *validator.Validate
}

// ServiceOpt configures a Service.
type ServiceOpt func(s *Service)

// WithVerifier overrides the signature verifier. Defaults to auth.NewVerifier().
func WithVerifier(verifier *auth.Verifier) ServiceOpt {
	return func(s *Service) {
		s.verifier = verifier
	}
}

// WithEvents enables WatchRoutes. events must be the PubSub the Pathfinder publishes to.
func WithEvents(events pubsub.PubSub) ServiceOpt {
	return func(s *Service) {
		s.events = events
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) ServiceOpt {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService returns a Service serving pf.
func NewService(pf *pathfinder.Pathfinder, opts ...ServiceOpt) *Service {
	s := &Service{
		pf:     pf,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.verifier == nil {
		s.verifier = auth.NewVerifier()
	}
	s.validate = validator.New()
	s.validate.SetTagName("binding")
	return s
}

func (s *Service) AddRoute(ctx context.Context, req *AddRouteRequest) (*AddRouteResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, toStatus(errors.Wrap(ErrInvalidArgument, err.Error()))
	}
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		return nil, toStatus(errors.Wrap(auth.ErrBadSignature, err.Error()))
	}
	caller, err := s.verifier.Verify(req.Intent(), req.Caller, sig)
	if err != nil {
		s.logger.Warn("rejected signature", zap.Stringer("caller", req.Caller), zap.Error(err))
		return nil, toStatus(err)
	}
	if err := s.pf.AddRoute(ctx, caller, req.From, req.To, req.Cost, pathfinder.WithSequence(req.Timestamp)); err != nil {
		return nil, toStatus(err)
	}
	resp := &AddRouteResponse{}
	resp.Edge.From, resp.Edge.To, resp.Edge.Cost = req.From, req.To, req.Cost
	return resp, nil
}

func (s *Service) FindRoute(ctx context.Context, req *RouteRequest) (*RouteResponse, error) {
	route, err := s.pf.FindRoute(ctx, req.From, req.To)
	if err != nil {
		return nil, toStatus(err)
	}
	return &RouteResponse{Route: route}, nil
}

func (s *Service) GetEdgeCost(ctx context.Context, req *EdgeCostRequest) (*EdgeCostResponse, error) {
	cost, found, err := s.pf.LookupEdgeCost(ctx, req.From, req.To)
	if err != nil {
		return nil, toStatus(err)
	}
	return &EdgeCostResponse{From: req.From, To: req.To, Cost: cost, Found: found}, nil
}

func (s *Service) QuoteRoute(ctx context.Context, req *RouteRequest) (*QuoteResponse, error) {
	quote, err := s.pf.QuoteRoute(ctx, req.From, req.To)
	if err != nil {
		return nil, toStatus(err)
	}
	return &QuoteResponse{Quote: quote}, nil
}

func (s *Service) CheapestRoute(ctx context.Context, req *RouteRequest) (*QuoteResponse, error) {
	quote, err := s.pf.FindCheapestRoute(ctx, req.From, req.To)
	if err != nil {
		return nil, toStatus(err)
	}
	return &QuoteResponse{Quote: quote}, nil
}

func (s *Service) Neighbors(ctx context.Context, req *NeighborsRequest) (*NeighborsResponse, error) {
	neighbors, err := s.pf.Neighbors(ctx, req.Node)
	if err != nil {
		return nil, toStatus(err)
	}
	if neighbors == nil {
		neighbors = []graph.Node{}
	}
	return &NeighborsResponse{Node: req.Node, Neighbors: neighbors}, nil
}

// WatchRoutes streams RouteAdded events until the client goes away.
func (s *Service) WatchRoutes(req *WatchRequest, stream PathfinderWatchRoutesServer) error {
	if s.events == nil {
		return status.Error(codes.Unimplemented, "route events are disabled")
	}
	var opts []pubsub.SubOpt
	if req.Node != nil {
		node := *req.Node
		opts = append(opts, pubsub.WithFilter(func(msg interface{}) bool {
			evt, ok := msg.(pathfinder.RouteAdded)
			return ok && (evt.From == node || evt.To == node)
		}))
	}
	var sendErr error
	err := s.events.Subscribe(stream.Context(), pathfinder.RoutesChannel, func(msg interface{}) bool {
		evt, ok := msg.(pathfinder.RouteAdded)
		if !ok {
			return true
		}
		if sendErr = stream.Send(&evt); sendErr != nil {
			return false
		}
		return true
	}, opts...)
	if sendErr != nil {
		return sendErr
	}
	return toStatus(err)
}
