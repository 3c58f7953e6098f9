package server

import (
	"context"

	"google.golang.org/grpc"

	"github.com/autom8ter/pathfinder"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "pathfinder.v1.Pathfinder"

// PathfinderServer is the server API of the pathfinder.v1.Pathfinder service.
type PathfinderServer interface {
	AddRoute(context.Context, *AddRouteRequest) (*AddRouteResponse, error)
	FindRoute(context.Context, *RouteRequest) (*RouteResponse, error)
	GetEdgeCost(context.Context, *EdgeCostRequest) (*EdgeCostResponse, error)
	QuoteRoute(context.Context, *RouteRequest) (*QuoteResponse, error)
	CheapestRoute(context.Context, *RouteRequest) (*QuoteResponse, error)
	Neighbors(context.Context, *NeighborsRequest) (*NeighborsResponse, error)
	WatchRoutes(*WatchRequest, PathfinderWatchRoutesServer) error
}

// PathfinderWatchRoutesServer is the server side of a WatchRoutes stream.
type PathfinderWatchRoutesServer interface {
	Send(*pathfinder.RouteAdded) error
	grpc.ServerStream
}

type watchRoutesServer struct {
	grpc.ServerStream
}

func (w *watchRoutesServer) Send(evt *pathfinder.RouteAdded) error {
	return w.ServerStream.SendMsg(evt)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req any, Resp any](name string, call func(PathfinderServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PathfinderServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(name),
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(PathfinderServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func watchRoutesHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(PathfinderServer).WatchRoutes(in, &watchRoutesServer{stream})
}

// ServiceDesc describes the pathfinder.v1.Pathfinder service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PathfinderServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("AddRoute", PathfinderServer.AddRoute),
		unary("FindRoute", PathfinderServer.FindRoute),
		unary("GetEdgeCost", PathfinderServer.GetEdgeCost),
		unary("QuoteRoute", PathfinderServer.QuoteRoute),
		unary("CheapestRoute", PathfinderServer.CheapestRoute),
		unary("Neighbors", PathfinderServer.Neighbors),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchRoutes",
			Handler:       watchRoutesHandler,
			ServerStreams: true,
		},
	},
	Metadata: "pathfinder/v1/pathfinder.json",
}

// NewGRPCServer returns a grpc.Server with srv registered.
func NewGRPCServer(srv PathfinderServer, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	s.RegisterService(&ServiceDesc, srv)
	return s
}
