package server

import (
	"github.com/autom8ter/pathfinder"
	"github.com/autom8ter/pathfinder/auth"
	"github.com/autom8ter/pathfinder/graph"
)

// AddRouteRequest is a signed add_route call. Signature is the hex encoded 65 byte signature of
// auth.RouteIntent{From, To, Cost, Timestamp} by Caller.
type AddRouteRequest struct {
	From      graph.Node    `json:"from"`
	To        graph.Node    `json:"to"`
	Cost      graph.Cost    `json:"cost"`
	Caller    auth.Identity `json:"caller" binding:"required"`
	Timestamp int64         `json:"timestamp" binding:"required"`
	Signature string        `json:"signature" binding:"required,hexadecimal"`
}

// Intent returns the payload covered by Signature.
func (r *AddRouteRequest) Intent() auth.RouteIntent {
	return auth.RouteIntent{
		From:      r.From,
		To:        r.To,
		Cost:      r.Cost,
		Timestamp: r.Timestamp,
	}
}

type AddRouteResponse struct {
	Edge graph.Edge `json:"edge"`
}

type RouteRequest struct {
	From graph.Node `json:"from"`
	To   graph.Node `json:"to"`
}

type RouteResponse struct {
	Route graph.Route `json:"route"`
}

type EdgeCostRequest struct {
	From graph.Node `json:"from"`
	To   graph.Node `json:"to"`
}

// EdgeCostResponse carries the edge cost; Cost is zero and Found is false when the edge does not exist.
type EdgeCostResponse struct {
	From  graph.Node `json:"from"`
	To    graph.Node `json:"to"`
	Cost  graph.Cost `json:"cost"`
	Found bool       `json:"found"`
}

type QuoteResponse struct {
	pathfinder.Quote
}

type NeighborsRequest struct {
	Node graph.Node `json:"node"`
}

type NeighborsResponse struct {
	Node      graph.Node   `json:"node"`
	Neighbors []graph.Node `json:"neighbors"`
}

// WatchRequest opens a RouteAdded stream. When Node is set only edges touching it are sent.
type WatchRequest struct {
	Node *graph.Node `json:"node,omitempty"`
}
