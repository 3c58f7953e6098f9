package pathfinder

import (
	"time"

	"github.com/autom8ter/pathfinder/auth"
	"github.com/autom8ter/pathfinder/graph"
)

// RoutesChannel is the pubsub channel RouteAdded events are published to.
const RoutesChannel = "routes.added"

// RouteAdded describes a successful add_route.
type RouteAdded struct {
	From    graph.Node    `json:"from"`
	To      graph.Node    `json:"to"`
	Cost    graph.Cost    `json:"cost"`
	Caller  auth.Identity `json:"caller"`
	Created bool          `json:"created"`
	At      time.Time     `json:"at"`
}
