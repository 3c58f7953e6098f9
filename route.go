package pathfinder

import (
	"container/heap"
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/autom8ter/pathfinder/graph"
	"github.com/autom8ter/pathfinder/storage"
)

// MaxHops bounds the number of steps find_route takes.
const MaxHops = 10

// Quote is a route with the sum of its edge costs.
type Quote struct {
	Route graph.Route `json:"route"`
	// TotalCost saturates at graph.MaxCost.
	TotalCost graph.Cost `json:"total_cost"`
	// Reached is true when the route ends at the requested destination.
	Reached bool `json:"reached"`
}

// FindRoute walks greedily from from towards to, at every step taking the out-edge with the smallest
// immediate cost (the first one in insertion order on ties). It stops when it reaches to, hits a node
// without neighbors, or after MaxHops steps, and returns the nodes visited so far. The walk keeps no
// visited set and never looks at cumulative cost, so the route may cycle and may not end at to.
func (p *Pathfinder) FindRoute(ctx context.Context, from, to graph.Node) (graph.Route, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.findLocked(ctx, from, to)
}

// findLocked reads the graph version and walks in one view, so a cached route is only ever tagged
// with the version it was computed against.
func (p *Pathfinder) findLocked(ctx context.Context, from, to graph.Node) (graph.Route, error) {
	var (
		route   graph.Route
		version uint64
		hit     bool
	)
	err := p.store.View(ctx, func(r storage.Reader) error {
		g := graph.NewReader(r)
		if p.cache != nil {
			var err error
			if version, err = g.Version(); err != nil {
				return err
			}
			if route, hit = p.cache.Get(from, to, version); hit {
				return nil
			}
		}
		var err error
		route, err = walk(g, from, to)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "pathfinder: find route %d->%d", from, to)
	}
	if p.cache != nil {
		p.observer.CacheLookup(hit)
	}
	if hit {
		return route, nil
	}
	last, _ := route.Last()
	p.observer.RouteWalked(len(route)-1, last == to)
	if p.cache != nil {
		if err := p.cache.Set(from, to, version, route); err != nil {
			p.logger.Warn("failed to cache route",
				zap.Uint32("from", uint32(from)),
				zap.Uint32("to", uint32(to)),
				zap.Error(err),
			)
		}
	}
	return route, nil
}

func walk(g graph.Reader, from, to graph.Node) (graph.Route, error) {
	if from == to {
		return graph.Route{from}, nil
	}
	path := graph.Route{from}
	current := from
	for hop := 0; hop < MaxHops; hop++ {
		if current == to {
			break
		}
		neighbors, err := g.Neighbors(current)
		if err != nil {
			return nil, err
		}
		if len(neighbors) == 0 {
			break
		}
		var (
			next graph.Node
			best graph.Cost
		)
		for i, n := range neighbors {
			c, ok, err := g.LookupCost(current, n)
			if err != nil {
				return nil, err
			}
			if !ok {
				c = graph.MaxCost
			}
			if i == 0 || c.Cmp(best) < 0 {
				next, best = n, c
			}
		}
		path = append(path, next)
		current = next
	}
	return path, nil
}

// QuoteRoute runs FindRoute and prices the result by summing the cost of each hop.
func (p *Pathfinder) QuoteRoute(ctx context.Context, from, to graph.Node) (Quote, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	route, err := p.findLocked(ctx, from, to)
	if err != nil {
		return Quote{}, err
	}
	var total graph.Cost
	err = p.store.View(ctx, func(r storage.Reader) error {
		g := graph.NewReader(r)
		for i := 1; i < len(route); i++ {
			c, ok, err := g.LookupCost(route[i-1], route[i])
			if err != nil {
				return err
			}
			if !ok {
				c = graph.MaxCost
			}
			total, _ = total.Add(c)
		}
		return nil
	})
	if err != nil {
		return Quote{}, errors.Wrapf(err, "pathfinder: quote route %d->%d", from, to)
	}
	last, _ := route.Last()
	return Quote{Route: route, TotalCost: total, Reached: last == to}, nil
}

// FindCheapestRoute returns the route from from to to with the smallest total cost, using Dijkstra's
// algorithm over the stored graph. Unlike FindRoute it is not bounded by MaxHops. It returns ErrNoRoute
// when to is unreachable.
func (p *Pathfinder) FindCheapestRoute(ctx context.Context, from, to graph.Node) (Quote, error) {
	if from == to {
		return Quote{Route: graph.Route{from}, Reached: true}, nil
	}
	var quote Quote
	err := p.view(ctx, func(g graph.Reader) error {
		var err error
		quote, err = cheapest(ctx, g, from, to)
		return err
	})
	if err != nil {
		return Quote{}, err
	}
	return quote, nil
}

func cheapest(ctx context.Context, g graph.Reader, from, to graph.Node) (Quote, error) {
	dist := map[graph.Node]graph.Cost{from: {}}
	prev := map[graph.Node]graph.Node{}
	settled := map[graph.Node]bool{}
	pq := &costQueue{}
	heap.Push(pq, &queued{node: from})
	var seq uint64
	for pq.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return Quote{}, err
		}
		item := heap.Pop(pq).(*queued)
		if settled[item.node] {
			continue
		}
		settled[item.node] = true
		if item.node == to {
			break
		}
		neighbors, err := g.Neighbors(item.node)
		if err != nil {
			return Quote{}, err
		}
		for _, n := range neighbors {
			if settled[n] {
				continue
			}
			c, ok, err := g.LookupCost(item.node, n)
			if err != nil {
				return Quote{}, err
			}
			if !ok {
				continue
			}
			candidate, _ := item.cost.Add(c)
			if known, seen := dist[n]; seen && candidate.Cmp(known) >= 0 {
				continue
			}
			dist[n] = candidate
			prev[n] = item.node
			seq++
			heap.Push(pq, &queued{node: n, cost: candidate, seq: seq})
		}
	}
	if !settled[to] {
		return Quote{}, errors.Wrapf(ErrNoRoute, "%d->%d", from, to)
	}
	route := graph.Route{to}
	for n := to; n != from; {
		n = prev[n]
		route = append(route, n)
	}
	for i, j := 0, len(route)-1; i < j; i, j = i+1, j-1 {
		route[i], route[j] = route[j], route[i]
	}
	return Quote{Route: route, TotalCost: dist[to], Reached: true}, nil
}

type queued struct {
	node graph.Node
	cost graph.Cost
	seq  uint64
}

// costQueue is a min-heap on (cost, seq); seq keeps equal-cost pops in discovery order.
type costQueue []*queued

func (q costQueue) Len() int { return len(q) }

func (q costQueue) Less(i, j int) bool {
	if c := q[i].cost.Cmp(q[j].cost); c != 0 {
		return c < 0
	}
	return q[i].seq < q[j].seq
}

func (q costQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *costQueue) Push(x interface{}) { *q = append(*q, x.(*queued)) }

func (q *costQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
