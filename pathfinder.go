//go:generate godocdown -o README.md

// Package pathfinder maintains a directed, weighted graph of chains and answers route queries between
// them. A single admin identity, fixed when the graph is first constructed, is the only caller allowed
// to add edges; anyone may query routes and edge costs.
package pathfinder

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/autom8ter/pathfinder/auth"
	"github.com/autom8ter/pathfinder/graph"
	"github.com/autom8ter/pathfinder/storage"
)

var (
	adminKey    = []byte("meta/admin")
	sequencePfx = []byte("meta/seq/")
)

func sequenceKey(caller auth.Identity) []byte {
	return append(append([]byte{}, sequencePfx...), caller.Bytes()...)
}

// Pathfinder is a route graph bound to a store and an immutable admin.
type Pathfinder struct {
	store    storage.Store
	gate     *auth.Gate
	logger   *zap.Logger
	cache    RouteCache
	events   Publisher
	observer Observer
	// mu serializes mutations against reads so no reader sees half of an add_route,
	// and so the route cache is never repopulated with a pre-mutation route.
	mu sync.RWMutex
}

// New constructs a Pathfinder over store.
//
// If the store has never been constructed, creator is persisted as the admin. Otherwise the stored admin
// is loaded; a non-zero creator that differs from it fails with ErrAdminMismatch. A zero creator opens an
// existing store and fails with ErrNoAdmin on an empty one.
func New(ctx context.Context, store storage.Store, creator auth.Identity, opts ...Opt) (*Pathfinder, error) {
	options := &options{
		logger:   zap.NewNop(),
		observer: nopObserver{},
	}
	for _, o := range opts {
		o(options)
	}
	var admin auth.Identity
	err := store.Update(ctx, func(w storage.Writer) error {
		raw, err := w.Get(adminKey)
		if storage.IsNotFound(err) {
			if creator.IsZero() {
				return ErrNoAdmin
			}
			admin = creator
			return w.Set(adminKey, creator.Bytes())
		}
		if err != nil {
			return err
		}
		stored, err := auth.IdentityFromBytes(raw)
		if err != nil {
			return errors.Wrap(err, "corrupt admin record")
		}
		if !creator.IsZero() && creator != stored {
			return errors.Wrapf(ErrAdminMismatch, "stored %s, creator %s", stored, creator)
		}
		admin = stored
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "pathfinder: construct")
	}
	options.logger.Info("pathfinder ready", zap.Stringer("admin", admin))
	return &Pathfinder{
		store:    store,
		gate:     auth.NewGate(admin),
		logger:   options.logger,
		cache:    options.cache,
		events:   options.events,
		observer: options.observer,
	}, nil
}

// Admin returns the identity allowed to add routes.
func (p *Pathfinder) Admin() auth.Identity {
	return p.gate.Admin()
}

// AddRoute sets the cost of the directed edge from -> to and appends to to from's neighbors if it is
// not already present. Callers other than the admin get ErrUnauthorized and the graph is left untouched.
// Self loops and zero costs are accepted.
func (p *Pathfinder) AddRoute(ctx context.Context, caller auth.Identity, from, to graph.Node, cost graph.Cost, opts ...RouteOpt) error {
	ro := &routeOptions{}
	for _, o := range opts {
		o(ro)
	}
	if err := p.gate.Check(caller); err != nil {
		p.observer.Unauthorized()
		p.logger.Warn("rejected add_route",
			zap.Stringer("caller", caller),
			zap.Uint32("from", uint32(from)),
			zap.Uint32("to", uint32(to)),
		)
		return err
	}
	var created bool
	p.mu.Lock()
	err := p.store.Update(ctx, func(w storage.Writer) error {
		if ro.sequenced {
			if err := checkSequence(w, caller, ro.sequence); err != nil {
				return err
			}
		}
		g := graph.NewWriter(w)
		if err := g.SetCost(from, to, cost); err != nil {
			return err
		}
		appended, err := g.AppendNeighbor(from, to)
		if err != nil {
			return err
		}
		created = appended
		_, err = g.BumpVersion()
		return err
	})
	if err == nil && p.cache != nil {
		if cerr := p.cache.Reset(); cerr != nil {
			p.logger.Error("failed to reset route cache", zap.Error(cerr))
		}
	}
	p.mu.Unlock()
	if err != nil {
		return errors.Wrapf(err, "pathfinder: add route %d->%d", from, to)
	}
	p.observer.RouteAdded(created)
	p.logger.Info("route added",
		zap.Uint32("from", uint32(from)),
		zap.Uint32("to", uint32(to)),
		zap.Stringer("cost", cost),
		zap.Bool("new_edge", created),
	)
	if p.events != nil {
		evt := RouteAdded{
			From:    from,
			To:      to,
			Cost:    cost,
			Caller:  caller,
			Created: created,
			At:      time.Now().UTC(),
		}
		if err := p.events.Publish(ctx, RoutesChannel, evt); err != nil {
			p.logger.Warn("failed to publish route event", zap.Error(err))
		}
	}
	return nil
}

func checkSequence(w storage.Writer, caller auth.Identity, seq int64) error {
	key := sequenceKey(caller)
	raw, err := w.Get(key)
	switch {
	case storage.IsNotFound(err):
	case err != nil:
		return err
	case len(raw) != 8:
		return errors.Errorf("corrupt sequence record for %s", caller)
	default:
		if last := int64(binary.BigEndian.Uint64(raw)); seq <= last {
			return errors.Wrapf(ErrReplayed, "sequence %d, last accepted %d", seq, last)
		}
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(seq))
	return w.Set(key, buf)
}

// GetEdgeCost returns the cost of from -> to, or zero if no such edge was added.
func (p *Pathfinder) GetEdgeCost(ctx context.Context, from, to graph.Node) (graph.Cost, error) {
	c, _, err := p.LookupEdgeCost(ctx, from, to)
	return c, err
}

// LookupEdgeCost returns the cost of from -> to and whether the edge exists, so a free edge can be
// told apart from a missing one.
func (p *Pathfinder) LookupEdgeCost(ctx context.Context, from, to graph.Node) (graph.Cost, bool, error) {
	var (
		cost  graph.Cost
		found bool
	)
	err := p.view(ctx, func(g graph.Reader) error {
		var err error
		cost, found, err = g.LookupCost(from, to)
		return err
	})
	return cost, found, err
}

// Neighbors returns node's out-neighbors in insertion order.
func (p *Pathfinder) Neighbors(ctx context.Context, node graph.Node) ([]graph.Node, error) {
	var neighbors []graph.Node
	err := p.view(ctx, func(g graph.Reader) error {
		var err error
		neighbors, err = g.Neighbors(node)
		return err
	})
	return neighbors, err
}

// EdgeCount returns the number of distinct directed edges in the graph.
func (p *Pathfinder) EdgeCount(ctx context.Context) (uint64, error) {
	var count uint64
	err := p.view(ctx, func(g graph.Reader) error {
		var err error
		count, err = g.EdgeCount()
		return err
	})
	return count, err
}

func (p *Pathfinder) view(ctx context.Context, fn func(g graph.Reader) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return errors.Wrap(p.store.View(ctx, func(r storage.Reader) error {
		return fn(graph.NewReader(r))
	}), "pathfinder: read")
}
