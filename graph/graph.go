// Package graph holds the route graph: chain nodes, u128 edge costs, the packed edge-key scheme and
// the adjacency/cost accessors layered over a storage transaction.
//
// Layout inside the store:
//
//	adj/<be32 node>        consecutive be32 neighbors, in first-insertion order
//	cost/<be64 edge key>   16 byte big-endian cost
//	meta/edges             be64 count of distinct edges
//	meta/version           be64 count of committed mutations
package graph

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/autom8ter/pathfinder/storage"
)

var (
	adjacencyPrefix = []byte("adj/")
	costPrefix      = []byte("cost/")
	edgeCountKey    = []byte("meta/edges")
	versionKey      = []byte("meta/version")
)

func adjacencyKey(n Node) []byte {
	k := make([]byte, len(adjacencyPrefix)+4)
	copy(k, adjacencyPrefix)
	binary.BigEndian.PutUint32(k[len(adjacencyPrefix):], uint32(n))
	return k
}

func costKey(k EdgeKey) []byte {
	out := make([]byte, len(costPrefix)+8)
	copy(out, costPrefix)
	binary.BigEndian.PutUint64(out[len(costPrefix):], uint64(k))
	return out
}

// Reader exposes the read accessors of the graph.
type Reader struct {
	r storage.Reader
}

// NewReader returns a graph reader over r.
func NewReader(r storage.Reader) Reader {
	return Reader{r: r}
}

// Neighbors returns n's out-neighbors in insertion order. Unknown nodes have no neighbors.
func (g Reader) Neighbors(n Node) ([]Node, error) {
	raw, err := g.r.Get(adjacencyKey(n))
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "graph: neighbors of %d", n)
	}
	return DecodeNodes(raw)
}

// LookupCost returns the cost of from -> to and whether the edge exists.
func (g Reader) LookupCost(from, to Node) (Cost, bool, error) {
	raw, err := g.r.Get(costKey(KeyOf(from, to)))
	if err != nil {
		if storage.IsNotFound(err) {
			return Cost{}, false, nil
		}
		return Cost{}, false, errors.Wrapf(err, "graph: cost of %d->%d", from, to)
	}
	c, err := CostFromBytes(raw)
	if err != nil {
		return Cost{}, false, err
	}
	return c, true, nil
}

// Cost returns the cost of from -> to, or zero when the edge is absent.
// A zero result is indistinguishable from a free edge; use LookupCost to tell them apart.
func (g Reader) Cost(from, to Node) (Cost, error) {
	c, _, err := g.LookupCost(from, to)
	return c, err
}

// EdgeCount returns the number of distinct directed edges ever added.
func (g Reader) EdgeCount() (uint64, error) {
	return g.counter(edgeCountKey)
}

// Version returns the graph version. It changes with every committed mutation, including mutations
// made by other processes sharing the store.
func (g Reader) Version() (uint64, error) {
	return g.counter(versionKey)
}

func (g Reader) counter(key []byte) (uint64, error) {
	raw, err := g.r.Get(key)
	if err != nil {
		if storage.IsNotFound(err) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "graph: read %s", key)
	}
	if len(raw) != 8 {
		return 0, errors.Errorf("graph: %s must be 8 bytes, got %d", key, len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

// Writer extends Reader with the two graph mutations.
type Writer struct {
	Reader
	w storage.Writer
}

// NewWriter returns a graph writer over w.
func NewWriter(w storage.Writer) Writer {
	return Writer{Reader: NewReader(w), w: w}
}

// SetCost upserts the cost of from -> to.
func (g Writer) SetCost(from, to Node, cost Cost) error {
	return errors.Wrapf(g.w.Set(costKey(KeyOf(from, to)), cost.Bytes()), "graph: set cost of %d->%d", from, to)
}

// AppendNeighbor appends to to from's neighbor list unless it is already present.
// It reports whether the list changed.
func (g Writer) AppendNeighbor(from, to Node) (bool, error) {
	neighbors, err := g.Neighbors(from)
	if err != nil {
		return false, err
	}
	for _, n := range neighbors {
		if n == to {
			return false, nil
		}
	}
	neighbors = append(neighbors, to)
	if err := g.w.Set(adjacencyKey(from), EncodeNodes(neighbors)); err != nil {
		return false, errors.Wrapf(err, "graph: append neighbor %d->%d", from, to)
	}
	if _, err := g.incr(edgeCountKey); err != nil {
		return false, err
	}
	return true, nil
}

// BumpVersion increments the graph version and returns the new value.
func (g Writer) BumpVersion() (uint64, error) {
	return g.incr(versionKey)
}

func (g Writer) incr(key []byte) (uint64, error) {
	v, err := g.counter(key)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v+1)
	if err := g.w.Set(key, buf); err != nil {
		return 0, errors.Wrapf(err, "graph: write %s", key)
	}
	return v + 1, nil
}
