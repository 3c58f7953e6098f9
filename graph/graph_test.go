package graph_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autom8ter/pathfinder/graph"
	"github.com/autom8ter/pathfinder/storage"
	"github.com/autom8ter/pathfinder/storage/memory"
)

func TestEdgeKeyPacking(t *testing.T) {
	k := graph.KeyOf(1, 2)
	require.Equal(t, graph.EdgeKey(1<<32|2), k)
	require.NotEqual(t, k, graph.KeyOf(2, 1))
	require.Equal(t, graph.Node(1), k.From())
	require.Equal(t, graph.Node(2), k.To())

	top := graph.KeyOf(0xffffffff, 0xffffffff)
	require.Equal(t, graph.EdgeKey(^uint64(0)), top)
	require.NotEqual(t, graph.KeyOf(0xffffffff, 0), graph.KeyOf(0, 0xffffffff))
}

func TestNodesRoundTrip(t *testing.T) {
	nodes := []graph.Node{0, 1, 420420417, 0xffffffff}
	got, err := graph.DecodeNodes(graph.EncodeNodes(nodes))
	require.NoError(t, err)
	require.Equal(t, nodes, got)

	_, err = graph.DecodeNodes([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestRouteFormat(t *testing.T) {
	r := graph.Route{420420417, 1000, 2000}
	names := map[graph.Node]string{420420417: "Hub", 1000: "AssetHub"}
	require.Equal(t, "Hub -> AssetHub -> 2000", r.Format(func(n graph.Node) string {
		if name, ok := names[n]; ok {
			return name
		}
		return n.String()
	}))
	last, ok := r.Last()
	require.True(t, ok)
	require.Equal(t, graph.Node(2000), last)
	_, ok = graph.Route{}.Last()
	require.False(t, ok)
}

func TestAccessors(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	defer st.Close()

	require.NoError(t, st.View(ctx, func(r storage.Reader) error {
		g := graph.NewReader(r)
		neighbors, err := g.Neighbors(7)
		require.NoError(t, err)
		require.Empty(t, neighbors)
		c, err := g.Cost(7, 8)
		require.NoError(t, err)
		require.True(t, c.IsZero())
		_, ok, err := g.LookupCost(7, 8)
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))

	require.NoError(t, st.Update(ctx, func(w storage.Writer) error {
		g := graph.NewWriter(w)
		require.NoError(t, g.SetCost(1, 3, graph.NewCost(5)))
		appended, err := g.AppendNeighbor(1, 3)
		require.NoError(t, err)
		require.True(t, appended)
		require.NoError(t, g.SetCost(1, 2, graph.NewCost(9)))
		appended, err = g.AppendNeighbor(1, 2)
		require.NoError(t, err)
		require.True(t, appended)
		appended, err = g.AppendNeighbor(1, 3)
		require.NoError(t, err)
		require.False(t, appended)
		return nil
	}))

	require.NoError(t, st.View(ctx, func(r storage.Reader) error {
		g := graph.NewReader(r)
		neighbors, err := g.Neighbors(1)
		require.NoError(t, err)
		require.Equal(t, []graph.Node{3, 2}, neighbors)
		c, ok, err := g.LookupCost(1, 2)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, 0, c.Cmp(graph.NewCost(9)))
		count, err := g.EdgeCount()
		require.NoError(t, err)
		require.Equal(t, uint64(2), count)
		return nil
	}))
}

func TestCost(t *testing.T) {
	top, err := graph.ParseCost("340282366920938463463374607431768211455")
	require.NoError(t, err)
	require.Equal(t, 0, top.Cmp(graph.MaxCost))

	_, err = graph.ParseCost("340282366920938463463374607431768211456")
	require.Error(t, err)
	_, err = graph.ParseCost("-1")
	require.Error(t, err)

	decoded, err := graph.CostFromBytes(graph.MaxCost.Bytes())
	require.NoError(t, err)
	require.Equal(t, 0, decoded.Cmp(graph.MaxCost))

	sum, saturated := graph.NewCost(100).Add(graph.NewCost(50))
	require.False(t, saturated)
	require.Equal(t, "150", sum.String())
	sum, saturated = graph.MaxCost.Add(graph.NewCost(1))
	require.True(t, saturated)
	require.Equal(t, 0, sum.Cmp(graph.MaxCost))

	require.Equal(t, -1, graph.NewCost(1).Cmp(graph.NewCost(2)))
	v, ok := graph.NewCost(42).Uint64()
	require.True(t, ok)
	require.Equal(t, uint64(42), v)
}

func TestCostJSON(t *testing.T) {
	e := graph.Edge{From: 1, To: 2, Cost: graph.MaxCost}
	bits, err := json.Marshal(e)
	require.NoError(t, err)
	require.JSONEq(t, `{"from":1,"to":2,"cost":"340282366920938463463374607431768211455"}`, string(bits))

	var decoded graph.Edge
	require.NoError(t, json.Unmarshal(bits, &decoded))
	require.Equal(t, e.Key(), decoded.Key())
	require.Equal(t, 0, decoded.Cost.Cmp(graph.MaxCost))
}

func TestVersion(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	defer st.Close()

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, st.Update(ctx, func(w storage.Writer) error {
			v, err := graph.NewWriter(w).BumpVersion()
			require.NoError(t, err)
			require.Equal(t, i, v)
			return nil
		}))
	}
	require.NoError(t, st.View(ctx, func(r storage.Reader) error {
		v, err := graph.NewReader(r).Version()
		require.NoError(t, err)
		require.Equal(t, uint64(3), v)
		return nil
	}))
}
