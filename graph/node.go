package graph

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Node is an opaque chain identifier. Any value is a valid node reference.
type Node uint32

// ParseNode parses a decimal chain id.
func ParseNode(s string) (Node, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid node %q", s)
	}
	return Node(v), nil
}

func (n Node) String() string {
	return strconv.FormatUint(uint64(n), 10)
}

// Route is an ordered sequence of nodes starting at the query's source.
type Route []Node

// Last returns the final node of the route and false if the route is empty.
func (r Route) Last() (Node, bool) {
	if len(r) == 0 {
		return 0, false
	}
	return r[len(r)-1], true
}

// Format renders the route with the given naming function, joined by arrows.
func (r Route) Format(name func(n Node) string) string {
	if name == nil {
		name = func(n Node) string { return n.String() }
	}
	parts := make([]string, len(r))
	for i, n := range r {
		parts[i] = name(n)
	}
	return strings.Join(parts, " -> ")
}

// EncodeNodes packs nodes as consecutive big-endian uint32 values.
func EncodeNodes(nodes []Node) []byte {
	buf := make([]byte, 4*len(nodes))
	for i, n := range nodes {
		binary.BigEndian.PutUint32(buf[4*i:], uint32(n))
	}
	return buf
}

// DecodeNodes is the inverse of EncodeNodes.
func DecodeNodes(b []byte) ([]Node, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("graph: node list length %d is not a multiple of 4", len(b))
	}
	nodes := make([]Node, len(b)/4)
	for i := range nodes {
		nodes[i] = Node(binary.BigEndian.Uint32(b[4*i:]))
	}
	return nodes, nil
}
