package graph

import "encoding/binary"

// EdgeKey packs an ordered pair of nodes into a single collision free key.
// The source occupies the high 32 bits, so (a,b) and (b,a) never share a key.
type EdgeKey uint64

// KeyOf returns the packed key for the directed edge from -> to.
func KeyOf(from, to Node) EdgeKey {
	return EdgeKey(uint64(from)<<32 | uint64(to))
}

// From returns the source node of the key.
func (k EdgeKey) From() Node {
	return Node(uint64(k) >> 32)
}

// To returns the destination node of the key.
func (k EdgeKey) To() Node {
	return Node(uint64(k) & 0xffffffff)
}

// Bytes returns the big-endian encoding of the key.
func (k EdgeKey) Bytes() []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(k))
	return b
}

// Edge is a directed, costed connection between two chains.
type Edge struct {
	From Node `json:"from"`
	To   Node `json:"to"`
	Cost Cost `json:"cost"`
}

// Key returns the packed key of the edge.
func (e Edge) Key() EdgeKey {
	return KeyOf(e.From, e.To)
}
