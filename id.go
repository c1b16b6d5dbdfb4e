package hnswlite

import (
	"bytes"

	"github.com/google/uuid"
)

// NodeID is the opaque 128-bit identifier of a node. It is stable across
// the node's lifetime and is the only key callers use to refer to a vector.
// The zero value is reserved and never assigned to a real node.
type NodeID [16]byte

// ZeroNodeID is the reserved all-zero id; no node may ever carry it.
var ZeroNodeID NodeID

// NewNodeID returns a fresh random node id backed by a UUIDv4.
func NewNodeID() NodeID {
	return NodeID(uuid.New())
}

// ParseNodeID parses the canonical UUID text form produced by String.
func ParseNodeID(s string) (NodeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ZeroNodeID, err
	}
	return NodeID(u), nil
}

// String returns the canonical UUID text form, also used for the durable
// metadata entry_point record and for Export/Import payloads.
func (id NodeID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the reserved all-zero value.
func (id NodeID) IsZero() bool {
	return id == ZeroNodeID
}

// Less gives a total, deterministic order over node ids used to break
// distance ties (smaller id wins) and to pick an entry-point replacement
// deterministically among nodes at the maximal layer.
func (id NodeID) Less(other NodeID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}
