package hnsw

import "github.com/liliang-cn/hnswlite/pkg/store"

// Params is the engine's internal copy of the graph construction and
// search knobs. The root facade validates and normalizes the public
// IndexParameters before converting it into one of these.
type Params struct {
	Distance              string
	M                     int
	Mmax                  int
	Mmax0                 int
	EfConstruction        int
	EfSearch              int
	ML                    float64
	ExtendCandidates      bool
	KeepPrunedConnections bool
	Seed                  int64
}

// capForLayer returns the hard degree cap at layer: Mmax0 at layer 0, Mmax
// above it.
func (p Params) capForLayer(layer int) int {
	if layer == 0 {
		return p.Mmax0
	}
	return p.Mmax
}

// mForLayer returns the target degree used when selecting neighbors at
// layer during insertion: the same M at every layer, capped is a separate
// concern handled after installation.
func (p Params) mForLayer() int {
	return p.M
}

// Result is a single top-k hit: the node id, its full vector (copied), and
// its distance to the query under the engine's configured kernel.
type Result struct {
	ID       store.NodeID
	Vector   []float32
	Distance float32
}

// StateNode is one node's representation within an exported/imported
// snapshot.
type StateNode struct {
	ID        store.NodeID
	Vector    []float32
	Layer     int
	Neighbors map[int][]store.NodeID
}

// State is a full snapshot of the engine: dimension, parameters, entry
// point, and every node with its layer and neighbor sets. The root facade
// converts it into its JSON export payload, which uses text ids and
// string layer keys.
type State struct {
	VectorDimension int
	Parameters      Params
	EntryPointID    store.NodeID
	HasEntryPoint   bool
	Nodes           []StateNode
}
