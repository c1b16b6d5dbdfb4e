package hnswlite

import (
	"fmt"
	"math"
)

// MaxLayer is the hard ceiling on a node's level; sampled levels are
// clamped into [0, MaxLayer] rather than ever failing.
const MaxLayer = 63

// IndexParameters configures the graph construction and search knobs. Build
// one with DefaultParameters and override what you need.
type IndexParameters struct {
	// Distance is the stable kernel name: "euclidean", "cosine", or
	// "dotproduct".
	Distance string

	// M is the target degree for layers above 0.
	M int
	// Mmax is the hard cap on degree above layer 0. Defaults to M.
	Mmax int
	// Mmax0 is the hard cap on degree at layer 0. Defaults to 2*M.
	Mmax0 int
	// EfConstruction is the candidate-list size used while inserting.
	EfConstruction int
	// EfSearch is the default candidate-list size for top-k queries when
	// the caller does not supply one explicitly; it is raised to k if k
	// is larger.
	EfSearch int
	// ML is the level-normalization factor; levels are sampled as
	// floor(-ln(U) * ML). Defaults to 1/ln(M).
	ML float64
	// ExtendCandidates unions one-hop neighbors of candidates into the
	// selection pool before running the heuristic.
	ExtendCandidates bool
	// KeepPrunedConnections fills remaining neighbor slots from rejected
	// candidates, in distance order, once the heuristic has run.
	KeepPrunedConnections bool
	// Seed drives the level-assignment random source. Two engines built
	// with the same seed and the same insert order produce the same graph.
	Seed int64
}

// DefaultParameters returns the conventional HNSW knobs (M=16,
// efConstruction=200) for the named distance kernel.
func DefaultParameters(distance string) IndexParameters {
	const m = 16
	return IndexParameters{
		Distance:              distance,
		M:                     m,
		Mmax:                  m,
		Mmax0:                 2 * m,
		EfConstruction:        200,
		EfSearch:              50,
		ML:                    1.0 / math.Log(float64(m)),
		ExtendCandidates:      false,
		KeepPrunedConnections: false,
		Seed:                  1,
	}
}

// normalize fills in zero-valued derived fields (Mmax, Mmax0, ML) from M.
func (p IndexParameters) normalize() IndexParameters {
	if p.Mmax == 0 {
		p.Mmax = p.M
	}
	if p.Mmax0 == 0 {
		p.Mmax0 = 2 * p.M
	}
	if p.ML == 0 {
		p.ML = 1.0 / math.Log(float64(p.M))
	}
	return p
}

// Validate checks the constraints spec.md §3 places on IndexParameters.
func (p IndexParameters) Validate() error {
	if p.M < 1 {
		return newError("params", KindInvalidArgument, fmt.Errorf("M must be >= 1, got %d", p.M))
	}
	mmax := p.Mmax
	if mmax == 0 {
		mmax = p.M
	}
	mmax0 := p.Mmax0
	if mmax0 == 0 {
		mmax0 = 2 * p.M
	}
	if mmax < p.M {
		return newError("params", KindInvalidArgument, fmt.Errorf("Mmax must be >= M, got %d < %d", mmax, p.M))
	}
	if mmax0 < p.M {
		return newError("params", KindInvalidArgument, fmt.Errorf("Mmax0 must be >= M, got %d < %d", mmax0, p.M))
	}
	if p.EfConstruction < 1 {
		return newError("params", KindInvalidArgument, fmt.Errorf("efConstruction must be >= 1, got %d", p.EfConstruction))
	}
	ml := p.ML
	if ml == 0 {
		ml = 1.0 / math.Log(float64(p.M))
	}
	if ml <= 0 {
		return newError("params", KindInvalidArgument, fmt.Errorf("mL must be > 0, got %v", ml))
	}
	if _, err := distanceByName(p.Distance); err != nil {
		return newError("params", KindInvalidArgument, err)
	}
	return nil
}
