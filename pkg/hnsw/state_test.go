package hnsw

import (
	"math"
	"testing"

	"github.com/liliang-cn/hnswlite/pkg/store"
)

func validBaseState() *State {
	a, b := idOf(1), idOf(2)
	return &State{
		VectorDimension: 2,
		Parameters:      testParams("euclidean"),
		EntryPointID:    a,
		HasEntryPoint:   true,
		Nodes: []StateNode{
			{ID: a, Vector: []float32{0, 0}, Layer: 1, Neighbors: map[int][]store.NodeID{0: {b}}},
			{ID: b, Vector: []float32{1, 1}, Layer: 1, Neighbors: map[int][]store.NodeID{0: {a}}},
		},
	}
}

func TestValidateStateAcceptsValidState(t *testing.T) {
	if err := validateState(validBaseState()); err != nil {
		t.Fatalf("expected valid state to pass, got %v", err)
	}
}

func TestValidateStateRejectsNil(t *testing.T) {
	if err := validateState(nil); err == nil {
		t.Fatal("expected error for nil state")
	}
}

func TestValidateStateRejectsBadDimension(t *testing.T) {
	s := validBaseState()
	s.VectorDimension = 0
	if err := validateState(s); err == nil {
		t.Fatal("expected error for zero dimension")
	}
}

func TestValidateStateRejectsVectorLengthMismatch(t *testing.T) {
	s := validBaseState()
	s.Nodes[0].Vector = []float32{0}
	if err := validateState(s); err == nil {
		t.Fatal("expected error for vector length mismatch")
	}
}

func TestValidateStateRejectsZeroNodeID(t *testing.T) {
	s := validBaseState()
	s.Nodes[0].ID = store.ZeroNodeID
	if err := validateState(s); err == nil {
		t.Fatal("expected error for zero node id")
	}
}

func TestValidateStateRejectsUnknownEntryPoint(t *testing.T) {
	s := validBaseState()
	s.EntryPointID = idOf(99)
	if err := validateState(s); err == nil {
		t.Fatal("expected error for entry point not among nodes")
	}
}

func TestValidateStateRejectsNeighborAboveOwnLayer(t *testing.T) {
	s := validBaseState()
	s.Nodes[0].Layer = 0
	s.Nodes[0].Neighbors = map[int][]store.NodeID{1: {idOf(2)}}
	if err := validateState(s); err == nil {
		t.Fatal("expected error for neighbor layer above node's own layer")
	}
}

func TestValidateStateRejectsUnknownNeighbor(t *testing.T) {
	s := validBaseState()
	s.Nodes[0].Neighbors = map[int][]store.NodeID{0: {idOf(99)}}
	if err := validateState(s); err == nil {
		t.Fatal("expected error for reference to unknown neighbor")
	}
}

func TestValidateStateRejectsNeighborBelowItsOwnLayer(t *testing.T) {
	s := validBaseState()
	s.Nodes[1].Layer = 0
	s.Nodes[1].Neighbors = map[int][]store.NodeID{0: {idOf(1)}}
	s.Nodes[0].Neighbors = map[int][]store.NodeID{1: {idOf(2)}}
	s.Nodes[0].Layer = 1
	if err := validateState(s); err == nil {
		t.Fatal("expected error for a neighbor edge above the referenced node's own layer")
	}
}

func TestValidateStateRejectsBadParameters(t *testing.T) {
	s := validBaseState()
	s.Parameters.M = 0
	if err := validateState(s); err == nil {
		t.Fatal("expected error for M < 1")
	}

	s = validBaseState()
	s.Parameters.Mmax = 0
	s.Parameters.M = 4
	if err := validateState(s); err == nil {
		t.Fatal("expected error for Mmax < M")
	}

	s = validBaseState()
	s.Parameters.ML = 0
	if err := validateState(s); err == nil {
		t.Fatal("expected error for mL <= 0")
	}
}

func TestParamsCapForLayer(t *testing.T) {
	p := Params{M: 8, Mmax: 8, Mmax0: 16}
	if got := p.capForLayer(0); got != 16 {
		t.Fatalf("expected Mmax0 at layer 0, got %d", got)
	}
	if got := p.capForLayer(1); got != 8 {
		t.Fatalf("expected Mmax above layer 0, got %d", got)
	}
}

func TestSampleLevelClampedToMaxLayer(t *testing.T) {
	e := newTestEngine(t, 2, Params{
		Distance:       "euclidean",
		M:              2,
		Mmax:           2,
		Mmax0:          4,
		EfConstruction: 8,
		ML:             1000,
	})
	for i := 0; i < 50; i++ {
		level := e.sampleLevel()
		if level < 0 || level > MaxLayer {
			t.Fatalf("sampled level %d out of [0, %d]", level, MaxLayer)
		}
	}
}

func TestSampleLevelNeverNegative(t *testing.T) {
	e := newTestEngine(t, 2, Params{
		Distance:       "euclidean",
		M:              16,
		Mmax:           16,
		Mmax0:          32,
		EfConstruction: 8,
		ML:             1.0 / math.Log(16),
	})
	for i := 0; i < 200; i++ {
		if e.sampleLevel() < 0 {
			t.Fatal("sampled a negative level")
		}
	}
}
