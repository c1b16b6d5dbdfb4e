package hnsw

import (
	"context"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"github.com/liliang-cn/hnswlite/pkg/metric"
	"github.com/liliang-cn/hnswlite/pkg/store"
)

func testParams(distance string) Params {
	const m = 8
	return Params{
		Distance:       distance,
		M:              m,
		Mmax:           m,
		Mmax0:          2 * m,
		EfConstruction: 64,
		EfSearch:       32,
		ML:             1.0 / math.Log(float64(m)),
		Seed:           1,
	}
}

func newTestEngine(t *testing.T, dimension int, params Params) *Engine {
	t.Helper()
	e, err := New(store.NewRAMNodeStore(), store.NewRAMLayerStore(), dimension, params)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func idOf(n byte) store.NodeID {
	var id store.NodeID
	id[15] = n
	return id
}

func TestEngineAddAndTopKEuclidean2D(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 2, testParams("euclidean"))

	points := [][2]float32{{0, 0}, {1, 0}, {0, 1}, {10, 10}, {10, 11}}
	for i, p := range points {
		if err := e.Add(ctx, idOf(byte(i+1)), []float32{p[0], p[1]}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	results, err := e.TopK(ctx, []float32{0, 0}, 3, 0)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].ID != idOf(1) {
		t.Fatalf("expected closest point to be the origin itself, got %v", results[0].ID)
	}
	for i := 1; i < len(results); i++ {
		if results[i-1].Distance > results[i].Distance {
			t.Fatalf("results not sorted ascending by distance: %v", results)
		}
	}
}

func TestEngineRemoveThenSearch(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 2, testParams("euclidean"))

	ids := []store.NodeID{idOf(1), idOf(2), idOf(3)}
	vectors := [][]float32{{0, 0}, {1, 1}, {2, 2}}
	for i, id := range ids {
		if err := e.Add(ctx, id, vectors[i]); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.Remove(ctx, idOf(1)); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	results, err := e.TopK(ctx, []float32{0, 0}, 5, 0)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	for _, r := range results {
		if r.ID == idOf(1) {
			t.Fatal("removed node still appears in search results")
		}
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 remaining results, got %d", len(results))
	}
}

func TestEngineRemoveAbsentIsNoop(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 2, testParams("euclidean"))
	if err := e.Add(ctx, idOf(1), []float32{0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := e.Remove(ctx, idOf(99)); err != nil {
		t.Fatalf("expected no-op remove of absent id, got %v", err)
	}
}

func TestEngineRandomD100(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 100, testParams("euclidean"))
	rng := rand.New(rand.NewSource(42))

	ids := make([]store.NodeID, 10)
	vectors := make([][]float32, 10)
	for i := 0; i < 10; i++ {
		ids[i] = idOf(byte(i + 1))
		v := make([]float32, 100)
		for j := range v {
			v[j] = rng.Float32()
		}
		vectors[i] = v
		if err := e.Add(ctx, ids[i], v); err != nil {
			t.Fatal(err)
		}
	}

	results, err := e.TopK(ctx, vectors[0], 5, 0)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if results[0].ID != ids[0] {
		t.Fatalf("expected self as closest match, got %v", results[0].ID)
	}
}

func TestEngineClustersWithExtendCandidates(t *testing.T) {
	ctx := context.Background()
	params := testParams("euclidean")
	params.ExtendCandidates = true
	e := newTestEngine(t, 2, params)

	clusters := [][2]float32{{0, 0}, {50, 50}, {-50, 50}}
	var id byte = 1
	for _, c := range clusters {
		for i := 0; i < 4; i++ {
			v := []float32{c[0] + float32(i)*0.1, c[1] + float32(i)*0.1}
			if err := e.Add(ctx, idOf(id), v); err != nil {
				t.Fatal(err)
			}
			id++
		}
	}

	results, err := e.TopK(ctx, []float32{0, 0}, 4, 0)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	for _, r := range results {
		if r.Vector[0] > 10 {
			t.Fatalf("expected nearest cluster only, got far result %v", r)
		}
	}
}

func TestEngineCosine2D(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 2, testParams("cosine"))

	vectors := map[byte][]float32{
		1: {1, 0},
		2: {0, 1},
		3: {-1, 0},
		4: {0.9, 0.1},
	}
	for id, v := range vectors {
		if err := e.Add(ctx, idOf(id), v); err != nil {
			t.Fatal(err)
		}
	}
	results, err := e.TopK(ctx, []float32{1, 0}, 2, 0)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if results[0].ID != idOf(1) {
		t.Fatalf("expected exact direction match first, got %v", results[0].ID)
	}
}

func TestEngineEmptyIndexSearch(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 2, testParams("euclidean"))
	results, err := e.TopK(ctx, []float32{0, 0}, 5, 0)
	if err != nil {
		t.Fatalf("TopK on empty index: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestEngineSingleNode(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 2, testParams("euclidean"))
	if err := e.Add(ctx, idOf(1), []float32{3, 4}); err != nil {
		t.Fatal(err)
	}
	results, err := e.TopK(ctx, []float32{0, 0}, 5, 0)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if len(results) != 1 || results[0].ID != idOf(1) {
		t.Fatalf("unexpected results: %v", results)
	}
}

func TestEngineAddReplaceSemantics(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 2, testParams("euclidean"))
	id := idOf(1)
	if err := e.Add(ctx, id, []float32{0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := e.Add(ctx, id, []float32{100, 100}); err != nil {
		t.Fatalf("Add (replace): %v", err)
	}
	results, err := e.TopK(ctx, []float32{100, 100}, 1, 0)
	if err != nil {
		t.Fatalf("TopK: %v", err)
	}
	if len(results) != 1 || results[0].Distance != 0 {
		t.Fatalf("expected replaced vector to be found at distance 0, got %v", results)
	}
}

func TestEngineNoSelfNeighbor(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 2, testParams("euclidean"))
	for i := byte(1); i <= 10; i++ {
		v := []float32{float32(i), float32(i)}
		if err := e.Add(ctx, idOf(i), v); err != nil {
			t.Fatal(err)
		}
	}
	state, err := e.ExportState(ctx)
	if err != nil {
		t.Fatalf("ExportState: %v", err)
	}
	for _, n := range state.Nodes {
		for layer, neighbors := range n.Neighbors {
			for _, nb := range neighbors {
				if nb == n.ID {
					t.Fatalf("node %v is its own neighbor at layer %d", n.ID, layer)
				}
			}
		}
	}
}

func TestEngineBidirectionalEdges(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 2, testParams("euclidean"))
	for i := byte(1); i <= 15; i++ {
		v := []float32{float32(i), float32(i) * 2}
		if err := e.Add(ctx, idOf(i), v); err != nil {
			t.Fatal(err)
		}
	}
	state, err := e.ExportState(ctx)
	if err != nil {
		t.Fatalf("ExportState: %v", err)
	}
	byID := make(map[store.NodeID]StateNode, len(state.Nodes))
	for _, n := range state.Nodes {
		byID[n.ID] = n
	}
	for _, n := range state.Nodes {
		for layer, neighbors := range n.Neighbors {
			for _, nb := range neighbors {
				target := byID[nb]
				found := false
				for _, back := range target.Neighbors[layer] {
					if back == n.ID {
						found = true
						break
					}
				}
				if !found {
					t.Fatalf("edge %v -> %v at layer %d is not reciprocated", n.ID, nb, layer)
				}
			}
		}
	}
}

func TestEngineDegreeCapsRespected(t *testing.T) {
	ctx := context.Background()
	params := testParams("euclidean")
	e := newTestEngine(t, 2, params)
	rng := rand.New(rand.NewSource(7))
	for i := byte(1); i <= 60; i++ {
		v := []float32{rng.Float32() * 100, rng.Float32() * 100}
		if err := e.Add(ctx, idOf(i), v); err != nil {
			t.Fatal(err)
		}
	}
	state, err := e.ExportState(ctx)
	if err != nil {
		t.Fatalf("ExportState: %v", err)
	}
	for _, n := range state.Nodes {
		for layer, neighbors := range n.Neighbors {
			cap := params.capForLayer(layer)
			if len(neighbors) > cap {
				t.Fatalf("node %v layer %d has %d neighbors, exceeds cap %d", n.ID, layer, len(neighbors), cap)
			}
		}
	}
}

func TestEngineEntryPointAtMaximalLayer(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 2, testParams("euclidean"))
	for i := byte(1); i <= 20; i++ {
		v := []float32{float32(i), float32(i)}
		if err := e.Add(ctx, idOf(i), v); err != nil {
			t.Fatal(err)
		}
	}
	state, err := e.ExportState(ctx)
	if err != nil {
		t.Fatalf("ExportState: %v", err)
	}
	if !state.HasEntryPoint {
		t.Fatal("expected an entry point")
	}
	maxLayer := -1
	for _, n := range state.Nodes {
		if n.Layer > maxLayer {
			maxLayer = n.Layer
		}
	}
	var entryLayer int
	for _, n := range state.Nodes {
		if n.ID == state.EntryPointID {
			entryLayer = n.Layer
		}
	}
	if entryLayer != maxLayer {
		t.Fatalf("entry point layer %d is not the maximal layer %d", entryLayer, maxLayer)
	}
}

func TestEngineExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 2, testParams("euclidean"))
	for i := byte(1); i <= 12; i++ {
		v := []float32{float32(i), float32(i) * 1.5}
		if err := e.Add(ctx, idOf(i), v); err != nil {
			t.Fatal(err)
		}
	}
	state, err := e.ExportState(ctx)
	if err != nil {
		t.Fatalf("ExportState: %v", err)
	}

	e2 := newTestEngine(t, 2, testParams("euclidean"))
	if err := e2.ImportState(ctx, state); err != nil {
		t.Fatalf("ImportState: %v", err)
	}
	state2, err := e2.ExportState(ctx)
	if err != nil {
		t.Fatalf("ExportState after import: %v", err)
	}
	if !reflect.DeepEqual(state, state2) {
		t.Fatalf("export->import->export is not idempotent:\nfirst:  %+v\nsecond: %+v", state, state2)
	}
}

func TestEngineCloseRejectsFurtherWrites(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 2, testParams("euclidean"))
	if err := e.Add(ctx, idOf(1), []float32{0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Add(ctx, idOf(2), []float32{1, 1}); err == nil {
		t.Fatal("expected Add to fail after Close")
	}
}

func TestEngineValidationErrors(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, 2, testParams("euclidean"))

	if err := e.Add(ctx, store.ZeroNodeID, []float32{0, 0}); err == nil {
		t.Fatal("expected error for zero node id")
	}
	if err := e.Add(ctx, idOf(1), []float32{0, 0, 0}); err == nil {
		t.Fatal("expected error for dimension mismatch")
	}
	if err := e.Add(ctx, idOf(1), []float32{float32(math.NaN()), 0}); err == nil {
		t.Fatal("expected error for NaN component")
	}
	if err := e.Add(ctx, idOf(1), []float32{float32(math.Inf(1)), 0}); err == nil {
		t.Fatal("expected error for infinite component")
	}
	if _, err := e.TopK(ctx, []float32{0, 0}, 0, 0); err == nil {
		t.Fatal("expected error for k < 1")
	}
	if err := e.AddBatch(ctx, map[store.NodeID][]float32{}); err == nil {
		t.Fatal("expected error for empty batch")
	}
}

func TestEngineConstructionValidation(t *testing.T) {
	if _, err := New(store.NewRAMNodeStore(), store.NewRAMLayerStore(), 0, testParams("euclidean")); err == nil {
		t.Fatal("expected error for dimension 0")
	}
	bad := testParams("euclidean")
	bad.M = 0
	if _, err := New(store.NewRAMNodeStore(), store.NewRAMLayerStore(), 2, bad); err == nil {
		t.Fatal("expected error for M < 1")
	}
	bad = testParams("euclidean")
	bad.EfConstruction = 0
	if _, err := New(store.NewRAMNodeStore(), store.NewRAMLayerStore(), 2, bad); err == nil {
		t.Fatal("expected error for efConstruction < 1")
	}
	bad = testParams("unknown-metric")
	if _, err := New(store.NewRAMNodeStore(), store.NewRAMLayerStore(), 2, bad); err == nil {
		t.Fatal("expected error for unknown distance kernel")
	}
}

func TestEngineContextCancellation(t *testing.T) {
	e := newTestEngine(t, 2, testParams("euclidean"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Add(ctx, idOf(1), []float32{0, 0}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestEnginePersistenceReopen(t *testing.T) {
	ctx := context.Background()
	nodes := store.NewRAMNodeStore()
	layers := store.NewRAMLayerStore()
	e, err := New(nodes, layers, 2, testParams("euclidean"))
	if err != nil {
		t.Fatal(err)
	}
	for i := byte(1); i <= 5; i++ {
		v := []float32{float32(i), float32(i)}
		if err := e.Add(ctx, idOf(i), v); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e2, err := New(nodes, layers, 2, testParams("euclidean"))
	if err != nil {
		t.Fatalf("reopen New: %v", err)
	}
	results, err := e2.TopK(ctx, []float32{1, 1}, 1, 0)
	if err != nil {
		t.Fatalf("TopK after reopen: %v", err)
	}
	if len(results) != 1 || results[0].ID != idOf(1) {
		t.Fatalf("unexpected results after reopen: %v", results)
	}
}

func TestMetricLookupUsedByEngine(t *testing.T) {
	if _, err := metric.Lookup("euclidean"); err != nil {
		t.Fatalf("metric.Lookup: %v", err)
	}
}
