package hnsw

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/liliang-cn/hnswlite/pkg/metric"
	"github.com/liliang-cn/hnswlite/pkg/store"
)

// MaxLayer is the hard ceiling on a sampled node level.
const MaxLayer = 63

// Engine is the HNSW graph engine: public operations, internal layer
// search, heuristic neighbor selection, symmetric edge maintenance, and
// entry-point management. One Engine exclusively owns the node storage and
// layer storage passed to New.
type Engine struct {
	// mu is the engine-level write lease: Lock for mutating operations
	// (add, add-batch, remove, remove-batch, import), RLock for reads
	// (top-k, export). It is not a per-layer lock; per-node locking lives
	// inside the storage implementations.
	mu sync.RWMutex

	nodes     store.NodeStore
	layers    store.LayerStore
	dist      metric.Func
	params    Params
	dimension int
	rng       *rand.Rand

	corrupted bool
	closed    bool
}

// New constructs an Engine over the given storage pair. dimension must be
// in [1, 4096]; params must satisfy the same constraints the root facade
// validates before calling here.
func New(nodes store.NodeStore, layers store.LayerStore, dimension int, params Params) (*Engine, error) {
	if dimension < 1 || dimension > 4096 {
		return nil, fmt.Errorf("%w: dimension must be in [1, 4096], got %d", ErrInvalidArgument, dimension)
	}
	if params.M < 1 {
		return nil, fmt.Errorf("%w: M must be >= 1, got %d", ErrInvalidArgument, params.M)
	}
	if params.EfConstruction < 1 {
		return nil, fmt.Errorf("%w: efConstruction must be >= 1, got %d", ErrInvalidArgument, params.EfConstruction)
	}
	if params.ML <= 0 {
		return nil, fmt.Errorf("%w: mL must be > 0, got %v", ErrInvalidArgument, params.ML)
	}
	dist, err := metric.Lookup(params.Distance)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return &Engine{
		nodes:     nodes,
		layers:    layers,
		dist:      dist,
		params:    params,
		dimension: dimension,
		rng:       rand.New(rand.NewSource(params.Seed)),
	}, nil
}

func (e *Engine) validateVector(vector []float32) error {
	if len(vector) != e.dimension {
		return fmt.Errorf("%w: vector dimension mismatch: expected %d, got %d", ErrInvalidArgument, e.dimension, len(vector))
	}
	for _, c := range vector {
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
			return fmt.Errorf("%w: vector contains a non-finite component", ErrInvalidArgument)
		}
	}
	return nil
}

// sampleLevel draws ℓ = floor(-ln(U) * mL), U ~ Uniform(0,1), clamped into
// [0, MaxLayer]. Must be called with the write lease held since it mutates
// the engine's random source.
func (e *Engine) sampleLevel() int {
	u := e.rng.Float64()
	for u == 0 {
		u = e.rng.Float64()
	}
	level := int(math.Floor(-math.Log(u) * e.params.ML))
	if level < 0 {
		level = 0
	}
	if level > MaxLayer {
		level = MaxLayer
	}
	return level
}

// Add inserts or replaces the node at id with vector, wiring it into the
// graph at every layer from its sampled level down to 0.
func (e *Engine) Add(ctx context.Context, id store.NodeID, vector []float32) error {
	if id.IsZero() {
		return fmt.Errorf("%w: node id must not be the zero value", ErrInvalidArgument)
	}
	if err := e.validateVector(vector); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addLocked(ctx, id, vector)
}

func (e *Engine) addLocked(ctx context.Context, id store.NodeID, vector []float32) error {
	if e.closed {
		return ErrClosed
	}
	if e.corrupted {
		return ErrCorruptionPossible
	}

	count, err := e.nodes.Count(ctx)
	if err != nil {
		return err
	}
	wasEmpty := count == 0

	level := e.sampleLevel()

	if err := e.nodes.Add(ctx, id, vector); err != nil {
		return err
	}
	if err := e.layers.Set(ctx, id, level); err != nil {
		return err
	}

	if wasEmpty {
		return nil
	}

	entryID, hasEntry, err := e.nodes.EntryPoint(ctx)
	if err != nil {
		return err
	}
	if !hasEntry {
		// Defensive: should not happen once wasEmpty is false, but if it
		// does the new node simply becomes the entry point.
		return e.nodes.SetEntryPoint(ctx, id)
	}

	topLayer, err := e.layers.Get(ctx, entryID)
	if err != nil {
		return err
	}

	sctx := newSearchContext(ctx, e.nodes, e.dist, vector)
	current := entryID

	for layer := topLayer; layer > level; layer-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		current, err = greedySearch(sctx, current, layer)
		if err != nil {
			return err
		}
	}

	entryIDs := []store.NodeID{current}
	start := topLayer
	if level < start {
		start = level
	}
	for layer := start; layer >= 0; layer-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		candidates, err := searchLayer(sctx, entryIDs, layer, e.params.EfConstruction)
		if err != nil {
			return err
		}
		selected, err := selectNeighborsHeuristic(sctx, candidates, e.params.mForLayer(), e.params.ExtendCandidates, e.params.KeepPrunedConnections)
		if err != nil {
			return err
		}
		if err := e.installLayer(ctx, sctx, id, layer, selected); err != nil {
			return err
		}
		entryIDs = entryIDs[:0]
		for _, cand := range candidates {
			entryIDs = append(entryIDs, cand.id)
		}
		if len(entryIDs) == 0 {
			entryIDs = []store.NodeID{current}
		}
	}

	if level > topLayer {
		if err := e.nodes.SetEntryPoint(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// installLayer installs symmetric edges between id and each of selected at
// layer, then repairs the degree of any neighbor pushed over its cap. On
// failure it attempts to roll back whatever it already installed for this
// layer; if the rollback itself fails, the engine refuses further writes.
func (e *Engine) installLayer(ctx context.Context, sctx *searchContext, id store.NodeID, layer int, selected []store.NodeID) error {
	if err := e.nodes.SetNeighbors(ctx, id, layer, selected); err != nil {
		return err
	}

	installed := make([]store.NodeID, 0, len(selected))
	err := e.installReverseEdges(ctx, id, layer, selected, &installed)
	if err != nil {
		if rerr := e.rollbackLayer(ctx, id, layer, installed); rerr != nil {
			e.corrupted = true
			return fmt.Errorf("%w: %v (rollback also failed: %v)", ErrCorruptionPossible, err, rerr)
		}
		return err
	}

	for _, n := range selected {
		if err := e.repairDegree(ctx, n, layer); err != nil {
			if rerr := e.rollbackLayer(ctx, id, layer, installed); rerr != nil {
				e.corrupted = true
				return fmt.Errorf("%w: %v (rollback also failed: %v)", ErrCorruptionPossible, err, rerr)
			}
			return err
		}
	}
	return nil
}

func (e *Engine) installReverseEdges(ctx context.Context, id store.NodeID, layer int, selected []store.NodeID, installed *[]store.NodeID) error {
	for _, n := range selected {
		node, err := e.nodes.Get(ctx, n)
		if err != nil {
			return err
		}
		existing := node.Neighbors[layer]
		if containsID(existing, id) {
			continue
		}
		updated := append(append([]store.NodeID(nil), existing...), id)
		if err := e.nodes.SetNeighbors(ctx, n, layer, updated); err != nil {
			return err
		}
		*installed = append(*installed, n)
	}
	return nil
}

// rollbackLayer removes id from every installed neighbor's edge set at
// layer and clears id's own neighbor set at layer, undoing installLayer.
func (e *Engine) rollbackLayer(ctx context.Context, id store.NodeID, layer int, installed []store.NodeID) error {
	var firstErr error
	for _, n := range installed {
		node, err := e.nodes.Get(ctx, n)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		remaining := removeID(node.Neighbors[layer], id)
		if err := e.nodes.SetNeighbors(ctx, n, layer, remaining); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := e.nodes.SetNeighbors(ctx, id, layer, nil); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// repairDegree re-runs the selection heuristic on n's neighbor set at
// layer, trimmed to its cap, if installing a new edge pushed it over that
// cap. Evicted neighbors also have their reverse edge to n removed.
func (e *Engine) repairDegree(ctx context.Context, n store.NodeID, layer int) error {
	node, err := e.nodes.Get(ctx, n)
	if err != nil {
		return err
	}
	neighbors := node.Neighbors[layer]
	degreeCap := e.params.capForLayer(layer)
	if len(neighbors) <= degreeCap {
		return nil
	}

	sctx := newSearchContext(ctx, e.nodes, e.dist, node.Vector)
	if err := sctx.prefetch(neighbors); err != nil {
		return err
	}
	candidates := make([]candidate, 0, len(neighbors))
	for _, nb := range neighbors {
		d, err := sctx.distance(nb)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{id: nb, dist: d})
	}
	sort.Slice(candidates, func(i, j int) bool { return less(candidates[i], candidates[j]) })

	selected, err := selectNeighborsHeuristic(sctx, candidates, degreeCap, false, false)
	if err != nil {
		return err
	}
	keep := make(map[store.NodeID]struct{}, len(selected))
	for _, id := range selected {
		keep[id] = struct{}{}
	}

	if err := e.nodes.SetNeighbors(ctx, n, layer, selected); err != nil {
		return err
	}
	for _, nb := range neighbors {
		if _, ok := keep[nb]; ok {
			continue
		}
		other, err := e.nodes.Get(ctx, nb)
		if err != nil {
			continue
		}
		remaining := removeID(other.Neighbors[layer], n)
		if err := e.nodes.SetNeighbors(ctx, nb, layer, remaining); err != nil {
			return err
		}
	}
	return nil
}

func containsID(ids []store.NodeID, target store.NodeID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

func removeID(ids []store.NodeID, target store.NodeID) []store.NodeID {
	out := make([]store.NodeID, 0, len(ids))
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// validateBatch checks every item's id and vector concurrently, since
// validation is pure and independent per entry; it returns the first error
// encountered, cancelling the rest.
func (e *Engine) validateBatch(items map[store.NodeID][]float32) error {
	var g errgroup.Group
	for id, vector := range items {
		id, vector := id, vector
		g.Go(func() error {
			if id.IsZero() {
				return fmt.Errorf("%w: node id must not be the zero value", ErrInvalidArgument)
			}
			return e.validateVector(vector)
		})
	}
	return g.Wait()
}

// AddBatch inserts every entry with the same semantics as repeated Add,
// holding the write lease once for the whole batch. The durable backing
// commits vector writes as one transaction per NodeStore.AddBatch; graph
// wiring still happens node by node, and neighbor writes are flushed once
// at the end of the batch.
func (e *Engine) AddBatch(ctx context.Context, items map[store.NodeID][]float32) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: batch must not be empty", ErrInvalidArgument)
	}
	if err := e.validateBatch(items); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.corrupted {
		return ErrCorruptionPossible
	}

	if err := e.nodes.AddBatch(ctx, items); err != nil {
		return err
	}

	ids := make([]store.NodeID, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return idLess(ids[i], ids[j]) })

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		level := e.sampleLevel()
		if err := e.layers.Set(ctx, id, level); err != nil {
			return err
		}
		if err := e.wireNode(ctx, id, items[id], level); err != nil {
			return err
		}
	}
	return e.nodes.Flush(ctx)
}

// wireNode runs the graph-construction walk for a single already-persisted
// node on behalf of AddBatch; Add runs the same walk inline in addLocked.
func (e *Engine) wireNode(ctx context.Context, id store.NodeID, vector []float32, level int) error {
	entryID, hasEntry, err := e.nodes.EntryPoint(ctx)
	if err != nil {
		return err
	}
	if !hasEntry || entryID == id {
		return e.nodes.SetEntryPoint(ctx, id)
	}

	topLayer, err := e.layers.Get(ctx, entryID)
	if err != nil {
		return err
	}

	sctx := newSearchContext(ctx, e.nodes, e.dist, vector)
	current := entryID
	for layer := topLayer; layer > level; layer-- {
		current, err = greedySearch(sctx, current, layer)
		if err != nil {
			return err
		}
	}

	entryIDs := []store.NodeID{current}
	start := topLayer
	if level < start {
		start = level
	}
	for layer := start; layer >= 0; layer-- {
		candidates, err := searchLayer(sctx, entryIDs, layer, e.params.EfConstruction)
		if err != nil {
			return err
		}
		selected, err := selectNeighborsHeuristic(sctx, candidates, e.params.mForLayer(), e.params.ExtendCandidates, e.params.KeepPrunedConnections)
		if err != nil {
			return err
		}
		if err := e.installLayer(ctx, sctx, id, layer, selected); err != nil {
			return err
		}
		entryIDs = entryIDs[:0]
		for _, cand := range candidates {
			entryIDs = append(entryIDs, cand.id)
		}
		if len(entryIDs) == 0 {
			entryIDs = []store.NodeID{current}
		}
	}

	if level > topLayer {
		return e.nodes.SetEntryPoint(ctx, id)
	}
	return nil
}

// Remove deletes the node at id if present; absent ids are a success, not
// a failure.
func (e *Engine) Remove(ctx context.Context, id store.NodeID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.removeLocked(ctx, id)
}

func (e *Engine) removeLocked(ctx context.Context, id store.NodeID) error {
	node, err := e.nodes.Get(ctx, id)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}

	for layer, neighbors := range node.Neighbors {
		for _, n := range neighbors {
			other, err := e.nodes.Get(ctx, n)
			if err != nil {
				continue
			}
			remaining := removeID(other.Neighbors[layer], id)
			if err := e.nodes.SetNeighbors(ctx, n, layer, remaining); err != nil {
				return err
			}
		}
	}

	if err := e.nodes.Remove(ctx, id); err != nil {
		return err
	}
	if err := e.layers.Remove(ctx, id); err != nil {
		return err
	}

	entryID, hasEntry, err := e.nodes.EntryPoint(ctx)
	if err != nil {
		return err
	}
	if hasEntry && entryID != id {
		return nil
	}
	// Either the removed id was the entry point, or node storage already
	// unset it as a side effect of Remove; either way the engine picks the
	// replacement here since only it has access to layer assignments.
	return e.reassignEntryPoint(ctx)
}

// reassignEntryPoint picks the remaining id with the maximal layer,
// breaking ties on the smallest id, or leaves the entry point unset if no
// nodes remain.
func (e *Engine) reassignEntryPoint(ctx context.Context) error {
	ids, err := e.nodes.ListIDs(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return e.nodes.SetEntryPoint(ctx, store.ZeroNodeID)
	}
	var best store.NodeID
	bestLayer := -1
	for _, id := range ids {
		layer, err := e.layers.Get(ctx, id)
		if err != nil {
			return err
		}
		if layer > bestLayer || (layer == bestLayer && idLess(id, best)) {
			best, bestLayer = id, layer
		}
	}
	return e.nodes.SetEntryPoint(ctx, best)
}

// RemoveBatch removes every id in ids, ignoring absent ones, as a single
// logical operation under one write lease.
func (e *Engine) RemoveBatch(ctx context.Context, ids []store.NodeID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.removeLocked(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// TopK runs a nearest-neighbor query, returning up to k results sorted
// ascending by distance. ef defaults to max(k, the engine's configured
// EfSearch) when 0.
func (e *Engine) TopK(ctx context.Context, query []float32, k int, ef int) ([]Result, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidArgument, k)
	}
	if err := e.validateVector(query); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ef < k {
		if e.params.EfSearch > k {
			ef = e.params.EfSearch
		} else {
			ef = k
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}

	entryID, hasEntry, err := e.nodes.EntryPoint(ctx)
	if err != nil {
		return nil, err
	}
	if !hasEntry {
		return nil, nil
	}

	topLayer, err := e.layers.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}

	sctx := newSearchContext(ctx, e.nodes, e.dist, query)
	current := entryID
	for layer := topLayer; layer >= 1; layer-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		current, err = greedySearch(sctx, current, layer)
		if err != nil {
			return nil, err
		}
	}

	candidates, err := searchLayer(sctx, []store.NodeID{current}, 0, ef)
	if err != nil {
		return nil, err
	}
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	out := make([]Result, len(candidates))
	for i, cand := range candidates {
		node, err := sctx.get(cand.id)
		if err != nil {
			return nil, err
		}
		out[i] = Result{ID: cand.id, Vector: append([]float32(nil), node.Vector...), Distance: cand.dist}
	}
	return out, nil
}

// Flush persists any write-behind state; a no-op for RAM storage.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return e.nodes.Flush(ctx)
}

// Close flushes write-behind state and releases the storage handles. The
// Engine must not be used afterward.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	flushErr := e.nodes.Flush(context.Background())
	nodeErr := e.nodes.Close()
	layerErr := e.layers.Close()
	if flushErr != nil {
		return flushErr
	}
	if nodeErr != nil {
		return nodeErr
	}
	return layerErr
}
