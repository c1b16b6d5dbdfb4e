package hnswlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/liliang-cn/hnswlite/pkg/hnsw"
	"github.com/liliang-cn/hnswlite/pkg/store"
)

// Engine is an embeddable approximate-nearest-neighbor index over dense
// float32 vectors. Construct one with Open (in-memory) or OpenDurable
// (single-file backing); both return a ready-to-use Engine.
type Engine struct {
	inner     *hnsw.Engine
	dimension int
	params    IndexParameters
	logger    Logger
	nodes     store.NodeStore
	layers    store.LayerStore
}

// Open constructs an in-memory Engine over the given dimension and
// parameters.
func Open(dimension int, params IndexParameters) (*Engine, error) {
	return newEngine(dimension, params, store.NewRAMNodeStore(), store.NewRAMLayerStore(), NopLogger())
}

// OpenDurable constructs an Engine backed by a single file at path,
// creating it if absent. It is not safe to open two engines on the same
// path concurrently within one process; a second attempt fails.
func OpenDurable(path string, dimension int, params IndexParameters) (*Engine, error) {
	nodes, layers, err := store.OpenDurable(path)
	if err != nil {
		return nil, newError("open", KindIOError, err)
	}
	e, err := newEngine(dimension, params, nodes, layers, NopLogger())
	if err != nil {
		nodes.Close()
		layers.Close()
		return nil, err
	}
	return e, nil
}

func newEngine(dimension int, params IndexParameters, nodes store.NodeStore, layers store.LayerStore, logger Logger) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if dimension < 1 || dimension > MaxDimension {
		return nil, newError("open", KindInvalidArgument, fmt.Errorf("dimension must be in [1, %d], got %d", MaxDimension, dimension))
	}
	normalized := params.normalize()
	inner, err := hnsw.New(nodes, layers, dimension, toHNSWParams(normalized))
	if err != nil {
		return nil, translateErr("open", err)
	}
	logger.Info("index opened", "dimension", dimension, "distance", normalized.Distance, "M", normalized.M)
	return &Engine{inner: inner, dimension: dimension, params: normalized, logger: logger, nodes: nodes, layers: layers}, nil
}

// WithLogger replaces the Engine's logger, used for lifecycle events. The
// default is NopLogger, which also receives the open event, since the
// logger can only be replaced after construction.
func (e *Engine) WithLogger(logger Logger) *Engine {
	if logger == nil {
		logger = NopLogger()
	}
	e.logger = logger
	return e
}

// Dimension returns the index's fixed vector dimension.
func (e *Engine) Dimension() int { return e.dimension }

// Parameters returns the normalized IndexParameters the engine was opened
// with (or last imported).
func (e *Engine) Parameters() IndexParameters { return e.params }

// Add inserts or replaces the vector at id.
func (e *Engine) Add(ctx context.Context, id NodeID, vector Vector) error {
	if id.IsZero() {
		return newError("add", KindInvalidArgument, errZeroNodeID)
	}
	if err := vector.Validate(e.dimension); err != nil {
		return err
	}
	if err := e.inner.Add(ctx, toStoreID(id), []float32(vector)); err != nil {
		return translateErr("add", err)
	}
	return nil
}

// AddBatch inserts or replaces every entry, atomically with respect to the
// durable backing's vector writes.
func (e *Engine) AddBatch(ctx context.Context, items map[NodeID]Vector) error {
	if len(items) == 0 {
		return newError("add-batch", KindInvalidArgument, errors.New("batch must not be empty"))
	}
	converted := make(map[store.NodeID][]float32, len(items))
	for id, v := range items {
		if id.IsZero() {
			return newError("add-batch", KindInvalidArgument, errZeroNodeID)
		}
		if err := v.Validate(e.dimension); err != nil {
			return err
		}
		converted[toStoreID(id)] = []float32(v)
	}
	if err := e.inner.AddBatch(ctx, converted); err != nil {
		return translateErr("add-batch", err)
	}
	return nil
}

// Remove deletes the node at id; a no-op, not a failure, if absent.
func (e *Engine) Remove(ctx context.Context, id NodeID) error {
	if err := e.inner.Remove(ctx, toStoreID(id)); err != nil {
		return translateErr("remove", err)
	}
	return nil
}

// RemoveBatch removes every id in ids, ignoring absent ones.
func (e *Engine) RemoveBatch(ctx context.Context, ids []NodeID) error {
	converted := make([]store.NodeID, len(ids))
	for i, id := range ids {
		converted[i] = toStoreID(id)
	}
	if err := e.inner.RemoveBatch(ctx, converted); err != nil {
		return translateErr("remove-batch", err)
	}
	return nil
}

// SearchResult is a single top-k hit.
type SearchResult struct {
	ID       NodeID
	Vector   Vector
	Distance float32
}

// TopK runs a nearest-neighbor query for query, returning up to k results
// sorted ascending by distance. ef defaults to the engine's configured
// EfSearch (or k, whichever is larger) when 0.
func (e *Engine) TopK(ctx context.Context, query Vector, k int, ef int) ([]SearchResult, error) {
	if err := query.Validate(e.dimension); err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, newError("topk", KindInvalidArgument, fmt.Errorf("k must be >= 1, got %d", k))
	}
	results, err := e.inner.TopK(ctx, []float32(query), k, ef)
	if err != nil {
		return nil, translateErr("topk", err)
	}
	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{ID: fromStoreID(r.ID), Vector: Vector(r.Vector), Distance: r.Distance}
	}
	return out, nil
}

// Flush synchronously persists any write-behind state; a no-op for the
// in-memory backing.
func (e *Engine) Flush(ctx context.Context) error {
	if err := e.inner.Flush(ctx); err != nil {
		return translateErr("flush", err)
	}
	return nil
}

// Close flushes write-behind state and releases any file handles. The
// Engine must not be used afterward.
func (e *Engine) Close() error {
	if err := e.inner.Close(); err != nil {
		return translateErr("close", err)
	}
	e.logger.Info("index closed")
	return nil
}

func toStoreID(id NodeID) store.NodeID   { return store.NodeID(id) }
func fromStoreID(id store.NodeID) NodeID { return NodeID(id) }

func toHNSWParams(p IndexParameters) hnsw.Params {
	return hnsw.Params{
		Distance:              p.Distance,
		M:                     p.M,
		Mmax:                  p.Mmax,
		Mmax0:                 p.Mmax0,
		EfConstruction:        p.EfConstruction,
		EfSearch:              p.EfSearch,
		ML:                    p.ML,
		ExtendCandidates:      p.ExtendCandidates,
		KeepPrunedConnections: p.KeepPrunedConnections,
		Seed:                  p.Seed,
	}
}

func fromHNSWParams(p hnsw.Params) IndexParameters {
	return IndexParameters{
		Distance:              p.Distance,
		M:                     p.M,
		Mmax:                  p.Mmax,
		Mmax0:                 p.Mmax0,
		EfConstruction:        p.EfConstruction,
		EfSearch:              p.EfSearch,
		ML:                    p.ML,
		ExtendCandidates:      p.ExtendCandidates,
		KeepPrunedConnections: p.KeepPrunedConnections,
		Seed:                  p.Seed,
	}
}

// translateErr classifies an error from pkg/hnsw or pkg/store into the
// public Kind taxonomy, wrapping it with operation context.
func translateErr(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, hnsw.ErrInvalidArgument):
		return newError(op, KindInvalidArgument, err)
	case errors.Is(err, hnsw.ErrCorruptionPossible):
		return newError(op, KindCorruptionPossible, err)
	case errors.Is(err, hnsw.ErrClosed):
		return newError(op, KindIOError, err)
	case errors.Is(err, store.ErrNotFound):
		return newError(op, KindNotFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newError(op, KindCancelled, err)
	default:
		return newError(op, KindIOError, err)
	}
}
