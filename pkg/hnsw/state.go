package hnsw

import (
	"context"
	"fmt"
	"sort"

	"github.com/liliang-cn/hnswlite/pkg/metric"
	"github.com/liliang-cn/hnswlite/pkg/store"
)

// ExportState returns a full snapshot: dimension, parameters, entry point,
// and every node with its layer and neighbor sets.
func (e *Engine) ExportState(ctx context.Context) (*State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
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
	ids, err := e.nodes.ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	nodes := make([]StateNode, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		node, err := e.nodes.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		layer, err := e.layers.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, StateNode{
			ID:        id,
			Vector:    append([]float32(nil), node.Vector...),
			Layer:     layer,
			Neighbors: cloneNeighbors(node.Neighbors),
		})
	}

	sort.Slice(nodes, func(i, j int) bool { return idLess(nodes[i].ID, nodes[j].ID) })

	return &State{
		VectorDimension: e.dimension,
		Parameters:      e.params,
		EntryPointID:    entryID,
		HasEntryPoint:   hasEntry,
		Nodes:           nodes,
	}, nil
}

func cloneNeighbors(m map[int][]store.NodeID) map[int][]store.NodeID {
	if m == nil {
		return nil
	}
	out := make(map[int][]store.NodeID, len(m))
	for layer, ids := range m {
		out[layer] = append([]store.NodeID(nil), ids...)
	}
	return out
}

// ImportState validates state and, if valid, replaces the engine's entire
// contents with it: vectors and layers are bulk-inserted, neighbor sets
// are installed directly without re-running the insertion algorithm, and
// the entry point and parameters are adopted as given.
func (e *Engine) ImportState(ctx context.Context, state *State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateState(state); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	dist, err := metric.Lookup(state.Parameters.Distance)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	if err := e.nodes.Clear(ctx); err != nil {
		return err
	}
	if err := e.layers.Clear(ctx); err != nil {
		return err
	}

	items := make(map[store.NodeID][]float32, len(state.Nodes))
	for _, n := range state.Nodes {
		items[n.ID] = n.Vector
	}
	if len(items) > 0 {
		if err := e.nodes.AddBatch(ctx, items); err != nil {
			return err
		}
	}
	for _, n := range state.Nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.layers.Set(ctx, n.ID, n.Layer); err != nil {
			return err
		}
		for layer, ids := range n.Neighbors {
			if err := e.nodes.SetNeighbors(ctx, n.ID, layer, ids); err != nil {
				return err
			}
		}
	}

	if state.HasEntryPoint {
		if err := e.nodes.SetEntryPoint(ctx, state.EntryPointID); err != nil {
			return err
		}
	} else {
		if err := e.nodes.SetEntryPoint(ctx, store.ZeroNodeID); err != nil {
			return err
		}
	}

	e.dimension = state.VectorDimension
	e.params = state.Parameters
	e.dist = dist
	return e.nodes.Flush(ctx)
}

// validateState checks the §4.5 import preconditions: coherent parameters,
// every vector matching the declared dimension, the entry point (if set)
// present among the nodes, every referenced neighbor present, and every
// neighbor's layer not exceeding the layer of the node holding it.
func validateState(state *State) error {
	if state == nil {
		return fmt.Errorf("%w: state must not be nil", ErrInvalidArgument)
	}
	if state.VectorDimension < 1 || state.VectorDimension > 4096 {
		return fmt.Errorf("%w: vectorDimension must be in [1, 4096], got %d", ErrInvalidArgument, state.VectorDimension)
	}
	if state.Parameters.M < 1 {
		return fmt.Errorf("%w: M must be >= 1", ErrInvalidArgument)
	}
	if state.Parameters.Mmax < state.Parameters.M || state.Parameters.Mmax0 < state.Parameters.M {
		return fmt.Errorf("%w: Mmax/Mmax0 must be >= M", ErrInvalidArgument)
	}
	if state.Parameters.EfConstruction < 1 {
		return fmt.Errorf("%w: efConstruction must be >= 1", ErrInvalidArgument)
	}
	if state.Parameters.ML <= 0 {
		return fmt.Errorf("%w: mL must be > 0", ErrInvalidArgument)
	}

	byID := make(map[store.NodeID]StateNode, len(state.Nodes))
	for _, n := range state.Nodes {
		if n.ID.IsZero() {
			return fmt.Errorf("%w: node id must not be the zero value", ErrInvalidArgument)
		}
		if len(n.Vector) != state.VectorDimension {
			return fmt.Errorf("%w: node %s vector dimension mismatch", ErrInvalidArgument, n.ID)
		}
		if n.Layer < 0 || n.Layer > MaxLayer {
			return fmt.Errorf("%w: node %s layer out of range", ErrInvalidArgument, n.ID)
		}
		byID[n.ID] = n
	}
	if state.HasEntryPoint {
		if _, ok := byID[state.EntryPointID]; !ok {
			return fmt.Errorf("%w: entry point id not present among nodes", ErrInvalidArgument)
		}
	}
	for _, n := range state.Nodes {
		for layer, neighbors := range n.Neighbors {
			if layer > n.Layer {
				return fmt.Errorf("%w: node %s has neighbors at layer %d above its own layer %d", ErrInvalidArgument, n.ID, layer, n.Layer)
			}
			for _, nb := range neighbors {
				target, ok := byID[nb]
				if !ok {
					return fmt.Errorf("%w: node %s references unknown neighbor %s", ErrInvalidArgument, n.ID, nb)
				}
				if layer > target.Layer {
					return fmt.Errorf("%w: neighbor %s at layer %d is below that layer itself", ErrInvalidArgument, nb, layer)
				}
			}
		}
	}
	return nil
}
