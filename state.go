package hnswlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/liliang-cn/hnswlite/pkg/hnsw"
	"github.com/liliang-cn/hnswlite/pkg/store"
)

// ExportedParameters is the parameters object within an export payload.
// Field names match the wire contract exactly; Mmax0 and EfSearch are
// carried alongside for a lossless round trip.
type ExportedParameters struct {
	M                     int     `json:"M"`
	Mmax                  int     `json:"Mmax"`
	Mmax0                 int     `json:"Mmax0"`
	EfConstruction        int     `json:"efConstruction"`
	EfSearch              int     `json:"efSearch"`
	ML                    float64 `json:"mL"`
	ExtendCandidates      bool    `json:"extendCandidates"`
	KeepPrunedConnections bool    `json:"keepPrunedConnections"`
	Seed                  int64   `json:"seed"`
	Distance              string  `json:"distance"`
}

// ExportedNode is one node within an export payload. Neighbors is keyed by
// decimal layer index as a string, since JSON object keys must be strings.
type ExportedNode struct {
	ID        string              `json:"id"`
	Vector    []float32           `json:"vector"`
	Layer     int                 `json:"layer"`
	Neighbors map[string][]string `json:"neighbors,omitempty"`
}

// ExportedState is the full language-neutral export payload (§6): object
// fields vectorDimension, parameters, entryPointId, nodes.
type ExportedState struct {
	VectorDimension int                `json:"vectorDimension"`
	Parameters      ExportedParameters `json:"parameters"`
	EntryPointID    string             `json:"entryPointId,omitempty"`
	Nodes           []ExportedNode     `json:"nodes"`
}

// ExportState returns a full snapshot of the index.
func (e *Engine) ExportState(ctx context.Context) (*ExportedState, error) {
	state, err := e.inner.ExportState(ctx)
	if err != nil {
		return nil, translateErr("export", err)
	}
	return toExportedState(state), nil
}

// ExportJSON is ExportState marshaled to the §6 JSON payload.
func (e *Engine) ExportJSON(ctx context.Context) ([]byte, error) {
	state, err := e.ExportState(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, newError("export", KindIOError, err)
	}
	return data, nil
}

// ImportState replaces the engine's entire contents with state, after
// validating it per §4.5's import preconditions.
func (e *Engine) ImportState(ctx context.Context, state *ExportedState) error {
	internal, err := fromExportedState(state)
	if err != nil {
		return err
	}
	if err := e.inner.ImportState(ctx, internal); err != nil {
		return translateErr("import", err)
	}
	e.dimension = internal.VectorDimension
	e.params = fromHNSWParams(internal.Parameters)
	return nil
}

// ImportJSON unmarshals the §6 JSON payload and imports it.
func (e *Engine) ImportJSON(ctx context.Context, data []byte) error {
	var state ExportedState
	if err := json.Unmarshal(data, &state); err != nil {
		return newError("import", KindInvalidArgument, err)
	}
	return e.ImportState(ctx, &state)
}

func toExportedState(state *hnsw.State) *ExportedState {
	out := &ExportedState{
		VectorDimension: state.VectorDimension,
		Parameters: ExportedParameters{
			M:                     state.Parameters.M,
			Mmax:                  state.Parameters.Mmax,
			Mmax0:                 state.Parameters.Mmax0,
			EfConstruction:        state.Parameters.EfConstruction,
			EfSearch:              state.Parameters.EfSearch,
			ML:                    state.Parameters.ML,
			ExtendCandidates:      state.Parameters.ExtendCandidates,
			KeepPrunedConnections: state.Parameters.KeepPrunedConnections,
			Seed:                  state.Parameters.Seed,
			Distance:              state.Parameters.Distance,
		},
		Nodes: make([]ExportedNode, len(state.Nodes)),
	}
	if state.HasEntryPoint {
		out.EntryPointID = fromStoreID(state.EntryPointID).String()
	}
	for i, n := range state.Nodes {
		node := ExportedNode{
			ID:     fromStoreID(n.ID).String(),
			Vector: n.Vector,
			Layer:  n.Layer,
		}
		if len(n.Neighbors) > 0 {
			node.Neighbors = make(map[string][]string, len(n.Neighbors))
			for layer, ids := range n.Neighbors {
				strs := make([]string, len(ids))
				for j, id := range ids {
					strs[j] = fromStoreID(id).String()
				}
				node.Neighbors[strconv.Itoa(layer)] = strs
			}
		}
		out.Nodes[i] = node
	}
	return out
}

func fromExportedState(state *ExportedState) (*hnsw.State, error) {
	if state == nil {
		return nil, newError("import", KindInvalidArgument, fmt.Errorf("state must not be nil"))
	}
	out := &hnsw.State{
		VectorDimension: state.VectorDimension,
		Parameters: hnsw.Params{
			M:                     state.Parameters.M,
			Mmax:                  state.Parameters.Mmax,
			Mmax0:                 state.Parameters.Mmax0,
			EfConstruction:        state.Parameters.EfConstruction,
			EfSearch:              state.Parameters.EfSearch,
			ML:                    state.Parameters.ML,
			ExtendCandidates:      state.Parameters.ExtendCandidates,
			KeepPrunedConnections: state.Parameters.KeepPrunedConnections,
			Seed:                  state.Parameters.Seed,
			Distance:              state.Parameters.Distance,
		},
		Nodes: make([]hnsw.StateNode, len(state.Nodes)),
	}
	if state.EntryPointID != "" {
		id, err := ParseNodeID(state.EntryPointID)
		if err != nil {
			return nil, newError("import", KindInvalidArgument, fmt.Errorf("entryPointId: %w", err))
		}
		out.EntryPointID = toStoreID(id)
		out.HasEntryPoint = true
	}
	for i, n := range state.Nodes {
		id, err := ParseNodeID(n.ID)
		if err != nil {
			return nil, newError("import", KindInvalidArgument, fmt.Errorf("node id %q: %w", n.ID, err))
		}
		node := hnsw.StateNode{ID: toStoreID(id), Vector: n.Vector, Layer: n.Layer}
		if len(n.Neighbors) > 0 {
			node.Neighbors = make(map[int][]store.NodeID, len(n.Neighbors))
			for layerStr, ids := range n.Neighbors {
				layer, err := strconv.Atoi(layerStr)
				if err != nil {
					return nil, newError("import", KindInvalidArgument, fmt.Errorf("neighbor layer key %q: %w", layerStr, err))
				}
				converted := make([]store.NodeID, len(ids))
				for j, idStr := range ids {
					nid, err := ParseNodeID(idStr)
					if err != nil {
						return nil, newError("import", KindInvalidArgument, fmt.Errorf("neighbor id %q: %w", idStr, err))
					}
					converted[j] = toStoreID(nid)
				}
				node.Neighbors[layer] = converted
			}
		}
		out.Nodes[i] = node
	}
	return out, nil
}
