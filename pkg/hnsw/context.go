package hnsw

import (
	"context"

	"github.com/liliang-cn/hnswlite/pkg/metric"
	"github.com/liliang-cn/hnswlite/pkg/store"
)

// searchContext is the short-lived, per-operation node cache described for
// graph traversal: a top-k query or an insertion walk opens one, uses it for
// the whole walk, and discards it before returning; degree repair opens its
// own, centred on the node being repaired. It is never shared across
// goroutines.
type searchContext struct {
	ctx    context.Context
	nodes  store.NodeStore
	dist   metric.Func
	query  []float32
	cache  map[store.NodeID]*store.Node
	absent map[store.NodeID]struct{}
}

func newSearchContext(ctx context.Context, nodes store.NodeStore, dist metric.Func, query []float32) *searchContext {
	return &searchContext{
		ctx:    ctx,
		nodes:  nodes,
		dist:   dist,
		query:  query,
		cache:  make(map[store.NodeID]*store.Node),
		absent: make(map[store.NodeID]struct{}),
	}
}

// prefetch bulk-loads every id not already cached or known-absent, via a
// single node storage get-many call.
func (c *searchContext) prefetch(ids []store.NodeID) error {
	if err := c.ctx.Err(); err != nil {
		return err
	}
	var missing []store.NodeID
	for _, id := range ids {
		if _, ok := c.cache[id]; ok {
			continue
		}
		if _, ok := c.absent[id]; ok {
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return nil
	}
	found, err := c.nodes.GetMany(c.ctx, missing)
	if err != nil {
		return err
	}
	for _, id := range missing {
		if n, ok := found[id]; ok {
			c.cache[id] = n
		} else {
			c.absent[id] = struct{}{}
		}
	}
	return nil
}

// get returns the cached node for id, prefetching it alone if it has not
// been seen by this context yet.
func (c *searchContext) get(id store.NodeID) (*store.Node, error) {
	if n, ok := c.cache[id]; ok {
		return n, nil
	}
	if _, ok := c.absent[id]; ok {
		return nil, store.ErrNotFound
	}
	if err := c.prefetch([]store.NodeID{id}); err != nil {
		return nil, err
	}
	if n, ok := c.cache[id]; ok {
		return n, nil
	}
	return nil, store.ErrNotFound
}

// distance computes f(query, node-at-id.vector), fetching the node first if
// it is not already cached.
func (c *searchContext) distance(id store.NodeID) (float32, error) {
	n, err := c.get(id)
	if err != nil {
		return 0, err
	}
	return c.dist(c.query, n.Vector), nil
}
