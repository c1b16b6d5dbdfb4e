package hnsw

import (
	"container/heap"
	"sort"

	"github.com/liliang-cn/hnswlite/pkg/store"
)

// candidate pairs a node id with its distance to the query vector driving
// the current search. less gives the tie-break rule used throughout: equal
// distances prefer the numerically smaller id.
type candidate struct {
	id   store.NodeID
	dist float32
}

func less(a, b candidate) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return idLess(a.id, b.id)
}

func idLess(a, b store.NodeID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// minHeap pops the closest candidate first; used as the candidate frontier
// during beam search.
type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)         { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// maxHeap pops the farthest candidate first; used to hold the current best
// ef results so the farthest can be evicted in O(log ef).
type maxHeap []candidate

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return less(h[j], h[i]) }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// searchLayer runs the standard HNSW beam search at layer, starting from
// entryIDs, and returns up to ef results sorted ascending by distance.
func searchLayer(c *searchContext, entryIDs []store.NodeID, layer int, ef int) ([]candidate, error) {
	if err := c.ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.prefetch(entryIDs); err != nil {
		return nil, err
	}

	visited := make(map[store.NodeID]struct{}, len(entryIDs))
	candidates := &minHeap{}
	results := &maxHeap{}

	for _, id := range entryIDs {
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}
		d, err := c.distance(id)
		if err != nil {
			continue // entry id absent from this snapshot; skip it
		}
		cand := candidate{id: id, dist: d}
		heap.Push(candidates, cand)
		heap.Push(results, cand)
		if results.Len() > ef {
			heap.Pop(results)
		}
	}

	for candidates.Len() > 0 {
		if err := c.ctx.Err(); err != nil {
			return nil, err
		}
		cur := heap.Pop(candidates).(candidate)

		if results.Len() >= ef {
			worst := (*results)[0]
			if less(worst, cur) {
				break
			}
		}

		node, err := c.get(cur.id)
		if err != nil {
			continue
		}
		var unseen []store.NodeID
		for _, n := range node.Neighbors[layer] {
			if _, ok := visited[n]; !ok {
				unseen = append(unseen, n)
			}
		}
		if len(unseen) == 0 {
			continue
		}
		if err := c.prefetch(unseen); err != nil {
			return nil, err
		}
		for _, n := range unseen {
			if _, ok := visited[n]; ok {
				continue
			}
			visited[n] = struct{}{}
			d, err := c.distance(n)
			if err != nil {
				continue
			}
			cand := candidate{id: n, dist: d}
			if results.Len() < ef {
				heap.Push(candidates, cand)
				heap.Push(results, cand)
			} else if less(cand, (*results)[0]) {
				heap.Push(candidates, cand)
				heap.Push(results, cand)
				heap.Pop(results)
			}
		}
	}

	out := make([]candidate, len(*results))
	copy(out, *results)
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

// greedySearch descends from entryID toward query at layer, always moving
// to a strictly closer neighbor, returning the locally-closest id reached.
func greedySearch(c *searchContext, entryID store.NodeID, layer int) (store.NodeID, error) {
	current := entryID
	currentDist, err := c.distance(current)
	if err != nil {
		return current, err
	}
	for {
		if err := c.ctx.Err(); err != nil {
			return current, err
		}
		node, err := c.get(current)
		if err != nil {
			return current, err
		}
		neighbors := node.Neighbors[layer]
		if len(neighbors) == 0 {
			return current, nil
		}
		if err := c.prefetch(neighbors); err != nil {
			return current, err
		}
		best := current
		bestDist := currentDist
		for _, n := range neighbors {
			d, err := c.distance(n)
			if err != nil {
				continue
			}
			if d < bestDist {
				best, bestDist = n, d
			}
		}
		if best == current {
			return current, nil
		}
		current, currentDist = best, bestDist
	}
}

// selectNeighborsHeuristic implements Malkov's neighbor-selection rule: it
// iterates candidates in increasing distance to the new node and accepts c
// iff it is closer to the new node than to every candidate already
// accepted. extendCandidates unions in one-hop neighbors of the initial
// candidates before running the rule; keepPruned fills remaining slots from
// rejected candidates, in distance order, once the rule has run out of
// acceptable picks.
func selectNeighborsHeuristic(c *searchContext, candidates []candidate, m int, extendCandidates, keepPruned bool) ([]store.NodeID, error) {
	if extendCandidates {
		seen := make(map[store.NodeID]struct{}, len(candidates))
		for _, cand := range candidates {
			seen[cand.id] = struct{}{}
		}
		var extra []store.NodeID
		for _, cand := range candidates {
			node, err := c.get(cand.id)
			if err != nil {
				continue
			}
			for layer := range node.Neighbors {
				for _, n := range node.Neighbors[layer] {
					if _, ok := seen[n]; !ok {
						seen[n] = struct{}{}
						extra = append(extra, n)
					}
				}
			}
		}
		if len(extra) > 0 {
			if err := c.prefetch(extra); err != nil {
				return nil, err
			}
			for _, id := range extra {
				d, err := c.distance(id)
				if err != nil {
					continue
				}
				candidates = append(candidates, candidate{id: id, dist: d})
			}
		}
	}

	sorted := make([]candidate, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })

	var accepted []candidate
	var rejected []candidate
	for _, cand := range sorted {
		if len(accepted) >= m {
			break
		}
		accept, err := isCloserToNewThanToAccepted(c, cand, accepted)
		if err != nil {
			continue
		}
		if accept {
			accepted = append(accepted, cand)
		} else {
			rejected = append(rejected, cand)
		}
	}

	if keepPruned {
		for _, cand := range rejected {
			if len(accepted) >= m {
				break
			}
			accepted = append(accepted, cand)
		}
	}

	out := make([]store.NodeID, len(accepted))
	for i, cand := range accepted {
		out[i] = cand.id
	}
	return out, nil
}

// isCloserToNewThanToAccepted reports whether cand is closer to the query
// node (implicit in c) than to every node already accepted, per Malkov §4.
func isCloserToNewThanToAccepted(c *searchContext, cand candidate, accepted []candidate) (bool, error) {
	candNode, err := c.get(cand.id)
	if err != nil {
		return false, err
	}
	for _, a := range accepted {
		aNode, err := c.get(a.id)
		if err != nil {
			return false, err
		}
		if c.dist(candNode.Vector, aNode.Vector) <= cand.dist {
			return false, nil
		}
	}
	return true, nil
}
