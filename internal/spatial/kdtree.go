package spatial

import (
	"container/heap"
	"sort"
)

const defaultLeafCapacity = 10

// kdTree is a static kd-tree over a flat point array. Axes cycle with depth;
// leaves hold up to leafCapacity points. The tree never mutates after
// construction; Rebuild swaps in a fresh tree.
type kdTree struct {
	flat         []float32 // count*dims, point i at flat[i*dims:]
	dims         int
	count        int
	leafCapacity int
	dist         distFunc
	nodes        []kdNode
	order        []int32 // permutation of point indices, leaves own ranges
	root         int32
}

type kdNode struct {
	axis       int32
	split      float32
	left       int32 // -1 on leaves
	right      int32
	start, end int32 // order range, leaves only
}

func buildKDTree(points [][]float32, dims, leafCapacity int) *kdTree {
	count := len(points)
	flat := make([]float32, 0, count*dims)
	for _, p := range points {
		flat = append(flat, p...)
	}
	order := make([]int32, count)
	for i := range order {
		order[i] = int32(i)
	}
	t := &kdTree{
		flat:         flat,
		dims:         dims,
		count:        count,
		leafCapacity: leafCapacity,
		dist:         distForDims(dims),
		order:        order,
	}
	t.root = t.build(0, int32(count), 0)
	return t
}

func (t *kdTree) build(start, end int32, depth int) int32 {
	id := int32(len(t.nodes))
	t.nodes = append(t.nodes, kdNode{left: -1, right: -1, start: start, end: end})
	if end-start <= int32(t.leafCapacity) {
		return id
	}
	axis := depth % t.dims
	seg := t.order[start:end]
	sort.Slice(seg, func(i, j int) bool {
		return t.coord(seg[i], axis) < t.coord(seg[j], axis)
	})
	mid := start + (end-start)/2
	split := t.coord(t.order[mid], axis)

	left := t.build(start, mid, depth+1)
	right := t.build(mid, end, depth+1)
	t.nodes[id].axis = int32(axis)
	t.nodes[id].split = split
	t.nodes[id].left = left
	t.nodes[id].right = right
	return id
}

func (t *kdTree) coord(point int32, axis int) float32 {
	return t.flat[int(point)*t.dims+axis]
}

// neighborHeap is a bounded max-heap: the current worst of the best k sits at
// the top, so it can be evicted in O(log k).
type neighborHeap []Neighbor

func (h neighborHeap) Len() int            { return len(h) }
func (h neighborHeap) Less(i, j int) bool  { return h[i].DistSq > h[j].DistSq }
func (h neighborHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *neighborHeap) Push(x interface{}) { *h = append(*h, x.(Neighbor)) }
func (h *neighborHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func (t *kdTree) knn(query []float32, k int) []Neighbor {
	if k > t.count {
		k = t.count
	}
	best := make(neighborHeap, 0, k+1)
	t.searchKNN(t.root, query, k, &best)
	out := []Neighbor(best)
	sort.Slice(out, func(i, j int) bool { return out[i].DistSq < out[j].DistSq })
	return out
}

func (t *kdTree) searchKNN(id int32, query []float32, k int, best *neighborHeap) {
	node := &t.nodes[id]
	if node.left < 0 {
		for _, p := range t.order[node.start:node.end] {
			d := t.dist(t.flat, int(p)*t.dims, query)
			if len(*best) < k {
				heap.Push(best, Neighbor{Index: int(p), DistSq: d})
			} else if d < (*best)[0].DistSq {
				(*best)[0] = Neighbor{Index: int(p), DistSq: d}
				heap.Fix(best, 0)
			}
		}
		return
	}
	diff := query[node.axis] - node.split
	near, far := node.left, node.right
	if diff >= 0 {
		near, far = node.right, node.left
	}
	t.searchKNN(near, query, k, best)
	if len(*best) < k || diff*diff <= (*best)[0].DistSq {
		t.searchKNN(far, query, k, best)
	}
}

func (t *kdTree) radius(query []float32, squaredRadius float32, maxResults int) []Neighbor {
	var matches []Neighbor
	t.searchRadius(t.root, query, squaredRadius, &matches)
	sort.Slice(matches, func(i, j int) bool { return matches[i].DistSq < matches[j].DistSq })
	if len(matches) > maxResults {
		matches = matches[:maxResults]
	}
	return matches
}

func (t *kdTree) searchRadius(id int32, query []float32, squaredRadius float32, matches *[]Neighbor) {
	node := &t.nodes[id]
	if node.left < 0 {
		for _, p := range t.order[node.start:node.end] {
			d := t.dist(t.flat, int(p)*t.dims, query)
			if d <= squaredRadius {
				*matches = append(*matches, Neighbor{Index: int(p), DistSq: d})
			}
		}
		return
	}
	diff := query[node.axis] - node.split
	near, far := node.left, node.right
	if diff >= 0 {
		near, far = node.right, node.left
	}
	t.searchRadius(near, query, squaredRadius, matches)
	if diff*diff <= squaredRadius {
		t.searchRadius(far, query, squaredRadius, matches)
	}
}

const kdNodeBytes = 24

func (t *kdTree) memoryUsage() int {
	return len(t.flat)*4 + len(t.order)*4 + len(t.nodes)*kdNodeBytes
}
