// Package spatial provides the nearest-neighbor capability consumed by the
// embedding computation: build an index over a mutable point set, query it by
// k-nearest or radius, and rebuild it when positions move.
//
// Indexes are owned through opaque handles issued by a Registry rather than
// raw pointers, so lifetime is explicit and a released handle cannot be used
// by accident. A handle is exclusively owned by the worker that created it
// for the duration of one embedding computation; handles are not shared
// across goroutines.
package spatial

import (
	"sync"
)

// Handle identifies one index inside a Registry. The zero Handle is invalid;
// every query against it returns no results.
type Handle int64

// Neighbor is one query match: the point's index in the build order and the
// squared euclidean distance to the query point.
type Neighbor struct {
	Index  int
	DistSq float32
}

// Registry issues and resolves index handles. The registry itself is safe for
// concurrent use; individual indexes are not.
type Registry struct {
	mu     sync.Mutex
	next   Handle
	tables map[Handle]*kdTree
}

func NewRegistry() *Registry {
	return &Registry{tables: make(map[Handle]*kdTree)}
}

// Build constructs an index over the points and returns its handle. Every
// point must have the same dimensionality. An empty point set or zero
// dimensionality yields the invalid zero handle rather than an error.
func (r *Registry) Build(points [][]float32, leafCapacity int) Handle {
	if len(points) == 0 || len(points[0]) == 0 {
		return 0
	}
	dims := len(points[0])
	for _, p := range points {
		if len(p) != dims {
			return 0
		}
	}
	if leafCapacity < 1 {
		leafCapacity = defaultLeafCapacity
	}
	tree := buildKDTree(points, dims, leafCapacity)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	h := r.next
	r.tables[h] = tree
	return h
}

// Release destroys the index behind a handle. Releasing the zero handle or an
// unknown handle is a no-op.
func (r *Registry) Release(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tables, h)
}

// KNN returns up to k neighbors of query, sorted by ascending squared
// distance. Fewer than k are returned when the index holds fewer points.
func (r *Registry) KNN(h Handle, query []float32, k int) []Neighbor {
	tree := r.lookup(h)
	if tree == nil || k <= 0 || len(query) != tree.dims {
		return nil
	}
	return tree.knn(query, k)
}

// Radius returns up to maxResults neighbors within squaredRadius of query,
// closest first. Matches beyond maxResults are truncated.
func (r *Registry) Radius(h Handle, query []float32, squaredRadius float32, maxResults int) []Neighbor {
	tree := r.lookup(h)
	if tree == nil || maxResults <= 0 || squaredRadius < 0 || len(query) != tree.dims {
		return nil
	}
	return tree.radius(query, squaredRadius, maxResults)
}

// Rebuild replaces the entire point set behind the handle. This is a full
// reconstruction, not an incremental update. The new points must keep the
// original dimensionality; otherwise the index is left unchanged and false is
// returned.
func (r *Registry) Rebuild(h Handle, newPoints [][]float32) bool {
	r.mu.Lock()
	tree, ok := r.tables[h]
	r.mu.Unlock()
	if !ok || len(newPoints) == 0 {
		return false
	}
	for _, p := range newPoints {
		if len(p) != tree.dims {
			return false
		}
	}
	rebuilt := buildKDTree(newPoints, tree.dims, tree.leafCapacity)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tables[h]; !ok {
		return false
	}
	r.tables[h] = rebuilt
	return true
}

// PointCount reports the number of points behind a handle; zero for the
// invalid handle.
func (r *Registry) PointCount(h Handle) int {
	tree := r.lookup(h)
	if tree == nil {
		return 0
	}
	return tree.count
}

// Dimensions reports the dimensionality behind a handle; zero for the invalid
// handle.
func (r *Registry) Dimensions(h Handle) int {
	tree := r.lookup(h)
	if tree == nil {
		return 0
	}
	return tree.dims
}

// ApproximateMemoryUsage reports the bytes held by the index's point storage
// and tree nodes.
func (r *Registry) ApproximateMemoryUsage(h Handle) int {
	tree := r.lookup(h)
	if tree == nil {
		return 0
	}
	return tree.memoryUsage()
}

func (r *Registry) lookup(h Handle) *kdTree {
	if h == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tables[h]
}
