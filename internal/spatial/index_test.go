package spatial

import (
	"math"
	"math/rand"
	"sort"
	"testing"
)

func buildGrid(t *testing.T, r *Registry) (Handle, [][]float32) {
	t.Helper()
	points := [][]float32{
		{0, 0}, {1, 0}, {0, 1}, {1, 1},
		{5, 5}, {6, 5}, {5, 6}, {6, 6},
	}
	h := r.Build(points, 2)
	if h == 0 {
		t.Fatalf("expected a valid handle")
	}
	return h, points
}

func TestBuildRejectsBadInput(t *testing.T) {
	r := NewRegistry()
	if h := r.Build(nil, 0); h != 0 {
		t.Fatalf("expected invalid handle for empty set, got %d", h)
	}
	if h := r.Build([][]float32{{}}, 0); h != 0 {
		t.Fatalf("expected invalid handle for zero dims, got %d", h)
	}
	if h := r.Build([][]float32{{1, 2}, {1, 2, 3}}, 0); h != 0 {
		t.Fatalf("expected invalid handle for ragged points, got %d", h)
	}
}

func TestKNNFindsExactPoint(t *testing.T) {
	r := NewRegistry()
	h, points := buildGrid(t, r)

	for i, p := range points {
		got := r.KNN(h, p, 1)
		if len(got) != 1 {
			t.Fatalf("point %d: expected 1 neighbor, got %d", i, len(got))
		}
		if got[0].Index != i || got[0].DistSq != 0 {
			t.Fatalf("point %d: expected itself at distance 0, got %+v", i, got[0])
		}
	}
}

func TestKNNSortedAndTruncated(t *testing.T) {
	r := NewRegistry()
	h, points := buildGrid(t, r)

	got := r.KNN(h, []float32{0.1, 0.1}, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 neighbors, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].DistSq < got[i-1].DistSq {
			t.Fatalf("neighbors not sorted ascending: %+v", got)
		}
	}
	if got[0].Index != 0 {
		t.Fatalf("expected origin closest to (0.1, 0.1), got %+v", got[0])
	}

	// k beyond the point count clamps to the point count.
	all := r.KNN(h, []float32{0, 0}, 100)
	if len(all) != len(points) {
		t.Fatalf("expected %d neighbors, got %d", len(points), len(all))
	}
}

func TestKNNMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, dims := range []int{2, 3, 4, 8, 5} {
		points := make([][]float32, 300)
		for i := range points {
			p := make([]float32, dims)
			for d := range p {
				p[d] = rng.Float32() * 10
			}
			points[i] = p
		}
		r := NewRegistry()
		h := r.Build(points, 4)

		query := make([]float32, dims)
		for d := range query {
			query[d] = rng.Float32() * 10
		}
		got := r.KNN(h, query, 10)

		type pair struct {
			idx  int
			dist float32
		}
		brute := make([]pair, len(points))
		for i, p := range points {
			var sum float64
			for d := range p {
				diff := float64(p[d] - query[d])
				sum += diff * diff
			}
			brute[i] = pair{idx: i, dist: float32(sum)}
		}
		sort.Slice(brute, func(i, j int) bool { return brute[i].dist < brute[j].dist })

		if len(got) != 10 {
			t.Fatalf("dims %d: expected 10 neighbors, got %d", dims, len(got))
		}
		for i := range got {
			if math.Abs(float64(got[i].DistSq-brute[i].dist)) > 1e-4 {
				t.Fatalf("dims %d: neighbor %d distance %f, brute force %f", dims, i, got[i].DistSq, brute[i].dist)
			}
		}
	}
}

func TestRadiusClosestFirst(t *testing.T) {
	r := NewRegistry()
	h, _ := buildGrid(t, r)

	// Radius 0 catches only the coincident point.
	got := r.Radius(h, []float32{5, 5}, 0, 10)
	if len(got) != 1 || got[0].Index != 4 {
		t.Fatalf("expected only the coincident point, got %+v", got)
	}

	// Squared radius 1 covers the unit cluster around the origin.
	got = r.Radius(h, []float32{0, 0}, 1, 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 matches within radius, got %d", len(got))
	}
	if got[0].Index != 0 || got[0].DistSq != 0 {
		t.Fatalf("expected origin first, got %+v", got[0])
	}

	// maxResults truncates after sorting, keeping the closest.
	got = r.Radius(h, []float32{0, 0}, 100, 2)
	if len(got) != 2 || got[0].Index != 0 {
		t.Fatalf("expected the 2 closest, got %+v", got)
	}
}

func TestRebuildReplacesPoints(t *testing.T) {
	r := NewRegistry()
	h, _ := buildGrid(t, r)

	moved := [][]float32{{10, 10}, {20, 20}}
	if !r.Rebuild(h, moved) {
		t.Fatalf("expected rebuild to succeed")
	}
	if r.PointCount(h) != 2 {
		t.Fatalf("expected 2 points after rebuild, got %d", r.PointCount(h))
	}
	got := r.KNN(h, []float32{11, 11}, 1)
	if len(got) != 1 || got[0].Index != 0 {
		t.Fatalf("expected moved point 0 nearest, got %+v", got)
	}

	// Dimensionality is fixed at build time.
	if r.Rebuild(h, [][]float32{{1, 2, 3}}) {
		t.Fatalf("expected dimension mismatch to be rejected")
	}
	if r.Rebuild(h, nil) {
		t.Fatalf("expected empty rebuild to be rejected")
	}
}

func TestReleasedAndInvalidHandles(t *testing.T) {
	r := NewRegistry()
	h, _ := buildGrid(t, r)

	if got := r.KNN(0, []float32{0, 0}, 1); got != nil {
		t.Fatalf("zero handle must return nothing, got %+v", got)
	}
	r.Release(h)
	if got := r.KNN(h, []float32{0, 0}, 1); got != nil {
		t.Fatalf("released handle must return nothing, got %+v", got)
	}
	if r.PointCount(h) != 0 || r.Dimensions(h) != 0 || r.ApproximateMemoryUsage(h) != 0 {
		t.Fatalf("released handle must report zero sizes")
	}
	// Double release is a no-op.
	r.Release(h)
	r.Release(0)
}

func TestIndexMetadata(t *testing.T) {
	r := NewRegistry()
	h, points := buildGrid(t, r)

	if r.PointCount(h) != len(points) {
		t.Fatalf("expected %d points, got %d", len(points), r.PointCount(h))
	}
	if r.Dimensions(h) != 2 {
		t.Fatalf("expected 2 dims, got %d", r.Dimensions(h))
	}
	if r.ApproximateMemoryUsage(h) <= 0 {
		t.Fatalf("expected positive memory usage")
	}

	// Query dimensionality must match the index.
	if got := r.KNN(h, []float32{1, 2, 3}, 1); got != nil {
		t.Fatalf("mismatched query dims must return nothing, got %+v", got)
	}
}
