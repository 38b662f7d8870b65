package spatial

// distFunc computes the squared euclidean distance between the point starting
// at flat[offset] and the query vector.
type distFunc func(flat []float32, offset int, query []float32) float32

// distForDims selects a specialized distance path for the common embedding
// dimensionalities and falls back to the generic loop otherwise. Selection
// happens once at construction; queries pay no per-call dispatch beyond the
// function value.
func distForDims(dims int) distFunc {
	switch dims {
	case 2:
		return dist2
	case 3:
		return dist3
	case 4:
		return dist4
	case 8:
		return dist8
	default:
		return distGeneric
	}
}

func dist2(flat []float32, offset int, q []float32) float32 {
	d0 := flat[offset] - q[0]
	d1 := flat[offset+1] - q[1]
	return d0*d0 + d1*d1
}

func dist3(flat []float32, offset int, q []float32) float32 {
	d0 := flat[offset] - q[0]
	d1 := flat[offset+1] - q[1]
	d2 := flat[offset+2] - q[2]
	return d0*d0 + d1*d1 + d2*d2
}

func dist4(flat []float32, offset int, q []float32) float32 {
	d0 := flat[offset] - q[0]
	d1 := flat[offset+1] - q[1]
	d2 := flat[offset+2] - q[2]
	d3 := flat[offset+3] - q[3]
	return d0*d0 + d1*d1 + d2*d2 + d3*d3
}

func dist8(flat []float32, offset int, q []float32) float32 {
	var sum float32
	for i := 0; i < 8; i += 4 {
		d0 := flat[offset+i] - q[i]
		d1 := flat[offset+i+1] - q[i+1]
		d2 := flat[offset+i+2] - q[i+2]
		d3 := flat[offset+i+3] - q[i+3]
		sum += d0*d0 + d1*d1 + d2*d2 + d3*d3
	}
	return sum
}

func distGeneric(flat []float32, offset int, q []float32) float32 {
	var sum float32
	for i, qv := range q {
		d := flat[offset+i] - qv
		sum += d * d
	}
	return sum
}
