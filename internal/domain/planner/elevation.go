package planner

// CalculateElevationStats sums the positive and negative consecutive deltas.
// Fewer than two samples yield (0, 0).
func CalculateElevationStats(elevations []float64) (gain, loss float64) {
	for i := 1; i < len(elevations); i++ {
		delta := elevations[i] - elevations[i-1]
		if delta > 0 {
			gain += delta
		} else {
			loss -= delta
		}
	}
	return gain, loss
}

// SampleIndices picks at most limit evenly spaced indices from [0, n),
// always keeping the first and last index.
func SampleIndices(n, limit int) []int {
	if n <= 0 {
		return nil
	}
	if limit <= 0 || n <= limit {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	if limit == 1 {
		return []int{0}
	}
	out := make([]int, 0, limit)
	step := float64(n-1) / float64(limit-1)
	last := -1
	for i := 0; i < limit; i++ {
		idx := int(float64(i)*step + 0.5)
		if idx > n-1 {
			idx = n - 1
		}
		if idx == last {
			continue
		}
		out = append(out, idx)
		last = idx
	}
	return out
}

// InterpolateSamples expands values measured at the sampled indices back to
// n points using linear interpolation.
func InterpolateSamples(indices []int, values []float64, n int) []float64 {
	if n <= 0 || len(indices) == 0 || len(indices) != len(values) {
		return nil
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		if i <= indices[0] {
			out[i] = values[0]
			continue
		}
		if i >= indices[len(indices)-1] {
			out[i] = values[len(values)-1]
			continue
		}
		for k := 1; k < len(indices); k++ {
			if i > indices[k] {
				continue
			}
			lo, hi := indices[k-1], indices[k]
			frac := float64(i-lo) / float64(hi-lo)
			out[i] = values[k-1] + frac*(values[k]-values[k-1])
			break
		}
	}
	return out
}

// RouteCoordinates flattens segment geometry, dropping the shared junction
// point at each segment boundary.
func RouteCoordinates(segments []RouteSegment) []Coordinate {
	var out []Coordinate
	for i, seg := range segments {
		coords := seg.Coordinates
		if i > 0 && len(out) > 0 && len(coords) > 0 && coords[0] == out[len(out)-1] {
			coords = coords[1:]
		}
		out = append(out, coords...)
	}
	return out
}
