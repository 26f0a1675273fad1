package mixer

import "math"

// lerp performs linear interpolation between two values.
func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

// clamp restricts a value to a range.
func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// clampWeight restricts a layer weight to [0, 1]. NaN maps to 0.
func clampWeight(w float64) float64 {
	if math.IsNaN(w) {
		return 0
	}
	return clamp(w, 0, 1)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
