// Package extract computes the six normalized liveness signals from camera
// frames. Every exported signal function returns a score in [0,1].
package extract

// ClampScale maps a raw measurement onto [0,1] in three zones: below min the
// score rises linearly from 0 to floor, between min and optimal it rises
// linearly from floor to 1, and at or above optimal it saturates at 1.
func ClampScale(value, min, optimal, floor float64) float64 {
	var score float64
	switch {
	case value >= optimal:
		score = 1
	case value >= min:
		score = floor + (1-floor)*(value-min)/(optimal-min)
	case min > 0:
		score = value / min * floor
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
