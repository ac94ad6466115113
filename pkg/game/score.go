package game

import "math"

// ComputeScore returns the points earned for one sample:
// floor(floor(accuracy*15) * StreakMultiplier(streak)).
// Accuracy is not clamped; a negative accuracy yields a negative score.
func ComputeScore(accuracy float64, streak int) int {
	base := math.Floor(accuracy * BasePointsPerAccuracy)
	return int(math.Floor(base * StreakMultiplier(streak)))
}
