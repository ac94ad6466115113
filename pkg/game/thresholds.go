// Package game implements the per-connection scoring rules: accuracy ratings,
// streak multipliers, level progression, and achievement unlocks.
package game

// Rating labels, highest first.
const (
	RatingPerfect        = "PERFECT"
	RatingExcellent      = "EXCELLENT"
	RatingGreat          = "GREAT"
	RatingGood           = "GOOD"
	RatingKeepPracticing = "KEEP PRACTICING"
)

// Accuracy thresholds in percentage points.
const (
	ThresholdPerfect   = 85.0
	ThresholdExcellent = 75.0
	ThresholdGreat     = 65.0
	ThresholdGood      = 55.0
)

const (
	// PointsPerLevel is the score span of one level. Level 1 covers [0, 1000).
	PointsPerLevel = 1000
	// BasePointsPerAccuracy converts accuracy points into base score.
	BasePointsPerAccuracy = 15

	// MasteryThreshold is the accuracy at which a pose counts as mastered.
	MasteryThreshold = ThresholdGreat
	// PerfectFormThreshold unlocks PERFECT_POSE.
	PerfectFormThreshold = ThresholdExcellent
	// StreakMasterLength unlocks STREAK_MASTER.
	StreakMasterLength = 3
	// VarietyPoseCount is the number of mastered poses that unlocks POSE_VARIETY.
	VarietyPoseCount = 3
)

// Achievement keys.
const (
	AchievementFirstPose    = "FIRST_POSE"
	AchievementPerfectPose  = "PERFECT_POSE"
	AchievementStreakMaster = "STREAK_MASTER"
	AchievementPoseVariety  = "POSE_VARIETY"
)

// AchievementLabels maps achievement keys to the label reported to clients.
var AchievementLabels = map[string]string{
	AchievementFirstPose:    "Strike a Pose",
	AchievementPerfectPose:  "Perfect Form",
	AchievementStreakMaster: "On Fire!",
	AchievementPoseVariety:  "Yoga Explorer",
}

type ratingStep struct {
	min   float64
	label string
}

// ratingSteps must stay sorted by descending min.
var ratingSteps = []ratingStep{
	{ThresholdPerfect, RatingPerfect},
	{ThresholdExcellent, RatingExcellent},
	{ThresholdGreat, RatingGreat},
	{ThresholdGood, RatingGood},
}

// StreakBonuses maps a minimum streak length to its score multiplier.
// Lookup picks the largest key not exceeding the streak, so map order is irrelevant.
var StreakBonuses = map[int]float64{
	2: 1.5,
	3: 2.0,
	5: 3.0,
}

// Rating returns the label for accuracy.
func Rating(accuracy float64) string {
	for _, step := range ratingSteps {
		if accuracy >= step.min {
			return step.label
		}
	}
	return RatingKeepPracticing
}

// StreakMultiplier returns the bonus multiplier for streak using StreakBonuses.
func StreakMultiplier(streak int) float64 {
	return streakMultiplier(StreakBonuses, streak)
}

func streakMultiplier(table map[int]float64, streak int) float64 {
	best := -1
	mult := 1.0
	for threshold, m := range table {
		if streak >= threshold && threshold > best {
			best = threshold
			mult = m
		}
	}
	return mult
}

// LevelFor returns the level reached with totalScore points.
func LevelFor(totalScore int) int {
	if totalScore < 0 {
		return 1
	}
	return totalScore/PointsPerLevel + 1
}
