package game

// EvaluateAchievements applies the unlock rules for one sample against st and
// returns the labels of achievements unlocked by this call, in rule order.
//
// It records newly unlocked achievements on st, and as a side effect adds
// poseName to st's mastered poses when accuracy reaches MasteryThreshold.
// Mastery is recorded before the variety rule is checked, so a third mastered
// pose unlocks POSE_VARIETY in the same call.
func EvaluateAchievements(accuracy float64, streak, totalPoses int, poseName string, st *State) []string {
	unlocked := []string{}
	unlock := func(key string) {
		if st.HasAchievement(key) {
			return
		}
		st.addAchievement(key)
		unlocked = append(unlocked, AchievementLabels[key])
	}

	if totalPoses == 1 {
		unlock(AchievementFirstPose)
	}
	if accuracy >= PerfectFormThreshold {
		unlock(AchievementPerfectPose)
	}
	if streak >= StreakMasterLength {
		unlock(AchievementStreakMaster)
	}
	if accuracy >= MasteryThreshold {
		st.addMastered(poseName)
	}
	if len(st.mastered) >= VarietyPoseCount {
		unlock(AchievementPoseVariety)
	}
	return unlocked
}
