package game

import "sort"

// SegmentAccuracy is the measured accuracy of one body segment.
type SegmentAccuracy struct {
	Accuracy float64
}

// Sample is one pose measurement reported by a client. The wire decoding
// lives in the protocol package.
type Sample struct {
	PoseName            string
	OverallAccuracy     float64
	SegmentAccuracies   map[string]SegmentAccuracy
	CurrentStreak       int
	TotalPosesCompleted int
}

// SegmentNames returns the sample's segment names in sorted order.
func (s Sample) SegmentNames() []string {
	names := make([]string, 0, len(s.SegmentAccuracies))
	for name := range s.SegmentAccuracies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TurnResult is the outcome of processing one sample.
type TurnResult struct {
	Score           int
	TotalScore      int
	Level           int
	LevelUp         bool
	LevelsGained    int
	NewAchievements []string
	Rating          string
}

// State is the game progress of a single connection. It is not safe for
// concurrent use; the owning session serializes access.
type State struct {
	CurrentLevel     int
	TotalScore       int
	CurrentStreak    int
	HighestAccuracy  float64
	SamplesProcessed int

	achievements    map[string]struct{}
	achievementList []string
	mastered        map[string]struct{}
	masteredList    []string
}

// NewState returns the initial state for a fresh connection.
func NewState() *State {
	return &State{
		CurrentLevel: 1,
		achievements: make(map[string]struct{}),
		mastered:     make(map[string]struct{}),
	}
}

// HasAchievement reports whether key has been unlocked.
func (s *State) HasAchievement(key string) bool {
	_, ok := s.achievements[key]
	return ok
}

// Achievements returns unlocked achievement keys in unlock order.
func (s *State) Achievements() []string {
	return append([]string(nil), s.achievementList...)
}

// PosesMastered returns mastered pose names in the order they were mastered.
func (s *State) PosesMastered() []string {
	return append([]string(nil), s.masteredList...)
}

// IsMastered reports whether pose has been mastered.
func (s *State) IsMastered(pose string) bool {
	_, ok := s.mastered[pose]
	return ok
}

func (s *State) addAchievement(key string) {
	if s.achievements == nil {
		s.achievements = make(map[string]struct{})
	}
	s.achievements[key] = struct{}{}
	s.achievementList = append(s.achievementList, key)
}

func (s *State) addMastered(pose string) {
	if s.mastered == nil {
		s.mastered = make(map[string]struct{})
	}
	if _, ok := s.mastered[pose]; ok {
		return
	}
	s.mastered[pose] = struct{}{}
	s.masteredList = append(s.masteredList, pose)
}

// Process applies one sample to the state and returns the turn outcome.
//
// Order matters: the streak is adopted from the sample before scoring, the
// credited score is floored at zero so TotalScore never decreases, and the
// level comparison uses the level held before this sample.
func (s *State) Process(sample Sample) TurnResult {
	if s.CurrentLevel < 1 {
		s.CurrentLevel = 1
	}
	acc := sample.OverallAccuracy

	s.CurrentStreak = sample.CurrentStreak
	if acc > s.HighestAccuracy {
		s.HighestAccuracy = acc
	}

	score := ComputeScore(acc, s.CurrentStreak)
	credited := max(score, 0)
	s.TotalScore += credited

	oldLevel := s.CurrentLevel
	newLevel := LevelFor(s.TotalScore)
	gained := 0
	if newLevel > oldLevel {
		gained = newLevel - oldLevel
		s.CurrentLevel = newLevel
	}

	unlocked := EvaluateAchievements(acc, s.CurrentStreak, sample.TotalPosesCompleted, sample.PoseName, s)
	s.SamplesProcessed++

	return TurnResult{
		Score:           credited,
		TotalScore:      s.TotalScore,
		Level:           s.CurrentLevel,
		LevelUp:         gained > 0,
		LevelsGained:    gained,
		NewAchievements: unlocked,
		Rating:          Rating(acc),
	}
}
