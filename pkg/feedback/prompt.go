package feedback

import (
	"fmt"
	"strings"

	"github.com/vango-go/posecoach/pkg/game"
)

// DefaultPersona is the system instruction sent with every prompt.
const DefaultPersona = "You are an experienced yoga instructor providing real-time feedback on student poses. " +
	"Focus on being encouraging while providing specific, actionable improvements."

// FallbackText is returned to the client when the model cannot be reached.
const FallbackText = "Nice work holding the pose. Keep your breath steady, focus on alignment, and try again when you're ready."

// BuildPrompt renders the coaching prompt for one processed sample. It
// reflects the state after the sample was applied.
func BuildPrompt(sample game.Sample, st *game.State, turn game.TurnResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a professional yoga instructor. Analyze the following pose accuracy data for %s.\n\n", sample.PoseName)
	fmt.Fprintf(&b, "Overall pose accuracy: %.1f%% (%s)\n", sample.OverallAccuracy, turn.Rating)
	fmt.Fprintf(&b, "Current streak: %d\n", st.CurrentStreak)
	fmt.Fprintf(&b, "Level: %d (total score %d, +%d this pose)\n", turn.Level, turn.TotalScore, turn.Score)
	if turn.LevelUp {
		fmt.Fprintf(&b, "The student just reached level %d.\n", turn.Level)
	}
	if len(turn.NewAchievements) > 0 {
		fmt.Fprintf(&b, "New achievements unlocked: %s\n", strings.Join(turn.NewAchievements, ", "))
	}

	if names := sample.SegmentNames(); len(names) > 0 {
		b.WriteString("\nSegment accuracies:\n")
		for _, name := range names {
			fmt.Fprintf(&b, "- %s: %.1f%%\n", name, sample.SegmentAccuracies[name].Accuracy)
		}
	}

	b.WriteString("\nPlease provide:\n")
	b.WriteString("1. A brief assessment of the overall pose\n")
	b.WriteString("2. Specific tips for improving the segments with lower accuracy\n")
	b.WriteString("3. Any safety reminders relevant to this pose\n")
	b.WriteString("4. Encouragement that acknowledges their progress\n\n")
	b.WriteString("Keep the response concise and actionable.")
	return b.String()
}
