package metrics

import (
	"context"
	"time"

	"github.com/vango-go/posecoach/pkg/game"
)

// FeedbackGenerator matches the live session's feedback dependency.
type FeedbackGenerator interface {
	Generate(ctx context.Context, sample game.Sample, st *game.State, turn game.TurnResult) (string, error)
}

// InstrumentFeedback wraps next so every call records the turn outcome and the
// generation latency. A nil m returns next unchanged.
func InstrumentFeedback(next FeedbackGenerator, m *Metrics, provider string) FeedbackGenerator {
	if m == nil || next == nil {
		return next
	}
	return instrumentedFeedback{next: next, m: m, provider: provider}
}

type instrumentedFeedback struct {
	next     FeedbackGenerator
	m        *Metrics
	provider string
}

func (f instrumentedFeedback) Generate(ctx context.Context, sample game.Sample, st *game.State, turn game.TurnResult) (string, error) {
	f.m.RecordTurn(turn)
	start := time.Now()
	text, err := f.next.Generate(ctx, sample, st, turn)
	f.m.RecordFeedback(f.provider, err, time.Since(start))
	return text, err
}
