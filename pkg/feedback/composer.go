// Package feedback turns a processed pose sample into coaching text by
// prompting a text-generation provider, and assembles the client response.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vango-go/posecoach/pkg/core"
	"github.com/vango-go/posecoach/pkg/game"
	"github.com/vango-go/posecoach/pkg/gateway/live/protocol"
)

const (
	DefaultTemperature  = 0.7
	DefaultMaxTokens    = 500
	DefaultTimeout      = 15 * time.Second
	DefaultRetries      = 1
	DefaultRetryBackoff = 500 * time.Millisecond
)

var errEmptyCompletion = errors.New("provider returned empty feedback")

// ServiceError reports that feedback text could not be produced. The turn
// itself has still been applied to the game state.
type ServiceError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("feedback: %s failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the final attempt ran out of time.
func (e *ServiceError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Composer generates coaching text. Provider must be set. Zero durations,
// MaxTokens and an empty Persona fall back to package defaults; Retries is
// used as given.
type Composer struct {
	Provider     core.Provider
	Model        string
	Temperature  float64
	MaxTokens    int
	Persona      string
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
	Logger       *slog.Logger
}

// Generate prompts the provider for feedback on a processed sample.
//
// Each attempt is bounded by Timeout. Rate-limit, overload, upstream 5xx and
// timeout failures are retried up to Retries times. Failures are returned as
// *ServiceError, except cancellation of ctx, which is returned as ctx.Err().
func (c *Composer) Generate(ctx context.Context, sample game.Sample, st *game.State, turn game.TurnResult) (string, error) {
	if c.Provider == nil {
		return "", &ServiceError{Provider: "none", Err: errors.New("no provider configured")}
	}

	req := &core.GenerateRequest{
		Model:       c.Model,
		System:      c.persona(),
		Prompt:      BuildPrompt(sample, st, turn),
		Temperature: c.Temperature,
		MaxTokens:   c.maxTokens(),
	}

	attempts := 0
	var text string
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout())
		defer cancel()

		resp, err := c.Provider.Generate(attemptCtx, req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) || core.IsRetryable(err) {
				c.logger().Debug("feedback attempt failed", "provider", c.Provider.Name(), "attempt", attempts, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		text = strings.TrimSpace(resp.Text)
		if text == "" {
			return errEmptyCompletion
		}
		return nil
	})
	if err == nil {
		return text, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	return "", &ServiceError{Provider: c.Provider.Name(), Attempts: attempts, Err: err}
}

// Assemble builds the outbound frame for a turn.
func Assemble(text string, turn game.TurnResult, degraded bool) protocol.FeedbackFrame {
	achievements := turn.NewAchievements
	if achievements == nil {
		achievements = []string{}
	}
	return protocol.FeedbackFrame{
		Type:            protocol.TypeFeedback,
		Feedback:        text,
		Score:           turn.Score,
		TotalScore:      turn.TotalScore,
		Level:           turn.Level,
		LevelUp:         turn.LevelUp,
		LevelsGained:    turn.LevelsGained,
		NewAchievements: achievements,
		AccuracyRating:  turn.Rating,
		Degraded:        degraded,
	}
}

func (c *Composer) backoff() retry.Backoff {
	d := c.RetryBackoff
	if d <= 0 {
		d = DefaultRetryBackoff
	}
	retries := c.Retries
	if retries < 0 {
		retries = 0
	}
	return retry.WithMaxRetries(uint64(retries), retry.NewConstant(d))
}

func (c *Composer) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func (c *Composer) maxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return DefaultMaxTokens
}

func (c *Composer) persona() string {
	if strings.TrimSpace(c.Persona) != "" {
		return c.Persona
	}
	return DefaultPersona
}

func (c *Composer) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
