// Package protocol defines the pose-feedback websocket frames and their
// strict decoding.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vango-go/posecoach/pkg/game"
)

// Outbound frame types.
const (
	TypeFeedback = "feedback"
	TypeError    = "error"
	TypeWarning  = "warning"
)

// DecodeError is a message-level validation failure. The connection stays
// usable after one is reported.
type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// FeedbackFrame is sent once per processed sample.
type FeedbackFrame struct {
	Type            string   `json:"type"`
	Feedback        string   `json:"feedback"`
	Score           int      `json:"score"`
	TotalScore      int      `json:"total_score"`
	Level           int      `json:"level"`
	LevelUp         bool     `json:"level_up"`
	LevelsGained    int      `json:"levels_gained"`
	NewAchievements []string `json:"new_achievements"`
	AccuracyRating  string   `json:"accuracy_rating"`
	Degraded        bool     `json:"degraded"`
}

type ServerError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	Close   bool   `json:"close"`
}

type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorFrame builds the error frame reported for err. Non-DecodeError values
// are reported as internal errors without their detail.
func ErrorFrame(err error, closing bool) ServerError {
	if de, ok := err.(*DecodeError); ok && de != nil {
		return ServerError{Type: TypeError, Code: de.Code, Message: de.Message, Param: de.Param, Close: closing}
	}
	return ServerError{Type: TypeError, Code: "internal_error", Message: "internal error", Close: closing}
}

// DecodeSample strictly decodes one inbound pose sample frame.
// Unknown top-level keys and extra per-segment keys are ignored.
func DecodeSample(data []byte) (game.Sample, error) {
	var sample game.Sample

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return sample, badRequest("frame must be a JSON object", "")
	}

	name, err := decodeString(fields, "pose_name")
	if err != nil {
		return sample, err
	}
	sample.PoseName = name

	acc, err := decodeNumber(fields["overall_accuracy"], "overall_accuracy")
	if err != nil {
		return sample, err
	}
	sample.OverallAccuracy = acc

	segments, err := decodeSegments(fields["segment_accuracies"])
	if err != nil {
		return sample, err
	}
	sample.SegmentAccuracies = segments

	if sample.CurrentStreak, err = decodeCount(fields, "current_streak"); err != nil {
		return sample, err
	}
	if sample.TotalPosesCompleted, err = decodeCount(fields, "total_poses_completed"); err != nil {
		return sample, err
	}
	return sample, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeString(fields map[string]json.RawMessage, param string) (string, error) {
	raw, ok := fields[param]
	if !ok || isNull(raw) {
		return "", badRequest(param+" is required", param)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", badRequest(param+" must be a string", param)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", badRequest(param+" must not be empty", param)
	}
	return s, nil
}

func decodeNumber(raw json.RawMessage, param string) (float64, error) {
	if isNull(raw) {
		return 0, badRequest(param+" is required", param)
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, badRequest(param+" must be a number", param)
	}
	return v, nil
}

func decodeCount(fields map[string]json.RawMessage, param string) (int, error) {
	raw, ok := fields[param]
	if !ok || isNull(raw) {
		return 0, nil
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil || v < 0 {
		return 0, badRequest(param+" must be a non-negative integer", param)
	}
	return v, nil
}

func decodeSegments(raw json.RawMessage) (map[string]game.SegmentAccuracy, error) {
	const param = "segment_accuracies"
	if isNull(raw) {
		return nil, badRequest(param+" is required", param)
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, badRequest(param+" must be an object", param)
	}

	out := make(map[string]game.SegmentAccuracy, len(entries))
	for name, entryRaw := range entries {
		entryParam := param + "." + name
		var entry map[string]json.RawMessage
		if err := json.Unmarshal(entryRaw, &entry); err != nil || entry == nil {
			return nil, badRequest(entryParam+" must be an object", entryParam)
		}
		acc, err := decodeNumber(entry["accuracy"], entryParam+".accuracy")
		if err != nil {
			return nil, err
		}
		out[name] = game.SegmentAccuracy{Accuracy: acc}
	}
	return out, nil
}

// ErrBinaryFrame is reported when a client sends a non-text frame.
var ErrBinaryFrame = &DecodeError{Code: "bad_request", Message: "binary frames are not supported"}
