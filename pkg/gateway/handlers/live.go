package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-go/posecoach/internal/history"
	"github.com/vango-go/posecoach/pkg/core"
	"github.com/vango-go/posecoach/pkg/gateway/config"
	"github.com/vango-go/posecoach/pkg/gateway/live/protocol"
	"github.com/vango-go/posecoach/pkg/gateway/live/session"
	"github.com/vango-go/posecoach/pkg/gateway/live/sessions"
	"github.com/vango-go/posecoach/pkg/gateway/metrics"
	"github.com/vango-go/posecoach/pkg/gateway/mw"
)

const historyWriteTimeout = 5 * time.Second

// SummaryRecorder persists a finished session's summary.
type SummaryRecorder interface {
	Record(ctx context.Context, sum history.Summary) error
}

// PoseFeedbackHandler handles /ws/pose-feedback websocket sessions.
type PoseFeedbackHandler struct {
	Config   config.Config
	Feedback session.FeedbackGenerator
	Logger   *slog.Logger
	Sessions *sessions.Tracker
	History  SummaryRecorder
	Metrics  *metrics.Metrics
}

func (h PoseFeedbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if h.Sessions.IsDraining() {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrOverloaded, Message: "server is draining", Code: "draining"}, 529)
		return
	}
	if !mw.OriginAllowed(h.Config, r) {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrPermission, Message: "origin is not allowed", Param: "Origin"}, http.StatusForbidden)
		return
	}
	if h.Feedback == nil {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrAPI, Message: "feedback is not configured"}, http.StatusInternalServerError)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	logger := h.logger()
	sessionID := "s_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	s, err := session.New(session.Dependencies{
		Conn:         conn,
		Logger:       logger.With("request_id", reqID),
		Feedback:     h.Feedback,
		FallbackText: h.Config.FallbackFeedback,
		SessionID:    sessionID,
		RemoteAddr:   r.RemoteAddr,
		Config: session.Config{
			MaxMessageBytes:    h.Config.WSMaxMessageBytes,
			PingInterval:       h.Config.WSPingInterval,
			WriteTimeout:       h.Config.WSWriteTimeout,
			ReadTimeout:        h.Config.WSReadTimeout,
			MaxSessionDuration: h.Config.WSMaxSessionDuration,
			InboundQueueSize:   h.Config.WSInboundQueueSize,
		},
	})
	if err != nil {
		h.writeWSError(conn, "internal_error", "failed to initialize session")
		return
	}

	unregister := h.Sessions.Register(sessionID, sessions.Handle{
		Cancel:     s.Cancel,
		Warn:       s.SendWarning,
		RemoteAddr: r.RemoteAddr,
		StartedAt:  s.StartedAt(),
	})
	defer unregister()
	h.Metrics.RecordSessionStart()

	logger.Info("pose session started", "session_id", sessionID, "request_id", reqID, "remote_addr", r.RemoteAddr)
	if err := s.Run(); err != nil {
		logger.Warn("pose session ended with error", "session_id", sessionID, "request_id", reqID, "error", err)
	}

	sum := s.Summary()
	h.Metrics.RecordSessionEnd(sum)
	logger.Info("pose session ended",
		"session_id", sessionID,
		"reason", sum.EndReason,
		"samples", sum.Samples,
		"total_score", sum.TotalScore,
		"level", sum.Level,
		"duration_ms", sum.Duration().Milliseconds(),
	)
	h.record(r.Context(), sum)
}

func (h PoseFeedbackHandler) record(parent context.Context, sum history.Summary) {
	if h.History == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), historyWriteTimeout)
	defer cancel()
	if err := h.History.Record(ctx, sum); err != nil {
		h.logger().Warn("session summary not recorded", "session_id", sum.SessionID, "error", err)
	}
}

func (h PoseFeedbackHandler) writeWSError(conn *websocket.Conn, code, message string) {
	frame := protocol.ServerError{Type: protocol.TypeError, Code: code, Message: message, Close: true}
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = conn.WriteJSON(frame)
}

func (h PoseFeedbackHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
