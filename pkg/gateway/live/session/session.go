// Package session runs one pose-feedback websocket connection: it owns the
// connection's game state and processes samples strictly in arrival order.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/posecoach/internal/history"
	"github.com/vango-go/posecoach/pkg/feedback"
	"github.com/vango-go/posecoach/pkg/game"
	"github.com/vango-go/posecoach/pkg/gateway/live/protocol"
)

const (
	defaultPingInterval      = 20 * time.Second
	defaultWriteTimeout      = 5 * time.Second
	defaultInboundQueueSize  = 8
	defaultOutboundQueueSize = 16
	outboundPriorityQueue    = 8
)

// End reasons recorded in the session summary.
const (
	EndClientClosed   = "client_closed"
	EndReadError      = "read_error"
	EndMessageTooBig  = "message_too_large"
	EndWriteError     = "write_error"
	EndServerCanceled = "server_canceled"
	EndMaxDuration    = "max_duration"
)

var errBackpressure = errors.New("outbound warning queue full")

// Conn is the subset of *websocket.Conn a session uses.
type Conn interface {
	wsWriter
	ReadMessage() (messageType int, p []byte, err error)
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// FeedbackGenerator produces coaching text for a processed sample.
type FeedbackGenerator interface {
	Generate(ctx context.Context, sample game.Sample, st *game.State, turn game.TurnResult) (string, error)
}

type Config struct {
	MaxMessageBytes    int64
	PingInterval       time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
	MaxSessionDuration time.Duration
	InboundQueueSize   int
	OutboundQueueSize  int
}

type Dependencies struct {
	Conn         Conn
	Logger       *slog.Logger
	Feedback     FeedbackGenerator
	FallbackText string
	SessionID    string
	RemoteAddr   string
	Config       Config
	Now          func() time.Time
}

type inboundFrame struct {
	messageType int
	data        []byte
}

// Session is a single live connection.
type Session struct {
	conn       Conn
	logger     *slog.Logger
	feedback   FeedbackGenerator
	fallback   string
	sessionID  string
	remoteAddr string
	cfg        Config
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame

	// Touched only by the Run goroutine.
	state         *game.State
	degradedTurns int
	rejected      int

	mu        sync.Mutex
	startedAt time.Time
	endedAt   time.Time
	endReason string
	readErr   error
}

func New(deps Dependencies) (*Session, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.Feedback == nil {
		return nil, fmt.Errorf("feedback generator is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FallbackText == "" {
		deps.FallbackText = feedback.FallbackText
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Config.InboundQueueSize <= 0 {
		deps.Config.InboundQueueSize = defaultInboundQueueSize
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = defaultOutboundQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		conn:             deps.Conn,
		logger:           deps.Logger.With("session_id", deps.SessionID),
		feedback:         deps.Feedback,
		fallback:         deps.FallbackText,
		sessionID:        deps.SessionID,
		remoteAddr:       deps.RemoteAddr,
		cfg:              deps.Config,
		now:              deps.Now,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, outboundPriorityQueue),
		outboundNormal:   make(chan outboundFrame, deps.Config.OutboundQueueSize),
		state:            game.NewState(),
		startedAt:        deps.Now(),
	}, nil
}

func (s *Session) ID() string {
	return s.sessionID
}

// Run processes frames until the client disconnects or the session is
// canceled. Game state is discarded when Run returns.
func (s *Session) Run() error {
	defer s.cancel()

	if s.cfg.MaxMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(s.now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(s.now().Add(s.cfg.ReadTimeout))
		})
	}
	if s.cfg.MaxSessionDuration > 0 {
		timer := time.AfterFunc(s.cfg.MaxSessionDuration, func() {
			s.setEndReason(EndMaxDuration)
			s.cancel()
		})
		defer timer.Stop()
	}

	readCh := make(chan inboundFrame, s.cfg.InboundQueueSize)
	writerErrCh := make(chan error, 1)
	go s.readLoop(readCh)
	go func() {
		w := outboundWriter{
			ws:       s.conn,
			ctx:      s.ctx,
			cfg:      s.cfg,
			priority: s.outboundPriority,
			normal:   s.outboundNormal,
		}
		writerErrCh <- w.Run()
		close(writerErrCh)
	}()

	flushAndClose := func() {
		s.cancel()
		wait := 100 * time.Millisecond
		if s.cfg.WriteTimeout > 0 && s.cfg.WriteTimeout < wait {
			wait = s.cfg.WriteTimeout
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-writerErrCh:
		case <-timer.C:
		}
		s.markEnded()
	}

	for {
		select {
		case <-s.ctx.Done():
			s.setEndReason(EndServerCanceled)
			flushAndClose()
			return s.readError()

		case err, ok := <-writerErrCh:
			if ok && err != nil {
				s.setEndReason(EndWriteError)
				s.logger.Debug("live write failed", "error", err)
				flushAndClose()
				return err
			}
			writerErrCh = nil

		case frame, ok := <-readCh:
			if !ok {
				s.setEndReason(EndClientClosed)
				flushAndClose()
				return s.readError()
			}
			if err := s.handleFrame(frame); err != nil && s.ctx.Err() == nil {
				s.logger.Warn("live frame handling failed", "error", err)
			}
		}
	}
}

func (s *Session) handleFrame(frame inboundFrame) error {
	if frame.messageType != websocket.TextMessage {
		s.rejected++
		return s.sendError(protocol.ErrBinaryFrame)
	}

	sample, err := protocol.DecodeSample(frame.data)
	if err != nil {
		s.rejected++
		s.logger.Debug("rejected pose sample", "error", err)
		return s.sendError(err)
	}

	turn := s.state.Process(sample)

	text, err := s.feedback.Generate(s.ctx, sample, s.state, turn)
	degraded := false
	if err != nil {
		if s.ctx.Err() != nil {
			return s.ctx.Err()
		}
		s.logger.Warn("feedback unavailable, sending fallback", "pose", sample.PoseName, "error", err)
		text = s.fallback
		degraded = true
		s.degradedTurns++
	}

	s.logger.Debug("pose sample processed",
		"pose", sample.PoseName,
		"accuracy", sample.OverallAccuracy,
		"score", turn.Score,
		"total_score", turn.TotalScore,
		"level", turn.Level,
		"new_achievements", len(turn.NewAchievements),
		"degraded", degraded,
	)
	return s.sendJSON(feedback.Assemble(text, turn, degraded))
}

// readLoop reads ahead of the frame being processed so a disconnect cancels
// the session context, and with it any in-flight feedback request.
func (s *Session) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			reason := classifyReadError(err)
			s.setEndReason(reason)
			if reason != EndClientClosed {
				s.mu.Lock()
				s.readErr = err
				s.mu.Unlock()
			}
			s.cancel()
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}

func classifyReadError(err error) string {
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		return EndClientClosed
	case errors.Is(err, websocket.ErrReadLimit):
		return EndMessageTooBig
	default:
		return EndReadError
	}
}

// Cancel ends the session. Safe to call from any goroutine.
func (s *Session) Cancel() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancel()
}

// SendWarning queues an out-of-band warning ahead of pending replies. Safe to
// call from any goroutine.
func (s *Session) SendWarning(code, message string) error {
	if s == nil {
		return nil
	}
	return s.sendJSONPriority(protocol.ServerWarning{Type: protocol.TypeWarning, Code: code, Message: message})
}

// sendError answers a rejected frame in line with feedback replies, one reply
// per inbound frame in arrival order.
func (s *Session) sendError(err error) error {
	return s.sendJSON(protocol.ErrorFrame(err, false))
}

func (s *Session) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case s.outboundNormal <- outboundFrame{textPayload: payload}:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *Session) sendJSONPriority(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	frame := outboundFrame{textPayload: payload}
	for i := 0; i < 4; i++ {
		select {
		case s.outboundPriority <- frame:
			return nil
		default:
		}
		select {
		case <-s.outboundPriority:
		default:
		}
	}
	return errBackpressure
}

func (s *Session) setEndReason(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endReason == "" {
		s.endReason = reason
	}
}

func (s *Session) readError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}

func (s *Session) markEnded() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endedAt.IsZero() {
		s.endedAt = s.now()
	}
}

// StartedAt returns when the session was created.
func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// Summary describes the finished session. Call it only after Run returns.
func (s *Session) Summary() history.Summary {
	s.mu.Lock()
	endedAt, reason := s.endedAt, s.endReason
	s.mu.Unlock()
	if endedAt.IsZero() {
		endedAt = s.now()
	}

	return history.Summary{
		SessionID:       s.sessionID,
		RemoteAddr:      s.remoteAddr,
		StartedAt:       s.startedAt,
		EndedAt:         endedAt,
		Samples:         s.state.SamplesProcessed,
		RejectedFrames:  s.rejected,
		DegradedTurns:   s.degradedTurns,
		TotalScore:      s.state.TotalScore,
		Level:           s.state.CurrentLevel,
		HighestAccuracy: s.state.HighestAccuracy,
		Achievements:    s.state.Achievements(),
		PosesMastered:   s.state.PosesMastered(),
		EndReason:       reason,
	}
}
