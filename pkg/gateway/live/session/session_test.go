package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/posecoach/pkg/game"
)

type fakeFeedback struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, sample game.Sample, st *game.State, turn game.TurnResult) (string, error)
}

func (f *fakeFeedback) Generate(ctx context.Context, sample game.Sample, st *game.State, turn game.TurnResult) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, sample, st, turn)
	}
	return "coach: " + sample.PoseName, nil
}

type runResult struct {
	session *Session
	err     error
}

type harness struct {
	wsURL    string
	started  chan *Session
	finished chan runResult
}

func startHarness(t *testing.T, gen FeedbackGenerator, mutate func(*Dependencies)) *harness {
	t.Helper()
	h := &harness{
		started:  make(chan *Session, 4),
		finished: make(chan runResult, 4),
	}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		deps := Dependencies{
			Conn:       conn,
			Feedback:   gen,
			SessionID:  "s_test",
			RemoteAddr: r.RemoteAddr,
			Config: Config{
				MaxMessageBytes: 64 * 1024,
				PingInterval:    time.Second,
				WriteTimeout:    time.Second,
			},
		}
		if mutate != nil {
			mutate(&deps)
		}
		s, err := New(deps)
		if err != nil {
			_ = conn.Close()
			return
		}
		h.started <- s
		err = s.Run()
		h.finished <- runResult{session: s, err: err}
	}))
	t.Cleanup(srv.Close)
	h.wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return h
}

func (h *harness) waitFinished(t *testing.T) runResult {
	t.Helper()
	select {
	case res := <-h.finished:
		return res
	case <-time.After(3 * time.Second):
		t.Fatalf("session did not finish")
		return runResult{}
	}
}

func (h *harness) waitStarted(t *testing.T) *Session {
	t.Helper()
	select {
	case s := <-h.started:
		return s
	case <-time.After(3 * time.Second):
		t.Fatalf("session did not start")
		return nil
	}
}

func mustDialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	return conn
}

func mustWriteText(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
}

func mustReadJSON(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %q: %v", string(data), err)
	}
	return out
}

func closeClient(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	_ = conn.Close()
}

const treeSample = `{"pose_name":"Tree","overall_accuracy":90,"segment_accuracies":{"left_arm":{"accuracy":88}},"current_streak":0,"total_poses_completed":1}`

func TestSession_ValidSampleGetsFeedback(t *testing.T) {
	h := startHarness(t, &fakeFeedback{}, nil)
	conn := mustDialWS(t, h.wsURL)
	defer conn.Close()

	mustWriteText(t, conn, treeSample)
	msg := mustReadJSON(t, conn, 2*time.Second)

	if msg["type"] != "feedback" || msg["feedback"] != "coach: Tree" {
		t.Fatalf("frame = %#v", msg)
	}
	if msg["score"] != float64(1350) || msg["total_score"] != float64(1350) || msg["level"] != float64(2) {
		t.Fatalf("score fields = %#v", msg)
	}
	if msg["level_up"] != true || msg["levels_gained"] != float64(1) {
		t.Fatalf("level fields = %#v", msg)
	}
	if msg["accuracy_rating"] != game.RatingPerfect || msg["degraded"] != false {
		t.Fatalf("rating/degraded = %#v", msg)
	}
	got, _ := msg["new_achievements"].([]any)
	if len(got) != 2 || got[0] != "Strike a Pose" || got[1] != "Perfect Form" {
		t.Fatalf("new_achievements = %#v", msg["new_achievements"])
	}
}

func TestSession_MalformedFrameDoesNotEndSession(t *testing.T) {
	gen := &fakeFeedback{}
	h := startHarness(t, gen, nil)
	conn := mustDialWS(t, h.wsURL)
	defer conn.Close()

	mustWriteText(t, conn, `{"pose_name":"Tree"`)
	errFrame := mustReadJSON(t, conn, 2*time.Second)
	if errFrame["type"] != "error" || errFrame["code"] != "bad_request" {
		t.Fatalf("error frame = %#v", errFrame)
	}

	mustWriteText(t, conn, `{"pose_name":"Tree","overall_accuracy":"high","segment_accuracies":{}}`)
	errFrame = mustReadJSON(t, conn, 2*time.Second)
	if errFrame["type"] != "error" || errFrame["param"] != "overall_accuracy" {
		t.Fatalf("error frame = %#v", errFrame)
	}

	mustWriteText(t, conn, treeSample)
	msg := mustReadJSON(t, conn, 2*time.Second)
	if msg["type"] != "feedback" || msg["total_score"] != float64(1350) {
		t.Fatalf("feedback after errors = %#v", msg)
	}
	gen.mu.Lock()
	calls := gen.calls
	gen.mu.Unlock()
	if calls != 1 {
		t.Fatalf("generator calls = %d, want 1", calls)
	}
}

func TestSession_BinaryFrameRejected(t *testing.T) {
	h := startHarness(t, &fakeFeedback{}, nil)
	conn := mustDialWS(t, h.wsURL)
	defer conn.Close()

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	msg := mustReadJSON(t, conn, 2*time.Second)
	if msg["type"] != "error" || !strings.Contains(msg["message"].(string), "binary") {
		t.Fatalf("frame = %#v", msg)
	}
}

func TestSession_GeneratorFailureSendsFallback(t *testing.T) {
	gen := &fakeFeedback{fn: func(context.Context, game.Sample, *game.State, game.TurnResult) (string, error) {
		return "", errors.New("upstream unavailable")
	}}
	h := startHarness(t, gen, func(d *Dependencies) { d.FallbackText = "Keep breathing." })
	conn := mustDialWS(t, h.wsURL)

	mustWriteText(t, conn, treeSample)
	msg := mustReadJSON(t, conn, 2*time.Second)
	if msg["feedback"] != "Keep breathing." || msg["degraded"] != true {
		t.Fatalf("frame = %#v", msg)
	}
	if msg["total_score"] != float64(1350) {
		t.Fatalf("game state must advance on degraded turns: %#v", msg)
	}

	closeClient(t, conn)
	res := h.waitFinished(t)
	if got := res.session.Summary().DegradedTurns; got != 1 {
		t.Fatalf("DegradedTurns = %d, want 1", got)
	}
}

func TestSession_SamplesAnsweredInOrder(t *testing.T) {
	h := startHarness(t, &fakeFeedback{}, nil)
	conn := mustDialWS(t, h.wsURL)
	defer conn.Close()

	poses := []string{"Tree", "Warrior", "Cobra"}
	for i, pose := range poses {
		mustWriteText(t, conn, `{"pose_name":"`+pose+`","overall_accuracy":80,"segment_accuracies":{},"current_streak":`+strconv.Itoa(i)+`}`)
	}

	prevTotal := 0.0
	for _, pose := range poses {
		msg := mustReadJSON(t, conn, 2*time.Second)
		if msg["feedback"] != "coach: "+pose {
			t.Fatalf("feedback = %v, want pose %s", msg["feedback"], pose)
		}
		total := msg["total_score"].(float64)
		if total <= prevTotal {
			t.Fatalf("total_score %v did not grow past %v", total, prevTotal)
		}
		prevTotal = total
	}
}

func TestSession_StateIsPerConnection(t *testing.T) {
	h := startHarness(t, &fakeFeedback{}, nil)

	for i := 0; i < 2; i++ {
		conn := mustDialWS(t, h.wsURL)
		mustWriteText(t, conn, treeSample)
		msg := mustReadJSON(t, conn, 2*time.Second)
		if msg["total_score"] != float64(1350) {
			t.Fatalf("connection %d total_score = %v, want 1350", i, msg["total_score"])
		}
		got, _ := msg["new_achievements"].([]any)
		if len(got) == 0 || got[0] != "Strike a Pose" {
			t.Fatalf("connection %d new_achievements = %#v", i, msg["new_achievements"])
		}
		closeClient(t, conn)
		h.waitFinished(t)
	}
}

func TestSession_ClientCloseCancelsInFlightFeedback(t *testing.T) {
	generating := make(chan struct{})
	canceled := make(chan error, 1)
	gen := &fakeFeedback{fn: func(ctx context.Context, _ game.Sample, _ *game.State, _ game.TurnResult) (string, error) {
		close(generating)
		<-ctx.Done()
		canceled <- ctx.Err()
		return "", ctx.Err()
	}}
	h := startHarness(t, gen, nil)
	conn := mustDialWS(t, h.wsURL)

	mustWriteText(t, conn, treeSample)
	select {
	case <-generating:
	case <-time.After(2 * time.Second):
		t.Fatalf("generator was not called")
	}
	closeClient(t, conn)

	select {
	case err := <-canceled:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("ctx err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("in-flight feedback was not canceled")
	}

	res := h.waitFinished(t)
	if res.err != nil {
		t.Fatalf("Run() error = %v", res.err)
	}
	sum := res.session.Summary()
	if sum.EndReason != EndClientClosed {
		t.Fatalf("EndReason = %q, want %q", sum.EndReason, EndClientClosed)
	}
	if sum.DegradedTurns != 0 {
		t.Fatalf("canceled turn counted as degraded")
	}
}

func TestSession_SummaryAfterRun(t *testing.T) {
	h := startHarness(t, &fakeFeedback{}, nil)
	conn := mustDialWS(t, h.wsURL)

	mustWriteText(t, conn, treeSample)
	mustReadJSON(t, conn, 2*time.Second)
	mustWriteText(t, conn, `not json`)
	mustReadJSON(t, conn, 2*time.Second)
	mustWriteText(t, conn, `{"pose_name":"Warrior","overall_accuracy":76,"segment_accuracies":{},"current_streak":1,"total_poses_completed":2}`)
	mustReadJSON(t, conn, 2*time.Second)
	closeClient(t, conn)

	res := h.waitFinished(t)
	sum := res.session.Summary()
	if sum.SessionID != "s_test" || sum.RemoteAddr == "" {
		t.Fatalf("identity = %q/%q", sum.SessionID, sum.RemoteAddr)
	}
	if sum.Samples != 2 || sum.RejectedFrames != 1 {
		t.Fatalf("Samples/RejectedFrames = %d/%d, want 2/1", sum.Samples, sum.RejectedFrames)
	}
	if sum.HighestAccuracy != 90 {
		t.Fatalf("HighestAccuracy = %v, want 90", sum.HighestAccuracy)
	}
	if sum.TotalScore != 1350+1140 {
		t.Fatalf("TotalScore = %d, want %d", sum.TotalScore, 1350+1140)
	}
	if len(sum.PosesMastered) != 2 {
		t.Fatalf("PosesMastered = %v", sum.PosesMastered)
	}
	if sum.EndedAt.Before(sum.StartedAt) {
		t.Fatalf("EndedAt %v before StartedAt %v", sum.EndedAt, sum.StartedAt)
	}
}

func TestSession_CancelClosesConnection(t *testing.T) {
	h := startHarness(t, &fakeFeedback{}, nil)
	conn := mustDialWS(t, h.wsURL)
	defer conn.Close()

	s := h.waitStarted(t)
	if err := s.SendWarning("server_draining", "server is shutting down"); err != nil {
		t.Fatalf("SendWarning: %v", err)
	}
	warn := mustReadJSON(t, conn, 2*time.Second)
	if warn["type"] != "warning" || warn["code"] != "server_draining" {
		t.Fatalf("warning = %#v", warn)
	}

	s.Cancel()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("read err = %v, want normal close", err)
	}

	res := h.waitFinished(t)
	if res.err != nil {
		t.Fatalf("Run() error = %v", res.err)
	}
	if got := res.session.Summary().EndReason; got != EndServerCanceled {
		t.Fatalf("EndReason = %q, want %q", got, EndServerCanceled)
	}
}

func TestSession_MaxDurationEndsSession(t *testing.T) {
	h := startHarness(t, &fakeFeedback{}, func(d *Dependencies) {
		d.Config.MaxSessionDuration = 50 * time.Millisecond
	})
	conn := mustDialWS(t, h.wsURL)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected connection to close")
	}
	res := h.waitFinished(t)
	if got := res.session.Summary().EndReason; got != EndMaxDuration {
		t.Fatalf("EndReason = %q, want %q", got, EndMaxDuration)
	}
}

func TestSession_OversizedFrameEndsSession(t *testing.T) {
	h := startHarness(t, &fakeFeedback{}, func(d *Dependencies) {
		d.Config.MaxMessageBytes = 32
	})
	conn := mustDialWS(t, h.wsURL)
	defer conn.Close()

	mustWriteText(t, conn, treeSample)
	res := h.waitFinished(t)
	if !errors.Is(res.err, websocket.ErrReadLimit) {
		t.Fatalf("Run() error = %v, want ErrReadLimit", res.err)
	}
	if got := res.session.Summary().EndReason; got != EndMessageTooBig {
		t.Fatalf("EndReason = %q, want %q", got, EndMessageTooBig)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Dependencies{Feedback: &fakeFeedback{}}); err == nil {
		t.Fatalf("expected error without connection")
	}
	if _, err := New(Dependencies{Conn: &websocket.Conn{}}); err == nil {
		t.Fatalf("expected error without feedback generator")
	}
}

// scriptedConn feeds queued frames to the session and records writes, each
// taking writeDelay.
type scriptedConn struct {
	fakeWSWriter
	writeDelay time.Duration
	frames     chan inboundFrame
}

func newScriptedConn(writeDelay time.Duration, frames ...inboundFrame) *scriptedConn {
	c := &scriptedConn{writeDelay: writeDelay, frames: make(chan inboundFrame, len(frames))}
	for _, f := range frames {
		c.frames <- f
	}
	return c
}

func (c *scriptedConn) WriteMessage(messageType int, data []byte) error {
	time.Sleep(c.writeDelay)
	return c.fakeWSWriter.WriteMessage(messageType, data)
}

func (c *scriptedConn) ReadMessage() (int, []byte, error) {
	f, ok := <-c.frames
	if !ok {
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
	return f.messageType, f.data, nil
}

func (c *scriptedConn) SetReadLimit(int64) {}
func (c *scriptedConn) SetReadDeadline(time.Time) error { return nil }
func (c *scriptedConn) SetPongHandler(func(string) error) {}

// replyTypes returns the "type" field of every text frame written so far.
func (c *scriptedConn) replyTypes(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, w := range c.snapshot() {
		if w.messageType != websocket.TextMessage {
			continue
		}
		var frame struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal([]byte(w.data), &frame); err != nil {
			t.Fatalf("unmarshal %q: %v", w.data, err)
		}
		out = append(out, frame.Type)
	}
	return out
}

// runScripted runs a session over conn until want replies are written, then
// closes the inbound side and waits for Run to return.
func runScripted(t *testing.T, conn *scriptedConn, want int) []string {
	t.Helper()
	s, err := New(Dependencies{
		Conn:      conn,
		Feedback:  &fakeFeedback{},
		SessionID: "s_scripted",
		Config:    Config{PingInterval: time.Hour, WriteTimeout: time.Second},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Run() }()

	deadline := time.Now().Add(3 * time.Second)
	for len(conn.replyTypes(t)) < want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	close(conn.frames)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("session did not finish")
	}
	return conn.replyTypes(t)
}

func TestSession_RepliesKeepArrivalOrderAcrossRejects(t *testing.T) {
	text := func(s string) inboundFrame {
		return inboundFrame{messageType: websocket.TextMessage, data: []byte(s)}
	}
	conn := newScriptedConn(20*time.Millisecond,
		text(treeSample),
		text(`{"pose_name":"Warrior","overall_accuracy":80,"segment_accuracies":{}}`),
		text(`not json`),
		inboundFrame{messageType: websocket.BinaryMessage, data: []byte{0x01}},
		text(treeSample),
	)

	got := runScripted(t, conn, 5)
	want := []string{"feedback", "feedback", "error", "error", "feedback"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("reply order = %v, want %v", got, want)
	}
}

func TestSession_EveryRejectedFrameIsAnswered(t *testing.T) {
	const burst = 20
	frames := make([]inboundFrame, burst)
	for i := range frames {
		frames[i] = inboundFrame{messageType: websocket.TextMessage, data: []byte(`not json ` + strconv.Itoa(i))}
	}
	conn := newScriptedConn(5*time.Millisecond, frames...)

	got := runScripted(t, conn, burst)
	if len(got) != burst {
		t.Fatalf("error replies = %d, want %d", len(got), burst)
	}
	for i, typ := range got {
		if typ != "error" {
			t.Fatalf("reply %d type = %q, want error", i, typ)
		}
	}
}
