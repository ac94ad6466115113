package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordedWrite struct {
	messageType int
	data        string
}

type fakeWSWriter struct {
	mu       sync.Mutex
	writes   []recordedWrite
	closed   bool
	writeErr error
}

func (f *fakeWSWriter) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWSWriter) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, recordedWrite{messageType: messageType, data: string(data)})
	return nil
}

func (f *fakeWSWriter) WriteControl(messageType int, data []byte, deadline time.Time) error {
	_ = deadline
	return f.WriteMessage(messageType, data)
}

func (f *fakeWSWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeWSWriter) snapshot() []recordedWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

func TestOutboundWriter_PriorityBeatsNormal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 1)

	normal <- outboundFrame{textPayload: []byte(`{"type":"feedback","feedback":"nice"}`)}
	priority <- outboundFrame{textPayload: []byte(`{"type":"warning","code":"server_draining"}`)}
	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: priority,
		normal:   normal,
	}

	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	writes := ws.snapshot()
	if len(writes) != 2 {
		t.Fatalf("expected 2 writes, got %+v", writes)
	}
	if !strings.Contains(writes[0].data, `"type":"warning"`) {
		t.Fatalf("first write was not the warning: %q", writes[0].data)
	}
	if writes[1].messageType != websocket.TextMessage {
		t.Fatalf("message type = %d", writes[1].messageType)
	}
}

func TestOutboundWriter_SendsPing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: 5 * time.Millisecond, WriteTimeout: time.Second},
		priority: make(chan outboundFrame),
		normal:   make(chan outboundFrame),
	}
	done := make(chan error, 1)
	go func() { done <- w.Run() }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		var pinged bool
		for _, wr := range ws.snapshot() {
			if wr.messageType == websocket.PingMessage {
				pinged = true
			}
		}
		if pinged {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no ping written")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	ws.mu.Lock()
	closed := ws.closed
	ws.mu.Unlock()
	if !closed {
		t.Fatal("expected connection to be closed on cancel")
	}
}

func TestOutboundWriter_FlushesQueuedFramesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	normal := make(chan outboundFrame, 2)
	normal <- outboundFrame{textPayload: []byte(`{"type":"feedback"}`)}

	ws := &fakeWSWriter{}
	w := outboundWriter{ws: ws, ctx: ctx, cfg: Config{PingInterval: time.Hour}, priority: make(chan outboundFrame, 1), normal: normal}
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	writes := ws.snapshot()
	if len(writes) != 2 || writes[0].data != `{"type":"feedback"}` || writes[1].messageType != websocket.CloseMessage {
		t.Fatalf("writes = %+v", writes)
	}
}

func TestOutboundWriter_ReturnsWriteError(t *testing.T) {
	boom := errors.New("broken pipe")
	normal := make(chan outboundFrame, 1)
	normal <- outboundFrame{textPayload: []byte(`{}`)}

	w := outboundWriter{
		ws:       &fakeWSWriter{writeErr: boom},
		ctx:      context.Background(),
		cfg:      Config{PingInterval: time.Hour},
		priority: make(chan outboundFrame),
		normal:   normal,
	}
	if err := w.Run(); !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
}
