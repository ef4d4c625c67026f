package framesource_test

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-lumos/pkg/detection"
	"github.com/teslashibe/go-lumos/pkg/framesource"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

type collector struct {
	mu     sync.Mutex
	frames []detection.Frame
}

func (c *collector) submit(f detection.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return true
}

func (c *collector) snapshot() []detection.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]detection.Frame(nil), c.frames...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocket_ReadsFramesAndReconnects(t *testing.T) {
	frame := testJPEG(t, 64, 48)
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conns.Add(1)

		conn.WriteMessage(websocket.TextMessage, []byte(`{"hello":"camera"}`))
		conn.WriteMessage(websocket.BinaryMessage, frame)
		conn.WriteMessage(websocket.BinaryMessage, []byte("not a jpeg"))
		conn.WriteMessage(websocket.BinaryMessage, frame)
		// Closing ends this session; the client must come back.
	}))
	defer srv.Close()

	src := framesource.NewWebSocket(framesource.Config{
		URL:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		Rotation:   90,
		MinBackoff: 10 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
	}, nil)

	var got collector
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, got.submit) }()

	waitFor(t, "second connection", func() bool { return conns.Load() >= 2 })
	waitFor(t, "four frames", func() bool { return len(got.snapshot()) >= 4 })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: got %v, want nil on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	frames := got.snapshot()
	for i, f := range frames {
		if f.Seq != uint64(i+1) {
			t.Errorf("frame %d: seq %d, want %d", i, f.Seq, i+1)
		}
		if f.Width != 64 || f.Height != 48 || f.Rotation != 90 {
			t.Errorf("frame %d: got %dx%d rot %d", i, f.Width, f.Height, f.Rotation)
		}
	}

	stats := src.Stats()
	if stats.Connects < 2 {
		t.Errorf("connects: got %d", stats.Connects)
	}
	if stats.Ignored < 4 {
		t.Errorf("ignored: got %d, want text and garbage messages counted", stats.Ignored)
	}
}

func TestWebSocket_CancelWhileDialFails(t *testing.T) {
	src := framesource.NewWebSocket(framesource.Config{
		URL:        "ws://127.0.0.1:1/frames",
		MinBackoff: 5 * time.Millisecond,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := src.Run(ctx, func(detection.Frame) bool { return true }); err != nil {
		t.Errorf("Run: got %v, want nil", err)
	}
	if src.Stats().Connects != 0 {
		t.Error("no connection should have succeeded")
	}
}

func TestWebSocket_EmptyURL(t *testing.T) {
	src := framesource.NewWebSocket(framesource.Config{}, nil)
	if err := src.Run(context.Background(), nil); err == nil {
		t.Error("expected error for empty URL")
	}
}

func TestReplay(t *testing.T) {
	frames := [][]byte{testJPEG(t, 32, 32), testJPEG(t, 16, 8)}
	r := framesource.NewReplay(frames, 5*time.Millisecond, 0)

	var accepted atomic.Int32
	submit := func(f detection.Frame) bool {
		return accepted.Add(1)%2 == 1 // reject every other frame
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx, submit)
		close(done)
	}()
	waitFor(t, "frames", func() bool { return r.Stats().Frames >= 4 })
	cancel()
	<-done

	stats := r.Stats()
	if stats.Rejected == 0 || stats.Rejected > stats.Frames {
		t.Errorf("stats: got %+v", stats)
	}
}
