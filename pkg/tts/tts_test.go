package tts_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-lumos/pkg/tts"
)

func TestMockProvider(t *testing.T) {
	mock := tts.NewMock()
	ctx := context.Background()

	t.Run("Synthesize returns silence", func(t *testing.T) {
		result, err := mock.Synthesize(ctx, "1 person.")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// 9 chars * 20ms * 16kHz * 2 bytes
		if len(result.Audio) != 9*320*2 {
			t.Errorf("audio bytes: got %d, want %d", len(result.Audio), 9*320*2)
		}
		if result.Format.SampleRate != 16000 {
			t.Errorf("sample rate: got %d, want 16000", result.Format.SampleRate)
		}
	})

	t.Run("Stream wraps Synthesize", func(t *testing.T) {
		stream, err := mock.Stream(ctx, "Lumos ON")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		audio, err := tts.ReadAll(stream)
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if len(audio) == 0 {
			t.Error("expected audio")
		}
	})

	t.Run("Calls are tracked", func(t *testing.T) {
		if got := mock.Texts("Synthesize"); len(got) != 1 || got[0] != "1 person." {
			t.Errorf("Synthesize texts: got %v", got)
		}
		if mock.CallCount("Stream") != 1 {
			t.Errorf("Stream calls: got %d, want 1", mock.CallCount("Stream"))
		}
	})

	t.Run("Reset clears calls", func(t *testing.T) {
		mock.Reset()
		if len(mock.Calls()) != 0 {
			t.Error("expected calls to be cleared")
		}
	})
}

func TestMockWithError(t *testing.T) {
	testErr := errors.New("synth down")
	mock := tts.WithError(testErr)
	ctx := context.Background()

	if _, err := mock.Synthesize(ctx, "x"); !errors.Is(err, testErr) {
		t.Errorf("Synthesize: got %v, want %v", err, testErr)
	}
	if _, err := mock.Stream(ctx, "x"); !errors.Is(err, testErr) {
		t.Errorf("Stream: got %v, want %v", err, testErr)
	}
	if err := mock.Health(ctx); !errors.Is(err, testErr) {
		t.Errorf("Health: got %v, want %v", err, testErr)
	}
}

func TestMockWithLatency(t *testing.T) {
	mock := tts.WithLatency(tts.NewMock(), 50*time.Millisecond)

	start := time.Now()
	if _, err := mock.Synthesize(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected at least 50ms latency, got %v", elapsed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := mock.Synthesize(ctx, "hi"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := tts.NewElevenLabs(tts.WithVoice("v")); !errors.Is(err, tts.ErrNoAPIKey) {
		t.Errorf("ElevenLabs without key: got %v, want ErrNoAPIKey", err)
	}
	if _, err := tts.NewElevenLabs(tts.WithAPIKey("k")); !errors.Is(err, tts.ErrNoVoiceID) {
		t.Errorf("ElevenLabs without voice: got %v, want ErrNoVoiceID", err)
	}
	if _, err := tts.NewOpenAI(); !errors.Is(err, tts.ErrNoAPIKey) {
		t.Errorf("OpenAI without key: got %v, want ErrNoAPIKey", err)
	}
	if _, err := tts.NewOpenAI(tts.WithAPIKey("k")); err != nil {
		t.Errorf("OpenAI with key: %v", err)
	}
}

func TestElevenLabs_Synthesize(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	var got struct {
		Text    string `json:"text"`
		ModelID string `json:"model_id"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/text-to-speech/voice-1" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		if r.URL.Query().Get("output_format") != "pcm_16000" {
			t.Errorf("output_format: got %q", r.URL.Query().Get("output_format"))
		}
		if r.Header.Get("xi-api-key") != "key" {
			t.Errorf("api key header: got %q", r.Header.Get("xi-api-key"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write(pcm)
	}))
	defer srv.Close()

	p, err := tts.NewElevenLabs(
		tts.WithAPIKey("key"),
		tts.WithVoice("voice-1"),
		tts.WithBaseURL(srv.URL),
	)
	if err != nil {
		t.Fatalf("NewElevenLabs: %v", err)
	}
	defer p.Close()

	result, err := p.Synthesize(context.Background(), "2 person, 1 chair.")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(result.Audio) != string(pcm) {
		t.Errorf("audio: got %v, want %v", result.Audio, pcm)
	}
	if got.Text != "2 person, 1 chair." || got.ModelID != tts.ModelFlashV2_5 {
		t.Errorf("payload: got %+v", got)
	}
	if result.Duration != 250*time.Microsecond {
		t.Errorf("duration: got %v, want 250µs", result.Duration)
	}
}

func TestElevenLabs_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte{0, 0})
	}))
	defer srv.Close()

	p, _ := tts.NewElevenLabs(
		tts.WithAPIKey("key"),
		tts.WithVoice("v"),
		tts.WithBaseURL(srv.URL),
		tts.WithRetry(2, time.Millisecond),
	)
	if _, err := p.Synthesize(context.Background(), "hi"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls: got %d, want 2", calls.Load())
	}
}

func TestElevenLabs_Unauthorized(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":{"status":"invalid_api_key","message":"Invalid API key"}}`))
	}))
	defer srv.Close()

	p, _ := tts.NewElevenLabs(tts.WithAPIKey("bad"), tts.WithVoice("v"), tts.WithBaseURL(srv.URL))
	_, err := p.Synthesize(context.Background(), "hi")

	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if !apiErr.IsUnauthorized() || apiErr.Message != "Invalid API key" || apiErr.Provider != "elevenlabs" {
		t.Errorf("APIError: got %+v", apiErr)
	}
	if calls.Load() != 1 {
		t.Errorf("401 should not be retried, got %d calls", calls.Load())
	}
}

func TestOpenAI_StreamPCM(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["response_format"] != "pcm" {
			t.Errorf("response_format: got %q", req["response_format"])
		}
		// Odd-length body: the stream must never split a sample.
		io.WriteString(w, strings.Repeat("\x01", 4097))
	}))
	defer srv.Close()

	p, err := tts.NewOpenAI(tts.WithAPIKey("k"), tts.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}

	stream, err := p.Stream(context.Background(), "Lumos OFF")
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if stream.Format().SampleRate != 24000 {
		t.Errorf("sample rate: got %d, want 24000", stream.Format().SampleRate)
	}

	total := 0
	for {
		chunk, err := stream.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if chunk == nil {
			break
		}
		if len(chunk)%2 != 0 {
			t.Fatalf("chunk of %d bytes splits a sample", len(chunk))
		}
		total += len(chunk)
	}
	stream.Close()
	if total != 4096 {
		t.Errorf("total: got %d, want 4096 (trailing odd byte dropped)", total)
	}
}

func TestEmptyText(t *testing.T) {
	p, _ := tts.NewOpenAI(tts.WithAPIKey("k"), tts.WithBaseURL("http://127.0.0.1:1"))
	if _, err := p.Synthesize(context.Background(), ""); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("got %v, want ErrEmptyText", err)
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	failing := tts.WithError(errors.New("primary down"))
	backup := tts.NewMock()

	chain, err := tts.NewChain(nil, failing, backup)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}

	if _, err := chain.Synthesize(ctx, "1 chair."); err != nil {
		t.Fatalf("Synthesize should fall back: %v", err)
	}
	if backup.CallCount("Synthesize") != 1 {
		t.Errorf("backup calls: got %d, want 1", backup.CallCount("Synthesize"))
	}
	if err := chain.Health(ctx); err != nil {
		t.Errorf("Health with one healthy provider: %v", err)
	}

	allDown, _ := tts.NewChain(nil, tts.WithError(errors.New("a")), tts.WithError(errors.New("b")))
	if _, err := allDown.Stream(ctx, "x"); err == nil || !strings.Contains(err.Error(), "all 2 providers failed") {
		t.Errorf("all failing: got %v", err)
	}

	if _, err := tts.NewChain(nil); !errors.Is(err, tts.ErrProviderUnavailable) {
		t.Errorf("empty chain: got %v, want ErrProviderUnavailable", err)
	}
}

func TestProviderError(t *testing.T) {
	inner := errors.New("connection refused")
	err := tts.WrapError("openai", inner)
	if !errors.Is(err, inner) {
		t.Error("WrapError should unwrap to inner error")
	}
	if tts.WrapError("openai", nil) != nil {
		t.Error("WrapError(nil) should be nil")
	}
}

func TestResolveElevenLabsVoice(t *testing.T) {
	if got := tts.ResolveElevenLabsVoice("rachel"); got != "21m00Tcm4TlvDq8ikWAM" {
		t.Errorf("preset: got %q", got)
	}
	if got := tts.ResolveElevenLabsVoice("raw-id"); got != "raw-id" {
		t.Errorf("passthrough: got %q", got)
	}
}
