package lumos

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/teslashibe/go-lumos/internal/config"
	"github.com/teslashibe/go-lumos/pkg/audioio"
	"github.com/teslashibe/go-lumos/pkg/tts"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mockConfig() *config.Config {
	cfg := config.Default()
	cfg.Audio.PollInterval = 100 * time.Millisecond
	cfg.Audio.Capture.Backend = audioio.BackendMock
	cfg.Speech.Provider = config.ProviderMock
	cfg.Speech.Output.Backend = audioio.BackendMock
	cfg.Dashboard.Enabled = false
	return cfg
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Audio.PollInterval = 0
	if _, err := New(cfg, Options{Logger: quietLogger()}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRun_BeforeInit(t *testing.T) {
	app, err := New(mockConfig(), Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := app.Run(context.Background()); err == nil {
		t.Fatal("expected error from Run before Init")
	}
}

func TestApp_MockRun(t *testing.T) {
	app, err := New(mockConfig(), Options{Mock: true, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := app.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for app.Session().Stats().Summaries == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no summaries produced: %+v", app.Session().Stats())
		}
		time.Sleep(20 * time.Millisecond)
	}

	st := app.Session().Stats()
	if !st.AudioReady || !st.VisionReady {
		t.Errorf("streams not ready: %+v", st)
	}
	if st.Commands == 0 {
		t.Error("expected the demo on command to be applied")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if err := app.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestShutdown_AfterPartialInit(t *testing.T) {
	app, err := New(mockConfig(), Options{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := app.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown without Init: %v", err)
	}
}

func TestNewProvider(t *testing.T) {
	app := &App{logger: quietLogger()}
	sc := config.Default().Speech

	sc.Provider = config.ProviderMock
	p, err := newProvider(sc, false, app)
	if err != nil {
		t.Fatalf("mock: %v", err)
	}
	if _, ok := p.(*tts.Mock); !ok {
		t.Errorf("mock provider = %T", p)
	}

	sc.Provider = config.ProviderOpenAI
	sc.OpenAIKey = "sk-test"
	p, err = newProvider(sc, false, app)
	if err != nil {
		t.Fatalf("openai: %v", err)
	}
	if _, ok := p.(*tts.OpenAI); !ok {
		t.Errorf("openai provider = %T", p)
	}
	p.Close()

	sc.Provider = config.ProviderChain
	sc.ElevenLabsKey = ""
	p, err = newProvider(sc, false, app)
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	chain, ok := p.(*tts.Chain)
	if !ok {
		t.Fatalf("chain provider = %T", p)
	}
	if n := len(chain.Providers()); n != 1 {
		t.Errorf("chain providers = %d, want 1 (openai only)", n)
	}
	p.Close()

	sc.OpenAIKey = ""
	if _, err := newProvider(sc, false, app); err == nil {
		t.Error("expected error when no chain provider has a key")
	}
}

func TestEncodingFor(t *testing.T) {
	cases := map[int]tts.Encoding{
		16000: tts.EncodingPCM16,
		22050: tts.EncodingPCM22,
		24000: tts.EncodingPCM24,
		44100: tts.EncodingPCM44,
		48000: tts.EncodingPCM16,
	}
	for rate, want := range cases {
		if got := encodingFor(rate); got != want {
			t.Errorf("encodingFor(%d) = %s, want %s", rate, got, want)
		}
	}
}
