// Package lumos assembles a running Lumos instance from configuration:
// audio capture and the command classifier, the camera frame source and
// object detector, the session, speech, the dashboard and event emitters.
package lumos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-lumos/internal/config"
	"github.com/teslashibe/go-lumos/pkg/audioio"
	"github.com/teslashibe/go-lumos/pkg/detection"
	"github.com/teslashibe/go-lumos/pkg/detection/speechcmd"
	"github.com/teslashibe/go-lumos/pkg/detection/yolo"
	"github.com/teslashibe/go-lumos/pkg/emitter"
	"github.com/teslashibe/go-lumos/pkg/framesource"
	"github.com/teslashibe/go-lumos/pkg/session"
	"github.com/teslashibe/go-lumos/pkg/speech"
	"github.com/teslashibe/go-lumos/pkg/tts"
	"github.com/teslashibe/go-lumos/pkg/web"
)

// Options are command line switches that are not part of the config file.
type Options struct {
	// Mock replaces the classifiers, the TTS provider and the camera with
	// in-process fakes for dry runs without models or hardware.
	Mock bool

	Logger *slog.Logger
}

// frameRunner is a frame source.
type frameRunner interface {
	Run(ctx context.Context, submit framesource.SubmitFunc) error
}

// App is the Lumos application orchestrator.
// It manages all components and their lifecycle.
type App struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	// Audio capture feeding the classifier window
	source audioio.Source
	window *audioio.Window

	// Outputs
	provider tts.Provider
	speaker  *speech.Speaker
	web      *web.Server
	emitter  *emitter.Async

	frames  frameRunner
	session *session.Session
}

// New validates cfg and creates an application. Nothing is started.
func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &App{cfg: cfg, opts: opts, logger: opts.Logger}, nil
}

// Init builds every component. Optional outputs that fail to come up are
// logged and skipped; only a session that cannot be built is an error.
// Call Shutdown even when Init fails.
func (a *App) Init(ctx context.Context) error {
	a.logger.Info("initializing lumos", "mock", a.opts.Mock)

	if err := a.initSpeech(); err != nil {
		a.logger.Warn("speech disabled", "error", err)
	}
	a.initEmitters(ctx)
	a.initDashboard()

	if err := a.initAudio(); err != nil {
		return fmt.Errorf("audio capture: %w", err)
	}
	a.initFrames()

	displays := session.Displays{session.LogDisplay{Logger: a.logger}}
	if a.web != nil {
		displays = append(displays, a.web)
	}

	opts := session.Options{
		Audio:   a.audioFactory(),
		Vision:  a.visionFactory(),
		Poller:  a.cfg.Audio.Poller(),
		Display: displays,
		Logger:  a.logger,
	}
	if a.speaker != nil {
		opts.Speaker = a.speaker
	}
	if a.emitter != nil {
		opts.Emitter = a.emitter
	}

	s, err := session.New(opts)
	if err != nil {
		return err
	}
	a.session = s
	return nil
}

// Session returns the session built by Init.
func (a *App) Session() *session.Session {
	return a.session
}

// Run starts capture, both streams, the frame source and the dashboard,
// then blocks until ctx is cancelled. It fails only when neither stream
// could start.
func (a *App) Run(ctx context.Context) error {
	if a.session == nil {
		return errors.New("lumos: Run before Init")
	}

	if a.web != nil {
		a.web.StartAsync(ctx)
	}

	if a.source != nil {
		if err := a.source.Start(ctx); err != nil {
			a.logger.Warn("audio capture failed to start", "error", err)
		} else {
			go func() {
				if err := a.window.Pump(ctx, a.source); err != nil {
					a.logger.Warn("audio capture stopped", "error", err)
				}
			}()
		}
	}

	if err := a.session.Start(ctx); err != nil {
		st := a.session.Stats()
		if !st.AudioReady && !st.VisionReady {
			return err
		}
		a.logger.Warn("running with one stream", "error", err)
	}

	if a.frames != nil {
		go func() {
			if err := a.frames.Run(ctx, a.session.Submit); err != nil {
				a.logger.Error("frame source stopped", "error", err)
			}
		}()
	}

	a.logger.Info("lumos running", "session_id", a.session.ID(), "mode", a.session.Gate().Load().StatusText())
	<-ctx.Done()
	return nil
}

// Shutdown stops the streams first so no sink is called afterwards, then
// closes the sinks. It is safe after a partial Init.
func (a *App) Shutdown(ctx context.Context) error {
	timeout := a.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	var errs []error
	add := func(what string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
		}
	}

	if a.session != nil {
		add("session", a.session.Stop(ctx))
	}
	if a.source != nil {
		add("audio capture", a.source.Close())
	}
	if a.speaker != nil {
		add("speaker", a.speaker.Close())
	}
	if a.provider != nil {
		add("tts", a.provider.Close())
	}
	if a.emitter != nil {
		add("emitter", a.emitter.Close())
	}
	if a.web != nil {
		add("dashboard", a.web.Shutdown(ctx))
	}

	err := errors.Join(errs...)
	a.logger.Info("lumos stopped", "error", err)
	return err
}

func (a *App) initAudio() error {
	capture := a.cfg.Audio.Capture
	if a.opts.Mock {
		capture.Backend = audioio.BackendMock
	}
	src, err := audioio.NewSource(capture, a.logger)
	if err != nil {
		return err
	}
	a.source = src
	a.window = audioio.NewWindow(capture.SampleRate, a.cfg.Audio.Window)
	return nil
}

func (a *App) audioFactory() detection.AudioFactory {
	if a.opts.Mock {
		return func() (detection.AudioDetector, error) { return newDemoAudio(), nil }
	}
	return speechcmd.Factory(a.cfg.Audio.Model, a.window)
}

func (a *App) visionFactory() detection.VisionFactory {
	if a.opts.Mock {
		return func() (detection.VisionDetector, error) { return newDemoVision(), nil }
	}
	return yolo.Factory(a.cfg.Vision)
}

func (a *App) initFrames() {
	switch {
	case a.cfg.Camera.URL != "":
		a.frames = framesource.NewWebSocket(a.cfg.Camera.Config, a.logger)
	case a.opts.Mock:
		frame, err := demoFrame()
		if err != nil {
			a.logger.Warn("demo frame unavailable", "error", err)
			return
		}
		a.frames = framesource.NewReplay([][]byte{frame}, 200*time.Millisecond, a.cfg.Camera.Rotation)
	default:
		a.logger.Warn("no camera url configured; vision stream idle", "env", config.EnvCameraURL)
	}
}

func (a *App) initDashboard() {
	d := a.cfg.Dashboard
	if !d.Enabled {
		return
	}
	a.web = web.NewServer(d.Addr,
		web.WithLogger(a.logger),
		web.WithStaticDir(d.StaticDir),
		web.WithStats(func() any {
			if a.session == nil {
				return nil
			}
			return a.session.Stats()
		}),
	)
}

func (a *App) initEmitters(ctx context.Context) {
	var targets emitter.Multi

	if a.cfg.MQTT.Enabled {
		m := emitter.NewMQTT(a.cfg.MQTT.MQTTConfig, emitter.WithMQTTLogger(a.logger))
		if err := m.Connect(ctx); err != nil {
			// The client keeps retrying in the background.
			a.logger.Warn("mqtt not connected yet", "error", err)
		}
		targets = append(targets, m)
	}

	if a.cfg.Redis.Enabled {
		r := emitter.NewRedis(a.cfg.Redis.RedisConfig, a.logger)
		if err := r.Connect(ctx); err != nil {
			a.logger.Warn("redis not reachable yet", "error", err)
		}
		targets = append(targets, r)
	}

	if len(targets) > 0 {
		a.emitter = emitter.NewAsync(targets, emitter.DefaultQueueSize, a.logger)
	}
}
