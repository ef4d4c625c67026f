// Package web serves the Lumos dashboard: current mode, the last spoken
// summary and live detection overlays over REST and websockets.
package web

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-lumos/pkg/hub"
	"github.com/teslashibe/go-lumos/pkg/mode"
)

// DefaultAddr is the dashboard listen address.
const DefaultAddr = ":8080"

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStaticDir serves dashboard assets from dir at "/".
func WithStaticDir(dir string) Option {
	return func(s *Server) { s.staticDir = dir }
}

// WithStats adds the result of fn under "stats" in GET /api/status.
func WithStats(fn func() any) Option {
	return func(s *Server) { s.statsFn = fn }
}

// Server is the dashboard server. Its Show* methods are safe to call from
// any goroutine and never block on slow clients.
type Server struct {
	app       *fiber.App
	addr      string
	logger    *slog.Logger
	staticDir string
	statsFn   func() any

	mu      sync.RWMutex
	status  Status
	summary *SummaryView
	overlay *OverlayView

	statusHub     *hub.Hub
	detectionsHub *hub.Hub

	cancel context.CancelFunc
}

// NewServer creates a dashboard listening on addr.
func NewServer(addr string, opts ...Option) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		addr:   addr,
		logger: slog.Default(),
		status: Status{
			Mode:       mode.Inactive.String(),
			StatusText: mode.Inactive.StatusText(),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")
	s.statusHub = hub.New("status", hub.WithRetain(), hub.WithLogger(s.logger))
	s.detectionsHub = hub.New("detections", hub.WithLogger(s.logger))

	app := fiber.New(fiber.Config{
		AppName:               "Lumos Dashboard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	if s.staticDir != "" {
		app.Static("/", s.staticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/summary", s.handleSummary)
	api.Get("/overlay", s.handleOverlay)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.serveHub(s.statusHub)))
	app.Get("/ws/detections", websocket.New(s.serveHub(s.detectionsHub)))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the hubs and serves until Shutdown. It returns nil after a
// clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.statusHub.Run(ctx)
	go s.detectionsHub.Run(ctx)

	// Seed the retained status so the first client sees the current mode.
	s.broadcastStatus()

	s.logger.Info("dashboard listening", "addr", s.addr)
	err := s.app.Listen(s.addr)
	cancel()
	return err
}

// StartAsync runs Start in a goroutine, logging any error.
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			s.logger.Error("dashboard stopped", "error", err)
		}
	}()
}

// Shutdown stops the listener and closes every websocket client.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) serveHub(h *hub.Hub) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		c := hub.NewClient(h, conn)
		if c == nil {
			conn.Close()
			return
		}
		c.Run()
	}
}
