// Lumos - hands-free scene narration
// Say "on" and the camera's view is described aloud; say "off" to stop.
package main

import (
	"context"
	"flag"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lpernett/godotenv"

	"github.com/teslashibe/go-lumos/internal/config"
	"github.com/teslashibe/go-lumos/internal/log"
	"github.com/teslashibe/go-lumos/pkg/lumos"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (defaults apply when empty)")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	mock := flag.Bool("mock", false, "Use scripted detectors, silent speech and a synthetic camera")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		stdlog.Printf("⚠️  .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		stdlog.Fatalf("❌ Configuration error: %v", err)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	log.Init(cfg.LogLevel)

	app, err := lumos.New(cfg, lumos.Options{Mock: *mock, Logger: log.L()})
	if err != nil {
		stdlog.Fatalf("❌ Configuration error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		app.Shutdown(ctx)
		stdlog.Fatalf("❌ Initialization failed: %v", err)
	}
	defer app.Shutdown(ctx)

	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		app.Shutdown(ctx)
		os.Exit(1)
	}
}
