// Detectd serves a local detector over HTTP and websocket for thin wayfind
// clients.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-wayfind/internal/config"
	wlog "github.com/teslashibe/go-wayfind/internal/log"
	"github.com/teslashibe/go-wayfind/pkg/app"
	"github.com/teslashibe/go-wayfind/pkg/detectserver"
)

func main() {
	path := flag.String("config", "", "YAML config file (overrides WAYFIND_CONFIG)")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	port := flag.String("port", "", "Listen port (overrides DETECTD_PORT)")
	backend := flag.String("backend", config.BackendYOLO, "Detector backend to serve")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	if *port != "" {
		cfg.Server.DetectPort = *port
	}
	cfg.Detector.Backend = *backend
	wlog.Init(cfg.Log.Level)

	det, err := app.BuildDetector(cfg.Detector)
	if err != nil {
		log.Fatalf("❌ Detector: %v", err)
	}
	defer det.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loadCtx, loadCancel := context.WithTimeout(ctx, time.Minute)
	err = det.Load(loadCtx)
	loadCancel()
	if err != nil {
		log.Fatalf("❌ Model load failed: %v", err)
	}

	srv := detectserver.New(det,
		detectserver.WithPort(cfg.Server.DetectPort),
		detectserver.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
	)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}
}
