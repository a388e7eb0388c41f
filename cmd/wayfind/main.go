// Wayfind streams camera frames through an object detector and turns the
// detections into left/center/right guidance for the user.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-wayfind/internal/config"
	wlog "github.com/teslashibe/go-wayfind/internal/log"
	"github.com/teslashibe/go-wayfind/pkg/app"
)

func main() {
	cfg := parseFlags()
	wlog.Init(cfg.Log.Level)

	a, err := app.New(*cfg)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Init(ctx); err != nil {
		log.Fatalf("❌ Initialization failed: %v", err)
	}
	defer a.Shutdown()

	if err := a.Run(ctx); err != nil {
		log.Fatalf("❌ Runtime error: %v", err)
	}
}

// parseFlags loads configuration and applies command line overrides.
func parseFlags() *config.Config {
	path := flag.String("config", "", "YAML config file (overrides WAYFIND_CONFIG)")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	port := flag.String("port", "", "Control server port")
	backend := flag.String("backend", "", "Detector backend: http, ws, yolo, chain")
	images := flag.String("images", "", "Read frames from a directory of images instead of the webcam")
	autoStart := flag.Bool("auto-start", false, "Load the model and start streaming on launch")
	narrate := flag.Bool("narrate", false, "Speak guidance through the audio feed")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	if *debug {
		cfg.Log.Level = "debug"
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *backend != "" {
		cfg.Detector.Backend = *backend
	}
	if *images != "" {
		cfg.Camera.Images = *images
	}
	cfg.Pipeline.AutoStart = cfg.Pipeline.AutoStart || *autoStart
	cfg.Narration.Enabled = cfg.Narration.Enabled || *narrate
	return cfg
}
