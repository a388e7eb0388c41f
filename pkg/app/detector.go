package app

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-wayfind/internal/config"
	"github.com/teslashibe/go-wayfind/internal/log"
	"github.com/teslashibe/go-wayfind/pkg/capture"
	"github.com/teslashibe/go-wayfind/pkg/capture/webcam"
	"github.com/teslashibe/go-wayfind/pkg/detection"
	"github.com/teslashibe/go-wayfind/pkg/detection/remote"
	"github.com/teslashibe/go-wayfind/pkg/detection/wsdetect"
	"github.com/teslashibe/go-wayfind/pkg/detection/yolo"
	"github.com/teslashibe/go-wayfind/pkg/overlay"
)

// BuildDetector returns the configured backend wrapped in the score and
// label filters. The detector is not loaded.
func BuildDetector(cfg config.DetectorConfig) (detection.Detector, error) {
	det, err := backend(cfg, cfg.Backend)
	if err != nil {
		return nil, err
	}

	var filters []detection.Filter
	if cfg.MinScore > 0 {
		filters = append(filters, detection.MinScore(cfg.MinScore))
	}
	if len(cfg.Labels) > 0 {
		filters = append(filters, detection.Labels(cfg.Labels...))
	}
	if len(filters) == 0 {
		return det, nil
	}
	return detection.WithFilters(det, filters...), nil
}

func backend(cfg config.DetectorConfig, name string) (detection.Detector, error) {
	switch name {
	case config.BackendHTTP:
		return remote.New(
			remote.WithBaseURL(cfg.URL),
			remote.WithLanguage(cfg.Language),
			remote.WithLogger(log.L()),
		), nil
	case config.BackendWS:
		return wsdetect.New(
			wsdetect.WithURL(cfg.WSURL),
			wsdetect.WithLogger(log.L()),
		), nil
	case config.BackendYOLO:
		yc := yolo.DefaultConfig()
		yc.ModelPath = cfg.ModelPath
		yc.Logger = log.L()
		return yolo.New(yc), nil
	case config.BackendChain:
		dets := make([]detection.Detector, 0, len(cfg.Chain))
		for _, n := range cfg.Chain {
			if n == config.BackendChain {
				return nil, fmt.Errorf("app: chain cannot contain itself")
			}
			d, err := backend(cfg, n)
			if err != nil {
				return nil, err
			}
			dets = append(dets, d)
		}
		chain, err := detection.NewChainWithLogger(log.L(), dets...)
		if err != nil {
			return nil, err
		}
		return chain, nil
	default:
		return nil, fmt.Errorf("app: unknown detector backend %q", name)
	}
}

// BuildSource returns an image directory source when one is configured and
// the webcam otherwise.
func BuildSource(cfg config.CameraConfig, interval time.Duration) capture.Source {
	if cfg.Images != "" {
		return capture.NewImageDir(cfg.Images, interval)
	}
	wc := webcam.DefaultConfig()
	wc.Device = cfg.Device
	wc.Width = cfg.Width
	wc.Height = cfg.Height
	wc.Logger = log.L()
	return webcam.New(wc)
}

// BuildRenderer returns the overlay renderer styled by cfg. Empty colors and
// a zero font size keep the renderer defaults.
func BuildRenderer(cfg config.OverlayConfig) (*overlay.Renderer, error) {
	opts := []overlay.Option{overlay.WithGuides(cfg.Guides)}
	if cfg.BoxColor != "" {
		c, err := overlay.ParseHexColor(cfg.BoxColor)
		if err != nil {
			return nil, err
		}
		opts = append(opts, overlay.WithBoxColor(c))
	}
	if cfg.GuideColor != "" {
		c, err := overlay.ParseHexColor(cfg.GuideColor)
		if err != nil {
			return nil, err
		}
		opts = append(opts, overlay.WithGuideColor(c))
	}
	if cfg.FontSize > 0 {
		opts = append(opts, overlay.WithFontSize(cfg.FontSize))
	}
	return overlay.New(opts...), nil
}
