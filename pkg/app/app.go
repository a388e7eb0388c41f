// Package app assembles the wayfind process from configuration: detector,
// frame source, scheduler, guidance sinks and the control server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-wayfind/internal/config"
	"github.com/teslashibe/go-wayfind/internal/log"
	"github.com/teslashibe/go-wayfind/pkg/capture"
	"github.com/teslashibe/go-wayfind/pkg/detection"
	"github.com/teslashibe/go-wayfind/pkg/guidance"
	"github.com/teslashibe/go-wayfind/pkg/hub"
	"github.com/teslashibe/go-wayfind/pkg/pipeline"
	"github.com/teslashibe/go-wayfind/pkg/tts"
	"github.com/teslashibe/go-wayfind/pkg/web"
)

// sinkBuffer is the queue length in front of each network sink.
const sinkBuffer = 16

// App is the wayfind process.
type App struct {
	config config.Config
	logger *slog.Logger

	detector detection.Detector
	source   capture.Source

	scheduler *pipeline.Scheduler
	server    *web.Server
	hubSink   *guidance.HubSink

	closers []io.Closer
	once    sync.Once
}

// New validates cfg and returns an uninitialized app.
func New(cfg config.Config) (*App, error) {
	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, &ConfigError{Problems: problems}
	}
	return &App{
		config: cfg,
		logger: log.Component("app"),
	}, nil
}

// ConfigError lists every configuration problem found.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	if len(e.Problems) == 1 {
		return "config: " + e.Problems[0]
	}
	return fmt.Sprintf("config: %d problems, first: %s", len(e.Problems), e.Problems[0])
}

// Init builds every component. Network sinks that cannot connect are logged
// and left out.
func (a *App) Init(ctx context.Context) error {
	det, err := BuildDetector(a.config.Detector)
	if err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	a.detector = det
	a.source = BuildSource(a.config.Camera, a.config.Pipeline.TickInterval)

	renderer, err := BuildRenderer(a.config.Overlay)
	if err != nil {
		return fmt.Errorf("overlay: %w", err)
	}

	hubs := web.Hubs{
		Guidance: hub.New("guidance"),
		Frames:   hub.New("frames"),
		Audio:    hub.New("audio"),
	}
	a.hubSink = guidance.NewHubSink(hubs.Guidance, hubs.Frames, hubs.Audio)

	sinks := guidance.Multi{a.hubSink}
	sinks = append(sinks, a.networkSinks(ctx)...)

	a.scheduler = pipeline.New(det, a.source,
		pipeline.WithTickInterval(a.config.Pipeline.TickInterval),
		pipeline.WithDetectTimeout(a.config.Pipeline.DetectTimeout),
		pipeline.WithHoldCycles(a.config.Pipeline.HoldCycles),
		pipeline.WithRenderer(renderer),
		pipeline.WithGuidanceSink(sinks),
		pipeline.WithFrameSink(a.hubSink),
	)

	hubs.Status = hub.New("status", hub.WithGreeting(web.StatusGreeting(a.scheduler)))
	a.server = web.NewServer(a.config.Server.Port, a.scheduler, a.hubSink, hubs,
		web.WithStaticDir(a.config.Server.StaticDir),
		web.WithStatusInterval(a.config.Server.StatusInterval),
	)

	a.logger.Info("initialized",
		"detector", detection.NameOf(det),
		"detect_timeout", a.scheduler.DetectTimeout(),
		"sinks", len(sinks),
	)
	return nil
}

func (a *App) networkSinks(ctx context.Context) []pipeline.GuidanceSink {
	var sinks []pipeline.GuidanceSink

	if c := a.config.MQTT; c.Broker != "" {
		client, err := guidance.ConnectMQTT(ctx, c.Broker, c.ClientID)
		if err != nil {
			a.logger.Warn("mqtt sink disabled", "broker", c.Broker, "error", err)
		} else {
			sinks = append(sinks, a.async("mqtt", guidance.NewMQTTSink(client, c.Topic, c.QoS, c.Retained)))
			a.closers = append(a.closers, closerFunc(func() error {
				client.Disconnect(250)
				return nil
			}))
		}
	}

	if c := a.config.Redis; c.Address != "" {
		client, err := guidance.DialRedis(ctx, c.Address, c.Password, c.DB)
		if err != nil {
			a.logger.Warn("redis sink disabled", "address", c.Address, "error", err)
		} else {
			sinks = append(sinks, a.async("redis", guidance.NewRedisSink(client, c.Channel, c.Key, c.TTL)))
			a.closers = append(a.closers, client)
		}
	}

	if c := a.config.Narration; c.Enabled {
		provider, err := tts.NewOpenAI(tts.WithAPIKey(c.OpenAIKey), tts.WithVoice(c.Voice))
		if err != nil {
			a.logger.Warn("narration disabled", "error", err)
		} else {
			n := guidance.NewNarrator(provider,
				guidance.WithInterval(c.Interval),
				guidance.WithAudioOutput(a.hubSink.OnAudio),
			)
			sinks = append(sinks, a.async("narrator", n))
			a.closers = append(a.closers, provider)
		}
	}

	return sinks
}

// async queues deliveries to sink so a slow broker never stalls the scheduler.
func (a *App) async(name string, sink pipeline.GuidanceSink) pipeline.GuidanceSink {
	as := guidance.NewAsync(name, sink, sinkBuffer)
	a.closers = append(a.closers, as)
	return as
}

// Scheduler returns the pipeline scheduler. Nil before Init.
func (a *App) Scheduler() *pipeline.Scheduler {
	return a.scheduler
}

// Server returns the control server. Nil before Init.
func (a *App) Server() *web.Server {
	return a.server
}

// Run drives the scheduler and the control server until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a.scheduler == nil {
		return errors.New("app: Run called before Init")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.config.Pipeline.AutoStart {
		go a.autoStart(ctx)
	}

	errCh := make(chan error, 2)
	go func() { errCh <- a.scheduler.Run(ctx) }()
	go func() { errCh <- a.server.Run(ctx) }()

	err := <-errCh
	cancel()
	<-errCh
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) autoStart(ctx context.Context) {
	if err := a.scheduler.LoadModel(ctx); err != nil {
		a.logger.Error("auto start: load model", "error", err)
		return
	}
	if err := a.scheduler.Start(ctx); err != nil {
		a.logger.Error("auto start: start stream", "error", err)
		return
	}
	a.server.BroadcastStatus()
}

// Shutdown releases every component. Safe to call more than once.
func (a *App) Shutdown() {
	a.once.Do(func() {
		if a.scheduler != nil {
			if err := a.scheduler.Close(); err != nil {
				a.logger.Warn("close scheduler", "error", err)
			}
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i].Close(); err != nil {
				a.logger.Warn("close sink", "error", err)
			}
		}
		a.logger.Info("shut down")
	})
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
