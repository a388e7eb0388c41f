// Package guidance delivers pipeline output to websocket clients, MQTT,
// Redis and spoken narration.
package guidance

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-wayfind/internal/log"
	"github.com/teslashibe/go-wayfind/pkg/pipeline"
)

// Multi fans guidance out to every sink in order.
type Multi []pipeline.GuidanceSink

// OnGuidance implements pipeline.GuidanceSink.
func (m Multi) OnGuidance(g pipeline.Guidance) {
	for _, s := range m {
		s.OnGuidance(g)
	}
}

// Async runs a slow sink on its own goroutine. Guidance arriving while the
// queue is full is dropped.
type Async struct {
	sink   pipeline.GuidanceSink
	ch     chan pipeline.Guidance
	done   chan struct{}
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

// NewAsync starts a worker delivering to sink.
func NewAsync(name string, sink pipeline.GuidanceSink, buffer int) *Async {
	if buffer <= 0 {
		buffer = 1
	}
	a := &Async{
		sink:   sink,
		ch:     make(chan pipeline.Guidance, buffer),
		done:   make(chan struct{}),
		logger: log.Component("guidance.async").With("sink", name),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for g := range a.ch {
		a.sink.OnGuidance(g)
	}
}

// OnGuidance queues g.
func (a *Async) OnGuidance(g pipeline.Guidance) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.ch <- g:
	default:
		a.dropped.Add(1)
		a.logger.Debug("sink busy, dropping guidance", "seq", g.Seq)
	}
}

// Dropped returns how many guidance values were dropped.
func (a *Async) Dropped() uint64 {
	return a.dropped.Load()
}

// Close stops accepting guidance and waits for the queue to drain.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()
	<-a.done
	return nil
}
