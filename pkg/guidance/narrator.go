package guidance

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-wayfind/internal/log"
	"github.com/teslashibe/go-wayfind/pkg/navigation"
	"github.com/teslashibe/go-wayfind/pkg/pipeline"
	"github.com/teslashibe/go-wayfind/pkg/tts"
)

// DefaultNarrationInterval is the minimum gap between repeats of a zone.
const DefaultNarrationInterval = 3 * time.Second

// Narrator speaks one instruction per guidance cycle. A zone's message is
// repeated only when it changed or the zone's limiter allows it.
type Narrator struct {
	provider tts.Provider
	output   func(*tts.Audio)
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
	disabled atomic.Bool

	mu       sync.Mutex
	limiters map[navigation.Zone]*rate.Limiter
	last     map[navigation.Zone]string
}

// NarratorOption configures a Narrator.
type NarratorOption func(*Narrator)

// WithInterval sets the per-zone repeat interval.
func WithInterval(d time.Duration) NarratorOption {
	return func(n *Narrator) {
		if d > 0 {
			n.interval = d
		}
	}
}

// WithAudioOutput sets where synthesized audio goes.
func WithAudioOutput(fn func(*tts.Audio)) NarratorOption {
	return func(n *Narrator) { n.output = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) NarratorOption {
	return func(n *Narrator) { n.now = now }
}

// NewNarrator creates a narrator speaking through provider.
func NewNarrator(provider tts.Provider, opts ...NarratorOption) *Narrator {
	n := &Narrator{
		provider: provider,
		interval: DefaultNarrationInterval,
		timeout:  10 * time.Second,
		now:      time.Now,
		logger:   log.Component("guidance.narrator"),
		limiters: make(map[navigation.Zone]*rate.Limiter),
		last:     make(map[navigation.Zone]string),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// OnGuidance implements pipeline.GuidanceSink. A rejected API key disables
// the narrator for the rest of the process.
func (n *Narrator) OnGuidance(g pipeline.Guidance) {
	if n.disabled.Load() {
		return
	}
	text, ok := n.Next(g.Instructions)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	audio, err := n.provider.Synthesize(ctx, text)
	if err != nil {
		var apiErr *tts.APIError
		if errors.As(err, &apiErr) && apiErr.IsUnauthorized() {
			n.disabled.Store(true)
			n.logger.Error("narration disabled, API key rejected", "error", err)
			return
		}
		n.logger.Warn("narration failed", "seq", g.Seq, "error", err)
		return
	}
	n.logger.Debug("narrating", "seq", g.Seq, "text", text, "bytes", len(audio.Data))
	if n.output != nil {
		n.output(audio)
	}
}

// Disabled reports whether the narrator gave up after an auth failure.
func (n *Narrator) Disabled() bool {
	return n.disabled.Load()
}

// Next picks the instruction to speak, if any, and records it as spoken.
// Center obstacles come first, then input order.
func (n *Narrator) Next(instrs []navigation.Instruction) (string, bool) {
	in, ok := pick(instrs)
	if !ok {
		return "", false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	lim, ok := n.limiters[in.Zone]
	if !ok {
		lim = rate.NewLimiter(rate.Every(n.interval), 1)
		n.limiters[in.Zone] = lim
	}
	allowed := lim.AllowN(n.now(), 1)
	if !allowed && n.last[in.Zone] == in.Message {
		return "", false
	}
	n.last[in.Zone] = in.Message
	return in.Message, true
}

func pick(instrs []navigation.Instruction) (navigation.Instruction, bool) {
	if len(instrs) == 0 {
		return navigation.Instruction{}, false
	}
	for _, in := range instrs {
		if in.Zone == navigation.Center {
			return in, true
		}
	}
	return instrs[0], true
}
