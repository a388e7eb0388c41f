package detection

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"

	"github.com/teslashibe/go-wayfind/internal/log"
)

// Chain tries multiple detectors in order until one succeeds.
// Only detectors that loaded successfully take part in Detect.
type Chain struct {
	detectors []Detector
	logger    *slog.Logger

	mu     sync.RWMutex
	loaded []bool
}

// NewChain creates a detector chain. At least one detector is required.
func NewChain(detectors ...Detector) (*Chain, error) {
	if len(detectors) == 0 {
		return nil, ErrNoDetectors
	}
	return &Chain{
		detectors: detectors,
		loaded:    make([]bool, len(detectors)),
		logger:    log.Component("detection.chain"),
	}, nil
}

// NewChainWithLogger creates a detector chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, detectors ...Detector) (*Chain, error) {
	chain, err := NewChain(detectors...)
	if err != nil {
		return nil, err
	}
	chain.logger = logger.With("component", "detection.chain")
	return chain, nil
}

// Name identifies the chain in logs.
func (c *Chain) Name() string {
	return "chain"
}

// Load loads every detector and succeeds if at least one of them did.
func (c *Chain) Load(ctx context.Context) error {
	var errs []error
	ok := 0

	for i, d := range c.detectors {
		err := d.Load(ctx)

		c.mu.Lock()
		c.loaded[i] = err == nil
		c.mu.Unlock()

		if err != nil {
			errs = append(errs, WrapError(NameOf(d), err))
			c.logger.Warn("detector failed to load",
				"detector", NameOf(d),
				"error", err,
			)
			continue
		}
		ok++
	}

	if ok == 0 {
		return &ChainError{Errors: errs}
	}
	return nil
}

// Detect tries each loaded detector until one succeeds.
func (c *Chain) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	var errs []error

	for i, d := range c.detectors {
		c.mu.RLock()
		loaded := c.loaded[i]
		c.mu.RUnlock()
		if !loaded {
			continue
		}

		dets, err := d.Detect(ctx, img)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback detector succeeded",
					"detector_index", i,
					"detector", NameOf(d),
				)
			}
			return dets, nil
		}

		errs = append(errs, err)
		c.logger.Warn("detector failed, trying next",
			"detector_index", i,
			"error", err,
		)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	if len(errs) == 0 {
		return nil, ErrModelNotLoaded
	}
	return nil, &ChainError{Errors: errs}
}

// Close closes all detectors.
func (c *Chain) Close() error {
	var errs []error
	for _, d := range c.detectors {
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of detectors in the chain.
func (c *Chain) Len() int {
	return len(c.detectors)
}
