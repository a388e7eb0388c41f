package pipeline

import (
	"context"
	"errors"
	"time"
)

// Run drives Tick at the configured interval while streaming. While not
// streaming it parks until Start is called. It returns when ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler loop started", "interval", s.config.TickInterval, "detect_timeout", s.timeout)
	defer s.logger.Info("scheduler loop stopped")

	for {
		if s.State() != Streaming {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
				continue
			}
		}

		if err := s.stream(ctx); err != nil {
			return err
		}
	}
}

// stream ticks until streaming ends or ctx is done.
func (s *Scheduler) stream(ctx context.Context) error {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := s.Tick(ctx)
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			var cerr *CaptureSourceError
			if errors.As(err, &cerr) {
				s.logger.Warn("capture failed, waiting for start", "error", err)
			}
			if s.State() != Streaming {
				return nil
			}
		}
	}
}
