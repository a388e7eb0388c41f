package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-wayfind/pkg/capture"
	"github.com/teslashibe/go-wayfind/pkg/detection"
)

func waitGuidance(t *testing.T, rec *recorder) {
	t.Helper()
	select {
	case <-rec.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for guidance")
	}
}

func TestRunParksUntilStart(t *testing.T) {
	det := detection.WithDetections(detection.Detection{
		Label: "person", BBox: detection.BBox{X: 10, Width: 20, Height: 20},
	})
	src := capture.NewMock(300, 90)
	s, rec := newTestScheduler(t, det, src, WithTickInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	if n := src.CallCount("Read"); n != 0 {
		t.Fatalf("Read called %d times before Start", n)
	}

	streaming(t, s)
	waitGuidance(t, rec)

	g := rec.Guidance()[0]
	if len(g.Instructions) != 1 || g.Instructions[0].Message != "person on the left, move to the center or right." {
		t.Errorf("instructions = %+v", g.Instructions)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run err = %v, want canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunResumesAfterStop(t *testing.T) {
	src := capture.NewMock(300, 90)
	s, rec := newTestScheduler(t, detection.NewMock(), src, WithTickInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	streaming(t, s)
	waitGuidance(t, rec)

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	reads := src.CallCount("Read")
	time.Sleep(30 * time.Millisecond)
	if got := src.CallCount("Read"); got != reads {
		t.Errorf("Read called %d more times while idle", got-reads)
	}

	s.Wait()
	for len(rec.notify) > 0 {
		<-rec.notify
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitGuidance(t, rec)

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run err = %v", err)
	}
}

func TestRunGoesIdleOnReadFailure(t *testing.T) {
	src := capture.NewMock(300, 90)
	src.ReadFunc = func(ctx context.Context) (*capture.Frame, error) {
		return nil, errors.New("camera gone")
	}
	s, _ := newTestScheduler(t, detection.NewMock(), src, WithTickInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	streaming(t, s)

	deadline := time.Now().Add(2 * time.Second)
	for s.State() != Idle {
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want idle", s.State())
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	cancel()
	<-done
}
