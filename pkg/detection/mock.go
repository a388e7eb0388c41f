package detection

import (
	"context"
	"image"
	"sync"
	"time"
)

// Mock implements Detector for testing.
type Mock struct {
	// LoadFunc is called when Load is invoked.
	LoadFunc func(ctx context.Context) error

	// DetectFunc is called when Detect is invoked.
	DetectFunc func(ctx context.Context, img image.Image) ([]Detection, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	// MockName is returned by Name. Defaults to "mock".
	MockName string

	mu       sync.Mutex
	calls    []MockCall
	inFlight int
	maxIn    int
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

// NewMock creates a mock that loads fine and detects nothing.
func NewMock() *Mock {
	return &Mock{
		LoadFunc: func(ctx context.Context) error { return nil },
		DetectFunc: func(ctx context.Context, img image.Image) ([]Detection, error) {
			return []Detection{}, nil
		},
	}
}

// WithDetections creates a mock that always returns dets.
func WithDetections(dets ...Detection) *Mock {
	m := NewMock()
	m.DetectFunc = func(ctx context.Context, img image.Image) ([]Detection, error) {
		out := make([]Detection, len(dets))
		copy(out, dets)
		return out, nil
	}
	return m
}

// WithError creates a mock whose Detect always fails with err.
func WithError(err error) *Mock {
	m := NewMock()
	m.DetectFunc = func(ctx context.Context, img image.Image) ([]Detection, error) {
		return nil, err
	}
	return m
}

// Load calls LoadFunc and records the call.
func (m *Mock) Load(ctx context.Context) error {
	m.record("Load")
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx)
	}
	return nil
}

// Detect calls DetectFunc and records the call.
func (m *Mock) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	m.record("Detect")

	m.mu.Lock()
	m.inFlight++
	if m.inFlight > m.maxIn {
		m.maxIn = m.inFlight
	}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, img)
	}
	return nil, WrapError(m.Name(), ErrModelNotLoaded)
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close")
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Name returns MockName or "mock".
func (m *Mock) Name() string {
	if m.MockName != "" {
		return m.MockName
	}
	return "mock"
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Time: time.Now()})
}

// Calls returns all recorded calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of calls to a method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// MaxConcurrent returns the highest number of Detect calls observed running at once.
func (m *Mock) MaxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxIn
}

// Reset clears recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.maxIn = m.inFlight
}
