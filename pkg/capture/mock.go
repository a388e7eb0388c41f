package capture

import (
	"context"
	"image"
	"sync"
)

// Mock implements Source for testing.
type Mock struct {
	// OpenFunc is called when Open is invoked.
	OpenFunc func(ctx context.Context) error

	// ReadFunc is called when Read is invoked.
	ReadFunc func(ctx context.Context) (*Frame, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	mu    sync.Mutex
	calls map[string]int
}

// NewMock creates a mock that serves blank frames of the given size.
func NewMock(width, height int) *Mock {
	var mu sync.Mutex
	var seq uint64
	return &Mock{
		ReadFunc: func(ctx context.Context) (*Frame, error) {
			mu.Lock()
			seq++
			n := seq
			mu.Unlock()
			return NewFrame(image.NewRGBA(image.Rect(0, 0, width, height)), n), nil
		},
	}
}

// Open calls OpenFunc and records the call.
func (m *Mock) Open(ctx context.Context) error {
	m.record("Open")
	if m.OpenFunc != nil {
		return m.OpenFunc(ctx)
	}
	return nil
}

// Read calls ReadFunc and records the call.
func (m *Mock) Read(ctx context.Context) (*Frame, error) {
	m.record("Read")
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx)
	}
	return nil, &SourceError{Op: "read", Err: ErrNotOpen}
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close")
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[method]++
}

// CallCount returns the number of calls to a method.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}
