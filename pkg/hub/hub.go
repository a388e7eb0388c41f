package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-wayfind/internal/log"
)

// DefaultBuffer is the per-client and broadcast queue length.
const DefaultBuffer = 64

// Hub tracks connected clients and broadcasts messages to them. All client
// set mutations happen on the Run goroutine.
type Hub struct {
	name   string
	logger *slog.Logger
	buffer int
	greet  func() (Message, bool)

	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu      sync.RWMutex
	count   int
	running atomic.Bool
	dropped atomic.Uint64
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithBuffer sets the queue length for each client.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithGreeting sets a function whose message is sent to every new client
// before any broadcast. Returning false sends nothing.
func WithGreeting(fn func() (Message, bool)) Option {
	return func(h *Hub) { h.greet = fn }
}

// New creates a hub. Call Run before serving clients.
func New(name string, opts ...Option) *Hub {
	h := &Hub{
		name:   name,
		buffer: DefaultBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = log.L()
	}
	h.logger = h.logger.With("component", "hub", "hub", name)

	h.clients = make(map[*Client]bool)
	h.broadcast = make(chan Message, h.buffer)
	h.register = make(chan *Client)
	h.unregister = make(chan *Client)
	h.done = make(chan struct{})
	return h
}

// Run owns the client set until ctx is done, then disconnects everyone.
// It must be called at most once.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		h.setCount(0)
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clients[c] = true
			h.setCount(len(h.clients))
			h.logger.Debug("client connected", "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.setCount(len(h.clients))
			h.logger.Debug("client disconnected", "clients", len(h.clients))

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
					h.logger.Warn("dropped slow client")
				}
			}
			h.setCount(len(h.clients))
		}
	}
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// Serve runs a websocket connection until it closes. Use it as the handler
// passed to websocket.New.
func (h *Hub) Serve(conn *websocket.Conn) {
	c := newClient(h, conn)
	if h.greet != nil {
		if msg, ok := h.greet(); ok {
			c.send <- msg
		}
	}

	select {
	case h.register <- c:
	case <-h.done:
		return
	}
	c.run()
}

// Broadcast queues msg for every client. When the queue is full the message
// is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		h.logger.Debug("broadcast queue full, dropping message")
	}
}

// BroadcastJSON encodes v and broadcasts it as a text frame.
func (h *Hub) BroadcastJSON(v any) error {
	msg, err := EncodeJSON(v)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// BroadcastBinary broadcasts data as a binary frame.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(NewBinaryMessage(data))
}

// Name returns the hub name.
func (h *Hub) Name() string {
	return h.name
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Dropped returns how many broadcasts were dropped because the queue was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}
