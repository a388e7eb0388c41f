package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	// writeWait is how long a single write may take.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong before dropping the client.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound messages; clients only send control frames.
	maxMessageSize = 4 * 1024
)

// Client is one websocket connection registered with a hub.
type Client struct {
	// hub is the hub this client is registered with.
	hub *Hub

	// conn is the underlying websocket connection.
	conn *websocket.Conn

	// send queues outbound messages for writePump. The hub drops the
	// client when it is full.
	send chan Message
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  h,
		conn: conn,
		send: make(chan Message, h.buffer),
	}
}

// run blocks until the connection closes.
func (c *Client) run() {
	go c.writePump()
	c.readPump()
}

// readPump discards client messages; it exists to notice disconnects and
// handle pongs.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			frameType := websocket.TextMessage
			if msg.Type == BinaryMessage {
				frameType = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(frameType, msg.Data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
