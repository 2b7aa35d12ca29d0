// ABOUTME: Client handle for one connected stream consumer
// ABOUTME: Bounded send queue plus a writer goroutine with deadlines and pings
package broadcast

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// sendQueueSize bounds how far a client may fall behind before it is
	// treated as failed: 8 blocks is ~186ms at 44100/1024.
	sendQueueSize = 8

	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

var (
	// ErrClientClosed is returned by Send once the client is dead.
	ErrClientClosed = errors.New("client closed")

	// ErrClientSlow is returned by Send when the client's queue is full.
	ErrClientSlow = errors.New("client send queue full")
)

// Conn is the subset of *websocket.Conn the broadcaster needs.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is the server's handle for one connected consumer. The engine
// enqueues blocks without blocking; WriteLoop drains the queue onto the
// socket. Once closed a client never receives another block.
type Client struct {
	ID         string
	RemoteAddr string

	conn      Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient wraps an accepted connection in a handle.
func NewClient(conn Conn, remoteAddr string) *Client {
	return &Client{
		ID:         uuid.New().String(),
		RemoteAddr: remoteAddr,
		conn:       conn,
		send:       make(chan []byte, sendQueueSize),
		done:       make(chan struct{}),
	}
}

// Send queues one PCM block for delivery. It never blocks: a full queue
// means the client is not keeping up and is reported as failed.
func (c *Client) Send(block []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- block:
		return nil
	case <-c.done:
		return ErrClientClosed
	default:
		return ErrClientSlow
	}
}

// WriteLoop drains the send queue onto the socket, pinging idle
// connections. It runs until the client is closed or a write fails.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case block := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, block); err != nil {
				log.Printf("[WS] Write to %s failed: %v", c.RemoteAddr, err)
				c.Close()
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Close marks the client dead and closes its connection. Idempotent and
// safe from any goroutine.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Closed reports whether the client has been closed.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
