package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"pairpad/internal/models"
)

var errClientClosed = errors.New("client closed")

func newParticipantID() string { return uuid.New().String() }

// Client wraps one websocket connection joined to a session. Writes are
// serialized by the client's own mutex (gorilla allows one writer at a time).
type Client struct {
	Conn     *websocket.Conn
	Name     string
	JoinedAt time.Time

	mu            sync.Mutex
	participantID string
	hook          func(models.Frame) error
	limiter       *rate.Limiter

	lastPing  atomic.Int64 // unix nanos
	joined    atomic.Bool
	departed  atomic.Bool
	closeOnce sync.Once
	closed    atomic.Bool
}

func NewClient(conn *websocket.Conn) *Client {
	c := &Client{Conn: conn, JoinedAt: time.Now()}
	c.TouchPing()
	return c
}

// ParticipantID returns the identity bound to this connection. It is set once
// at connect time and never follows the participantId stamped on inbound
// frames; the monitor goroutine reads it concurrently with the read loop.
func (c *Client) ParticipantID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participantID
}

func (c *Client) setParticipantID(id string) {
	c.mu.Lock()
	c.participantID = id
	c.mu.Unlock()
}

// SetSendHook replaces the default WebSocket sender (used in tests).
func (c *Client) SetSendHook(fn func(models.Frame) error) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

func (c *Client) setLimiter(l *rate.Limiter) {
	c.mu.Lock()
	c.limiter = l
	c.mu.Unlock()
}

// Allow reports whether the connection is within its inbound frame budget.
func (c *Client) Allow() bool {
	c.mu.Lock()
	l := c.limiter
	c.mu.Unlock()
	return l == nil || l.Allow()
}

func (c *Client) Send(frame models.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return errClientClosed
	}
	if c.hook != nil {
		return c.hook(frame)
	}
	if c.Conn == nil {
		return nil
	}
	return c.Conn.WriteJSON(frame)
}

// TouchPing records that the client just pinged.
func (c *Client) TouchPing() {
	c.lastPing.Store(time.Now().UnixNano())
}

func (c *Client) LastPing() time.Time {
	return time.Unix(0, c.lastPing.Load())
}

// Close tears down the transport. Safe to call more than once; the read loop
// observes the closed connection and runs the disconnect sequence.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.Conn != nil {
			_ = c.Conn.Close()
		}
	})
}
