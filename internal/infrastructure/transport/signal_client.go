package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"soundradius/internal/core/domain"
	"soundradius/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SignalMessage mirrors the signal server's relay envelope.
type SignalMessage struct {
	Type    string               `json:"type"`
	From    domain.ParticipantID `json:"from,omitempty"`
	To      domain.ParticipantID `json:"to,omitempty"`
	Payload json.RawMessage      `json:"payload,omitempty"`
}

// SignalClient is the client leg of the signal relay. One connection carries
// signaling for every peer; incoming messages are dispatched to per-peer
// handlers by their From field.
type SignalClient struct {
	url      string
	token    string
	retryCfg retry.Config
	logger   *zap.SugaredLogger

	mu       sync.RWMutex
	conn     *websocket.Conn
	handlers map[domain.ParticipantID]func(SignalMessage)
	closed   bool

	// writeMu serializes writers: gorilla/websocket allows exactly one
	// concurrent writer per connection, and sends race (ICE candidate
	// callbacks, concurrent peer joins).
	writeMu sync.Mutex
}

func NewSignalClient(url, token string, retryCfg retry.Config, logger *zap.SugaredLogger) *SignalClient {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SignalClient{
		url:      url,
		token:    token,
		retryCfg: retryCfg,
		logger:   logger,
		handlers: make(map[domain.ParticipantID]func(SignalMessage)),
	}
}

// Connect dials the signal server with bounded retry and starts the read loop.
func (c *SignalClient) Connect(ctx context.Context) error {
	conn, err := retry.RetryWithResult(ctx, c.retryCfg, func() (*websocket.Conn, error) {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url+"?token="+c.token, nil)
		if err != nil {
			c.logger.Warnw("signal dial failed", "url", c.url, "error", err)
		}
		return conn, err
	})
	if err != nil {
		return fmt.Errorf("connecting to signal server: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("signal client closed")
	}
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	return nil
}

func (c *SignalClient) readLoop(conn *websocket.Conn) {
	for {
		var msg SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.mu.RLock()
			closed := c.closed
			c.mu.RUnlock()
			if !closed {
				c.logger.Warnw("signal read loop ended", "error", err)
			}
			return
		}

		c.mu.RLock()
		handler := c.handlers[msg.From]
		c.mu.RUnlock()

		if handler != nil {
			handler(msg)
		} else {
			c.logger.Debugw("dropping signal with no registered handler", "type", msg.Type, "from", msg.From)
		}
	}
}

// Send relays a message toward a peer through the server.
func (c *SignalClient) Send(to domain.ParticipantID, msgType string, payload []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("signal client not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(SignalMessage{
		Type:    msgType,
		To:      to,
		Payload: payload,
	})
}

// RegisterHandler routes inbound messages from one peer. Replaces any
// previous handler for that peer.
func (c *SignalClient) RegisterHandler(peerID domain.ParticipantID, fn func(SignalMessage)) {
	c.mu.Lock()
	c.handlers[peerID] = fn
	c.mu.Unlock()
}

func (c *SignalClient) UnregisterHandler(peerID domain.ParticipantID) {
	c.mu.Lock()
	delete(c.handlers, peerID)
	c.mu.Unlock()
}

func (c *SignalClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.handlers = make(map[domain.ParticipantID]func(SignalMessage))
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}
