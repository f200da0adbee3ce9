package signal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"soundradius/internal/core/domain"
	"soundradius/internal/core/services"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ServerConfig bounds signal connection behavior.
type ServerConfig struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	MessagesPerSecond float64
	MessageBurst      int
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		PingInterval:      30 * time.Second,
		PongTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		MessagesPerSecond: 50,
		MessageBurst:      100,
	}
}

// Message is the signal envelope relayed between participants. The server
// never interprets Payload beyond routing.
type Message struct {
	Type    string               `json:"type"`
	From    domain.ParticipantID `json:"from,omitempty"`
	To      domain.ParticipantID `json:"to,omitempty"`
	Payload json.RawMessage      `json:"payload,omitempty"`
}

type connection struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *connection) writeJSON(timeout time.Duration, v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteJSON(v)
}

// Server relays signal messages between session participants over WebSocket.
// Connections authenticate with a join token; per-connection message rate is
// limited and liveness is enforced with ping/pong.
type Server struct {
	auth services.AuthService
	cfg  ServerConfig

	mu          sync.RWMutex
	connections map[domain.ParticipantID]*connection

	logger *zap.SugaredLogger
}

func NewServer(auth services.AuthService, cfg ServerConfig, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Server{
		auth:        auth,
		cfg:         cfg,
		connections: make(map[domain.ParticipantID]*connection),
		logger:      logger,
	}
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, err := s.auth.ValidateJoinToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid join token", http.StatusUnauthorized)
		return
	}
	participantID := claims.ParticipantID

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	c := &connection{conn: conn}

	// A reconnecting participant displaces its stale connection.
	s.mu.Lock()
	if old, reconnect := s.connections[participantID]; reconnect {
		old.conn.Close()
		s.logger.Infow("closing stale connection for reconnecting participant", "participant_id", participantID)
	}
	s.connections[participantID] = c
	s.mu.Unlock()

	s.logger.Infow("participant connected", "participant_id", participantID, "session_id", claims.SessionID)
	s.broadcastPresence("participant_joined", participantID)

	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
		return nil
	})

	limiter := rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.MessageBurst)

	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan Message, 10)
	errorChan := make(chan error, 1)
	// Closed on handler exit so a reader blocked on a full messageChan does
	// not leak when the loop below leaves via the ping path.
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
			select {
			case messageChan <- msg:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case msg := <-messageChan:
			if !limiter.Allow() {
				s.logger.Warnw("participant exceeded message rate", "participant_id", participantID)
				s.sendError(c, "rate limit exceeded")
				continue
			}
			if err := s.handleMessage(participantID, msg); err != nil {
				s.logger.Infow("error handling message", "participant_id", participantID, "error", err)
				s.sendError(c, err.Error())
			}

		case <-pingTicker.C:
			if err := func() error {
				c.writeMu.Lock()
				defer c.writeMu.Unlock()
				conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
				return conn.WriteMessage(websocket.PingMessage, nil)
			}(); err != nil {
				s.logger.Infow("error sending ping", "participant_id", participantID, "error", err)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Infow("error reading message", "participant_id", participantID, "error", err)
			}
			goto cleanup
		}
	}

cleanup:
	s.mu.Lock()
	if s.connections[participantID] == c {
		delete(s.connections, participantID)
	}
	s.mu.Unlock()

	s.logger.Infow("participant disconnected", "participant_id", participantID)
	s.broadcastPresence("participant_left", participantID)
}

func (s *Server) handleMessage(from domain.ParticipantID, msg Message) error {
	if msg.Type == "" {
		return fmt.Errorf("message type is required")
	}
	if msg.From != "" && msg.From != from {
		return fmt.Errorf("from mismatch: expected %s, got %s", from, msg.From)
	}

	switch msg.Type {
	case "offer", "answer", "ice_candidate", "signal":
		return s.relay(from, msg)
	case "list_participants":
		return s.sendParticipantList(from)
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

// relay forwards a signal message to its addressee unchanged apart from the
// authoritative From field.
func (s *Server) relay(from domain.ParticipantID, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("to is required for %s", msg.Type)
	}

	s.mu.RLock()
	target, exists := s.connections[msg.To]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("participant %s is not connected", msg.To)
	}

	msg.From = from
	s.logger.Debugw("relaying signal", "type", msg.Type, "from", from, "to", msg.To)
	return target.writeJSON(s.cfg.WriteTimeout, msg)
}

func (s *Server) sendParticipantList(to domain.ParticipantID) error {
	s.mu.RLock()
	ids := make([]domain.ParticipantID, 0, len(s.connections))
	for id := range s.connections {
		if id != to {
			ids = append(ids, id)
		}
	}
	target := s.connections[to]
	s.mu.RUnlock()

	if target == nil {
		return fmt.Errorf("participant %s is not connected", to)
	}

	return target.writeJSON(s.cfg.WriteTimeout, map[string]interface{}{
		"type":         "participants_list",
		"participants": ids,
	})
}

func (s *Server) broadcastPresence(event string, id domain.ParticipantID) {
	s.mu.RLock()
	targets := make([]*connection, 0, len(s.connections))
	for other, c := range s.connections {
		if other != id {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	msg := map[string]interface{}{
		"type":           event,
		"participant_id": id,
		"timestamp":      time.Now().Unix(),
	}
	for _, c := range targets {
		if err := c.writeJSON(s.cfg.WriteTimeout, msg); err != nil {
			s.logger.Warnw("presence broadcast failed", "event", event, "error", err)
		}
	}
}

func (s *Server) sendError(c *connection, message string) {
	c.writeJSON(s.cfg.WriteTimeout, map[string]interface{}{
		"type":    "error",
		"message": message,
	})
}

func (s *Server) ConnectedParticipants() []domain.ParticipantID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]domain.ParticipantID, 0, len(s.connections))
	for id := range s.connections {
		ids = append(ids, id)
	}
	return ids
}

func (s *Server) IsConnected(id domain.ParticipantID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.connections[id]
	return exists
}

func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	connectionCount := len(s.connections)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": connectionCount,
	})
}
