package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anonto42/ridehub/backend/internal/metrics"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192

	// CloseUnauthorized is sent when a connection fails authentication.
	CloseUnauthorized = 4001
	// CloseForbidden is sent when an authenticated user may not join a topic.
	CloseForbidden = 4003
)

// State is the lifecycle position of a Session.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateSubscribed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var ErrInvalidTransition = errors.New("invalid session state transition")

// Session drives one websocket connection through
// connecting, authenticated, subscribed and closed.
type Session struct {
	conn    *websocket.Conn
	hub     *Hub
	member  *Member
	log     *zap.Logger
	channel string

	state     atomic.Int32
	userID    uint
	topic     string
	closeOnce sync.Once
}

// NewSession wraps an upgraded connection. channel labels the connection in
// metrics (for example "notifications" or "chat").
func NewSession(conn *websocket.Conn, hub *Hub, channel string, log *zap.Logger) *Session {
	s := &Session{
		conn:    conn,
		hub:     hub,
		member:  NewMember(DefaultSendBuffer),
		log:     log,
		channel: channel,
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) UserID() uint { return s.userID }

// Authenticate records the identity presented at connect time.
func (s *Session) Authenticate(userID uint) error {
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateAuthenticated)) {
		return ErrInvalidTransition
	}
	s.userID = userID
	s.log = s.log.With(zap.Uint("user_id", userID))
	return nil
}

// Subscribe attaches the session to exactly one topic.
func (s *Session) Subscribe(topic string) error {
	if !s.state.CompareAndSwap(int32(StateAuthenticated), int32(StateSubscribed)) {
		return ErrInvalidTransition
	}
	s.topic = topic
	s.hub.Subscribe(topic, s.member)
	metrics.RealtimeConnections.WithLabelValues(s.channel).Inc()
	return nil
}

// Reject closes the connection with code before it reaches any topic.
func (s *Session) Reject(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		s.log.Debug("failed to send close frame", zap.Error(err))
	}
	s.Close()
}

// Send queues v for this connection only.
func (s *Session) Send(v any) bool {
	frame, err := json.Marshal(v)
	if err != nil {
		s.log.Error("failed to encode frame", zap.Error(err))
		return false
	}
	return s.member.Enqueue(frame)
}

// Run pumps frames in both directions until the peer goes away, ctx is done
// or the session is closed. Each inbound text frame is passed to onMessage.
func (s *Session) Run(ctx context.Context, onMessage func(ctx context.Context, raw []byte)) {
	defer s.Close()

	go s.writePump()
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.member.Done():
		}
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		onMessage(ctx, raw)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.member.Outbound():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.member.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// Close detaches the session from its topic and releases the connection.
// Safe to call more than once and from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		prev := State(s.state.Swap(int32(StateClosed)))
		if prev == StateSubscribed {
			s.hub.Unsubscribe(s.topic, s.member)
			metrics.RealtimeConnections.WithLabelValues(s.channel).Dec()
		}
		s.member.Close()
		_ = s.conn.Close()
	})
}
