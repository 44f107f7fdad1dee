package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/signalsfoundry/satellite-telemetry-sim/internal/driver"
)

// DefaultWebSocketWriteTimeout bounds a single websocket write.
const DefaultWebSocketWriteTimeout = 5 * time.Second

// WebSocket writes frames as JSON text messages. Without the envelope option
// each message is the flat telemetry map.
type WebSocket struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	envelope     bool
	writeTimeout time.Duration
}

// NewWebSocket wraps an upgraded connection. The caller keeps ownership of
// conn and closes it when the session ends.
func NewWebSocket(conn *websocket.Conn, envelope bool, writeTimeout time.Duration) *WebSocket {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWebSocketWriteTimeout
	}
	return &WebSocket{conn: conn, envelope: envelope, writeTimeout: writeTimeout}
}

// Emit writes f. Any error means the peer is gone.
func (s *WebSocket) Emit(ctx context.Context, f driver.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("websocket deadline: %w", err)
	}

	var payload interface{} = f.Telemetry
	if s.envelope {
		payload = f
	}
	if err := s.conn.WriteJSON(payload); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Close sends a normal close frame to the peer.
func (s *WebSocket) Close(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	return s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
