package hublifetime

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
)

// WebSocketConnection is a Connection over a websocket. Every Write sends one websocket message,
// as text for text based protocols and as binary otherwise.
type WebSocketConnection struct {
	*ConnectionBase
	conn *websocket.Conn
}

// NewWebSocketConnection wraps an accepted websocket. If protocol is nil, the HubLifetimeManager
// uses its default protocol and the messages are sent as text.
func NewWebSocketConnection(ctx context.Context, connectionID string, conn *websocket.Conn, protocol HubProtocol) *WebSocketConnection {
	w := &WebSocketConnection{
		ConnectionBase: NewConnectionBase(ctx, connectionID),
		conn:           conn,
	}
	w.SetProtocol(protocol)
	return w
}

func (w *WebSocketConnection) Write(p []byte) (n int, err error) {
	messageType := websocket.MessageText
	if protocol := w.Protocol(); protocol != nil && protocol.Name() == "messagepack" {
		messageType = websocket.MessageBinary
	}
	if err := w.conn.Write(w.Context(), messageType, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// ReadMessage reads the next complete message sent by the client
func (w *WebSocketConnection) ReadMessage(ctx context.Context) ([]byte, error) {
	_, data, err := w.conn.Read(ctx)
	return data, err
}

// Abort cancels the connection context and closes the websocket without waiting for the close handshake
func (w *WebSocketConnection) Abort() {
	w.ConnectionBase.Abort()
	go func() {
		_ = w.conn.Close(websocket.StatusPolicyViolation, "aborted by hub")
	}()
}

// Close closes the websocket normally
func (w *WebSocketConnection) Close(reason string) error {
	defer w.ConnectionBase.Abort()
	if err := w.conn.Close(websocket.StatusNormalClosure, reason); err != nil {
		return fmt.Errorf("close websocket %v: %w", w.ConnectionID(), err)
	}
	return nil
}
