package hublifetime

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// ConnectionBase is a baseclass for implementers of the Connection interface.
// It carries the connection id, the negotiated HubProtocol and the user identity, if already known.
type ConnectionBase struct {
	mx           sync.RWMutex
	ctx          context.Context
	cancel       context.CancelFunc
	connectionID string
	protocol     HubProtocol
	userID       string
}

// NewConnectionBase creates a new ConnectionBase. If connectionID is empty, a new connection id is generated.
// The context of the ConnectionBase is canceled when the parent context is done or Abort is called.
func NewConnectionBase(ctx context.Context, connectionID string) *ConnectionBase {
	if connectionID == "" {
		connectionID = NewConnectionID()
	}
	cbCtx, cancel := context.WithCancel(ctx)
	return &ConnectionBase{
		ctx:          cbCtx,
		cancel:       cancel,
		connectionID: connectionID,
	}
}

// NewConnectionID returns a new, unique connection id
func NewConnectionID() string {
	return uuid.NewString()
}

// Context can be used to wait for cancellation of the Connection
func (cb *ConnectionBase) Context() context.Context {
	return cb.ctx
}

// ConnectionID is the ID of the connection.
func (cb *ConnectionBase) ConnectionID() string {
	return cb.connectionID
}

// Abort cancels the context of the connection
func (cb *ConnectionBase) Abort() {
	cb.cancel()
}

// Protocol returns the HubProtocol negotiated for this connection.
// nil means the HubLifetimeManager uses its default protocol.
func (cb *ConnectionBase) Protocol() HubProtocol {
	cb.mx.RLock()
	defer cb.mx.RUnlock()
	return cb.protocol
}

// SetProtocol sets the negotiated HubProtocol. It must be called before the connection is passed to OnConnected.
func (cb *ConnectionBase) SetProtocol(protocol HubProtocol) {
	cb.mx.Lock()
	defer cb.mx.Unlock()
	cb.protocol = protocol
}

// UserID returns the user identity known at connect time, or "".
func (cb *ConnectionBase) UserID() string {
	cb.mx.RLock()
	defer cb.mx.RUnlock()
	return cb.userID
}

// SetUserID sets the user identity. Later identities are passed by HubLifetimeManager.AssociateUser.
func (cb *ConnectionBase) SetUserID(userID string) {
	cb.mx.Lock()
	defer cb.mx.Unlock()
	cb.userID = userID
}
