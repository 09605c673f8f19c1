package hublifetime

import (
	"context"
	"io"
)

// Connection describes the transport side of a connection between a client and the hub.
// The HubLifetimeManager writes complete, serialized hub messages to it and never reads from it.
// Context() must be canceled by the transport when the connection is gone.
type Connection interface {
	io.Writer
	Context() context.Context
	ConnectionID() string
}

// protocolConnection is implemented by connections which know the HubProtocol negotiated by the transport
type protocolConnection interface {
	Protocol() HubProtocol
}

// userConnection is implemented by connections which know their user identity at connect time
type userConnection interface {
	UserID() string
}

// abortableConnection is implemented by connections which can be torn down from the hub side
type abortableConnection interface {
	Abort()
}
