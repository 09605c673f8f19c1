package hublifetime

import (
	"io"
)

// HubProtocol serializes hub messages into the transfer format negotiated for a connection.
// Implementations must be safe for concurrent use.
type HubProtocol interface {
	// Name identifies the protocol, e.g. "json" or "messagepack".
	// Connections with protocols of the same name share serialized messages.
	Name() string
	WriteMessage(message interface{}, writer io.Writer) error
}

// Protocol

type invocationMessage struct {
	Type         int           `json:"type"`
	Target       string        `json:"target"`
	InvocationID string        `json:"invocationId,omitempty"`
	Arguments    []interface{} `json:"arguments"`
}

func newInvocationMessage(target string, args []interface{}) invocationMessage {
	if args == nil {
		args = make([]interface{}, 0)
	}
	return invocationMessage{
		Type:      1,
		Target:    target,
		Arguments: args,
	}
}
