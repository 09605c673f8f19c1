package hublifetime

import "errors"

var (
	// ErrDuplicateConnection is returned by OnConnected if the connection id is already registered
	ErrDuplicateConnection = errors.New("duplicate connection")
	// ErrUnknownConnection is returned by mutations which require a registered connection
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrUnknownGroup is returned by RemoveGroup if the group has no members
	ErrUnknownGroup = errors.New("unknown group")
	// ErrUnknownUser signals that a user has no connections
	ErrUnknownUser = errors.New("unknown user")
	// ErrUserAlreadyAssociated is returned by AssociateUser if the connection belongs to another user
	ErrUserAlreadyAssociated = errors.New("connection is already associated with another user")
	// ErrManagerClosed is returned by all operations after HubLifetimeManager.Close
	ErrManagerClosed = errors.New("hub lifetime manager closed")
	// ErrConnectionAborted is the reason for aborts from the hub side or because of transport failures
	ErrConnectionAborted = errors.New("connection aborted")
	// ErrSlowConsumer is the reason for aborts or dropped messages caused by a connection not keeping up
	ErrSlowConsumer = errors.New("slow consumer")
)
