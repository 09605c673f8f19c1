package hublifetime

import "sync"

// HubContext is a context abstraction for a hub
// Clients() gets a HubClients that can be used to invoke methods on clients connected to the hub
// Groups() gets a GroupManager that can be used to add and remove connections to named groups
// Items() holds key/value pairs scoped to the hubs connection
// ConnectionID() gets the ID of the current connection
// Abort() aborts the current connection
type HubContext interface {
	Clients() HubClients
	Groups() GroupManager
	Items() *sync.Map
	ConnectionID() string
	Abort()
}

type connectionHubContext struct {
	connectionID    string
	lifetimeManager HubLifetimeManager
	clients         HubClients
	groups          GroupManager
	items           *sync.Map
}

// NewHubContext creates the HubContext of the connection with connectionID.
// With an empty connectionID, the context has no caller, e.g. for sending from outside of hub methods.
func NewHubContext(lifetimeManager HubLifetimeManager, connectionID string) HubContext {
	defaultClients := newDefaultHubClients(lifetimeManager)
	var clients HubClients = defaultClients
	if connectionID != "" {
		clients = &callerHubClients{defaultHubClients: defaultClients, connectionID: connectionID}
	}
	return &connectionHubContext{
		connectionID:    connectionID,
		lifetimeManager: lifetimeManager,
		clients:         clients,
		groups:          &defaultGroupManager{lifetimeManager: lifetimeManager},
		items:           &sync.Map{},
	}
}

func (c *connectionHubContext) Clients() HubClients {
	return c.clients
}

func (c *connectionHubContext) Groups() GroupManager {
	return c.groups
}

func (c *connectionHubContext) Items() *sync.Map {
	return c.items
}

func (c *connectionHubContext) ConnectionID() string {
	return c.connectionID
}

func (c *connectionHubContext) Abort() {
	if c.connectionID != "" {
		c.lifetimeManager.Abort(c.connectionID)
	}
}
