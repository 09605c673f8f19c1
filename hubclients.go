package hublifetime

// HubClients gives the hub access to various client groups
// All() gets a ClientProxy that can be used to invoke methods on all clients connected to the hub
// Caller() gets a ClientProxy that can be used to invoke methods of the current calling client
// Client() gets a ClientProxy that can be used to invoke methods on the specified client connection
// Group() gets a ClientProxy that can be used to invoke methods on all connections in the specified group
// User() gets a ClientProxy that can be used to invoke methods on all connections of the specified user
type HubClients interface {
	All() ClientProxy
	AllExcept(excludedConnectionIDs ...string) ClientProxy
	Caller() ClientProxy
	Others() ClientProxy
	Client(connectionID string) ClientProxy
	Clients(connectionIDs ...string) ClientProxy
	Group(groupName string) ClientProxy
	GroupExcept(groupName string, excludedConnectionIDs ...string) ClientProxy
	Groups(groupNames ...string) ClientProxy
	OthersInGroup(groupName string) ClientProxy
	User(userID string) ClientProxy
	Users(userIDs ...string) ClientProxy
}

type defaultHubClients struct {
	lifetimeManager HubLifetimeManager
	allCache        allClientProxy
}

func newDefaultHubClients(lifetimeManager HubLifetimeManager) *defaultHubClients {
	return &defaultHubClients{
		lifetimeManager: lifetimeManager,
		allCache:        allClientProxy{lifetimeManager: lifetimeManager},
	}
}

func (c *defaultHubClients) All() ClientProxy {
	return &c.allCache
}

func (c *defaultHubClients) AllExcept(excludedConnectionIDs ...string) ClientProxy {
	return &allClientProxy{lifetimeManager: c.lifetimeManager, excluded: excludedConnectionIDs}
}

func (c *defaultHubClients) Client(connectionID string) ClientProxy {
	return &connectionsClientProxy{connectionIDs: []string{connectionID}, lifetimeManager: c.lifetimeManager}
}

func (c *defaultHubClients) Clients(connectionIDs ...string) ClientProxy {
	return &connectionsClientProxy{connectionIDs: connectionIDs, lifetimeManager: c.lifetimeManager}
}

func (c *defaultHubClients) Group(groupName string) ClientProxy {
	return &groupClientProxy{groupNames: []string{groupName}, lifetimeManager: c.lifetimeManager}
}

func (c *defaultHubClients) GroupExcept(groupName string, excludedConnectionIDs ...string) ClientProxy {
	return &groupClientProxy{groupNames: []string{groupName}, excluded: excludedConnectionIDs, lifetimeManager: c.lifetimeManager}
}

func (c *defaultHubClients) Groups(groupNames ...string) ClientProxy {
	return &groupClientProxy{groupNames: groupNames, lifetimeManager: c.lifetimeManager}
}

func (c *defaultHubClients) User(userID string) ClientProxy {
	return &userClientProxy{userIDs: []string{userID}, lifetimeManager: c.lifetimeManager}
}

func (c *defaultHubClients) Users(userIDs ...string) ClientProxy {
	return &userClientProxy{userIDs: userIDs, lifetimeManager: c.lifetimeManager}
}

// Caller, Others and OthersInGroup are only implemented to fulfill the HubClients interface.
// Without a calling connection, there is no caller and the others are all.
func (c *defaultHubClients) Caller() ClientProxy {
	return &connectionsClientProxy{lifetimeManager: c.lifetimeManager}
}

func (c *defaultHubClients) Others() ClientProxy {
	return c.All()
}

func (c *defaultHubClients) OthersInGroup(groupName string) ClientProxy {
	return c.Group(groupName)
}

type callerHubClients struct {
	defaultHubClients *defaultHubClients
	connectionID      string
}

func (c *callerHubClients) All() ClientProxy {
	return c.defaultHubClients.All()
}

func (c *callerHubClients) AllExcept(excludedConnectionIDs ...string) ClientProxy {
	return c.defaultHubClients.AllExcept(excludedConnectionIDs...)
}

func (c *callerHubClients) Caller() ClientProxy {
	return c.defaultHubClients.Client(c.connectionID)
}

func (c *callerHubClients) Others() ClientProxy {
	return c.defaultHubClients.AllExcept(c.connectionID)
}

func (c *callerHubClients) Client(connectionID string) ClientProxy {
	return c.defaultHubClients.Client(connectionID)
}

func (c *callerHubClients) Clients(connectionIDs ...string) ClientProxy {
	return c.defaultHubClients.Clients(connectionIDs...)
}

func (c *callerHubClients) Group(groupName string) ClientProxy {
	return c.defaultHubClients.Group(groupName)
}

func (c *callerHubClients) GroupExcept(groupName string, excludedConnectionIDs ...string) ClientProxy {
	return c.defaultHubClients.GroupExcept(groupName, excludedConnectionIDs...)
}

func (c *callerHubClients) Groups(groupNames ...string) ClientProxy {
	return c.defaultHubClients.Groups(groupNames...)
}

func (c *callerHubClients) OthersInGroup(groupName string) ClientProxy {
	return c.defaultHubClients.GroupExcept(groupName, c.connectionID)
}

func (c *callerHubClients) User(userID string) ClientProxy {
	return c.defaultHubClients.User(userID)
}

func (c *callerHubClients) Users(userIDs ...string) ClientProxy {
	return c.defaultHubClients.Users(userIDs...)
}
