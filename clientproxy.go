package hublifetime

import "context"

// ClientProxy allows the hub to send messages to one or more of its clients
type ClientProxy interface {
	Send(ctx context.Context, target string, args ...interface{}) error
}

type allClientProxy struct {
	lifetimeManager HubLifetimeManager
	excluded        []string
}

func (a *allClientProxy) Send(ctx context.Context, target string, args ...interface{}) error {
	return a.lifetimeManager.SendAll(ctx, target, args, a.excluded)
}

type connectionsClientProxy struct {
	connectionIDs   []string
	lifetimeManager HubLifetimeManager
}

func (c *connectionsClientProxy) Send(ctx context.Context, target string, args ...interface{}) error {
	if len(c.connectionIDs) == 1 {
		return c.lifetimeManager.SendConnection(ctx, c.connectionIDs[0], target, args)
	}
	return c.lifetimeManager.SendConnections(ctx, c.connectionIDs, target, args)
}

type groupClientProxy struct {
	groupNames      []string
	excluded        []string
	lifetimeManager HubLifetimeManager
}

func (g *groupClientProxy) Send(ctx context.Context, target string, args ...interface{}) error {
	if len(g.groupNames) == 1 {
		return g.lifetimeManager.SendGroup(ctx, g.groupNames[0], target, args, g.excluded)
	}
	return g.lifetimeManager.SendGroups(ctx, g.groupNames, target, args, g.excluded)
}

type userClientProxy struct {
	userIDs         []string
	lifetimeManager HubLifetimeManager
}

func (u *userClientProxy) Send(ctx context.Context, target string, args ...interface{}) error {
	if len(u.userIDs) == 1 {
		return u.lifetimeManager.SendUser(ctx, u.userIDs[0], target, args)
	}
	return u.lifetimeManager.SendUsers(ctx, u.userIDs, target, args)
}
