package hublifetime

import "context"

// GroupManager manages the client groups of the hub
type GroupManager interface {
	AddToGroup(ctx context.Context, connectionID string, groupName string) error
	RemoveFromGroup(ctx context.Context, connectionID string, groupName string) error
}

type defaultGroupManager struct {
	lifetimeManager HubLifetimeManager
}

func (d *defaultGroupManager) AddToGroup(ctx context.Context, connectionID string, groupName string) error {
	return d.lifetimeManager.AddToGroup(ctx, connectionID, groupName)
}

func (d *defaultGroupManager) RemoveFromGroup(ctx context.Context, connectionID string, groupName string) error {
	return d.lifetimeManager.RemoveFromGroup(ctx, connectionID, groupName)
}
