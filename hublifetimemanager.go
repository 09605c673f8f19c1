package hublifetime

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/go-kit/log"
)

// HubLifetimeManager tracks the connections of a hub, their group and user memberships,
// and sends invocations to all, single or selected connections.
//
// Mutations which need a registered connection fail with ErrUnknownConnection.
// Send operations never fail because of unknown or vanished targets or single broken connections,
// they only return an error if ctx is canceled, the manager is closed or the invocation can not be serialized.
// Sends to the user selectors do not take exclusion lists. Callers which need exclusion there must filter
// the user's connections and use SendConnections.
type HubLifetimeManager interface {
	// OnConnected registers the connection. It fails with ErrDuplicateConnection if the connection id is in use.
	OnConnected(conn Connection) error
	// OnDisconnected unregisters the connection and removes it from all groups and its user.
	// It is a no-op if the connection is not registered.
	OnDisconnected(connectionID string)
	// Abort stops the send path of the connection, tears down its transport if possible and unregisters it.
	Abort(connectionID string)
	// AssociateUser sets the user identity of a connection when it becomes known after OnConnected.
	AssociateUser(ctx context.Context, connectionID string, userID string) error
	AddToGroup(ctx context.Context, connectionID string, groupName string) error
	RemoveFromGroup(ctx context.Context, connectionID string, groupName string) error
	// RemoveGroup dissolves a group. It fails with ErrUnknownGroup if the group has no members.
	RemoveGroup(ctx context.Context, groupName string) error

	SendAll(ctx context.Context, target string, args []interface{}, excludedConnectionIDs []string) error
	SendConnection(ctx context.Context, connectionID string, target string, args []interface{}) error
	SendConnections(ctx context.Context, connectionIDs []string, target string, args []interface{}) error
	SendGroup(ctx context.Context, groupName string, target string, args []interface{}, excludedConnectionIDs []string) error
	SendGroups(ctx context.Context, groupNames []string, target string, args []interface{}, excludedConnectionIDs []string) error
	SendUser(ctx context.Context, userID string, target string, args []interface{}) error
	SendUsers(ctx context.Context, userIDs []string, target string, args []interface{}) error

	// Connection returns the registered connection with connectionID
	Connection(connectionID string) (Connection, bool)
	// GroupMembers returns a snapshot of the connection ids in the group
	GroupMembers(groupName string) []string
	// UserConnections returns a snapshot of the connection ids of the user
	UserConnections(userID string) []string
	// Close dissolves all groups, aborts all connections and rejects further operations with ErrManagerClosed.
	Close() error
}

type defaultHubLifetimeManager struct {
	ctx      context.Context
	cancel   context.CancelFunc
	options  managerOptions
	info     StructuredLogger
	dbg      StructuredLogger
	registry connectionRegistry
	groups   membershipIndex
	users    membershipIndex
	metrics  *managerMetrics
	closed   atomic.Bool
}

// NewHubLifetimeManager creates the in-process HubLifetimeManager for one hub.
// The manager is closed when ctx is canceled.
func NewHubLifetimeManager(ctx context.Context, options ...func(*managerOptions) error) (HubLifetimeManager, error) {
	o := defaultManagerOptions()
	for _, option := range options {
		if option != nil {
			if err := option(&o); err != nil {
				return nil, err
			}
		}
	}
	mgrCtx, cancel := context.WithCancel(ctx)
	d := &defaultHubLifetimeManager{
		ctx:     mgrCtx,
		cancel:  cancel,
		options: o,
	}
	d.info = log.WithPrefix(o.info, "ts", log.DefaultTimestampUTC, "class", "HubLifetimeManager", "hub", o.hubName)
	d.dbg = log.WithPrefix(o.dbg, "ts", log.DefaultTimestampUTC, "class", "HubLifetimeManager", "hub", o.hubName)
	d.options.info, d.options.dbg = d.info, d.dbg
	d.metrics = newManagerMetrics(o.hubName,
		func() float64 { return float64(d.registry.len()) },
		func() float64 { return float64(d.groups.len()) },
		func() float64 { return float64(d.users.len()) })
	if o.registerer != nil {
		if err := d.metrics.register(o.registerer); err != nil {
			cancel()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	go func() {
		<-mgrCtx.Done()
		_ = d.Close()
	}()
	return d, nil
}

func (d *defaultHubLifetimeManager) OnConnected(conn Connection) error {
	if d.closed.Load() {
		return ErrManagerClosed
	}
	connectionID := conn.ConnectionID()
	if connectionID == "" {
		return errors.New("OnConnected: empty connection id")
	}
	protocol := d.options.protocol
	if pc, ok := conn.(protocolConnection); ok && pc.Protocol() != nil {
		protocol = pc.Protocol()
	}
	hc := newHubConnection(d.ctx, conn, protocol, &d.options, d.metrics, d.onAbort)
	entry, err := d.registry.register(hc)
	if err != nil {
		hc.Close()
		_ = d.info.Log(evt, "OnConnected", "connection", connectionID, "error", err, react, "reject connection")
		return fmt.Errorf("OnConnected %v: %w", connectionID, err)
	}
	hc.Start()
	// Close might have missed this connection
	if d.closed.Load() {
		d.unregister(connectionID, hc)
		return ErrManagerClosed
	}
	userID := d.connectUserID(conn)
	if userID != "" {
		if err := d.associate(entry, connectionID, userID); err != nil {
			_ = d.info.Log(evt, "OnConnected", "connection", connectionID, "user", userID, "error", err)
		}
	}
	_ = d.dbg.Log(evt, "OnConnected", "connection", connectionID, "protocol", protocol.Name(), "user", userID)
	return nil
}

func (d *defaultHubLifetimeManager) connectUserID(conn Connection) string {
	if uc, ok := conn.(userConnection); ok && uc.UserID() != "" {
		return uc.UserID()
	}
	if d.options.userIDProvider != nil {
		return d.options.userIDProvider(conn)
	}
	return ""
}

func (d *defaultHubLifetimeManager) OnDisconnected(connectionID string) {
	d.unregister(connectionID, nil)
}

func (d *defaultHubLifetimeManager) Abort(connectionID string) {
	entry, ok := d.registry.lookup(connectionID)
	if !ok {
		return
	}
	entry.hc.Abort(ErrConnectionAborted)
	d.unregister(connectionID, entry.hc)
}

func (d *defaultHubLifetimeManager) onAbort(hc *hubConnection, err error) {
	if _, ok := d.registry.lookup(hc.ConnectionID()); ok {
		_ = d.info.Log(evt, "abort", "connection", hc.ConnectionID(), "error", err, react, "unregister connection")
	}
	d.unregister(hc.ConnectionID(), hc)
}

// unregister removes the connection from the registry and purges it from all groups and its user
// before it returns. Broadcasts resolving afterwards can not see the connection anymore.
func (d *defaultHubLifetimeManager) unregister(connectionID string, hc *hubConnection) {
	entry, ok := d.registry.unregister(connectionID, hc)
	if !ok {
		return
	}
	entry.mx.Lock()
	entry.removed = true
	for groupName := range entry.groups {
		if d.groups.remove(groupName, connectionID) {
			_ = d.dbg.Log(evt, "group dissolved", "group", groupName)
		}
	}
	entry.groups = nil
	if entry.userID != "" {
		d.users.remove(entry.userID, connectionID)
	}
	entry.mx.Unlock()
	entry.hc.Close()
	_ = d.dbg.Log(evt, "OnDisconnected", "connection", connectionID)
}

func (d *defaultHubLifetimeManager) checkMutation(ctx context.Context, operation string) error {
	if d.closed.Load() {
		return ErrManagerClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%v: %w", operation, err)
	}
	return nil
}

func (d *defaultHubLifetimeManager) AssociateUser(ctx context.Context, connectionID string, userID string) error {
	if err := d.checkMutation(ctx, "AssociateUser"); err != nil {
		return err
	}
	if userID == "" {
		return errors.New("AssociateUser: empty user id")
	}
	entry, ok := d.registry.lookup(connectionID)
	if !ok {
		return fmt.Errorf("AssociateUser %v: %w", connectionID, ErrUnknownConnection)
	}
	return d.associate(entry, connectionID, userID)
}

func (d *defaultHubLifetimeManager) associate(entry *connectionEntry, connectionID string, userID string) error {
	entry.mx.Lock()
	defer entry.mx.Unlock()
	if entry.removed {
		return fmt.Errorf("AssociateUser %v: %w", connectionID, ErrUnknownConnection)
	}
	switch entry.userID {
	case userID:
		return nil
	case "":
		entry.userID = userID
		d.users.add(userID, connectionID)
		_ = d.dbg.Log(evt, "AssociateUser", "connection", connectionID, "user", userID)
		return nil
	default:
		return fmt.Errorf("AssociateUser %v with %v (is %v): %w", connectionID, userID, entry.userID, ErrUserAlreadyAssociated)
	}
}

func (d *defaultHubLifetimeManager) AddToGroup(ctx context.Context, connectionID string, groupName string) error {
	if err := d.checkMutation(ctx, "AddToGroup"); err != nil {
		return err
	}
	if groupName == "" {
		return errors.New("AddToGroup: empty group name")
	}
	entry, ok := d.registry.lookup(connectionID)
	if !ok {
		return fmt.Errorf("AddToGroup %v to %v: %w", connectionID, groupName, ErrUnknownConnection)
	}
	entry.mx.Lock()
	defer entry.mx.Unlock()
	if entry.removed {
		return fmt.Errorf("AddToGroup %v to %v: %w", connectionID, groupName, ErrUnknownConnection)
	}
	// The reverse index entry might be left over from a group dissolved by RemoveGroup, so always add
	entry.groups[groupName] = struct{}{}
	d.groups.add(groupName, connectionID)
	_ = d.dbg.Log(evt, "AddToGroup", "connection", connectionID, "group", groupName)
	return nil
}

func (d *defaultHubLifetimeManager) RemoveFromGroup(ctx context.Context, connectionID string, groupName string) error {
	if err := d.checkMutation(ctx, "RemoveFromGroup"); err != nil {
		return err
	}
	entry, ok := d.registry.lookup(connectionID)
	if !ok {
		d.groups.remove(groupName, connectionID)
		return nil
	}
	entry.mx.Lock()
	defer entry.mx.Unlock()
	delete(entry.groups, groupName)
	if d.groups.remove(groupName, connectionID) {
		_ = d.dbg.Log(evt, "group dissolved", "group", groupName)
	}
	return nil
}

func (d *defaultHubLifetimeManager) RemoveGroup(ctx context.Context, groupName string) error {
	if err := d.checkMutation(ctx, "RemoveGroup"); err != nil {
		return err
	}
	if !d.dissolveGroup(groupName) {
		return fmt.Errorf("RemoveGroup %v: %w", groupName, ErrUnknownGroup)
	}
	return nil
}

func (d *defaultHubLifetimeManager) dissolveGroup(groupName string) bool {
	members, ok := d.groups.drop(groupName)
	if !ok {
		return false
	}
	for _, connectionID := range members {
		entry, ok := d.registry.lookup(connectionID)
		if !ok {
			continue
		}
		entry.mx.Lock()
		// AddToGroup might have recreated the group in between
		if entry.groups != nil && !d.groups.contains(groupName, connectionID) {
			delete(entry.groups, groupName)
		}
		entry.mx.Unlock()
	}
	_ = d.dbg.Log(evt, "RemoveGroup", "group", groupName, "members", len(members))
	return true
}

func (d *defaultHubLifetimeManager) Connection(connectionID string) (Connection, bool) {
	entry, ok := d.registry.lookup(connectionID)
	if !ok {
		return nil, false
	}
	return entry.hc.conn, true
}

func (d *defaultHubLifetimeManager) GroupMembers(groupName string) []string {
	return d.groups.members(groupName)
}

func (d *defaultHubLifetimeManager) UserConnections(userID string) []string {
	return d.users.members(userID)
}

func (d *defaultHubLifetimeManager) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, groupName := range d.groups.keys() {
		d.dissolveGroup(groupName)
	}
	d.registry.each(func(connectionID string, entry *connectionEntry) bool {
		d.unregister(connectionID, entry.hc)
		return true
	})
	d.cancel()
	if d.options.registerer != nil {
		d.metrics.unregister(d.options.registerer)
	}
	_ = d.info.Log(evt, "Close", msg, "hub lifetime manager closed")
	return nil
}
