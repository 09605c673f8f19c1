package hublifetime

import (
	"sync"
	"sync/atomic"
)

// connectionEntry is the registry record of one connection.
// mx guards the reverse indexes groups and userID. Group and user index mutations
// for the connection are only done while mx is held, so they are serialized with unregister.
type connectionEntry struct {
	mx      sync.Mutex
	hc      *hubConnection
	userID  string
	groups  map[string]struct{}
	removed bool
}

// connectionRegistry is the source of truth for registered connections, keyed by connection id
type connectionRegistry struct {
	connections sync.Map // connectionID -> *connectionEntry
	count       atomic.Int64
}

// register inserts hc. It returns ErrDuplicateConnection if the connection id is already registered.
func (r *connectionRegistry) register(hc *hubConnection) (*connectionEntry, error) {
	entry := &connectionEntry{
		hc:     hc,
		groups: make(map[string]struct{}),
	}
	if _, loaded := r.connections.LoadOrStore(hc.ConnectionID(), entry); loaded {
		return nil, ErrDuplicateConnection
	}
	r.count.Add(1)
	return entry, nil
}

// unregister removes the connection. If hc is not nil, the connection is only removed
// if it is still registered with this send path. The caller is responsible for purging the indexes.
func (r *connectionRegistry) unregister(connectionID string, hc *hubConnection) (*connectionEntry, bool) {
	value, ok := r.connections.Load(connectionID)
	if !ok {
		return nil, false
	}
	entry := value.(*connectionEntry)
	if hc != nil && entry.hc != hc {
		return nil, false
	}
	if !r.connections.CompareAndDelete(connectionID, entry) {
		return nil, false
	}
	r.count.Add(-1)
	return entry, true
}

func (r *connectionRegistry) lookup(connectionID string) (*connectionEntry, bool) {
	value, ok := r.connections.Load(connectionID)
	if !ok {
		return nil, false
	}
	return value.(*connectionEntry), true
}

func (r *connectionRegistry) each(f func(connectionID string, entry *connectionEntry) bool) {
	r.connections.Range(func(key, value interface{}) bool {
		return f(key.(string), value.(*connectionEntry))
	})
}

func (r *connectionRegistry) len() int {
	return int(r.count.Load())
}
