package hublifetime

import (
	"sync"
	"sync/atomic"
)

// membershipIndex maps a key (group name or user id) to a set of connection ids.
// Each set has its own lock, so mutations on different keys never contend.
// A set is created on the first add and dropped when its last member is removed.
type membershipIndex struct {
	sets  sync.Map // key -> *memberSet
	count atomic.Int64
}

type memberSet struct {
	mx      sync.RWMutex
	members map[string]struct{}
	// dropped sets are no longer in the index. Adders which loaded them before must retry.
	dropped bool
}

// add adds connectionID to the set of key. Adding twice has the same effect as once.
func (m *membershipIndex) add(key, connectionID string) {
	for {
		value, loaded := m.sets.LoadOrStore(key, &memberSet{members: make(map[string]struct{})})
		if !loaded {
			m.count.Add(1)
		}
		set := value.(*memberSet)
		set.mx.Lock()
		if set.dropped {
			set.mx.Unlock()
			continue
		}
		set.members[connectionID] = struct{}{}
		set.mx.Unlock()
		return
	}
}

// remove removes connectionID from the set of key and reports if the set was dropped because it got empty.
func (m *membershipIndex) remove(key, connectionID string) bool {
	value, ok := m.sets.Load(key)
	if !ok {
		return false
	}
	set := value.(*memberSet)
	set.mx.Lock()
	defer set.mx.Unlock()
	if set.dropped {
		return false
	}
	delete(set.members, connectionID)
	if len(set.members) > 0 {
		return false
	}
	set.dropped = true
	m.sets.CompareAndDelete(key, set)
	m.count.Add(-1)
	return true
}

// drop removes the whole set of key and returns its former members
func (m *membershipIndex) drop(key string) ([]string, bool) {
	value, ok := m.sets.Load(key)
	if !ok {
		return nil, false
	}
	set := value.(*memberSet)
	set.mx.Lock()
	defer set.mx.Unlock()
	if set.dropped {
		return nil, false
	}
	set.dropped = true
	m.sets.CompareAndDelete(key, set)
	m.count.Add(-1)
	members := make([]string, 0, len(set.members))
	for connectionID := range set.members {
		members = append(members, connectionID)
	}
	return members, true
}

// members returns a snapshot of the set of key. A missing key results in an empty snapshot.
func (m *membershipIndex) members(key string) []string {
	value, ok := m.sets.Load(key)
	if !ok {
		return nil
	}
	set := value.(*memberSet)
	set.mx.RLock()
	defer set.mx.RUnlock()
	if set.dropped {
		return nil
	}
	members := make([]string, 0, len(set.members))
	for connectionID := range set.members {
		members = append(members, connectionID)
	}
	return members
}

func (m *membershipIndex) contains(key, connectionID string) bool {
	value, ok := m.sets.Load(key)
	if !ok {
		return false
	}
	set := value.(*memberSet)
	set.mx.RLock()
	defer set.mx.RUnlock()
	_, ok = set.members[connectionID]
	return ok && !set.dropped
}

// keys returns a snapshot of all keys with at least one member
func (m *membershipIndex) keys() []string {
	keys := make([]string, 0, m.len())
	m.sets.Range(func(key, _ interface{}) bool {
		keys = append(keys, key.(string))
		return true
	})
	return keys
}

func (m *membershipIndex) len() int {
	return int(m.count.Load())
}
