package hublifetime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/teivah/onecontext"
)

// recipients is the resolved, deduplicated target set of a send operation
type recipients map[string]*hubConnection

func (d *defaultHubLifetimeManager) SendAll(ctx context.Context, target string, args []interface{}, excludedConnectionIDs []string) error {
	return d.broadcast(ctx, "all", target, args, excludedConnectionIDs, func(r recipients) {
		d.registry.each(func(connectionID string, entry *connectionEntry) bool {
			r[connectionID] = entry.hc
			return true
		})
	})
}

func (d *defaultHubLifetimeManager) SendConnection(ctx context.Context, connectionID string, target string, args []interface{}) error {
	return d.broadcast(ctx, "connection", target, args, nil, func(r recipients) {
		d.resolveConnections(r, connectionID)
	})
}

func (d *defaultHubLifetimeManager) SendConnections(ctx context.Context, connectionIDs []string, target string, args []interface{}) error {
	return d.broadcast(ctx, "connections", target, args, nil, func(r recipients) {
		d.resolveConnections(r, connectionIDs...)
	})
}

func (d *defaultHubLifetimeManager) SendGroup(ctx context.Context, groupName string, target string, args []interface{}, excludedConnectionIDs []string) error {
	return d.broadcast(ctx, "group", target, args, excludedConnectionIDs, func(r recipients) {
		d.resolveIndex(r, &d.groups, ErrUnknownGroup, groupName)
	})
}

func (d *defaultHubLifetimeManager) SendGroups(ctx context.Context, groupNames []string, target string, args []interface{}, excludedConnectionIDs []string) error {
	return d.broadcast(ctx, "groups", target, args, excludedConnectionIDs, func(r recipients) {
		d.resolveIndex(r, &d.groups, ErrUnknownGroup, groupNames...)
	})
}

func (d *defaultHubLifetimeManager) SendUser(ctx context.Context, userID string, target string, args []interface{}) error {
	return d.broadcast(ctx, "user", target, args, nil, func(r recipients) {
		d.resolveIndex(r, &d.users, ErrUnknownUser, userID)
	})
}

func (d *defaultHubLifetimeManager) SendUsers(ctx context.Context, userIDs []string, target string, args []interface{}) error {
	return d.broadcast(ctx, "users", target, args, nil, func(r recipients) {
		d.resolveIndex(r, &d.users, ErrUnknownUser, userIDs...)
	})
}

func (d *defaultHubLifetimeManager) resolveConnections(r recipients, connectionIDs ...string) {
	for _, connectionID := range connectionIDs {
		if entry, ok := d.registry.lookup(connectionID); ok {
			r[connectionID] = entry.hc
		} else {
			_ = d.dbg.Log(evt, "resolve", "connection", connectionID, "error", ErrUnknownConnection, react, "skip")
		}
	}
}

// resolveIndex adds the registered members of all keys to r. Members which are not registered
// anymore are left over from a concurrent unregister and skipped.
func (d *defaultHubLifetimeManager) resolveIndex(r recipients, index *membershipIndex, miss error, keys ...string) {
	for _, key := range keys {
		members := index.members(key)
		if len(members) == 0 {
			_ = d.dbg.Log(evt, "resolve", "key", key, "error", miss, react, "skip")
			continue
		}
		for _, connectionID := range members {
			if _, ok := r[connectionID]; ok {
				continue
			}
			if entry, ok := d.registry.lookup(connectionID); ok {
				r[connectionID] = entry.hc
			}
		}
	}
}

// broadcast resolves the recipients, removes the excluded connections and hands the serialized
// invocation off to the send path of each recipient. It returns when all hand-offs are done or failed.
// Failures of single connections are not returned.
func (d *defaultHubLifetimeManager) broadcast(ctx context.Context, selector string, target string, args []interface{},
	excludedConnectionIDs []string, resolve func(r recipients)) error {
	if d.closed.Load() {
		return ErrManagerClosed
	}
	d.metrics.broadcasts.WithLabelValues(selector).Inc()
	if err := ctx.Err(); err != nil {
		return d.canceled(selector, target, err)
	}
	// Waiting for slow connections ends with the caller's ctx or the manager
	fanOutCtx, cancel := onecontext.Merge(ctx, d.ctx)
	defer cancel()
	r := make(recipients)
	resolve(r)
	for _, connectionID := range excludedConnectionIDs {
		delete(r, connectionID)
	}
	// Nothing has been handed off yet
	if err := ctx.Err(); err != nil {
		return d.canceled(selector, target, err)
	}
	if len(r) == 0 {
		_ = d.dbg.Log(evt, "send", "selector", selector, "target", target, "recipients", 0)
		return nil
	}
	frames, err := d.serialize(newInvocationMessage(target, args), r)
	if err != nil {
		_ = d.info.Log(evt, "send", "selector", selector, "target", target, "error", err)
		return fmt.Errorf("send %v %v: %w", selector, target, err)
	}
	if err := d.fanOut(fanOutCtx, r, frames); err != nil {
		// The caller's error is more precise than the merged one
		if callerErr := ctx.Err(); callerErr != nil {
			err = callerErr
		}
		return d.canceled(selector, target, err)
	}
	_ = d.dbg.Log(evt, "send", "selector", selector, "target", target, "recipients", len(r))
	return nil
}

// serialize builds the frames for all protocols used by the recipients, before anything is handed off
func (d *defaultHubLifetimeManager) serialize(message interface{}, r recipients) (map[string][]byte, error) {
	sm := newSerializedMessage(message)
	frames := make(map[string][]byte)
	for _, hc := range r {
		if _, ok := frames[hc.protocol.Name()]; ok {
			continue
		}
		frame, err := sm.frame(hc.protocol)
		if err != nil {
			return nil, err
		}
		frames[hc.protocol.Name()] = frame
	}
	return frames, nil
}

// fanOut hands the frames off. Recipients with space in their queue are served inline,
// the others concurrently, so a slow connection does not delay the rest.
// It returns the ctx error if ctx ended before every recipient got its hand-off attempt,
// so the caller can tell a complete fan-out from an interrupted one.
func (d *defaultHubLifetimeManager) fanOut(ctx context.Context, r recipients, frames map[string][]byte) error {
	var wg sync.WaitGroup
	var mx sync.Mutex
	var interrupted error
	interrupt := func(err error) {
		mx.Lock()
		defer mx.Unlock()
		if interrupted == nil {
			interrupted = err
		}
	}
	for _, hc := range r {
		if err := ctx.Err(); err != nil {
			// Connections not reached yet are skipped, already accepted hand-offs stay
			interrupt(err)
			break
		}
		frame := frames[hc.protocol.Name()]
		if hc.TrySend(frame) {
			d.metrics.handOffs.Inc()
			continue
		}
		wg.Add(1)
		go func(hc *hubConnection, frame []byte) {
			defer wg.Done()
			if err := hc.Send(ctx, frame); err != nil {
				d.metrics.dropped.Inc()
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, onecontext.ErrCanceled) {
					interrupt(err)
				}
				_ = d.dbg.Log(evt, "send", "connection", hc.ConnectionID(), "error", err, react, "skip connection")
				return
			}
			d.metrics.handOffs.Inc()
		}(hc, frame)
	}
	wg.Wait()
	mx.Lock()
	defer mx.Unlock()
	return interrupted
}

func (d *defaultHubLifetimeManager) canceled(selector string, target string, err error) error {
	if d.closed.Load() {
		return ErrManagerClosed
	}
	_ = d.dbg.Log(evt, "send", "selector", selector, "target", target, "error", err, react, "cancel send")
	return fmt.Errorf("send %v %v: %w", selector, target, err)
}
