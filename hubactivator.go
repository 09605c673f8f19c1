package hublifetime

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
)

// HubActivator creates and releases hub instances. Each instance lives for one scope of UseHub.
type HubActivator interface {
	Create(ctx context.Context) (HubInterface, error)
	Release(hub HubInterface)
}

type simpleHubActivator struct {
	hubType reflect.Type
}

// SimpleHubActivator returns a HubActivator which creates a new hub with the underlying type
// of hubProto for each scope. hubProto must be a pointer to a struct.
func SimpleHubActivator(hubProto HubInterface) (HubActivator, error) {
	if hubProto == nil {
		return nil, errors.New("SimpleHubActivator: hubProto is nil")
	}
	t := reflect.TypeOf(hubProto)
	if t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("SimpleHubActivator: %v is not a pointer to a struct", t)
	}
	return &simpleHubActivator{hubType: t.Elem()}, nil
}

func (s *simpleHubActivator) Create(ctx context.Context) (HubInterface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return reflect.New(s.hubType).Interface().(HubInterface), nil
}

func (s *simpleHubActivator) Release(hub HubInterface) {
	if r, ok := hub.(interface{ Release() }); ok {
		r.Release()
	}
}

// UseHub creates a hub with the activator, initializes it with hubContext and passes it to use.
// The hub is released when UseHub returns, also if use fails, panics or ctx is canceled.
// A panic in use is returned as error.
func UseHub(ctx context.Context, activator HubActivator, hubContext HubContext, use func(hub HubInterface) error) (err error) {
	hub, err := activator.Create(ctx)
	if err != nil {
		return fmt.Errorf("create hub: %w", err)
	}
	defer activator.Release(hub)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hub panicked: %v\n%v", r, string(debug.Stack()))
		}
	}()
	hub.Initialize(hubContext)
	if err := ctx.Err(); err != nil {
		return err
	}
	return use(hub)
}
