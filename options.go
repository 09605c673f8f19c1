package hublifetime

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
)

// StructuredLogger is the simplest logging interface for structured logging.
// See github.com/go-kit/log
type StructuredLogger interface {
	Log(keyVals ...interface{}) error
}

// SlowConsumerPolicy decides what happens when a connection can not take a message
// because its outbound buffer is full.
type SlowConsumerPolicy int

const (
	// AbortSlowConsumer waits up to SendTimeout for buffer space, then aborts the connection.
	AbortSlowConsumer SlowConsumerPolicy = iota
	// DropOnSlowConsumer drops the message immediately and keeps the connection.
	DropOnSlowConsumer
)

func (p SlowConsumerPolicy) String() string {
	switch p {
	case AbortSlowConsumer:
		return "abort"
	case DropOnSlowConsumer:
		return "drop"
	default:
		return fmt.Sprintf("SlowConsumerPolicy(%d)", int(p))
	}
}

type managerOptions struct {
	hubName                string
	info                   StructuredLogger
	dbg                    StructuredLogger
	outboundBufferCapacity uint
	sendTimeout            time.Duration
	slowConsumer           SlowConsumerPolicy
	protocol               HubProtocol
	userIDProvider         func(conn Connection) string
	registerer             prometheus.Registerer
}

func defaultManagerOptions() managerOptions {
	info, dbg := buildInfoDebugLogger(log.NewLogfmtLogger(os.Stderr), false)
	return managerOptions{
		hubName:                "hub",
		info:                   info,
		dbg:                    dbg,
		outboundBufferCapacity: 32,
		sendTimeout:            5 * time.Second,
		slowConsumer:           AbortSlowConsumer,
		protocol:               &JSONHubProtocol{},
	}
}

// Logger sets the logger used by the HubLifetimeManager to log info events.
// If debug is true, debug log event are generated, too
func Logger(logger StructuredLogger, debug bool) func(*managerOptions) error {
	return func(o *managerOptions) error {
		if logger == nil {
			return errors.New("option Logger: logger must not be nil")
		}
		o.info, o.dbg = buildInfoDebugLogger(logger, debug)
		return nil
	}
}

// HubName names the hub the HubLifetimeManager serves. It is used in log events and as metrics label.
// Default is "hub".
func HubName(name string) func(*managerOptions) error {
	return func(o *managerOptions) error {
		if name == "" {
			return errors.New("unsupported empty HubName")
		}
		o.hubName = name
		return nil
	}
}

// OutboundBufferCapacity is the maximum number of messages buffered for one connection
// before the SlowConsumerPolicy is applied.
// Default is 32.
func OutboundBufferCapacity(capacity uint) func(*managerOptions) error {
	return func(o *managerOptions) error {
		if capacity == 0 {
			return errors.New("unsupported OutboundBufferCapacity 0")
		}
		o.outboundBufferCapacity = capacity
		return nil
	}
}

// SendTimeout is the time a broadcast waits for buffer space of a single connection
// when SlowConsumer(AbortSlowConsumer) is set. Other connections of the broadcast are not delayed by this.
// Default is 5 seconds.
func SendTimeout(timeout time.Duration) func(*managerOptions) error {
	return func(o *managerOptions) error {
		if timeout <= 0 {
			return fmt.Errorf("unsupported SendTimeout %v", timeout)
		}
		o.sendTimeout = timeout
		return nil
	}
}

// SlowConsumer sets the SlowConsumerPolicy.
// Default is AbortSlowConsumer.
func SlowConsumer(policy SlowConsumerPolicy) func(*managerOptions) error {
	return func(o *managerOptions) error {
		switch policy {
		case AbortSlowConsumer, DropOnSlowConsumer:
			o.slowConsumer = policy
			return nil
		default:
			return fmt.Errorf("unsupported %v", policy)
		}
	}
}

// DefaultProtocol is the HubProtocol used for connections which do not provide their own.
// Default is JSONHubProtocol.
func DefaultProtocol(protocol HubProtocol) func(*managerOptions) error {
	return func(o *managerOptions) error {
		if protocol == nil {
			return errors.New("option DefaultProtocol: protocol must not be nil")
		}
		o.protocol = protocol
		return nil
	}
}

// UserIDProvider sets the function which resolves the user identity of a connection when it connects.
// An empty result means the identity is not known yet and can be passed later by AssociateUser.
// If the Connection itself has a UserID() method, its result is preferred.
func UserIDProvider(provider func(conn Connection) string) func(*managerOptions) error {
	return func(o *managerOptions) error {
		o.userIDProvider = provider
		return nil
	}
}

// WithMetrics registers the prometheus collectors of the HubLifetimeManager with registerer.
// The collectors carry the HubName as const label "hub".
func WithMetrics(registerer prometheus.Registerer) func(*managerOptions) error {
	return func(o *managerOptions) error {
		if registerer == nil {
			return errors.New("option WithMetrics: registerer must not be nil")
		}
		o.registerer = registerer
		return nil
	}
}

func buildInfoDebugLogger(logger log.Logger, debug bool) (log.Logger, log.Logger) {
	if debug {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}
	return level.Info(logger), log.With(level.Debug(logger), "caller", log.DefaultCaller)
}

const (
	evt   = "event"
	msg   = "message"
	react = "reaction"
)
