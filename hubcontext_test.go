package hublifetime

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

type contextHub struct {
	Hub
	calls int
}

func (c *contextHub) CallAll(ctx context.Context) error {
	return c.Clients().All().Send(ctx, "clientFunc")
}

func (c *contextHub) CallCaller(ctx context.Context) error {
	return c.Clients().Caller().Send(ctx, "clientFunc")
}

func (c *contextHub) CallOthers(ctx context.Context) error {
	return c.Clients().Others().Send(ctx, "clientFunc")
}

func (c *contextHub) CallClient(ctx context.Context, connectionID string) error {
	return c.Clients().Client(connectionID).Send(ctx, "clientFunc")
}

func (c *contextHub) BuildGroup(ctx context.Context, connectionID1 string, connectionID2 string) error {
	if err := c.Groups().AddToGroup(ctx, connectionID1, "local"); err != nil {
		return err
	}
	return c.Groups().AddToGroup(ctx, connectionID2, "local")
}

func (c *contextHub) CallOthersInGroup(ctx context.Context) error {
	return c.Clients().OthersInGroup("local").Send(ctx, "clientFunc")
}

var released atomic.Int32

func (c *contextHub) Release() {
	released.Add(1)
}

func useContextHub(m HubLifetimeManager, connectionID string, use func(hub *contextHub) error) error {
	activator, err := SimpleHubActivator(&contextHub{})
	Expect(err).NotTo(HaveOccurred())
	return UseHub(context.Background(), activator, NewHubContext(m, connectionID), func(hub HubInterface) error {
		return use(hub.(*contextHub))
	})
}

var _ = Describe("HubContext", func() {
	var m HubLifetimeManager
	var conns []*testingConnection
	ctx := context.Background()
	BeforeEach(func() {
		m = newTestManager()
		conns = connectTesting(m, 3)
	})
	AfterEach(func() {
		_ = m.Close()
	})

	It("should invoke all clients", func() {
		Expect(useContextHub(m, conns[0].ConnectionID(), func(hub *contextHub) error { return hub.CallAll(ctx) })).To(Succeed())
		for _, conn := range conns {
			Eventually(conn.Targets, time.Second).Should(Equal([]string{"clientFunc"}))
		}
	})
	It("should invoke only the caller", func() {
		Expect(useContextHub(m, conns[0].ConnectionID(), func(hub *contextHub) error { return hub.CallCaller(ctx) })).To(Succeed())
		Eventually(conns[0].Targets, time.Second).Should(Equal([]string{"clientFunc"}))
		Consistently(func() int { return conns[1].Received() + conns[2].Received() }, 100*time.Millisecond).Should(BeZero())
	})
	It("should invoke all but the caller", func() {
		Expect(useContextHub(m, conns[0].ConnectionID(), func(hub *contextHub) error { return hub.CallOthers(ctx) })).To(Succeed())
		Eventually(conns[1].Targets, time.Second).Should(Equal([]string{"clientFunc"}))
		Eventually(conns[2].Targets, time.Second).Should(Equal([]string{"clientFunc"}))
		Consistently(conns[0].Received, 100*time.Millisecond).Should(BeZero())
	})
	It("should invoke only the client which was addressed", func() {
		Expect(useContextHub(m, conns[0].ConnectionID(), func(hub *contextHub) error {
			return hub.CallClient(ctx, conns[2].ConnectionID())
		})).To(Succeed())
		Eventually(conns[2].Targets, time.Second).Should(Equal([]string{"clientFunc"}))
		Consistently(func() int { return conns[0].Received() + conns[1].Received() }, 100*time.Millisecond).Should(BeZero())
	})
	It("should invoke the others in the group", func() {
		Expect(useContextHub(m, conns[0].ConnectionID(), func(hub *contextHub) error {
			if err := hub.BuildGroup(ctx, conns[0].ConnectionID(), conns[1].ConnectionID()); err != nil {
				return err
			}
			return hub.CallOthersInGroup(ctx)
		})).To(Succeed())
		Eventually(conns[1].Targets, time.Second).Should(Equal([]string{"clientFunc"}))
		Consistently(func() int { return conns[0].Received() + conns[2].Received() }, 100*time.Millisecond).Should(BeZero())
	})
	It("should keep items for the connection", func() {
		hubContext := NewHubContext(m, conns[0].ConnectionID())
		activator, err := SimpleHubActivator(&contextHub{})
		Expect(err).NotTo(HaveOccurred())
		Expect(UseHub(ctx, activator, hubContext, func(hub HubInterface) error {
			hub.(*contextHub).Items().Store("key", "value")
			return nil
		})).To(Succeed())
		Expect(UseHub(ctx, activator, hubContext, func(hub HubInterface) error {
			value, ok := hub.(*contextHub).Items().Load("key")
			Expect(ok).To(BeTrue())
			Expect(value).To(Equal("value"))
			return nil
		})).To(Succeed())
	})
	It("should abort the caller", func() {
		Expect(useContextHub(m, conns[0].ConnectionID(), func(hub *contextHub) error {
			hub.Abort()
			return nil
		})).To(Succeed())
		Expect(conns[0].Aborted()).To(BeTrue())
		_, ok := m.Connection(conns[0].ConnectionID())
		Expect(ok).To(BeFalse())
	})
	It("should send without caller", func() {
		hubContext := NewHubContext(m, "")
		Expect(hubContext.Clients().All().Send(ctx, "server")).To(Succeed())
		for _, conn := range conns {
			Eventually(conn.Targets, time.Second).Should(Equal([]string{"server"}))
		}
		hubContext.Abort()
		_, ok := m.Connection(conns[0].ConnectionID())
		Expect(ok).To(BeTrue())
	})
})

var _ = Describe("UseHub", func() {
	var m HubLifetimeManager
	BeforeEach(func() {
		m = newTestManager()
		released.Store(0)
	})
	AfterEach(func() {
		_ = m.Close()
	})

	It("should create a new hub for each scope", func() {
		var first *contextHub
		Expect(useContextHub(m, "", func(hub *contextHub) error {
			hub.calls++
			first = hub
			return nil
		})).To(Succeed())
		Expect(useContextHub(m, "", func(hub *contextHub) error {
			Expect(hub).NotTo(BeIdenticalTo(first))
			Expect(hub.calls).To(BeZero())
			return nil
		})).To(Succeed())
		Expect(released.Load()).To(Equal(int32(2)))
	})
	It("should release the hub when use fails", func() {
		failed := errors.New("failed")
		Expect(useContextHub(m, "", func(*contextHub) error { return failed })).To(MatchError(failed))
		Expect(released.Load()).To(Equal(int32(1)))
	})
	It("should release the hub and return an error when use panics", func() {
		err := useContextHub(m, "", func(*contextHub) error { panic("Don't panic!") })
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("Don't panic!"))
		Expect(released.Load()).To(Equal(int32(1)))
	})
	It("should release the hub when the context is canceled", func() {
		activator := &recordingActivator{}
		ctx, cancel := context.WithCancel(context.Background())
		used := false
		Expect(UseHub(ctx, activator, NewHubContext(m, ""), func(hub HubInterface) error {
			cancel()
			used = true
			return ctx.Err()
		})).To(MatchError(context.Canceled))
		Expect(used).To(BeTrue())
		Expect(activator.released).To(Equal(1))
		Expect(UseHub(ctx, activator, NewHubContext(m, ""), func(HubInterface) error { return nil })).
			To(MatchError(context.Canceled))
		Expect(activator.created).To(Equal(1))
	})
	It("should reject prototypes which are no struct pointers", func() {
		_, err := SimpleHubActivator(nil)
		Expect(err).To(HaveOccurred())
		_, err = SimpleHubActivator(nonStructHub(0))
		Expect(err).To(HaveOccurred())
	})
})

type recordingActivator struct {
	created  int
	released int
}

func (r *recordingActivator) Create(ctx context.Context) (HubInterface, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.created++
	return &Hub{}, nil
}

func (r *recordingActivator) Release(HubInterface) {
	r.released++
}

type nonStructHub int

func (nonStructHub) Initialize(HubContext)  {}
func (nonStructHub) OnConnected(string)     {}
func (nonStructHub) OnDisconnected(string) {}
