package hublifetime

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func newTestManager(options ...func(*managerOptions) error) HubLifetimeManager {
	m, err := NewHubLifetimeManager(context.Background(), append([]func(*managerOptions) error{testLoggerOption()}, options...)...)
	Expect(err).NotTo(HaveOccurred())
	return m
}

func connectTesting(m HubLifetimeManager, count int) []*testingConnection {
	conns := make([]*testingConnection, count)
	for i := range conns {
		conns[i] = newTestingConnection()
		Expect(m.OnConnected(conns[i])).To(Succeed())
	}
	return conns
}

type userTestingConnection struct {
	*testingConnection
	userID string
}

func (u *userTestingConnection) UserID() string {
	return u.userID
}

var _ = Describe("HubLifetimeManager", func() {
	var m HubLifetimeManager
	ctx := context.Background()
	BeforeEach(func() {
		m = newTestManager()
	})
	AfterEach(func() {
		_ = m.Close()
	})

	Context("OnConnected", func() {
		It("should register the connection", func() {
			conn := connectTesting(m, 1)[0]
			found, ok := m.Connection(conn.ConnectionID())
			Expect(ok).To(BeTrue())
			Expect(found).To(BeIdenticalTo(conn))
		})
		It("should reject a connection id in use and keep the first connection", func() {
			first := newTestingConnectionWithID("dup")
			Expect(m.OnConnected(first)).To(Succeed())
			err := m.OnConnected(newTestingConnectionWithID("dup"))
			Expect(errors.Is(err, ErrDuplicateConnection)).To(BeTrue())
			found, ok := m.Connection("dup")
			Expect(ok).To(BeTrue())
			Expect(found).To(BeIdenticalTo(first))
		})
		It("should associate the user of the connection", func() {
			conn := &userTestingConnection{testingConnection: newTestingConnection(), userID: "u1"}
			Expect(m.OnConnected(conn)).To(Succeed())
			Expect(m.UserConnections("u1")).To(ConsistOf(conn.ConnectionID()))
		})
		It("should associate the user from the UserIDProvider", func() {
			mp := newTestManager(UserIDProvider(func(conn Connection) string { return "user-" + conn.ConnectionID() }))
			defer func() { _ = mp.Close() }()
			conn := connectTesting(mp, 1)[0]
			Expect(mp.UserConnections("user-" + conn.ConnectionID())).To(ConsistOf(conn.ConnectionID()))
		})
	})

	Context("OnDisconnected", func() {
		It("should remove the connection from the registry, all groups and its user", func() {
			conns := connectTesting(m, 2)
			a := conns[0].ConnectionID()
			Expect(m.AddToGroup(ctx, a, "g1")).To(Succeed())
			Expect(m.AddToGroup(ctx, a, "g2")).To(Succeed())
			Expect(m.AddToGroup(ctx, conns[1].ConnectionID(), "g2")).To(Succeed())
			Expect(m.AssociateUser(ctx, a, "u1")).To(Succeed())
			m.OnDisconnected(a)
			_, ok := m.Connection(a)
			Expect(ok).To(BeFalse())
			Expect(m.GroupMembers("g1")).To(BeEmpty())
			Expect(m.GroupMembers("g2")).To(ConsistOf(conns[1].ConnectionID()))
			Expect(m.UserConnections("u1")).To(BeEmpty())
		})
		It("should be a no-op for unknown and already unregistered connections", func() {
			conn := connectTesting(m, 1)[0]
			m.OnDisconnected("unknown")
			m.OnDisconnected(conn.ConnectionID())
			m.OnDisconnected(conn.ConnectionID())
			_, ok := m.Connection(conn.ConnectionID())
			Expect(ok).To(BeFalse())
		})
		It("should allow to register the connection id again", func() {
			conn := newTestingConnectionWithID("again")
			Expect(m.OnConnected(conn)).To(Succeed())
			m.OnDisconnected("again")
			Expect(m.OnConnected(newTestingConnectionWithID("again"))).To(Succeed())
		})
	})

	Context("AddToGroup", func() {
		It("should fail for unregistered connections", func() {
			err := m.AddToGroup(ctx, "unknown", "g")
			Expect(errors.Is(err, ErrUnknownConnection)).To(BeTrue())
			Expect(m.GroupMembers("g")).To(BeEmpty())
		})
		It("should add a connection only once", func() {
			conn := connectTesting(m, 1)[0]
			Expect(m.AddToGroup(ctx, conn.ConnectionID(), "g")).To(Succeed())
			Expect(m.AddToGroup(ctx, conn.ConnectionID(), "g")).To(Succeed())
			Expect(m.GroupMembers("g")).To(Equal([]string{conn.ConnectionID()}))
		})
		It("should reject empty group names", func() {
			conn := connectTesting(m, 1)[0]
			Expect(m.AddToGroup(ctx, conn.ConnectionID(), "")).NotTo(Succeed())
		})
		It("should fail with a canceled context", func() {
			conn := connectTesting(m, 1)[0]
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			err := m.AddToGroup(cctx, conn.ConnectionID(), "g")
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(m.GroupMembers("g")).To(BeEmpty())
		})
		It("should never leave a group referencing a connection unregistered concurrently", func() {
			for i := 0; i < 200; i++ {
				conn := connectTesting(m, 1)[0]
				group := fmt.Sprintf("X%v", i)
				var wg sync.WaitGroup
				wg.Add(2)
				go func() {
					defer wg.Done()
					_ = m.AddToGroup(ctx, conn.ConnectionID(), group)
				}()
				go func() {
					defer wg.Done()
					m.OnDisconnected(conn.ConnectionID())
				}()
				wg.Wait()
				Expect(m.GroupMembers(group)).NotTo(ContainElement(conn.ConnectionID()))
			}
		})
	})

	Context("RemoveFromGroup", func() {
		It("should be a no-op for non members", func() {
			conn := connectTesting(m, 1)[0]
			Expect(m.RemoveFromGroup(ctx, conn.ConnectionID(), "g")).To(Succeed())
			Expect(m.RemoveFromGroup(ctx, "unknown", "g")).To(Succeed())
		})
		It("should drop the group with its last member", func() {
			conns := connectTesting(m, 2)
			Expect(m.AddToGroup(ctx, conns[0].ConnectionID(), "g")).To(Succeed())
			Expect(m.AddToGroup(ctx, conns[1].ConnectionID(), "g")).To(Succeed())
			Expect(m.RemoveFromGroup(ctx, conns[0].ConnectionID(), "g")).To(Succeed())
			Expect(m.GroupMembers("g")).To(ConsistOf(conns[1].ConnectionID()))
			Expect(m.RemoveFromGroup(ctx, conns[1].ConnectionID(), "g")).To(Succeed())
			Expect(m.GroupMembers("g")).To(BeEmpty())
			Expect(errors.Is(m.RemoveGroup(ctx, "g"), ErrUnknownGroup)).To(BeTrue())
		})
	})

	Context("RemoveGroup", func() {
		It("should dissolve the group", func() {
			conns := connectTesting(m, 2)
			for _, conn := range conns {
				Expect(m.AddToGroup(ctx, conn.ConnectionID(), "g")).To(Succeed())
			}
			Expect(m.RemoveGroup(ctx, "g")).To(Succeed())
			Expect(m.GroupMembers("g")).To(BeEmpty())
			// the connections can join again
			Expect(m.AddToGroup(ctx, conns[0].ConnectionID(), "g")).To(Succeed())
			Expect(m.GroupMembers("g")).To(ConsistOf(conns[0].ConnectionID()))
		})
		It("should fail for unknown groups", func() {
			Expect(errors.Is(m.RemoveGroup(ctx, "unknown"), ErrUnknownGroup)).To(BeTrue())
		})
	})

	Context("AssociateUser", func() {
		It("should add the connection to its user once", func() {
			conns := connectTesting(m, 2)
			Expect(m.AssociateUser(ctx, conns[0].ConnectionID(), "u1")).To(Succeed())
			Expect(m.AssociateUser(ctx, conns[0].ConnectionID(), "u1")).To(Succeed())
			Expect(m.AssociateUser(ctx, conns[1].ConnectionID(), "u1")).To(Succeed())
			Expect(m.UserConnections("u1")).To(ConsistOf(conns[0].ConnectionID(), conns[1].ConnectionID()))
		})
		It("should reject another user", func() {
			conn := connectTesting(m, 1)[0]
			Expect(m.AssociateUser(ctx, conn.ConnectionID(), "u1")).To(Succeed())
			err := m.AssociateUser(ctx, conn.ConnectionID(), "u2")
			Expect(errors.Is(err, ErrUserAlreadyAssociated)).To(BeTrue())
			Expect(m.UserConnections("u2")).To(BeEmpty())
		})
		It("should fail for unregistered connections", func() {
			err := m.AssociateUser(ctx, "unknown", "u1")
			Expect(errors.Is(err, ErrUnknownConnection)).To(BeTrue())
		})
	})

	Context("Abort", func() {
		It("should abort the transport and unregister the connection", func() {
			conn := connectTesting(m, 1)[0]
			Expect(m.AddToGroup(ctx, conn.ConnectionID(), "g")).To(Succeed())
			m.Abort(conn.ConnectionID())
			Expect(conn.Aborted()).To(BeTrue())
			_, ok := m.Connection(conn.ConnectionID())
			Expect(ok).To(BeFalse())
			Expect(m.GroupMembers("g")).To(BeEmpty())
		})
	})

	Context("transport", func() {
		It("should unregister a connection whose transport fails", func() {
			conns := connectTesting(m, 2)
			Expect(m.AddToGroup(ctx, conns[0].ConnectionID(), "g")).To(Succeed())
			Expect(m.AddToGroup(ctx, conns[1].ConnectionID(), "g")).To(Succeed())
			conns[0].FailWrite()
			Expect(m.SendGroup(ctx, "g", "fail", nil, nil)).To(Succeed())
			Eventually(func() bool {
				_, ok := m.Connection(conns[0].ConnectionID())
				return ok
			}, time.Second).Should(BeFalse())
			Expect(m.GroupMembers("g")).To(ConsistOf(conns[1].ConnectionID()))
			Eventually(conns[1].Targets, time.Second).Should(Equal([]string{"fail"}))
		})
		It("should unregister a connection whose context is canceled", func() {
			conn := connectTesting(m, 1)[0]
			conn.ConnectionBase.Abort()
			Eventually(func() bool {
				_, ok := m.Connection(conn.ConnectionID())
				return ok
			}, time.Second).Should(BeFalse())
		})
	})

	Context("Close", func() {
		It("should unregister all connections and reject further operations", func() {
			conns := connectTesting(m, 2)
			Expect(m.AddToGroup(ctx, conns[0].ConnectionID(), "g")).To(Succeed())
			Expect(m.Close()).To(Succeed())
			_, ok := m.Connection(conns[0].ConnectionID())
			Expect(ok).To(BeFalse())
			Expect(m.GroupMembers("g")).To(BeEmpty())
			Expect(m.OnConnected(newTestingConnection())).To(MatchError(ErrManagerClosed))
			Expect(m.AddToGroup(ctx, conns[1].ConnectionID(), "g")).To(MatchError(ErrManagerClosed))
			Expect(m.SendAll(ctx, "late", nil, nil)).To(MatchError(ErrManagerClosed))
			Expect(m.Close()).To(Succeed())
		})
		It("should close when its context is canceled", func() {
			mctx, cancel := context.WithCancel(context.Background())
			mc, err := NewHubLifetimeManager(mctx, testLoggerOption())
			Expect(err).NotTo(HaveOccurred())
			cancel()
			Eventually(func() error {
				return mc.OnConnected(newTestingConnection())
			}, time.Second).Should(MatchError(ErrManagerClosed))
		})
	})

	Context("churn", func() {
		It("should keep all indexes consistent while broadcasts run concurrently with mutations", func() {
			d := m.(*defaultHubLifetimeManager)
			connectionID := func(rnd *rand.Rand) string { return fmt.Sprintf("churn%v", rnd.Intn(20)) }
			groupName := func(rnd *rand.Rand) string { return fmt.Sprintf("g%v", rnd.Intn(5)) }
			userID := func(rnd *rand.Rand) string { return fmt.Sprintf("u%v", rnd.Intn(4)) }
			deadline := time.Now().Add(time.Second)
			var wg sync.WaitGroup
			for w := 0; w < 8; w++ {
				wg.Add(1)
				go func(seed int64) {
					defer GinkgoRecover()
					defer wg.Done()
					rnd := rand.New(rand.NewSource(seed))
					for time.Now().Before(deadline) {
						switch rnd.Intn(10) {
						case 0, 1:
							_ = m.OnConnected(newTestingConnectionWithID(connectionID(rnd)))
						case 2:
							m.OnDisconnected(connectionID(rnd))
						case 3:
							_ = m.AddToGroup(ctx, connectionID(rnd), groupName(rnd))
						case 4:
							_ = m.RemoveFromGroup(ctx, connectionID(rnd), groupName(rnd))
						case 5:
							_ = m.RemoveGroup(ctx, groupName(rnd))
						case 6:
							Expect(m.SendGroups(ctx, []string{groupName(rnd), groupName(rnd)}, "churn", nil, nil)).To(Succeed())
						case 7:
							_ = m.AssociateUser(ctx, connectionID(rnd), userID(rnd))
						case 8:
							Expect(m.SendUsers(ctx, []string{userID(rnd), userID(rnd)}, "churn", nil)).To(Succeed())
						case 9:
							m.Abort(connectionID(rnd))
						}
					}
				}(int64(w))
			}
			wg.Wait()

			for _, group := range d.groups.keys() {
				for _, member := range d.groups.members(group) {
					entry, ok := d.registry.lookup(member)
					Expect(ok).To(BeTrue(), "group %v references unregistered %v", group, member)
					entry.mx.Lock()
					_, inReverse := entry.groups[group]
					entry.mx.Unlock()
					Expect(inReverse).To(BeTrue())
				}
			}
			for _, user := range d.users.keys() {
				for _, member := range d.users.members(user) {
					entry, ok := d.registry.lookup(member)
					Expect(ok).To(BeTrue(), "user %v references unregistered %v", user, member)
					entry.mx.Lock()
					associated := entry.userID
					entry.mx.Unlock()
					Expect(associated).To(Equal(user))
				}
			}
			d.registry.each(func(connectionID string, entry *connectionEntry) bool {
				entry.mx.Lock()
				defer entry.mx.Unlock()
				for group := range entry.groups {
					Expect(d.groups.contains(group, connectionID)).To(BeTrue())
				}
				if entry.userID != "" {
					Expect(d.users.contains(entry.userID, connectionID)).To(BeTrue())
				}
				return true
			})

			Expect(m.Close()).To(Succeed())
			Expect(d.registry.len()).To(BeZero())
			Expect(d.groups.len()).To(BeZero())
			Expect(d.users.len()).To(BeZero())
		})
	})

	Context("options", func() {
		It("should reject invalid options", func() {
			_, err := NewHubLifetimeManager(ctx, OutboundBufferCapacity(0))
			Expect(err).To(HaveOccurred())
			_, err = NewHubLifetimeManager(ctx, SendTimeout(0))
			Expect(err).To(HaveOccurred())
			_, err = NewHubLifetimeManager(ctx, DefaultProtocol(nil))
			Expect(err).To(HaveOccurred())
			_, err = NewHubLifetimeManager(ctx, SlowConsumer(SlowConsumerPolicy(7)))
			Expect(err).To(HaveOccurred())
			_, err = NewHubLifetimeManager(ctx, HubName(""))
			Expect(err).To(HaveOccurred())
		})
	})
})
