package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/philippseith/hublifetime"
	"github.com/philippseith/hublifetime/chatsample/middleware"
)

type chat struct {
	hublifetime.Hub
}

func (c *chat) OnConnected(connectionID string) {
	_ = c.Clients().Caller().Send(context.Background(), "receive", "system", fmt.Sprintf("welcome %s", connectionID))
}

func (c *chat) OnDisconnected(connectionID string) {
	_ = c.Clients().Others().Send(context.Background(), "receive", "system", fmt.Sprintf("%s left", connectionID))
}

func (c *chat) Join(ctx context.Context, room string) error {
	if err := c.Groups().AddToGroup(ctx, c.ConnectionID(), room); err != nil {
		return err
	}
	return c.Clients().OthersInGroup(room).Send(ctx, "receive", "system", fmt.Sprintf("%s joined %s", c.ConnectionID(), room))
}

func (c *chat) Leave(ctx context.Context, room string) error {
	return c.Groups().RemoveFromGroup(ctx, c.ConnectionID(), room)
}

func (c *chat) Send(ctx context.Context, room string, message string) error {
	if room == "" {
		return c.Clients().All().Send(ctx, "receive", c.ConnectionID(), message)
	}
	return c.Clients().Group(room).Send(ctx, "receive", c.ConnectionID(), message)
}

func (c *chat) Whisper(ctx context.Context, user string, message string) error {
	return c.Clients().User(user).Send(ctx, "whisper", c.ConnectionID(), message)
}

// command is one client request, e.g. {"command":"send","room":"go","message":"hi"}
type command struct {
	Command string `json:"command"`
	Room    string `json:"room,omitempty"`
	User    string `json:"user,omitempty"`
	Message string `json:"message,omitempty"`
}

type messageConnection interface {
	hublifetime.Connection
	ReadMessage(ctx context.Context) ([]byte, error)
}

type chatServer struct {
	manager   hublifetime.HubLifetimeManager
	activator hublifetime.HubActivator
	logger    log.Logger
}

// serve registers conn, dispatches its commands until the connection ends and unregisters it
func (s *chatServer) serve(conn messageConnection) {
	ctx := conn.Context()
	if err := s.manager.OnConnected(conn); err != nil {
		_ = s.logger.Log("evt", "connect", "connection", conn.ConnectionID(), "error", err)
		return
	}
	hubContext := hublifetime.NewHubContext(s.manager, conn.ConnectionID())
	if err := s.useHub(ctx, hubContext, func(hub *chat) error {
		hub.OnConnected(conn.ConnectionID())
		return nil
	}); err != nil {
		_ = s.logger.Log("evt", "OnConnected", "connection", conn.ConnectionID(), "error", err)
	}
	for {
		data, err := conn.ReadMessage(ctx)
		if err != nil {
			break
		}
		var cmd command
		if err := json.Unmarshal(data, &cmd); err != nil {
			_ = s.logger.Log("evt", "command", "connection", conn.ConnectionID(), "error", err)
			continue
		}
		if err := s.dispatch(ctx, hubContext, cmd); err != nil {
			_ = s.logger.Log("evt", "command", "connection", conn.ConnectionID(), "command", cmd.Command, "error", err)
		}
	}
	s.manager.OnDisconnected(conn.ConnectionID())
	if err := s.useHub(context.Background(), hubContext, func(hub *chat) error {
		hub.OnDisconnected(conn.ConnectionID())
		return nil
	}); err != nil {
		_ = s.logger.Log("evt", "OnDisconnected", "connection", conn.ConnectionID(), "error", err)
	}
}

func (s *chatServer) dispatch(ctx context.Context, hubContext hublifetime.HubContext, cmd command) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	switch cmd.Command {
	case "login":
		return s.manager.AssociateUser(ctx, hubContext.ConnectionID(), cmd.User)
	case "join":
		return s.useHub(ctx, hubContext, func(hub *chat) error { return hub.Join(ctx, cmd.Room) })
	case "leave":
		return s.useHub(ctx, hubContext, func(hub *chat) error { return hub.Leave(ctx, cmd.Room) })
	case "send":
		return s.useHub(ctx, hubContext, func(hub *chat) error { return hub.Send(ctx, cmd.Room, cmd.Message) })
	case "whisper":
		return s.useHub(ctx, hubContext, func(hub *chat) error { return hub.Whisper(ctx, cmd.User, cmd.Message) })
	default:
		return fmt.Errorf("unknown command %q", cmd.Command)
	}
}

func (s *chatServer) useHub(ctx context.Context, hubContext hublifetime.HubContext, use func(hub *chat) error) error {
	return hublifetime.UseHub(ctx, s.activator, hubContext, func(hub hublifetime.HubInterface) error {
		return use(hub.(*chat))
	})
}

func (s *chatServer) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{CompressionMode: websocket.CompressionContextTakeover})
	if err != nil {
		// websocket.Accept has already written the error
		_ = s.logger.Log("evt", "accept", "error", err)
		return
	}
	conn := hublifetime.NewWebSocketConnection(r.Context(), "", ws, nil)
	conn.SetUserID(r.URL.Query().Get("user"))
	s.serve(conn)
	_ = conn.Close("bye")
}

func (s *chatServer) runTCP(ctx context.Context, address string) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		_ = s.logger.Log("evt", "listen", "error", err)
		return
	}
	_ = s.logger.Log("evt", "listen", "transport", "tcp", "address", listener.Addr())
	for {
		conn, err := listener.Accept()
		if err != nil {
			_ = s.logger.Log("evt", "accept", "error", err)
			return
		}
		go func() {
			nc := newNetConnection(ctx, conn, 5*time.Second)
			s.serve(nc)
			nc.Abort()
		}()
	}
}

func main() {
	logger := log.With(log.NewLogfmtLogger(os.Stderr), "ts", log.DefaultTimestampUTC)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	manager, err := hublifetime.NewHubLifetimeManager(ctx,
		hublifetime.HubName("chat"),
		hublifetime.Logger(logger, false),
		hublifetime.WithMetrics(registry))
	if err != nil {
		_ = logger.Log("evt", "create manager", "error", err)
		os.Exit(1)
	}
	activator, err := hublifetime.SimpleHubActivator(&chat{})
	if err != nil {
		_ = logger.Log("evt", "create activator", "error", err)
		os.Exit(1)
	}
	s := &chatServer{manager: manager, activator: activator, logger: logger}

	go s.runTCP(ctx, "127.0.0.1:8007")

	router := chi.NewRouter()
	router.Use(middleware.LogRequests(logger))
	router.Get("/chat", s.handleWebsocket)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	address := "localhost:8086"
	_ = logger.Log("evt", "listen", "transport", "websocket", "address", address)
	if err := http.ListenAndServe(address, router); err != nil && !errors.Is(err, http.ErrServerClosed) {
		_ = logger.Log("evt", "ListenAndServe", "error", err)
		os.Exit(1)
	}
}
