package remote

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/llehouerou/wavesbot/internal/playback"
)

const (
	writeTimeout   = 10 * time.Second
	outboxSize     = 64
	maxRequestSize = 64 << 10
)

// Server is an http.Handler upgrading requests to websocket connections
// that speak the remote-control protocol.
type Server struct {
	dispatcher *Dispatcher
	logger     *zap.Logger
	upgrader   websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
}

// NewServer creates a server dispatching through d.
func NewServer(d *Dispatcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		dispatcher: d,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served from a different origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxRequestSize)

	c := newClient(uuid.NewString(), conn, s.logger)
	s.track(c)
	defer s.untrack(c)
	defer c.close()

	c.logger.Info("remote client connected", zap.String("remote", r.RemoteAddr))
	go c.writeLoop()
	s.readLoop(r.Context(), c)
	c.logger.Info("remote client disconnected")
}

func (s *Server) readLoop(ctx context.Context, c *client) {
	for {
		var req Request
		if err := c.conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read failed", zap.Error(err))
			}
			return
		}
		resp := s.dispatcher.Dispatch(ctx, c, req)
		if !c.send(resp) {
			return
		}
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func (s *Server) track(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c
}

func (s *Server) untrack(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
}

// client is one websocket connection. Writes go through a single goroutine.
type client struct {
	id     string
	conn   *websocket.Conn
	logger *zap.Logger

	out       chan any
	done      chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	subs map[string]*playback.Subscription
}

func newClient(id string, conn *websocket.Conn, logger *zap.Logger) *client {
	return &client{
		id:     id,
		conn:   conn,
		logger: logger.With(zap.String("client", id)),
		out:    make(chan any, outboxSize),
		done:   make(chan struct{}),
		subs:   make(map[string]*playback.Subscription),
	}
}

// send queues a response, waiting for room in the outbox.
func (c *client) send(msg any) bool {
	select {
	case c.out <- msg:
		return true
	case <-c.done:
		return false
	}
}

// push queues a pushed message, dropping it when the client is too slow.
func (c *client) push(msg Push) {
	select {
	case c.out <- msg:
	case <-c.done:
	default:
		c.logger.Warn("outbox full, dropping push", zap.String("event", msg.Event))
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case msg := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Subscribe implements Subscriber.
func (c *client) Subscribe(s *playback.Session) error {
	tenant := s.TenantID()
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.subs[tenant]; ok {
		old.Unsubscribe()
	}
	c.subs[tenant] = s.Subscribe(playback.ObserverFunc(func(e playback.Event) {
		if msg, ok := pushFor(tenant, e); ok {
			c.push(msg)
		}
	}))
	return nil
}

// Unsubscribe implements Subscriber.
func (c *client) Unsubscribe(tenant string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[tenant]
	if !ok {
		return false
	}
	sub.Unsubscribe()
	delete(c.subs, tenant)
	return true
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		for tenant, sub := range c.subs {
			sub.Unsubscribe()
			delete(c.subs, tenant)
		}
		c.mu.Unlock()
		_ = c.conn.Close()
	})
}

var _ Subscriber = (*client)(nil)
