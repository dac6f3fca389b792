// Package bridge exposes a card session over WebSocket.
//
// Clients receive a "presence" message for every card presence notification and may
// send requests of type "info", "connect", "transmit", "readFile" and "logs". Every
// request is answered with a message of the same type and id; failures are reported
// in the error field.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gregLibert/smart-card-reader/internal/logging"
	"github.com/gregLibert/smart-card-reader/internal/syncutil"
	"github.com/gregLibert/smart-card-reader/pkg/reader"
	"github.com/gregLibert/smart-card-reader/pkg/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// Session is the part of *session.Session the bridge uses.
type Session interface {
	Info() (reader.Info, error)
	ConnectToCard(ctx context.Context, slot int) ([]byte, error)
	Transmit(ctx context.Context, slot int, cmd []byte) ([]byte, error)
	ReadFile(ctx context.Context, slot int, fid uint16) ([]byte, error)
	Subscribe(fn func(session.PresenceEvent)) session.Subscription
	Unsubscribe(sub session.Subscription)
}

// Message is the envelope of every frame exchanged with clients.
type Message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	// Local agent: any page on the machine may connect.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub tracks connected clients and fans presence events out to them.
type Hub struct {
	session Session
	logger  *slog.Logger
	logs    *logging.Ring

	mu      syncutil.RWMutex
	clients map[*client]struct{}

	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger used by the hub.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithLogs serves the records kept by ring to "logs" requests.
func WithLogs(ring *logging.Ring) Option {
	return func(h *Hub) { h.logs = ring }
}

// New creates a hub serving s. Run must be called for clients to be served.
func New(s Session, opts ...Option) *Hub {
	h := &Hub{
		session:    s,
		logger:     slog.Default(),
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(slog.String("component", "bridge"))
	return h
}

// Run subscribes to presence events and dispatches hub traffic until ctx is done.
// It must be called at most once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	sub := h.session.Subscribe(func(evt session.PresenceEvent) {
		msg, err := encode(Message{Type: "presence"}, presenceOf(evt))
		if err != nil {
			h.logger.Error("encode presence", slog.Any("err", err))
			return
		}
		select {
		case h.broadcast <- msg:
		case <-ctx.Done():
		}
	})
	defer h.session.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.logger.Warn("dropping slow client", slog.String("remote", c.remote))
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade", slog.String("remote", r.RemoteAddr), slog.Any("err", err))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		remote: r.RemoteAddr,
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	h.logger.Info("client connected", slog.String("remote", c.remote))

	go c.writePump()
	c.readPump(r.Context())
}

func encode(msg Message, payload any) ([]byte, error) {
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = raw
	}
	return json.Marshal(msg)
}
