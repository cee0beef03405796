package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrTooManyConnections is returned by admit when the process-wide
// connection cap has been reached.
var ErrTooManyConnections = errors.New("realtime: too many connections")

// ErrTooManyConnectionsFromIP is returned by admit when a single
// remote address has exhausted its per-IP connection budget.
var ErrTooManyConnectionsFromIP = errors.New("realtime: too many connections from this address")

// ErrTooManySubscriptions is returned by Client.Subscribe once a socket
// has reached its per-connection subscription cap.
var ErrTooManySubscriptions = errors.New("realtime: too many subscriptions on this connection")

// ErrUnauthorized is returned when a subscribe frame for a user:<wallet>
// channel carries no credential, an invalid one, or one for a wallet
// other than the one already bound to the socket.
var ErrUnauthorized = errors.New("realtime: unauthorized")

// Limits bounds the fanout hub's resource usage per spec.md §4.8.
type Limits struct {
	MaxConnections          int // default 10000
	MaxPerIP                int // default 50
	MaxSubscriptionsPerConn int // default 20
}

func (l Limits) withDefaults() Limits {
	if l.MaxConnections == 0 {
		l.MaxConnections = 10_000
	}
	if l.MaxPerIP == 0 {
		l.MaxPerIP = 50
	}
	if l.MaxSubscriptionsPerConn == 0 {
		l.MaxSubscriptionsPerConn = 20
	}
	return l
}

type broadcastMsg struct {
	channel string
	event   string
	data    interface{}
}

// Hub maintains every active socket and fans internal events out to the
// sockets subscribed to the relevant channel, generalizing the
// teacher's single-channel Hub into the public market:<id> / private
// user:<wallet> namespace split.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	perIP   map[string]int

	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMsg

	limits Limits
	issuer *CredentialIssuer
	log    *zap.Logger
}

// NewHub wires a Hub. issuer verifies wallet-ownership credentials
// presented on user:<wallet> subscribe frames.
func NewHub(issuer *CredentialIssuer, limits Limits, log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		perIP:      make(map[string]int),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMsg, 1024),
		limits:     limits.withDefaults(),
		issuer:     issuer,
		log:        log,
	}
}

// Run drives the hub's main loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client connected", zap.String("client", c.id), zap.Int("total", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				h.perIP[c.ip]--
				if h.perIP[c.ip] <= 0 {
					delete(h.perIP, c.ip)
				}
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Info("client disconnected", zap.String("client", c.id), zap.Int("total", n))

		case m := <-h.broadcast:
			h.deliver(m)
		}
	}
}

func (h *Hub) deliver(m broadcastMsg) {
	frame, err := json.Marshal(serverMessage{
		Event:     m.event,
		Channel:   m.channel,
		Data:      m.data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		h.log.Error("marshal broadcast failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.IsSubscribed(m.channel) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			// Best-effort: a full buffer means the socket is stuck or
			// slow, and it gets unregistered the next time it hits a
			// send error on its own write pump.
		}
	}
}

// Publish fans event/data out to every socket subscribed to channel.
// Delivery is best-effort and never blocks the caller.
func (h *Hub) Publish(channel, event string, data interface{}) {
	select {
	case h.broadcast <- broadcastMsg{channel: channel, event: event, data: data}:
	default:
		h.log.Warn("broadcast queue full, dropping message", zap.String("channel", channel))
	}
}

// NotifyUser implements persistence.Notifier, routing a notification to
// a wallet's private channel.
func (h *Hub) NotifyUser(userID string, event string, payload map[string]interface{}) {
	h.Publish(UserChannel(userID), event, payload)
}

// admit reserves a connection slot for ip, or reports why it can't.
func (h *Hub) admit(ip string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) >= h.limits.MaxConnections {
		return ErrTooManyConnections
	}
	if h.perIP[ip] >= h.limits.MaxPerIP {
		return ErrTooManyConnectionsFromIP
	}
	h.perIP[ip]++
	return nil
}

// Connections reports the current live socket count, for metrics/tests.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
