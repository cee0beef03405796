package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is handled at the HTTP layer; the socket itself trusts
		// whatever already passed that check.
		return true
	},
}

// clientMessage is a frame sent by a socket: {action, channel, auth?}.
type clientMessage struct {
	Action  string      `json:"action"`
	Channel string      `json:"channel"`
	Auth    *Credential `json:"auth,omitempty"`
}

// serverMessage is a frame sent to a socket:
// {event, channel?, data?, timestamp}.
type serverMessage struct {
	Event     string      `json:"event"`
	Channel   string      `json:"channel,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Client is one subscribed WebSocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string
	ip   string
	log  *zap.Logger

	subsMu        sync.RWMutex
	subscriptions map[string]bool
	wallet        string // bound once a user:<wallet> subscribe succeeds
}

// IsSubscribed reports whether the client currently has channel open.
func (c *Client) IsSubscribed(channel string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subscriptions[channel]
}

func (c *Client) subscriptionCount() int {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return len(c.subscriptions)
}

// Subscribe opens channel for this client. Private user:<wallet>
// channels require cred to authenticate the wallet the first time, and
// every subsequent private subscription must name the same wallet this
// socket already bound to — cross-wallet subscriptions are refused.
func (c *Client) Subscribe(channel string, cred *Credential) error {
	if wallet, private := walletOf(channel); private {
		c.subsMu.Lock()
		bound := c.wallet
		c.subsMu.Unlock()

		if bound != "" && bound != wallet {
			return ErrUnauthorized
		}
		if bound == "" {
			if cred == nil || !c.hub.issuer.Verify(wallet, *cred, time.Now()) {
				return ErrUnauthorized
			}
		}
	}

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if c.subscriptions[channel] {
		return nil
	}
	if len(c.subscriptions) >= c.hub.limits.MaxSubscriptionsPerConn {
		return ErrTooManySubscriptions
	}
	c.subscriptions[channel] = true
	if wallet, private := walletOf(channel); private {
		c.wallet = wallet
	}
	return nil
}

// Unsubscribe closes channel for this client, if open.
func (c *Client) Unsubscribe(channel string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	delete(c.subscriptions, channel)
}

func (c *Client) sendFrame(m serverMessage) {
	m.Timestamp = time.Now().UnixMilli()
	b, err := json.Marshal(m)
	if err != nil {
		c.log.Error("marshal server frame failed", zap.Error(err))
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

// readPump drains client frames until the connection closes.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("read error", zap.Error(err))
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendFrame(serverMessage{Event: "error", Data: "invalid frame"})
			continue
		}

		switch msg.Action {
		case "subscribe":
			if err := c.Subscribe(msg.Channel, msg.Auth); err != nil {
				c.sendFrame(serverMessage{Event: "error", Channel: msg.Channel, Data: err.Error()})
				continue
			}
			c.sendFrame(serverMessage{Event: "subscribed", Channel: msg.Channel})

		case "unsubscribe":
			c.Unsubscribe(msg.Channel)
			c.sendFrame(serverMessage{Event: "unsubscribed", Channel: msg.Channel})

		case "ping":
			c.sendFrame(serverMessage{Event: "pong"})

		default:
			c.sendFrame(serverMessage{Event: "error", Data: "unknown action"})
		}
	}
}

// writePump delivers queued frames and keepalive pings to the socket.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades r and registers the resulting socket with hub,
// closing it immediately with an explanatory frame if hub is already at
// a connection limit.
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	if err := hub.admit(ip); err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	client := &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, 256),
		id:            conn.RemoteAddr().String(),
		ip:            ip,
		log:           hub.log,
		subscriptions: make(map[string]bool),
	}

	hub.register <- client
	client.sendFrame(serverMessage{Event: "connected"})

	go client.writePump()
	go client.readPump()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
