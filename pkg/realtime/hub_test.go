package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHub(t *testing.T, limits Limits) (*Hub, *httptest.Server) {
	t.Helper()
	issuer := NewCredentialIssuer([]byte("test-secret"))
	hub := NewHub(issuer, limits, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hub, w, r)
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var first serverMessage
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, "connected", first.Event)
	return conn
}

func waitForConnections(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.Connections() >= n
	}, time.Second, time.Millisecond)
}

func TestSubscribePublicChannelReceivesBroadcast(t *testing.T) {
	hub, srv := newTestHub(t, Limits{})
	conn := dial(t, srv)
	defer conn.Close()
	waitForConnections(t, hub, 1)

	require.NoError(t, conn.WriteJSON(clientMessage{Action: "subscribe", Channel: "market:m1"}))

	var ack serverMessage
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "subscribed", ack.Event)
	require.Equal(t, "market:m1", ack.Channel)

	hub.Publish("market:m1", "orderbook", map[string]interface{}{"bids": []int{1, 2}})

	var msg serverMessage
	conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "orderbook", msg.Event)
	require.Equal(t, "market:m1", msg.Channel)
}

func TestPrivateChannelRequiresCredential(t *testing.T) {
	_, srv := newTestHub(t, Limits{})
	conn := dial(t, srv)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(clientMessage{Action: "subscribe", Channel: "user:wallet-1"}))

	var resp serverMessage
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "error", resp.Event)
}

func TestPrivateChannelWithValidCredentialSucceeds(t *testing.T) {
	issuer := NewCredentialIssuer([]byte("test-secret"))
	hub := NewHub(issuer, Limits{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hub, w, r)
	}))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	cred := issuer.Issue("wallet-1", time.Now())
	require.NoError(t, conn.WriteJSON(clientMessage{Action: "subscribe", Channel: "user:wallet-1", Auth: &cred}))

	var resp serverMessage
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "subscribed", resp.Event)
}

func TestCrossWalletSubscriptionRejected(t *testing.T) {
	issuer := NewCredentialIssuer([]byte("test-secret"))
	hub := NewHub(issuer, Limits{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hub, w, r)
	}))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	cred := issuer.Issue("wallet-1", time.Now())
	require.NoError(t, conn.WriteJSON(clientMessage{Action: "subscribe", Channel: "user:wallet-1", Auth: &cred}))
	var ok serverMessage
	require.NoError(t, conn.ReadJSON(&ok))
	require.Equal(t, "subscribed", ok.Event)

	otherCred := issuer.Issue("wallet-2", time.Now())
	require.NoError(t, conn.WriteJSON(clientMessage{Action: "subscribe", Channel: "user:wallet-2", Auth: &otherCred}))
	var rejected serverMessage
	require.NoError(t, conn.ReadJSON(&rejected))
	require.Equal(t, "error", rejected.Event)
}

func TestPerConnectionSubscriptionLimitEnforced(t *testing.T) {
	_, srv := newTestHub(t, Limits{MaxSubscriptionsPerConn: 1})
	conn := dial(t, srv)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(clientMessage{Action: "subscribe", Channel: "market:m1"}))
	var first serverMessage
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, "subscribed", first.Event)

	require.NoError(t, conn.WriteJSON(clientMessage{Action: "subscribe", Channel: "market:m2"}))
	var second serverMessage
	require.NoError(t, conn.ReadJSON(&second))
	require.Equal(t, "error", second.Event)
}

func TestPerIPConnectionLimitClosesOverflowSocket(t *testing.T) {
	_, srv := newTestHub(t, Limits{MaxPerIP: 1})

	first := dial(t, srv)
	defer first.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer second.Close()

	second.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err = second.ReadMessage()
	require.Error(t, err)
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok)
	require.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestPingRepliesWithPong(t *testing.T) {
	_, srv := newTestHub(t, Limits{})
	conn := dial(t, srv)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(clientMessage{Action: "ping"}))
	var resp serverMessage
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "pong", resp.Event)
}

func TestNotifyUserRoutesToPrivateChannel(t *testing.T) {
	issuer := NewCredentialIssuer([]byte("test-secret"))
	hub := NewHub(issuer, Limits{}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hub, w, r)
	}))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	cred := issuer.Issue("wallet-9", time.Now())
	require.NoError(t, conn.WriteJSON(clientMessage{Action: "subscribe", Channel: "user:wallet-9", Auth: &cred}))
	var ack serverMessage
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "subscribed", ack.Event)

	hub.NotifyUser("wallet-9", "notification", map[string]interface{}{"message": "order filled"})

	var msg serverMessage
	conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "notification", msg.Event)
	require.Equal(t, "user:wallet-9", msg.Channel)
}
