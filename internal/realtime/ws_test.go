package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUpdater struct {
	calls chan domain.Actor
}

func (u *stubUpdater) UpdateStatus(_ context.Context, id int64, to domain.BookingStatus, actor domain.Actor) (*domain.Booking, error) {
	u.calls <- actor
	if to == domain.BookingPending {
		return nil, errors.New("cannot move booking from confirmed to pending")
	}
	return &domain.Booking{ID: id, Status: to}, nil
}

type wsFixture struct {
	server  *httptest.Server
	router  *Router
	tokens  *jwt.Service
	updater *stubUpdater
}

func setupWS(t *testing.T) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := jwt.New("ws-secret", time.Hour)
	router := NewRouter(NewRegistry(), nil)
	updater := &stubUpdater{calls: make(chan domain.Actor, 8)}

	engine := gin.New()
	engine.GET("/ws", NewWSHandler(router, tokens, updater, nil).HandleWebSocket)
	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)

	return &wsFixture{server: server, router: router, tokens: tokens, updater: updater}
}

func (f *wsFixture) dial(t *testing.T, userID int64, role domain.UserRole) *websocket.Conn {
	t.Helper()
	token, err := f.tokens.GenerateToken(userID, string(role))
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	hello := readJSON(t, conn)
	require.Equal(t, "connected", hello["type"])
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 10*time.Millisecond)
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	f := setupWS(t)

	resp, err := http.Get(f.server.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	f := setupWS(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketReceivesDispatchedEvents(t *testing.T) {
	f := setupWS(t)
	conn := f.dial(t, 1, domain.RoleCustomer)

	assert.True(t, f.router.Dispatch(1, Notification{Kind: "chat", Title: "new message"}))

	msg := readJSON(t, conn)
	assert.Equal(t, "notification", msg["type"])
	payload, ok := msg["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "new message", payload["title"])
}

func TestWebSocketPingAndErrors(t *testing.T) {
	f := setupWS(t)
	conn := f.dial(t, 1, domain.RoleCustomer)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	assert.Equal(t, "pong", readJSON(t, conn)["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "INVALID_JSON", readJSON(t, conn)["code"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "dance"}))
	assert.Equal(t, "UNKNOWN_TYPE", readJSON(t, conn)["code"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "location", "booking_id": 7, "lat": 1, "lng": 1}))
	assert.Equal(t, "NO_ACTIVE_JOB", readJSON(t, conn)["code"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "status"}))
	assert.Equal(t, "INVALID_STATUS", readJSON(t, conn)["code"])
}

func TestWebSocketLocationRelay(t *testing.T) {
	f := setupWS(t)
	customer := f.dial(t, 1, domain.RoleCustomer)
	worker := f.dial(t, 2, domain.RoleProvider)

	f.router.Dispatch(1, StatusChanged{BookingID: 100, CustomerID: 1, ProviderID: 2, To: domain.BookingInProgress})
	assert.Equal(t, "status_changed", readJSON(t, customer)["type"])

	require.NoError(t, worker.WriteJSON(map[string]any{"type": "location", "booking_id": 100, "lat": 43.25, "lng": 76.95}))

	msg := readJSON(t, customer)
	assert.Equal(t, "location_update", msg["type"])
	payload := msg["payload"].(map[string]any)
	assert.Equal(t, 43.25, payload["lat"])
}

func TestWebSocketStatusCommand(t *testing.T) {
	f := setupWS(t)
	conn := f.dial(t, 2, domain.RoleProvider)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "status", "booking_id": 100, "status": "completed"}))
	ack := readJSON(t, conn)
	assert.Equal(t, "status_ack", ack["type"])
	assert.EqualValues(t, 100, ack["booking_id"])

	actor := <-f.updater.calls
	assert.Equal(t, domain.Actor{ID: 2, Role: domain.RoleProvider}, actor)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "status", "booking_id": 100, "status": "pending"}))
	rejected := readJSON(t, conn)
	assert.Equal(t, "error", rejected["type"])
	assert.Equal(t, "STATUS_REJECTED", rejected["code"])
}

func TestWebSocketDisconnectMarksJob(t *testing.T) {
	f := setupWS(t)
	customer := f.dial(t, 1, domain.RoleCustomer)
	worker := f.dial(t, 2, domain.RoleProvider)

	f.router.Dispatch(1, StatusChanged{BookingID: 100, CustomerID: 1, ProviderID: 2, To: domain.BookingInProgress})
	readJSON(t, customer)

	require.NoError(t, worker.Close())

	msg := readJSON(t, customer)
	assert.Equal(t, "worker_disconnected", msg["type"])
	waitFor(t, func() bool {
		j, ok := f.router.Job(100)
		return ok && j.State == JobWorkerDisconnected
	})
}

func TestWebSocketReconnectReplacesHandle(t *testing.T) {
	f := setupWS(t)
	token, err := f.tokens.GenerateToken(1, string(domain.RoleCustomer))
	require.NoError(t, err)
	connID := "0b8f6a8e-6b5f-4b0a-9a53-3f3b0f0d2c11"
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token + "&conn_id=" + connID

	first, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer first.Close()
	hello := readJSON(t, first)
	assert.Equal(t, connID, hello["message"])

	second, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer second.Close()
	readJSON(t, second)

	waitFor(t, func() bool { return len(f.router.presence.Connections(1)) == 1 })

	assert.True(t, f.router.Dispatch(1, Notification{Kind: "chat", Title: "only once"}))
	msg := readJSON(t, second)
	assert.Equal(t, "notification", msg["type"])

	// The replaced socket is closed by the server.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = first.ReadMessage()
	assert.Error(t, err)
}

func TestWebSocketIgnoresAnotherUsersConnID(t *testing.T) {
	f := setupWS(t)
	connID := "5d7c3f0e-2a44-4c0f-8f7e-1a9b6c2d3e4f"
	dialAs := func(userID int64) (*websocket.Conn, map[string]any) {
		token, err := f.tokens.GenerateToken(userID, string(domain.RoleCustomer))
		require.NoError(t, err)
		url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?token=" + token + "&conn_id=" + connID
		conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		_ = resp.Body.Close()
		t.Cleanup(func() { _ = conn.Close() })
		return conn, readJSON(t, conn)
	}

	victim, hello := dialAs(1)
	require.Equal(t, connID, hello["message"])

	intruder, hello := dialAs(2)
	assert.NotEqual(t, connID, hello["message"], "a fresh id is issued")

	waitFor(t, func() bool { return len(f.router.presence.Connections(2)) == 1 })
	require.Len(t, f.router.presence.Connections(1), 1)

	assert.True(t, f.router.Dispatch(1, Notification{Kind: "chat", Title: "still here"}))
	msg := readJSON(t, victim)
	assert.Equal(t, "notification", msg["type"])

	assert.True(t, f.router.Dispatch(2, Notification{Kind: "chat", Title: "hello"}))
	msg = readJSON(t, intruder)
	assert.Equal(t, "notification", msg["type"])
}
