package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callcenter/internal/handlers"
	"callcenter/internal/models"
	"callcenter/internal/queue"
	"callcenter/internal/storage"
	"callcenter/internal/ws"
)

// AuthMiddlewareTest trusts X-Test-UserID and X-Test-Role.
func AuthMiddlewareTest() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Request.Header.Get("X-Test-UserID"))
		if err != nil {
			id = 1
		}
		role := c.Request.Header.Get("X-Test-Role")
		if role == "" {
			role = models.RoleCustomer
		}
		c.Set("userID", uint(id))
		c.Set("role", role)
		c.Next()
	}
}

type testEnv struct {
	ts    *httptest.Server
	store *storage.MemoryStore
	svc   *queue.Service
	hub   *ws.Hub
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())

	store := storage.NewMemoryStore()
	hub := ws.NewHub(zerolog.Nop())
	go hub.Run(ctx)
	svc := queue.NewService(store, hub, queue.Options{})
	go svc.Outbox().Run(ctx)

	r := gin.New()
	handlers.RegisterRoutes(r, handlers.New(svc, zerolog.Nop()), AuthMiddlewareTest(), hub.ServeWS)
	ts := httptest.NewServer(r)
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return &testEnv{ts: ts, store: store, svc: svc, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, user models.User, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-UserID", fmt.Sprintf("%d", user.ID))
	req.Header.Set("X-Test-Role", user.Role)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var out map[string]interface{}
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res, out
}

func (e *testEnv) dial(t *testing.T, user models.User) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("X-Test-UserID", fmt.Sprintf("%d", user.ID))
	conn, _, err := websocket.DefaultDialer.Dial("ws"+e.ts.URL[4:]+"/api/queue/ws", header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return e.hub.Connected(user.ID) }, time.Second, 5*time.Millisecond)
	return conn
}

// waitFor reads frames until one of eventType arrives.
func waitFor(t *testing.T, conn *websocket.Conn, eventType string) ws.WSMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", eventType)
		var msg ws.WSMessage
		require.NoError(t, json.Unmarshal(raw, &msg))
		if msg.EventType == eventType {
			return msg
		}
	}
}

func TestQueueFlow(t *testing.T) {
	env := setupTestServer(t)

	ivan := env.store.AddUser(models.User{Name: "Ivan", Surname: "Ivanov", Email: "ivan@example.com", Role: models.RoleCustomer})
	petr := env.store.AddUser(models.User{Name: "Petr", Surname: "Petrov", Email: "petr@example.com", Role: models.RoleCustomer})
	rep := env.store.AddUser(models.User{Name: "Rep", Surname: "One", Email: "rep@example.com", Role: models.RoleRepresentative})

	ivanWS := env.dial(t, ivan)
	repWS := env.dial(t, rep)

	res, body := env.do(t, http.MethodPost, "/api/queue/join", ivan, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	entry := body["entry"].(map[string]interface{})
	assert.EqualValues(t, 1, entry["position"])
	assert.EqualValues(t, 0, body["estimated_wait_time"])

	msg := waitFor(t, ivanWS, queue.EventPositionUpdate)
	assert.EqualValues(t, 1, msg.Data.(map[string]interface{})["position"])

	res, body = env.do(t, http.MethodPost, "/api/queue/join", ivan, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "ALREADY_IN_QUEUE", body["code"])
	assert.NotNil(t, body["entry"])

	res, _ = env.do(t, http.MethodPost, "/api/queue/join", petr, map[string]interface{}{
		"is_callback":    true,
		"callback_phone": "+992000000000",
	})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, body = env.do(t, http.MethodGet, "/api/queue/position", petr, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 2, body["position"])

	res, body = env.do(t, http.MethodGet, "/api/queue/wait-time", petr, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 5, body["estimated_wait_time"])

	res, _ = env.do(t, http.MethodGet, "/api/queue/live", ivan, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	res, body = env.do(t, http.MethodGet, "/api/queue/live", rep, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, body["waiting"], 2)

	res, _ = env.do(t, http.MethodPut, fmt.Sprintf("/api/agents/%d/availability", rep.ID), rep, map[string]bool{"is_available": true})
	require.Equal(t, http.StatusOK, res.StatusCode)

	_, err := env.svc.Sweep(context.Background())
	require.NoError(t, err)

	turn := waitFor(t, ivanWS, queue.EventYourTurn)
	assert.Equal(t, ivan.ID, turn.UserID)
	assigned := waitFor(t, repWS, queue.EventCallAssigned)
	call := assigned.Data.(map[string]interface{})["call"].(map[string]interface{})
	callID := uint(call["call_id"].(float64))

	res, body = env.do(t, http.MethodGet, "/api/queue/position", petr, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 1, body["position"])

	res, body = env.do(t, http.MethodGet, "/api/calls/active", ivan, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, callID, body["id"])

	res, body = env.do(t, http.MethodPost, "/api/queue/leave", ivan, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "ALREADY_CONNECTED", body["code"])
	res, body = env.do(t, http.MethodGet, "/api/calls/active", ivan, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "active", body["status"])

	endPath := fmt.Sprintf("/api/calls/%d/end", callID)
	res, _ = env.do(t, http.MethodPost, endPath, ivan, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, body = env.do(t, http.MethodPost, endPath, rep, map[string]string{"notes": "billing question"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "completed", body["status"])
	waitFor(t, ivanWS, queue.EventCallEnded)

	res, body = env.do(t, http.MethodPost, endPath, rep, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "CALL_NOT_ACTIVE", body["code"])

	res, _ = env.do(t, http.MethodPost, "/api/queue/leave", petr, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res, body = env.do(t, http.MethodPost, "/api/queue/leave", petr, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "NOT_IN_QUEUE", body["code"])

	res, body = env.do(t, http.MethodGet, "/api/queue/wait-time", petr, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "NOT_IN_QUEUE", body["code"])
}

func TestAgentEndpoints(t *testing.T) {
	env := setupTestServer(t)
	admin := env.store.AddUser(models.User{Name: "Admin", Email: "admin@example.com", Role: models.RoleAdmin})
	rep := env.store.AddUser(models.User{Name: "Rep", Email: "rep@example.com", Role: models.RoleRepresentative})
	other := env.store.AddUser(models.User{Name: "Other", Email: "other@example.com", Role: models.RoleRepresentative})
	customer := env.store.AddUser(models.User{Name: "Cust", Email: "cust@example.com"})

	res, _ := env.do(t, http.MethodGet, "/api/agents", rep, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	path := fmt.Sprintf("/api/agents/%d/availability", rep.ID)
	res, _ = env.do(t, http.MethodPut, path, other, map[string]bool{"is_available": true})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, body := env.do(t, http.MethodPut, path, admin, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	res, body = env.do(t, http.MethodPut, path, admin, map[string]bool{"is_available": true})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, true, body["is_available"])

	res, body = env.do(t, http.MethodPut, fmt.Sprintf("/api/agents/%d/availability", customer.ID), admin, map[string]bool{"is_available": true})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "NOT_REPRESENTATIVE", body["code"])

	res, body = env.do(t, http.MethodPut, "/api/agents/999/availability", admin, map[string]bool{"is_available": true})
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "AGENT_NOT_FOUND", body["code"])

	res, body = env.do(t, http.MethodPut, "/api/agents/abc/availability", admin, map[string]bool{"is_available": true})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "INVALID_AGENT_ID", body["code"])

	req, err := http.NewRequest(http.MethodGet, env.ts.URL+"/api/agents", nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-UserID", fmt.Sprintf("%d", admin.ID))
	req.Header.Set("X-Test-Role", models.RoleAdmin)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	require.Equal(t, http.StatusOK, raw.StatusCode)
	var agents []map[string]interface{}
	require.NoError(t, json.NewDecoder(raw.Body).Decode(&agents))
	assert.Len(t, agents, 2)

	res, body = env.do(t, http.MethodGet, "/api/calls/active", rep, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "NO_ACTIVE_CALL", body["code"])

	res, _ = env.do(t, http.MethodGet, "/health", customer, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

// list performs a GET and decodes a JSON array body.
func (e *testEnv) list(t *testing.T, path string, user models.User) (int, []map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.ts.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("X-Test-UserID", fmt.Sprintf("%d", user.ID))
	req.Header.Set("X-Test-Role", user.Role)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	var out []map[string]interface{}
	if res.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	}
	return res.StatusCode, out
}

func TestCallEndpoints(t *testing.T) {
	env := setupTestServer(t)
	admin := env.store.AddUser(models.User{Name: "Admin", Email: "admin@example.com", Role: models.RoleAdmin})
	rep := env.store.AddUser(models.User{Name: "Rep", Email: "rep@example.com", Role: models.RoleRepresentative, IsAvailable: true})
	customer := env.store.AddUser(models.User{Name: "Cust", Email: "cust@example.com", Role: models.RoleCustomer})

	res, _ := env.do(t, http.MethodPost, "/api/queue/join", customer, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	result, err := env.svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Pairings, 1)
	callID := result.Pairings[0].Call.ID

	status, calls := env.list(t, "/api/calls?status=active", admin)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, calls, 1)
	assert.EqualValues(t, callID, calls[0]["id"])

	status, _ = env.list(t, "/api/calls?status=active", rep)
	assert.Equal(t, http.StatusForbidden, status)
	res, body := env.do(t, http.MethodGet, "/api/calls?status=lost", admin, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "INVALID_STATUS", body["code"])

	missedPath := fmt.Sprintf("/api/calls/%d/missed", callID)
	res, _ = env.do(t, http.MethodPost, missedPath, customer, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	res, body = env.do(t, http.MethodPost, missedPath, rep, map[string]string{"notes": "no answer"})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "missed", body["status"])
	res, body = env.do(t, http.MethodPost, missedPath, rep, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "CALL_NOT_ACTIVE", body["code"])

	status, calls = env.list(t, "/api/calls?status=active", admin)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, calls)

	status, calls = env.list(t, "/api/calls/history", customer)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, calls, 1)
	assert.Equal(t, "missed", calls[0]["status"])
	assert.Equal(t, "no answer", calls[0]["notes"])

	status, _ = env.list(t, fmt.Sprintf("/api/calls/history?user_id=%d", rep.ID), customer)
	assert.Equal(t, http.StatusForbidden, status)
	status, calls = env.list(t, fmt.Sprintf("/api/calls/history?user_id=%d", rep.ID), admin)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, calls, 1)

	status, calls = env.list(t, "/api/calls/history", admin)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, calls)
}
