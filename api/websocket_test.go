package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"warptrace/core"
)

func TestHub_StartStop(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar(), context.Background())
	require.NotNil(t, hub)

	go hub.Start()
	assert.Equal(t, 0, hub.ClientCount())

	hub.Stop()
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewHub(zap.NewNop().Sugar(), context.Background())
	go hub.Start()
	defer hub.Stop()

	err := hub.BroadcastMessage("status", StatusEvent{UploadID: "u-1", Status: core.UploadStatusProcessing, Progress: 10})
	assert.NoError(t, err)
}

func TestWebSocket_StatusStream(t *testing.T) {
	logger := zap.NewNop().Sugar()
	hub := NewHub(logger, context.Background())
	go hub.Start()
	t.Cleanup(hub.Stop)

	api := NewAPI(&mockAnalyzer{}, &mockHealthChecker{}, hub, newAuthConfig(t), logger)
	t.Cleanup(func() { _ = api.Stop(context.Background()) })

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	token, err := generateJWT("admin", api.config)
	require.NoError(t, err)

	// The browser WebSocket API cannot set headers, so the token rides in
	// the query string.
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.BroadcastStatus("u-1", core.UploadStatusProcessing, 30)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg WebSocketMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "status", msg.Type)
	assert.False(t, msg.Timestamp.IsZero())

	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "u-1", data["upload_id"])
	assert.Equal(t, "processing", data["status"])
	assert.Equal(t, float64(30), data["progress"])
}

func TestWebSocket_RequiresToken(t *testing.T) {
	logger := zap.NewNop().Sugar()
	hub := NewHub(logger, context.Background())
	go hub.Start()
	t.Cleanup(hub.Stop)

	api := NewAPI(&mockAnalyzer{}, &mockHealthChecker{}, hub, newAuthConfig(t), logger)
	t.Cleanup(func() { _ = api.Stop(context.Background()) })

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if conn != nil {
		conn.Close()
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, 401, resp.StatusCode)
}

func TestServeWs_NoHub(t *testing.T) {
	api := newTestAPI(t, &mockAnalyzer{}, &mockHealthChecker{})

	rr := doRequest(api, httptest.NewRequest("GET", "/api/ws", nil))

	assert.Equal(t, 503, rr.Code)
	assert.Equal(t, "status stream disabled", decodeBody(t, rr)["error"])
}
