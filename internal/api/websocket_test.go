package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_StreamsEvaluationEvents(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Close()

	s := newTestServer(t, func(cfg *RouterConfig) { cfg.Hub = hub })
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(srv.URL+"/api/v1/evaluate", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, EventEvaluation, ev.Type)
	assert.NotEmpty(t, ev.Data["runId"])
}

func TestHub_PublishOnNilHub(t *testing.T) {
	var hub *Hub
	assert.NotPanics(t, func() { hub.Publish(EventSweepFailed, "x") })
}

func TestHub_BroadcastDropsWhenFull(t *testing.T) {
	hub := NewHub(nil)
	for range cap(hub.broadcast) + 5 {
		hub.Broadcast([]byte("x"))
	}
	assert.Len(t, hub.broadcast, cap(hub.broadcast))
}

func TestHub_PublishAfterClose(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	hub.Close()

	assert.NotPanics(t, func() {
		hub.Publish(EventSweepComplete, "late")
		hub.Broadcast([]byte("late"))
		hub.Close()
	})
}
