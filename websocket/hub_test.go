package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abhinavsb985/Smart-Traffic-Control/models"
)

func startHubServer(t *testing.T, hub *Hub) *httptest.Server {
	upgrader := gorilla.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn)
		client.Send([]byte(`{"type":"hello"}`))
		if !hub.Add(client) {
			conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(server.Close)
	return server
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, _ := hub.GetStats(); got == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d clients", n)
}

func TestHubBroadcastReports(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	server := startHubServer(t, hub)
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, hello, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"hello"}`, string(hello))

	waitForClients(t, hub, 1)
	hub.BroadcastReports([]models.Report{{ID: "r-1", Description: "Pothole"}})

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type string                 `json:"type"`
		Data models.ReportsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, MessageTypeReports, msg.Type)
	assert.Equal(t, 1, msg.Data.Count)
	assert.Equal(t, "r-1", msg.Data.Reports[0].ID)

	_, last := hub.GetStats()
	assert.False(t, last.IsZero())
}

func TestHubListenerLeavesOnClose(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	server := startHubServer(t, hub)
	conn, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)

	waitForClients(t, hub, 1)
	conn.Close()
	waitForClients(t, hub, 0)
}

func TestHubAddAfterStop(t *testing.T) {
	hub := NewHub()
	stopped := make(chan struct{})
	go func() {
		hub.Run()
		close(stopped)
	}()
	hub.Stop()
	<-stopped

	assert.False(t, hub.Add(&Client{hub: hub, send: make(chan []byte, 1)}))
}

func TestHubDropsSlowListener(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	slow := &Client{hub: hub, send: make(chan []byte)}
	require.True(t, hub.Add(slow))
	waitForClients(t, hub, 1)

	hub.BroadcastReports(nil)
	waitForClients(t, hub, 0)

	_, open := <-slow.send
	assert.False(t, open, "dropped listener's queue is closed")
}
