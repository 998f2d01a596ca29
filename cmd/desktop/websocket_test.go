package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(hub.handleWS))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("bad envelope: %v", err)
	}
	return envelope
}

func TestHubBroadcastsToConnectedShell(t *testing.T) {
	hub := NewHub()
	conn := dialHub(t, hub)

	// Registration races the broadcast; give the hub a beat.
	time.Sleep(50 * time.Millisecond)

	hub.Broadcast(EventRecordChanged, map[string]interface{}{
		"table": "memories",
		"op":    "put",
		"id":    "m1",
	})

	envelope := readEnvelope(t, conn)
	if envelope.Type != EventRecordChanged {
		t.Errorf("type = %q, want %q", envelope.Type, EventRecordChanged)
	}
	if envelope.Data["table"] != "memories" || envelope.Data["id"] != "m1" {
		t.Errorf("data = %v", envelope.Data)
	}
	if envelope.Timestamp == 0 {
		t.Error("timestamp not set")
	}
}

func TestHubBroadcastsToAllShells(t *testing.T) {
	hub := NewHub()
	first := dialHub(t, hub)
	second := dialHub(t, hub)
	time.Sleep(50 * time.Millisecond)

	hub.Broadcast("sync.completed", map[string]interface{}{"sent": float64(3)})

	for i, conn := range []*websocket.Conn{first, second} {
		envelope := readEnvelope(t, conn)
		if envelope.Type != "sync.completed" {
			t.Errorf("shell %d got type %q", i, envelope.Type)
		}
	}
}

func TestBroadcastWithoutClientsDoesNotBlock(t *testing.T) {
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			hub.Broadcast("sync.queue_count", map[string]interface{}{"count": i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked with no clients connected")
	}
}
