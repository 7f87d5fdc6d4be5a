package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func TestHubSendsInitialStateOnConnect(t *testing.T) {
	hub := NewHub(func() any { return map[string]int{"activeAlarms": 3} }, zerolog.Nop())
	go hub.Run()
	defer close(hub.broadcast)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	var msg Message
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read initial state: %v", err)
	}
	if msg.Type != "initialState" {
		t.Fatalf("expected initialState, got %s", msg.Type)
	}
}

func TestHubBroadcastsToAllClients(t *testing.T) {
	hub := NewHub(func() any { return map[string]int{} }, zerolog.Nop())
	go hub.Run()
	defer close(hub.broadcast)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	var conns []*websocket.Conn
	for i := 0; i < 3; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("failed to connect client %d: %v", i, err)
		}
		defer conn.Close()
		conns = append(conns, conn)

		var msg Message
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("failed to read initial state for client %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() != 3 {
		t.Fatalf("expected 3 registered clients, got %d", hub.ClientCount())
	}

	hub.Broadcast("alarmRaised", map[string]string{"id": "a1"})

	for i, conn := range conns {
		var msg Message
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("client %d failed to read broadcast: %v", i, err)
		}
		if msg.Type != "alarmRaised" {
			t.Fatalf("client %d expected alarmRaised, got %s", i, msg.Type)
		}
	}
}
