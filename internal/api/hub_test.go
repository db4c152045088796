package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/chambercam/internal/chamber"
	"github.com/banshee-data/chambercam/internal/monitoring"
)

func TestHub_BroadcastReachesClient(t *testing.T) {
	monitoring.SetLogger(func(string, ...interface{}) {})
	defer monitoring.SetLogger(nil)

	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	// Registration runs just after the upgrade handshake completes.
	deadline := time.Now().Add(5 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("client count %d, want 1", hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Broadcast(chamber.Result{
		Seq:       7,
		Score:     1500,
		Threshold: 1000,
		Candidate: true,
		Confirmed: true,
		GateState: chamber.GateOpen,
	})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read broadcast: %v", err)
	}
	var msg ResultMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	if msg.Type != "event" || msg.Seq != 7 || msg.Score != 1500 {
		t.Fatalf("message %+v", msg)
	}
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewHub()
	// Must not panic or block.
	hub.Broadcast(chamber.Result{Seq: 1})
	if hub.ClientCount() != 0 {
		t.Fatalf("client count %d, want 0", hub.ClientCount())
	}
}
