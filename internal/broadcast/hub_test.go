package broadcast

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dyike/CrewGo/consts"
	"github.com/dyike/CrewGo/models"
)

func TestHubFansOutEvents(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitForClients(t, hub, 1)

	hub.Publish(models.ProgressEvent{
		Type:      consts.EventSessionStart,
		SessionID: "crew_abc123def456",
		At:        time.Now().UTC(),
	})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got models.ProgressEvent
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if got.Type != consts.EventSessionStart {
		t.Fatalf("event type = %s, want %s", got.Type, consts.EventSessionStart)
	}
	if got.SessionID != "crew_abc123def456" {
		t.Fatalf("session id = %s", got.SessionID)
	}
}

func TestHubDropsDisconnectedClient(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)

	// Publishing with no observers must not block or panic.
	hub.Publish(models.ProgressEvent{Type: consts.EventSessionComplete})
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client count never reached %d, at %d", want, hub.ClientCount())
}
