package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/ws/jobs/{job_id}", NewHandler(hub).ServeHTTP)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, jobID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/jobs/" + jobID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, jobID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !hub.HasClients(jobID) {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_BroadcastProgress(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub)
	conn := dial(t, srv, "job-1")
	waitForClients(t, hub, "job-1")

	hub.BroadcastProgress("job-1", NewProgressMessage("job-1", 50, 100))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var msg ProgressMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "progress" || msg.Frame != 50 || msg.Percent != 50 {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestHub_BroadcastIsScopedToJob(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub)
	other := dial(t, srv, "job-b")
	waitForClients(t, hub, "job-b")

	hub.BroadcastResult("job-a", NewResultMessage("job-a", "completed"))

	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Fatal("client for job-b received a job-a message")
	}
}

func TestHub_UnregisterOnDisconnect(t *testing.T) {
	hub := NewHub()
	srv := newTestServer(t, hub)
	conn := dial(t, srv, "job-1")
	waitForClients(t, hub, "job-1")

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.HasClients("job-1") {
		if time.Now().After(deadline) {
			t.Fatal("client never unregistered after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_RejectsMissingJobID(t *testing.T) {
	srv := newTestServer(t, NewHub())
	resp, err := http.Get(srv.URL + "/ws/jobs/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusSwitchingProtocols {
		t.Fatal("upgrade should not succeed without a job id")
	}
}

func TestProgressMessage_ZeroTotal(t *testing.T) {
	m := NewProgressMessage("j", 3, 0)
	if m.Percent != 0 {
		t.Fatalf("percent with zero total: %v", m.Percent)
	}
}
