package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()

	s := NewServer(&Config{Port: 0})
	if err := s.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func dialTestServer(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws", s.GetAddr()), nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	return msg
}

func TestClientReceivesWelcome(t *testing.T) {
	s := startTestServer(t)
	conn := dialTestServer(t, s)

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeQueueStats {
		t.Errorf("welcome type = %q, want %q", msg.Type, MessageTypeQueueStats)
	}
}

func TestBroadcastReachesClients(t *testing.T) {
	s := startTestServer(t)
	conn := dialTestServer(t, s)
	readMessage(t, conn) // drain welcome

	s.BroadcastSyncComplete(SyncCompleteData{Synced: 4, Failed: 1, Trigger: "manual"})

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeSyncComplete {
		t.Fatalf("type = %q, want %q", msg.Type, MessageTypeSyncComplete)
	}
	var data SyncCompleteData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
	if data.Synced != 4 || data.Failed != 1 || data.Trigger != "manual" {
		t.Errorf("data = %+v", data)
	}
}

func TestConnectivityBroadcast(t *testing.T) {
	s := startTestServer(t)
	conn := dialTestServer(t, s)
	readMessage(t, conn) // drain welcome

	s.BroadcastConnectivity(true)

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeConnectivity {
		t.Fatalf("type = %q, want %q", msg.Type, MessageTypeConnectivity)
	}
	var data ConnectivityData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("failed to decode data: %v", err)
	}
	if !data.Online {
		t.Error("online flag lost")
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := startTestServer(t)
	dialTestServer(t, s)

	// The client registers asynchronously after the upgrade.
	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/health", s.GetAddr()))
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode health body: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if body.Clients != 1 {
		t.Errorf("clients = %d, want 1", body.Clients)
	}
}
