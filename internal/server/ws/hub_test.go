package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

func startHub(t *testing.T, cfg Config) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Run(ctx) }()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubJSONBroadcast(t *testing.T) {
	hub, srv := startHub(t, Config{Mode: "Full"})
	conn := dial(t, srv, "")
	waitClients(t, hub, 1)

	var status Envelope
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status.Type != TopicStatus {
		t.Fatalf("first message = %+v", status)
	}
	if m, _ := status.Payload.(map[string]any); m["mode"] != "full" {
		t.Fatalf("status payload = %+v", status.Payload)
	}

	hub.Broadcast(TopicOpportunity, domain.ArbitrageOpportunity{ID: "o1", SpreadBps: 800})
	var got struct {
		Type    string                      `json:"type"`
		Payload domain.ArbitrageOpportunity `json:"payload"`
	}
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read opportunity: %v", err)
	}
	if got.Type != TopicOpportunity || got.Payload.ID != "o1" {
		t.Fatalf("got %+v", got)
	}
}

func TestHubUnsubscribe(t *testing.T) {
	hub, srv := startHub(t, Config{})
	conn := dial(t, srv, "")
	waitClients(t, hub, 1)

	var status Envelope
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Topics: []string{TopicCycle}}); err != nil {
		t.Fatal(err)
	}
	// Subscription changes are applied asynchronously by the read pump.
	time.Sleep(50 * time.Millisecond)

	hub.Broadcast(TopicCycle, map[string]int{"n": 1})
	hub.Broadcast(TopicOpportunity, map[string]string{"id": "after"})

	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatal(err)
	}
	if env.Type != TopicOpportunity {
		t.Fatalf("received %q after unsubscribing from cycle", env.Type)
	}
}

func TestHubBinaryFrames(t *testing.T) {
	hub, srv := startHub(t, Config{})
	conn := dial(t, srv, "?format=proto")
	waitClients(t, hub, 1)

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if msgType != websocket.BinaryMessage {
		t.Fatalf("message type = %d, want binary", msgType)
	}
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.Fields["type"].GetStringValue() != TopicStatus {
		t.Fatalf("type = %v", st.Fields["type"])
	}
}

func TestEncodeKeepsJSONFieldNames(t *testing.T) {
	f, err := encode(TopicOpportunity, domain.ArbitrageOpportunity{ID: "x", SpreadBps: 250}, time.Unix(0, 0).UTC())
	if err != nil {
		t.Fatal(err)
	}
	var env map[string]any
	if err := json.Unmarshal(f.text, &env); err != nil {
		t.Fatal(err)
	}
	var st structpb.Struct
	if err := proto.Unmarshal(f.binary, &st); err != nil {
		t.Fatal(err)
	}
	payload := st.Fields["payload"].GetStructValue()
	if payload.Fields["spread_bps"].GetNumberValue() != 250 || payload.Fields["id"].GetStringValue() != "x" {
		t.Fatalf("payload = %v", payload)
	}
}
