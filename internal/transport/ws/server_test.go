package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"roomsync.ai/internal/hub"
	"roomsync.ai/internal/protocol"
)

func startServer(t *testing.T) (*hub.Hub, string) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	h := hub.New(hub.Config{DefaultRoom: "lobby"}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.Run(ctx) }()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", NewServer(h, Options{}, logger).Handler())
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func write(t *testing.T, c *websocket.Conn, msg any) {
	t.Helper()
	b, err := protocol.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitFor(t *testing.T, c *websocket.Conn, match func(protocol.ServerMessage) bool) protocol.ServerMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = c.SetReadDeadline(deadline)
		_, b, err := c.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		m, err := protocol.DecodeServer(b)
		if err != nil {
			t.Fatalf("decode %s: %v", b, err)
		}
		if match(m) {
			return m
		}
	}
}

func TestRoomScenario_UpdateAndLeave(t *testing.T) {
	_, url := startServer(t)

	b := dial(t, url)
	write(t, b, protocol.JoinMsg{Room: "r1"})
	waitFor(t, b, func(m protocol.ServerMessage) bool { _, ok := m.(protocol.InitMsg); return ok })

	a := dial(t, url)
	write(t, a, protocol.JoinMsg{Room: "r1"})
	initA := waitFor(t, a, func(m protocol.ServerMessage) bool { _, ok := m.(protocol.InitMsg); return ok }).(protocol.InitMsg)
	if initA.ID == "" || initA.RoomID != "r1" || len(initA.Players) != 0 {
		t.Fatalf("unexpected init for A: %+v", initA)
	}

	write(t, a, protocol.StateMsg{Player: protocol.Snapshot{
		ID:        "spoofed",
		Position:  [3]float64{1, 2, 3},
		State:     "walk",
		TimeScale: 1,
		WalkSpeed: 1,
		Model:     "cow",
	}})
	up := waitFor(t, b, func(m protocol.ServerMessage) bool { _, ok := m.(protocol.PlayerUpdateMsg); return ok }).(protocol.PlayerUpdateMsg)
	if up.Player.ID != initA.ID || up.Player.Position != [3]float64{1, 2, 3} || up.Player.State != "walk" {
		t.Fatalf("unexpected update: %+v", up.Player)
	}

	_ = a.Close()
	leave := waitFor(t, b, func(m protocol.ServerMessage) bool { _, ok := m.(protocol.PlayerLeaveMsg); return ok }).(protocol.PlayerLeaveMsg)
	if leave.ID != initA.ID {
		t.Fatalf("leave id=%q want %q", leave.ID, initA.ID)
	}
}

func TestUnknownAndMalformedFramesAreDropped(t *testing.T) {
	h, url := startServer(t)
	c := dial(t, url)

	for _, raw := range []string{`{"type":"teleport"}`, `not json`, `{"type":"state","player":"x"}`} {
		if err := c.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write(t, c, protocol.PingMsg{Timestamp: json.RawMessage(`7`)})
	pong := waitFor(t, c, func(m protocol.ServerMessage) bool { _, ok := m.(protocol.PongMsg); return ok }).(protocol.PongMsg)
	if string(pong.Timestamp) != "7" {
		t.Fatalf("pong timestamp=%s", pong.Timestamp)
	}
	if got := h.Metrics().Unknown; got != 3 {
		t.Fatalf("unknown=%d want 3", got)
	}
}
