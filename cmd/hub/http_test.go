package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"roomsync.ai/internal/hub"
	"roomsync.ai/internal/protocol"
	"roomsync.ai/internal/sim/tuning"
	"roomsync.ai/internal/transport/ws"
)

func findRepoRootForHubTests(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not locate go.mod from %s", dir)
		}
		dir = parent
	}
}

func newTestMux(t *testing.T, enableAdmin bool) (*hub.Hub, *httptest.Server, tuning.Tuning) {
	t.Helper()
	tune, err := tuning.Load(filepath.Join(findRepoRootForHubTests(t), "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	logger := log.New(io.Discard, "", 0)
	h := hub.New(hub.Config{DefaultRoom: tune.Hub.DefaultRoom}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.Run(ctx) }()

	mux := newMux(muxDeps{
		hub:         h,
		wsPath:      tune.Hub.Path,
		ws:          ws.NewServer(h, ws.Options{OutboundQueue: tune.Hub.OutboundQueue}, logger).Handler(),
		enableAdmin: enableAdmin,
		logger:      logger,
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return h, srv, tune
}

func TestHealthzAndMetrics(t *testing.T) {
	_, srv, _ := newTestMux(t, false)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 || string(body) != "ok" {
		t.Fatalf("healthz: %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "roomsync_hub_connections 0\n") {
		t.Fatalf("metrics missing connections gauge:\n%s", body)
	}

	resp, err = http.Get(srv.URL + "/admin/v1/rooms")
	if err != nil {
		t.Fatalf("rooms: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("admin disabled: status=%d want 404", resp.StatusCode)
	}
}

func TestAdminRooms_ReportsJoinedConnections(t *testing.T) {
	_, srv, tune := newTestMux(t, true)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + tune.Hub.Path
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	b, _ := protocol.Encode(protocol.JoinMsg{})
	if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := c.ReadMessage(); err != nil {
		t.Fatalf("read init: %v", err)
	}

	resp, err := http.Get(srv.URL + "/admin/v1/rooms")
	if err != nil {
		t.Fatalf("rooms: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		Rooms   []hub.RoomInfo `json:"rooms"`
		Metrics hub.Metrics    `json:"metrics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Rooms) != 1 || out.Rooms[0].ID != tune.Hub.DefaultRoom || out.Rooms[0].Members != 1 {
		t.Fatalf("rooms=%+v", out.Rooms)
	}
	if out.Metrics.Joined != 1 {
		t.Fatalf("metrics=%+v", out.Metrics)
	}
}

func TestAdminRooms_RejectsRemoteCallers(t *testing.T) {
	h := hub.New(hub.Config{}, log.New(io.Discard, "", 0))
	mux := newMux(muxDeps{hub: h, wsPath: "/ws", ws: http.NotFoundHandler(), enableAdmin: true})

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/rooms", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d want 403", rec.Code)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:80": true,
		"[::1]:80":     true,
		"10.0.0.1:80":  false,
		"garbage":      false,
	} {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", addr, got, want)
		}
	}
}
