package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"roomsync.ai/internal/hub"
	"roomsync.ai/internal/persistence/indexdb"
	persistlog "roomsync.ai/internal/persistence/log"
)

type muxDeps struct {
	hub         *hub.Hub
	wsPath      string
	ws          http.Handler
	presence    *indexdb.PresenceIndex
	audit       *persistlog.AuditLogger
	enableAdmin bool
	logger      *log.Logger
}

func newMux(d muxDeps) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, d.hub.Metrics(), d.presence, d.audit)
	})

	if d.enableAdmin {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/rooms", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			rooms, err := d.hub.Rooms(ctx)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(struct {
				Rooms   []hub.RoomInfo `json:"rooms"`
				Metrics hub.Metrics    `json:"metrics"`
			}{Rooms: rooms, Metrics: d.hub.Metrics()})
		})
	} else if d.logger != nil {
		d.logger.Printf("admin endpoints disabled (HUB_ENABLE_ADMIN_HTTP=false)")
	}

	mux.Handle(d.wsPath, d.ws)
	return mux
}

func writeMetrics(rw http.ResponseWriter, m hub.Metrics, presence *indexdb.PresenceIndex, audit *persistlog.AuditLogger) {
	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP roomsync_hub_connections Current number of connections.\n")
	fmt.Fprintf(rw, "# TYPE roomsync_hub_connections gauge\n")
	fmt.Fprintf(rw, "roomsync_hub_connections %d\n", m.Connections)

	fmt.Fprintf(rw, "# HELP roomsync_hub_joined Current number of connections that joined a room.\n")
	fmt.Fprintf(rw, "# TYPE roomsync_hub_joined gauge\n")
	fmt.Fprintf(rw, "roomsync_hub_joined %d\n", m.Joined)

	fmt.Fprintf(rw, "# HELP roomsync_hub_messages_in_total Client messages dispatched.\n")
	fmt.Fprintf(rw, "# TYPE roomsync_hub_messages_in_total counter\n")
	fmt.Fprintf(rw, "roomsync_hub_messages_in_total %d\n", m.MessagesIn)

	fmt.Fprintf(rw, "# HELP roomsync_hub_broadcasts_total Room broadcasts.\n")
	fmt.Fprintf(rw, "# TYPE roomsync_hub_broadcasts_total counter\n")
	fmt.Fprintf(rw, "roomsync_hub_broadcasts_total %d\n", m.Broadcasts)

	fmt.Fprintf(rw, "# HELP roomsync_hub_dropped_sends_total Frames dropped on full outbound queues.\n")
	fmt.Fprintf(rw, "# TYPE roomsync_hub_dropped_sends_total counter\n")
	fmt.Fprintf(rw, "roomsync_hub_dropped_sends_total %d\n", m.DroppedSends)

	fmt.Fprintf(rw, "# HELP roomsync_hub_unknown_messages_total Malformed or unknown client frames.\n")
	fmt.Fprintf(rw, "# TYPE roomsync_hub_unknown_messages_total counter\n")
	fmt.Fprintf(rw, "roomsync_hub_unknown_messages_total %d\n", m.Unknown)

	if presence != nil {
		s := presence.Stats()
		fmt.Fprintf(rw, "# HELP roomsync_presence_queue_depth Presence index queue depth.\n")
		fmt.Fprintf(rw, "# TYPE roomsync_presence_queue_depth gauge\n")
		fmt.Fprintf(rw, "roomsync_presence_queue_depth %d\n", s.QueueDepth)
		fmt.Fprintf(rw, "# HELP roomsync_presence_dropped_total Presence updates dropped.\n")
		fmt.Fprintf(rw, "# TYPE roomsync_presence_dropped_total counter\n")
		fmt.Fprintf(rw, "roomsync_presence_dropped_total %d\n", s.Dropped)
	}
	if audit != nil {
		fmt.Fprintf(rw, "# HELP roomsync_audit_dropped_total Audit entries dropped.\n")
		fmt.Fprintf(rw, "# TYPE roomsync_audit_dropped_total counter\n")
		fmt.Fprintf(rw, "roomsync_audit_dropped_total %d\n", audit.Dropped())
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
