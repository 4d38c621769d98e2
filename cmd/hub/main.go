package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"roomsync.ai/internal/hub"
	"roomsync.ai/internal/persistence/indexdb"
	persistlog "roomsync.ai/internal/persistence/log"
	"roomsync.ai/internal/sim/tuning"
	"roomsync.ai/internal/transport/ws"
)

func main() {
	var (
		port       = flag.Int("port", envInt("HUB_PORT", 8080), "http listen port (env HUB_PORT)")
		room       = flag.String("room", os.Getenv("HUB_DEFAULT_ROOM"), "default room (env HUB_DEFAULT_ROOM; default: tuning hub.default_room)")
		path       = flag.String("path", os.Getenv("HUB_PATH"), "websocket path (env HUB_PATH; default: tuning hub.path)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the presence index")
		noAudit    = flag.Bool("disable_audit", false, "disable the membership audit log")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[hub] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if v := strings.TrimSpace(*room); v != "" {
		tune.Hub.DefaultRoom = v
	}
	if v := strings.TrimSpace(*path); v != "" {
		tune.Hub.Path = v
	}
	tune.Normalize()

	h := hub.New(hub.Config{DefaultRoom: tune.Hub.DefaultRoom}, logger)

	var audit *persistlog.AuditLogger
	if !*noAudit {
		audit = persistlog.NewAuditLogger(*dataDir)
		defer audit.Close()
		h.SetAuditLogger(audit)
	}
	var presence *indexdb.PresenceIndex
	if !*disableDB {
		presence, err = indexdb.OpenPresence(filepath.Join(*dataDir, "index", "presence.sqlite"), logger)
		if err != nil {
			logger.Fatalf("open presence index: %v", err)
		}
		defer presence.Close()
		h.SetPresenceIndex(presence)
	}

	ctx, cancel := signalContext()
	defer cancel()

	// The sinks close via defer only after Run has stopped feeding them.
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		if err := h.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("hub stopped: %v", err)
		}
	}()

	wsSrv := ws.NewServer(h, ws.Options{OutboundQueue: tune.Hub.OutboundQueue}, logger)
	mux := newMux(muxDeps{
		hub:         h,
		wsPath:      tune.Hub.Path,
		ws:          wsSrv.Handler(),
		presence:    presence,
		audit:       audit,
		enableAdmin: envBool("HUB_ENABLE_ADMIN_HTTP", true),
		logger:      logger,
	})

	addr := ":" + strconv.Itoa(*port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (ws path %s, default room %q)", addr, tune.Hub.Path, tune.Hub.DefaultRoom)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-hubDone
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
