package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/profile"

	"roomsync.ai/internal/protocol"
	"roomsync.ai/internal/sim/catalogs"
	"roomsync.ai/internal/sim/entity"
	"roomsync.ai/internal/sim/reconcile"
	"roomsync.ai/internal/sim/tuning"
	"roomsync.ai/internal/syncclient"
)

func main() {
	var (
		url         = flag.String("url", envString("SYNC_URL", "ws://127.0.0.1:8080/ws"), "hub websocket url (env SYNC_URL)")
		room        = flag.String("room", os.Getenv("SYNC_ROOM"), "room to join (env SYNC_ROOM; empty: hub default)")
		configDir   = flag.String("configs", "./configs", "config directory")
		model       = flag.String("model", "", "player model (default: catalog default)")
		seed        = flag.Int64("seed", time.Now().UnixNano(), "npc placement seed")
		duration    = flag.Duration("duration", 0, "stop after this long (0: run until interrupted)")
		statusEvery = flag.Duration("status_every", 2*time.Second, "status log interval")
		profileDir  = flag.String("profile", "", "write a CPU profile into this directory")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[client] ", log.LstdFlags|log.Lmicroseconds)

	if dir := strings.TrimSpace(*profileDir); dir != "" {
		p := profile.Start(profile.CPUProfile, profile.ProfilePath(dir), profile.NoShutdownHook, profile.Quiet)
		defer p.Stop()
	}

	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		logger.Fatalf("load tuning: %v", err)
	}
	models, err := catalogs.Load(filepath.Join(*configDir, "models.yaml"))
	if err != nil {
		logger.Fatalf("load models: %v", err)
	}

	sim, err := entity.NewSimulation(entity.Config{
		Params: entity.Params{
			WalkSpeed: tune.Entity.WalkSpeed,
			Blend:     tune.Entity.BlendSeconds(),
		},
		LookSensitivity: tune.Entity.LookSensitivity,
		PlayerModel:     *model,
		NPCCount:        tune.NPC.Count,
		NPCModels:       tune.NPC.Models,
		ArenaRadius:     tune.NPC.ArenaRadius,
		Seed:            *seed,
	}, models, logAudio{log: logger}, logger)
	if err != nil {
		logger.Fatalf("simulation: %v", err)
	}
	rec := reconcile.New(sim, logger)

	client := syncclient.New(syncclient.Config{
		URL:            *url,
		Room:           *room,
		SendInterval:   tune.Sync.SendInterval(),
		ReconnectDelay: tune.Sync.ReconnectDelay(),
	}, logger)
	_ = client.Connect()
	defer client.Dispose()

	ctx, cancel := signalContext()
	defer cancel()
	if *duration > 0 {
		var cancelT context.CancelFunc
		ctx, cancelT = context.WithTimeout(ctx, *duration)
		defer cancelT()
	}

	run(ctx, runDeps{
		sim:         sim,
		rec:         rec,
		client:      client,
		input:       newScriptedInput(defaultScript()),
		tickRate:    tune.Sync.TickRateHz,
		pingEvery:   tune.Sync.PingInterval(),
		statusEvery: *statusEvery,
		logger:      logger,
	})
	logger.Printf("stopped after %d ticks", sim.Ticks())
}

type runDeps struct {
	sim         *entity.Simulation
	rec         *reconcile.Reconciler
	client      *syncclient.Client
	input       *scriptedInput
	tickRate    int
	pingEvery   time.Duration
	statusEvery time.Duration
	logger      *log.Logger
}

// run drives the render tick and the network send tick from one goroutine.
func run(ctx context.Context, d runDeps) {
	if d.statusEvery <= 0 {
		d.statusEvery = 2 * time.Second
	}
	frame := time.NewTicker(time.Second / time.Duration(d.tickRate))
	defer frame.Stop()
	ping := time.NewTicker(d.pingEvery)
	defer ping.Stop()
	status := time.NewTicker(d.statusEvery)
	defer status.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-frame.C:
			dt := now.Sub(last).Seconds()
			last = now

			d.client.Pump(d.rec)
			d.input.Advance(dt)
			d.sim.Update(dt, d.input.Intent())
			d.client.MaybeSendState(now, func() protocol.Snapshot {
				return d.sim.LocalSnapshot(d.client.ID(), now)
			})
		case now := <-ping.C:
			if err := d.client.Ping(now); err != nil {
				d.logger.Printf("ping: %v", err)
			}
		case <-status.C:
			st := d.client.Status()
			p := d.sim.Player().Pose()
			d.logger.Printf("id=%s room=%s joined=%v rtt=%s proxies=%d player=%s pos=(%.2f,%.2f,%.2f)",
				st.ID, st.Room, st.Joined, st.RTT, len(d.sim.Registry().ProxyIDs()),
				d.sim.Player().State, p.Position[0], p.Position[1], p.Position[2])
		}
	}
}

// logAudio stands in for a sound engine.
type logAudio struct{ log *log.Logger }

func (a logAudio) Play(model string) { a.log.Printf("audio: %s", model) }

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

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
