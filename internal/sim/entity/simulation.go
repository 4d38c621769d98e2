package entity

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"roomsync.ai/internal/protocol"
	"roomsync.ai/internal/sim/catalogs"
)

// Intent is the per-tick input produced by whatever captures the user's controls.
type Intent struct {
	// Move is the normalized movement vector; Y > 0 walks forward, Y < 0 walks backwards.
	Move mgl64.Vec2
	// Look is the look delta since the previous tick; X turns the actor.
	Look mgl64.Vec2
	Jump bool
	// Action names an extra clip (e.g. "eat") to play while standing still.
	Action string
}

type InputSource interface {
	Intent() Intent
}

// AudioSink receives fire-and-forget sound cues keyed by model name.
type AudioSink interface {
	Play(model string)
}

type Config struct {
	Params          Params
	LookSensitivity float64
	PlayerID        string
	PlayerModel     string
	NPCCount        int
	NPCModels       []string
	ArenaRadius     float64
	Seed            int64
}

// Simulation is the top-level client context: it owns the registry, the local player and the NPCs.
type Simulation struct {
	cfg    Config
	models *catalogs.Models
	audio  AudioSink
	log    *log.Logger

	reg    *Registry
	player *Entity

	ticks   uint64
	nextNPC int
	// missingAction is the last action intent the player's model has no clip for.
	missingAction string
}

func NewSimulation(cfg Config, models *catalogs.Models, audio AudioSink, logger *log.Logger) (*Simulation, error) {
	if models == nil {
		return nil, fmt.Errorf("simulation: nil model catalog")
	}
	if logger == nil {
		logger = log.Default()
	}
	if audio == nil {
		audio = nopAudio{}
	}
	if cfg.PlayerID == "" {
		cfg.PlayerID = "local"
	}
	s := &Simulation{
		cfg:    cfg,
		models: models,
		audio:  audio,
		log:    logger,
		reg:    NewRegistry(),
	}

	pm, ok := models.Lookup(cfg.PlayerModel)
	if !ok && cfg.PlayerModel != "" {
		logger.Printf("simulation: unknown player model %q; using %q", cfg.PlayerModel, pm.Name)
	}
	s.player = New(cfg.PlayerID, KindPlayer, pm, cfg.Params, logger)
	s.reg.Add(s.player)

	npcModels := cfg.NPCModels
	if len(npcModels) == 0 {
		npcModels = models.Names()
	}
	r := rand.New(rand.NewSource(cfg.Seed))
	for i := 0; i < cfg.NPCCount; i++ {
		angle := 2 * math.Pi * float64(i) / float64(cfg.NPCCount)
		dist := cfg.ArenaRadius * (0.3 + 0.5*r.Float64())
		pos := mgl64.Vec3{math.Sin(angle) * dist, 0, math.Cos(angle) * dist}
		npc := s.SpawnNPC(npcModels[i%len(npcModels)], pos, r.Float64()*2*math.Pi)
		npc.Request(Transition{State: StateWalk, TimeScale: 1, WalkSpeed: 0.5})
	}
	return s, nil
}

func (s *Simulation) Registry() *Registry { return s.reg }

// Player is the locally controlled actor.
func (s *Simulation) Player() *Entity { return s.player }

func (s *Simulation) Ticks() uint64 { return s.ticks }

// NewEntity creates and registers an actor with the given model (the default model if unknown).
func (s *Simulation) NewEntity(id string, kind Kind, model string) *Entity {
	m, ok := s.models.Lookup(model)
	if !ok {
		s.log.Printf("simulation: unknown model %q for %s; using %q", model, id, m.Name)
	}
	e := New(id, kind, m, s.cfg.Params, s.log)
	s.reg.Add(e)
	return e
}

// SpawnNPC adds an idle NPC at pos facing yaw.
func (s *Simulation) SpawnNPC(model string, pos mgl64.Vec3, yaw float64) *Entity {
	s.nextNPC++
	e := s.NewEntity(fmt.Sprintf("npc-%d", s.nextNPC), KindNPC, model)
	e.Position = pos
	e.Rotation = mgl64.Vec3{0, yaw, 0}
	return e
}

// Update runs one render tick: input, animation, motion, then collisions.
func (s *Simulation) Update(dt float64, in Intent) {
	s.control(in)

	s.reg.Each(func(e *Entity) {
		finished := e.Update(dt)
		if finished != StateJump {
			return
		}
		switch e.Kind {
		case KindPlayer:
			s.settle(in)
		case KindNPC:
			e.Request(Transition{State: StateWalk, TimeScale: 1, WalkSpeed: 0.5})
		}
	})

	s.wander()

	if s.ticks > 0 {
		s.collide()
	}
	s.ticks++
}

// control maps the intent onto the local player.
func (s *Simulation) control(in Intent) {
	p := s.player
	if in.Look[0] != 0 {
		p.Rotation[1] -= in.Look[0] * s.cfg.LookSensitivity
	}
	if p.State == StateJump {
		return
	}
	if in.Jump {
		if p.Request(Transition{State: StateJump, TimeScale: 1}) {
			s.audio.Play(p.Model.Name)
		}
		return
	}
	s.settle(in)
}

// settle picks walk, idle or an explicit action clip from the movement intent.
func (s *Simulation) settle(in Intent) {
	p := s.player
	f := clamp(in.Move[1], -1, 1)
	switch {
	case f != 0:
		ts := 1.0
		if f < 0 {
			ts = -1
		}
		if p.State == StateWalk {
			if p.WalkFactor != f || p.TimeScale != ts {
				p.Request(Transition{State: StateWalk, TimeScale: ts, WalkSpeed: f, Force: true})
			}
			return
		}
		if p.Request(Transition{State: StateWalk, TimeScale: ts, WalkSpeed: f}) {
			s.audio.Play(p.Model.Name)
		}
	case in.Action != "" && in.Action != s.missingAction:
		if _, ok := p.Model.Clip(in.Action); !ok {
			// Request logs the rejection; later ticks with the same intent settle to idle quietly.
			s.missingAction = in.Action
		}
		p.Request(Transition{State: in.Action, TimeScale: 1})
	default:
		if p.State != StateIdle {
			p.Request(Transition{State: StateIdle, TimeScale: 1})
		}
	}
}

// wander turns NPCs that strayed outside the arena back towards it.
func (s *Simulation) wander() {
	r := s.cfg.ArenaRadius
	if r <= 0 {
		return
	}
	s.reg.Each(func(e *Entity) {
		if e.Kind != KindNPC || e.Speed == 0 {
			return
		}
		flat := mgl64.Vec2{e.Position[0], e.Position[2]}
		if flat.Len() <= r {
			return
		}
		fwd := e.Forward()
		if flat.Dot(mgl64.Vec2{fwd[0], fwd[2]})*e.Speed > 0 {
			e.Rotation[1] += math.Pi
		}
	})
}

// collide checks the local player against every live NPC. Nothing here is networked.
func (s *Simulation) collide() {
	pb := s.player.Bounds()
	s.reg.Each(func(e *Entity) {
		if e.Kind != KindNPC || e.State == StateDeath {
			return
		}
		if !pb.Overlaps(e.Bounds()) {
			return
		}
		if e.Request(Transition{State: StateDeath, TimeScale: 1}) {
			s.audio.Play(e.Model.Name)
		}
	})
}

// LocalSnapshot describes the local player for the network.
func (s *Simulation) LocalSnapshot(id string, now time.Time) protocol.Snapshot {
	p := s.player
	return protocol.Snapshot{
		ID:        id,
		Position:  [3]float64(p.Position),
		Rotation:  [3]float64(p.Rotation),
		State:     p.State,
		TimeScale: p.TimeScale,
		WalkSpeed: p.WalkFactor,
		Model:     p.Model.Name,
		Timestamp: float64(now.UnixMilli()),
	}
}

type nopAudio struct{}

func (nopAudio) Play(string) {}
