package entity

import (
	"log"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"roomsync.ai/internal/sim/catalogs"
)

type Kind int

const (
	KindPlayer Kind = iota + 1
	KindNPC
	KindRemote
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindNPC:
		return "npc"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Well-known state labels. Any other clip name of the model is also a valid state.
const (
	StateIdle  = "idle"
	StateWalk  = "walk"
	StateJump  = "jump"
	StateDeath = "death"
)

// Params are the per-actor motion and blending parameters.
type Params struct {
	WalkSpeed float64 // units per second at walk factor 1
	Blend     float64 // cross-fade seconds
}

// Transition is a request to change an actor's discrete state.
type Transition struct {
	State string
	// TimeScale is the signed clip playback rate. Zero is treated as 1.
	TimeScale float64
	// WalkSpeed is the normalized [-1,1] factor used by the walk state.
	WalkSpeed float64
	// Force restarts the clip even if State equals the current state.
	Force bool
}

// Pose is what a renderer reads each frame.
type Pose struct {
	Position mgl64.Vec3
	Rotation mgl64.Vec3
	Clip     string
	ClipTime float64
	Weight   float64
	Defeated bool
}

// Entity is one simulated actor. It is not safe for concurrent use; all mutation happens on the update tick.
type Entity struct {
	ID    string
	Kind  Kind
	Model catalogs.ModelDef

	Position mgl64.Vec3
	// Rotation holds Euler angles (radians, XYZ order).
	Rotation mgl64.Vec3

	State     string
	PrevState string
	Speed     float64
	TimeScale float64
	// WalkFactor is the last normalized walk factor applied by a walk transition.
	WalkFactor float64
	// Defeated is a cosmetic mark set once an NPC's death clip has completed.
	Defeated bool

	params Params
	mixer  Mixer
	log    *log.Logger
}

// New creates an actor in the idle state.
func New(id string, kind Kind, model catalogs.ModelDef, params Params, logger *log.Logger) *Entity {
	if logger == nil {
		logger = log.Default()
	}
	e := &Entity{
		ID:     id,
		Kind:   kind,
		Model:  model,
		params: params,
		log:    logger,
	}
	e.Request(Transition{State: StateIdle, TimeScale: 1})
	return e
}

// Request applies a state transition. It returns false when the transition is a no-op or rejected.
func (e *Entity) Request(t Transition) bool {
	if t.State == e.State && !t.Force {
		return false
	}
	clip, ok := e.Model.Clip(t.State)
	if !ok {
		e.log.Printf("entity %s (%s): unknown state %q; staying in %q", e.ID, e.Model.Name, t.State, e.State)
		return false
	}
	ts := t.TimeScale
	if ts == 0 {
		ts = 1
	}

	e.PrevState = e.State
	e.State = t.State
	e.TimeScale = ts

	once := t.State == StateDeath || t.State == StateJump
	e.mixer.Play(clip, ts, once, e.params.Blend)

	switch t.State {
	case StateWalk:
		e.WalkFactor = clamp(t.WalkSpeed, -1, 1)
		e.Speed = e.params.WalkSpeed * e.WalkFactor
	case StateIdle, StateDeath:
		e.WalkFactor = 0
		e.Speed = 0
	}
	return true
}

// Update advances animation and position by dt seconds.
// It returns the name of a one-shot clip that completed during this call, or "".
func (e *Entity) Update(dt float64) string {
	var finished string
	if a := e.mixer.Update(dt); a != nil {
		finished = a.Clip.Name
	}
	if e.Speed != 0 {
		e.Position = e.Position.Add(e.Forward().Mul(e.Speed * dt))
	}
	if finished == StateDeath && e.Kind == KindNPC && e.State == StateDeath {
		e.Defeated = true
		e.Request(Transition{State: StateWalk, TimeScale: 1, WalkSpeed: 1})
	}
	return finished
}

// Forward is the unit vector the actor faces (+Z rotated by its orientation).
func (e *Entity) Forward() mgl64.Vec3 {
	return e.orientation().Rotate(mgl64.Vec3{0, 0, 1})
}

func (e *Entity) orientation() mgl64.Quat {
	return mgl64.AnglesToQuat(e.Rotation[0], e.Rotation[1], e.Rotation[2], mgl64.XYZ)
}

func (e *Entity) Pose() Pose {
	p := Pose{
		Position: e.Position,
		Rotation: e.Rotation,
		Defeated: e.Defeated,
	}
	if a := e.mixer.Current(); a != nil {
		p.Clip = a.Clip.Name
		p.ClipTime = a.Time
		p.Weight = a.Weight
	}
	return p
}

// CurrentAction exposes the playing action for renderers and tests.
func (e *Entity) CurrentAction() *Action { return e.mixer.Current() }

// Bounds returns the world-space axis-aligned bounding box of the actor's model.
func (e *Entity) Bounds() AABB {
	return boxBounds(e.Model.Box, e.Position, e.orientation())
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}
