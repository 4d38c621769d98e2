package entity

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"roomsync.ai/internal/sim/catalogs"
)

const testModelsYAML = `
default_model: cow
models:
  - name: cow
    bbox: {center: [0, 0.5, 0], half_extents: [0.5, 0.5, 1.0]}
    clips:
      - {name: idle, duration: 2.0}
      - {name: walk, duration: 1.0}
      - {name: jump, duration: 0.5}
      - {name: death, duration: 1.5}
      - {name: eat, duration: 3.0}
  - name: pig
    bbox: {center: [0, 0.5, 0], half_extents: [0.4, 0.5, 0.6]}
    clips:
      - {name: idle, duration: 1.0}
      - {name: walk, duration: 1.0}
      - {name: jump, duration: 0.5}
      - {name: death, duration: 1.2}
`

var testParams = Params{WalkSpeed: 2, Blend: 0.2}

func testModels(t *testing.T) *catalogs.Models {
	t.Helper()
	m, err := catalogs.Parse([]byte(testModelsYAML))
	if err != nil {
		t.Fatalf("parse models: %v", err)
	}
	return m
}

func newTestEntity(t *testing.T, kind Kind) *Entity {
	t.Helper()
	m, _ := testModels(t).Lookup("cow")
	return New("e1", kind, m, testParams, nil)
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRequest_SameStateIsNoOpUnlessForced(t *testing.T) {
	e := newTestEntity(t, KindPlayer)
	if e.State != StateIdle {
		t.Fatalf("new entity should start idle, got %q", e.State)
	}
	e.Update(0.3)
	before := e.CurrentAction()

	if e.Request(Transition{State: StateIdle, TimeScale: 1}) {
		t.Fatalf("same-state request should be a no-op")
	}
	if e.CurrentAction() != before || !near(before.Time, 0.3) {
		t.Fatalf("no-op request must not touch the playing clip")
	}

	if !e.Request(Transition{State: StateIdle, TimeScale: 1, Force: true}) {
		t.Fatalf("forced request should be accepted")
	}
	if e.CurrentAction() == before || e.CurrentAction().Time != 0 {
		t.Fatalf("forced request should restart the clip")
	}
	if e.PrevState != StateIdle {
		t.Fatalf("prev state=%q", e.PrevState)
	}
}

func TestRequest_UnknownStateRejected(t *testing.T) {
	e := newTestEntity(t, KindRemote)
	e.Request(Transition{State: StateWalk, TimeScale: 1, WalkSpeed: 1})
	if e.Request(Transition{State: "fly", TimeScale: 1}) {
		t.Fatalf("unknown clip should be rejected")
	}
	if e.State != StateWalk || e.PrevState != StateIdle || e.CurrentAction().Clip.Name != StateWalk {
		t.Fatalf("state should be retained: state=%q prev=%q", e.State, e.PrevState)
	}
}

func TestRequest_DerivesSpeed(t *testing.T) {
	e := newTestEntity(t, KindPlayer)

	e.Request(Transition{State: StateWalk, TimeScale: 1, WalkSpeed: 0.5})
	if !near(e.Speed, 1) {
		t.Fatalf("walk 0.5 speed=%v", e.Speed)
	}
	e.Request(Transition{State: StateWalk, TimeScale: 1, WalkSpeed: 3, Force: true})
	if !near(e.Speed, 2) || e.WalkFactor != 1 {
		t.Fatalf("walk factor should clamp to 1: speed=%v factor=%v", e.Speed, e.WalkFactor)
	}
	e.Request(Transition{State: StateWalk, TimeScale: -1, WalkSpeed: -1, Force: true})
	if !near(e.Speed, -2) {
		t.Fatalf("backwards speed=%v", e.Speed)
	}
	if a := e.CurrentAction(); a.TimeScale != -1 || a.Time != a.Clip.Duration {
		t.Fatalf("backwards clip should start at its end: %+v", a)
	}

	e.Request(Transition{State: "eat", TimeScale: 1})
	if !near(e.Speed, -2) {
		t.Fatalf("other states must leave speed alone: %v", e.Speed)
	}
	e.Request(Transition{State: StateIdle, TimeScale: 1})
	if e.Speed != 0 {
		t.Fatalf("idle speed=%v", e.Speed)
	}
}

func TestUpdate_MovesAlongForward(t *testing.T) {
	e := newTestEntity(t, KindPlayer)
	e.Rotation = mgl64.Vec3{0, math.Pi / 2, 0}
	e.Request(Transition{State: StateWalk, TimeScale: 1, WalkSpeed: 1})
	e.Update(0.5)
	want := mgl64.Vec3{1, 0, 0}
	if !e.Position.ApproxEqualThreshold(want, 1e-9) {
		t.Fatalf("position=%v want %v", e.Position, want)
	}
}

func TestMixer_CrossFade(t *testing.T) {
	e := newTestEntity(t, KindPlayer)
	e.Request(Transition{State: StateWalk, TimeScale: 1, WalkSpeed: 1})
	if e.mixer.Blending() != 1 {
		t.Fatalf("expected idle to fade out")
	}
	e.Update(0.1)
	if w := e.CurrentAction().Weight; !near(w, 0.5) {
		t.Fatalf("mid-blend weight=%v", w)
	}
	e.Update(0.15)
	if e.mixer.Blending() != 0 || e.CurrentAction().Weight != 1 {
		t.Fatalf("blend should have completed: fading=%d weight=%v", e.mixer.Blending(), e.CurrentAction().Weight)
	}
}

func TestDeath_NPCDetourReturnsToWalk(t *testing.T) {
	e := newTestEntity(t, KindNPC)
	if !e.Request(Transition{State: StateDeath, TimeScale: 1}) {
		t.Fatalf("death request rejected")
	}
	if e.Speed != 0 {
		t.Fatalf("death speed=%v", e.Speed)
	}
	if got := e.Update(1.0); got != "" || e.State != StateDeath {
		t.Fatalf("death finished early: %q state=%q", got, e.State)
	}
	if got := e.Update(0.6); got != StateDeath {
		t.Fatalf("expected death completion, got %q", got)
	}
	if e.State != StateWalk || e.PrevState != StateDeath {
		t.Fatalf("expected walk after death, state=%q prev=%q", e.State, e.PrevState)
	}
	if !e.Defeated {
		t.Fatalf("expected defeated mark")
	}
	if !near(e.Speed, testParams.WalkSpeed) {
		t.Fatalf("walk speed after revival=%v", e.Speed)
	}
}

func TestDeath_HoldsFinalFrameForNonNPC(t *testing.T) {
	e := newTestEntity(t, KindRemote)
	e.Request(Transition{State: StateDeath, TimeScale: 1})
	e.Update(2)
	e.Update(2)
	if e.State != StateDeath || e.Defeated {
		t.Fatalf("non-NPC death is display only: state=%q defeated=%v", e.State, e.Defeated)
	}
	if a := e.CurrentAction(); !a.Finished() || a.Time != a.Clip.Duration {
		t.Fatalf("death clip should clamp on its last frame: %+v", a)
	}
}

func TestBounds_RotatesWithYaw(t *testing.T) {
	e := newTestEntity(t, KindNPC)
	b := e.Bounds()
	if !near(b.Max[0], 0.5) || !near(b.Max[2], 1.0) {
		t.Fatalf("unrotated bounds=%+v", b)
	}
	e.Rotation = mgl64.Vec3{0, math.Pi / 2, 0}
	b = e.Bounds()
	if math.Abs(b.Max[0]-1.0) > 1e-9 || math.Abs(b.Max[2]-0.5) > 1e-9 {
		t.Fatalf("rotated bounds=%+v", b)
	}

	far := AABB{Min: mgl64.Vec3{5, 0, 5}, Max: mgl64.Vec3{6, 1, 6}}
	if b.Overlaps(far) || far.Overlaps(b) {
		t.Fatalf("disjoint boxes reported as overlapping")
	}
	if !b.Overlaps(AABB{Min: mgl64.Vec3{0.9, 0, 0}, Max: mgl64.Vec3{2, 1, 1}}) {
		t.Fatalf("overlapping boxes not detected")
	}
}

func TestRegistry_AddRemoveProxy(t *testing.T) {
	m, _ := testModels(t).Lookup("cow")
	r := NewRegistry()
	r.Add(New("local", KindPlayer, m, testParams, nil))
	r.Add(New("peer-1", KindRemote, m, testParams, nil))
	r.Add(New("npc-1", KindNPC, m, testParams, nil))

	if r.Len() != 3 || r.Proxy("peer-1") == nil || r.Proxy("npc-1") != nil {
		t.Fatalf("unexpected registry contents")
	}
	if ids := r.ProxyIDs(); len(ids) != 1 || ids[0] != "peer-1" {
		t.Fatalf("proxy ids=%v", ids)
	}
	if !r.Remove("peer-1") || r.Remove("peer-1") {
		t.Fatalf("remove should succeed once")
	}
	if r.Proxy("peer-1") != nil || r.Len() != 2 {
		t.Fatalf("proxy still present after remove")
	}
	var order []string
	r.Each(func(e *Entity) { order = append(order, e.ID) })
	if len(order) != 2 || order[0] != "local" || order[1] != "npc-1" {
		t.Fatalf("order=%v", order)
	}
}
