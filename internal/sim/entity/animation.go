package entity

import (
	"math"

	"roomsync.ai/internal/sim/catalogs"
)

// Action is one playing instance of a clip inside a Mixer.
type Action struct {
	Clip      catalogs.ClipDef
	Time      float64
	TimeScale float64
	Weight    float64
	// Once actions stop at the clip boundary and hold their final frame.
	Once bool

	fadeFrom    float64
	fadeTo      float64
	fadeDur     float64
	fadeElapsed float64

	finished bool
}

func (a *Action) Finished() bool { return a.finished }

func (a *Action) fade(to, dur float64) {
	a.fadeFrom = a.Weight
	a.fadeTo = to
	a.fadeDur = dur
	a.fadeElapsed = 0
	if dur <= 0 {
		a.Weight = to
	}
}

// advance moves the action forward by dt and reports whether a Once action completed during this call.
func (a *Action) advance(dt float64) bool {
	if a.fadeDur > 0 && a.fadeElapsed < a.fadeDur {
		a.fadeElapsed = math.Min(a.fadeElapsed+dt, a.fadeDur)
		a.Weight = a.fadeFrom + (a.fadeTo-a.fadeFrom)*(a.fadeElapsed/a.fadeDur)
	}
	if a.finished {
		return false
	}
	d := a.Clip.Duration
	a.Time += dt * a.TimeScale
	if !a.Once {
		a.Time = math.Mod(a.Time, d)
		if a.Time < 0 {
			a.Time += d
		}
		return false
	}
	switch {
	case a.TimeScale > 0 && a.Time >= d:
		a.Time = d
		a.finished = true
	case a.TimeScale < 0 && a.Time <= 0:
		a.Time = 0
		a.finished = true
	}
	return a.finished
}

// Mixer cross-fades between clips. The newest action is current; older ones fade out and are dropped.
type Mixer struct {
	current *Action
	fading  []*Action
}

// Play starts clip as the current action, blending out whatever was playing over blend seconds.
// A negative time scale starts from the end of the clip.
func (m *Mixer) Play(clip catalogs.ClipDef, timeScale float64, once bool, blend float64) *Action {
	a := &Action{Clip: clip, TimeScale: timeScale, Once: once}
	if timeScale < 0 {
		a.Time = clip.Duration
	}
	if m.current == nil {
		a.Weight = 1
	} else {
		m.current.fade(0, blend)
		m.fading = append(m.fading, m.current)
		a.fade(1, blend)
	}
	m.current = a
	return a
}

// Update advances every action by dt. It returns the current action if it completed during this call.
func (m *Mixer) Update(dt float64) *Action {
	kept := m.fading[:0]
	for _, a := range m.fading {
		a.advance(dt)
		if a.Weight > 0 {
			kept = append(kept, a)
		}
	}
	for i := len(kept); i < len(m.fading); i++ {
		m.fading[i] = nil
	}
	m.fading = kept

	if m.current == nil {
		return nil
	}
	if m.current.advance(dt) {
		return m.current
	}
	return nil
}

func (m *Mixer) Current() *Action { return m.current }

// Blending reports how many outgoing actions are still fading.
func (m *Mixer) Blending() int { return len(m.fading) }
