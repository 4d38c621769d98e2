package main

import (
	"roomsync.ai/internal/sim/entity"
)

type step struct {
	Seconds float64
	Intent  entity.Intent
}

// scriptedInput replays a looping list of intents. It implements entity.InputSource.
type scriptedInput struct {
	steps []step
	idx   int
	left  float64
	fired bool
}

func newScriptedInput(steps []step) *scriptedInput {
	s := &scriptedInput{steps: steps}
	if len(steps) > 0 {
		s.left = steps[0].Seconds
	}
	return s
}

func defaultScript() []step {
	return []step{
		{Seconds: 2, Intent: entity.Intent{}},
		{Seconds: 4, Intent: entity.Intent{Move: [2]float64{0, 1}}},
		{Seconds: 0.5, Intent: entity.Intent{Look: [2]float64{40, 0}, Move: [2]float64{0, 1}}},
		{Seconds: 0.1, Intent: entity.Intent{Jump: true}},
		{Seconds: 3, Intent: entity.Intent{Move: [2]float64{0, -0.5}}},
		{Seconds: 2, Intent: entity.Intent{Action: "eat"}},
	}
}

func (s *scriptedInput) Advance(dt float64) {
	total := 0.0
	for _, st := range s.steps {
		total += st.Seconds
	}
	if total <= 0 {
		return
	}
	s.left -= dt
	for s.left <= 0 {
		s.idx = (s.idx + 1) % len(s.steps)
		s.left += s.steps[s.idx].Seconds
		s.fired = false
	}
}

// Intent returns the current step's intent. A jump fires once per step.
func (s *scriptedInput) Intent() entity.Intent {
	if len(s.steps) == 0 {
		return entity.Intent{}
	}
	in := s.steps[s.idx].Intent
	if in.Jump {
		if s.fired {
			in.Jump = false
		}
		s.fired = true
	}
	return in
}
