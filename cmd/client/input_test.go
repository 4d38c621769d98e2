package main

import (
	"testing"

	"roomsync.ai/internal/sim/entity"
)

var _ entity.InputSource = (*scriptedInput)(nil)

func TestScriptedInput_LoopsAndFiresJumpOnce(t *testing.T) {
	s := newScriptedInput([]step{
		{Seconds: 1, Intent: entity.Intent{Move: [2]float64{0, 1}}},
		{Seconds: 0.5, Intent: entity.Intent{Jump: true}},
	})
	if s.Intent().Move[1] != 1 {
		t.Fatalf("expected walk intent first")
	}
	s.Advance(1.1)
	if !s.Intent().Jump {
		t.Fatalf("expected jump on entering step 2")
	}
	if s.Intent().Jump {
		t.Fatalf("jump fired twice in one step")
	}
	s.Advance(0.5)
	if s.Intent().Move[1] != 1 {
		t.Fatalf("script did not loop: %+v", s.Intent())
	}
}
