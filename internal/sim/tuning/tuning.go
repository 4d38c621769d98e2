package tuning

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Hub    Hub    `yaml:"hub"`
	Sync   Sync   `yaml:"sync"`
	Entity Entity `yaml:"entity"`
	NPC    NPC    `yaml:"npc"`
}

type Hub struct {
	DefaultRoom   string `yaml:"default_room"`
	Path          string `yaml:"path"`
	OutboundQueue int    `yaml:"outbound_queue"`
}

type Sync struct {
	SendIntervalMs   int `yaml:"send_interval_ms"`
	ReconnectDelayMs int `yaml:"reconnect_delay_ms"`
	PingIntervalMs   int `yaml:"ping_interval_ms"`
	TickRateHz       int `yaml:"tick_rate_hz"`
}

type Entity struct {
	WalkSpeed       float64 `yaml:"walk_speed"`
	BlendMs         int     `yaml:"blend_ms"`
	LookSensitivity float64 `yaml:"look_sensitivity"`
}

type NPC struct {
	Count       int      `yaml:"count"`
	ArenaRadius float64  `yaml:"arena_radius"`
	Models      []string `yaml:"models"`
}

func Defaults() Tuning {
	return Tuning{
		Hub: Hub{
			DefaultRoom:   "lobby",
			Path:          "/ws",
			OutboundQueue: 64,
		},
		Sync: Sync{
			SendIntervalMs:   125,
			ReconnectDelayMs: 3000,
			PingIntervalMs:   5000,
			TickRateHz:       60,
		},
		Entity: Entity{
			WalkSpeed:       2,
			BlendMs:         200,
			LookSensitivity: 0.005,
		},
		NPC: NPC{
			Count:       6,
			ArenaRadius: 20,
		},
	}
}

// Load reads a tuning file on top of Defaults. Keys missing from the file keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	d := Defaults()
	t.Hub.DefaultRoom = strings.TrimSpace(t.Hub.DefaultRoom)
	if t.Hub.DefaultRoom == "" {
		t.Hub.DefaultRoom = d.Hub.DefaultRoom
	}
	t.Hub.Path = strings.TrimSpace(t.Hub.Path)
	if t.Hub.Path == "" {
		t.Hub.Path = d.Hub.Path
	}
	if !strings.HasPrefix(t.Hub.Path, "/") {
		t.Hub.Path = "/" + t.Hub.Path
	}
	if t.Hub.OutboundQueue <= 0 {
		t.Hub.OutboundQueue = d.Hub.OutboundQueue
	}
	if t.Sync.TickRateHz <= 0 {
		t.Sync.TickRateHz = d.Sync.TickRateHz
	}
	if t.Sync.PingIntervalMs <= 0 {
		t.Sync.PingIntervalMs = d.Sync.PingIntervalMs
	}
	if t.Entity.BlendMs < 0 {
		t.Entity.BlendMs = 0
	}
}

func (t Tuning) Validate() error {
	if t.Sync.SendIntervalMs <= 0 {
		return fmt.Errorf("sync.send_interval_ms must be > 0")
	}
	if t.Sync.ReconnectDelayMs <= 0 {
		return fmt.Errorf("sync.reconnect_delay_ms must be > 0")
	}
	if t.Entity.WalkSpeed < 0 {
		return fmt.Errorf("entity.walk_speed must be >= 0")
	}
	if t.NPC.Count < 0 {
		return fmt.Errorf("npc.count must be >= 0")
	}
	if t.NPC.ArenaRadius <= 0 {
		return fmt.Errorf("npc.arena_radius must be > 0")
	}
	return nil
}

func (s Sync) SendInterval() time.Duration {
	return time.Duration(s.SendIntervalMs) * time.Millisecond
}

func (s Sync) ReconnectDelay() time.Duration {
	return time.Duration(s.ReconnectDelayMs) * time.Millisecond
}

func (s Sync) PingInterval() time.Duration {
	return time.Duration(s.PingIntervalMs) * time.Millisecond
}

func (e Entity) BlendSeconds() float64 {
	return float64(e.BlendMs) / 1000
}
