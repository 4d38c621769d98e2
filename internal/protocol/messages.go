package protocol

import "encoding/json"

// Snapshot is one actor's observable state at a point in time.
// Timestamps are only comparable within the same ID's stream.
type Snapshot struct {
	ID        string     `json:"id"`
	Position  [3]float64 `json:"position"`
	Rotation  [3]float64 `json:"rotation"`
	State     string     `json:"state"`
	TimeScale float64    `json:"timeScale"`
	WalkSpeed float64    `json:"walkSpeed"`
	Model     string     `json:"model"`
	Timestamp float64    `json:"timestamp"`
}

// ClientMessage is a message sent by a client to the hub.
// The set of variants is closed: JoinMsg, StateMsg, PingMsg.
type ClientMessage interface {
	clientMessage()
}

// ServerMessage is a message sent by the hub to a client.
// The set of variants is closed: InitMsg, PlayerUpdateMsg, PlayerLeaveMsg, PongMsg.
type ServerMessage interface {
	serverMessage()
}

// JOIN (client -> hub). An empty room selects the hub's default room.
type JoinMsg struct {
	Type string `json:"type"`
	Room string `json:"room,omitempty"`
}

// STATE (client -> hub)
type StateMsg struct {
	Type   string   `json:"type"`
	Player Snapshot `json:"player"`
}

// PING (client -> hub). Timestamp is echoed back verbatim.
type PingMsg struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// INIT (hub -> client)
type InitMsg struct {
	Type    string     `json:"type"`
	ID      string     `json:"id"`
	RoomID  string     `json:"roomId"`
	Players []Snapshot `json:"players"`
}

// PLAYER_UPDATE (hub -> client)
type PlayerUpdateMsg struct {
	Type   string   `json:"type"`
	Player Snapshot `json:"player"`
}

// PLAYER_LEAVE (hub -> client)
type PlayerLeaveMsg struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// PONG (hub -> client)
type PongMsg struct {
	Type      string          `json:"type"`
	Timestamp json.RawMessage `json:"timestamp"`
}

func (JoinMsg) clientMessage()  {}
func (StateMsg) clientMessage() {}
func (PingMsg) clientMessage()  {}

func (InitMsg) serverMessage()         {}
func (PlayerUpdateMsg) serverMessage() {}
func (PlayerLeaveMsg) serverMessage()  {}
func (PongMsg) serverMessage()         {}
