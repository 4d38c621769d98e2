package protocol

import "encoding/json"

// Client -> hub message types.
const (
	TypeJoin  = "join"
	TypeState = "state"
	TypePing  = "ping"
)

// Hub -> client message types.
const (
	TypeInit         = "init"
	TypePlayerUpdate = "player-update"
	TypePlayerLeave  = "player-leave"
	TypePong         = "pong"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type string `json:"type"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
