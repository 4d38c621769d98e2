package protocol

import (
	"encoding/json"
	"fmt"
)

// DecodeClient parses a client -> hub frame into its concrete variant.
func DecodeClient(b []byte) (ClientMessage, error) {
	base, err := DecodeBase(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch base.Type {
	case TypeJoin:
		var m JoinMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("%w: join: %v", ErrMalformed, err)
		}
		return m, nil
	case TypeState:
		var m StateMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("%w: state: %v", ErrMalformed, err)
		}
		return m, nil
	case TypePing:
		var m PingMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("%w: ping: %v", ErrMalformed, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, base.Type)
	}
}

// DecodeServer parses a hub -> client frame into its concrete variant.
func DecodeServer(b []byte) (ServerMessage, error) {
	base, err := DecodeBase(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch base.Type {
	case TypeInit:
		var m InitMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("%w: init: %v", ErrMalformed, err)
		}
		return m, nil
	case TypePlayerUpdate:
		var m PlayerUpdateMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("%w: player-update: %v", ErrMalformed, err)
		}
		return m, nil
	case TypePlayerLeave:
		var m PlayerLeaveMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("%w: player-leave: %v", ErrMalformed, err)
		}
		return m, nil
	case TypePong:
		var m PongMsg
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("%w: pong: %v", ErrMalformed, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, base.Type)
	}
}

// Encode marshals a message variant, stamping its discriminant.
func Encode(msg any) ([]byte, error) {
	switch m := msg.(type) {
	case JoinMsg:
		m.Type = TypeJoin
		return json.Marshal(m)
	case StateMsg:
		m.Type = TypeState
		return json.Marshal(m)
	case PingMsg:
		m.Type = TypePing
		if len(m.Timestamp) == 0 {
			m.Timestamp = json.RawMessage("null")
		}
		return json.Marshal(m)
	case InitMsg:
		m.Type = TypeInit
		if m.Players == nil {
			m.Players = []Snapshot{}
		}
		return json.Marshal(m)
	case PlayerUpdateMsg:
		m.Type = TypePlayerUpdate
		return json.Marshal(m)
	case PlayerLeaveMsg:
		m.Type = TypePlayerLeave
		return json.Marshal(m)
	case PongMsg:
		m.Type = TypePong
		if len(m.Timestamp) == 0 {
			m.Timestamp = json.RawMessage("null")
		}
		return json.Marshal(m)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
}
