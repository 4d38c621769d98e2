package hub

import (
	"sort"
	"strings"
	"time"

	"roomsync.ai/internal/protocol"
)

type connRecord struct {
	id          string
	ch          Channel
	room        string
	joined      bool
	snap        *protocol.Snapshot
	connectedAt time.Time
}

func (h *Hub) handleConnect(ch Channel) string {
	id := h.newID()
	for h.conns[id] != nil {
		id = h.newID()
	}
	h.conns[id] = &connRecord{id: id, ch: ch, connectedAt: time.Now()}
	h.connections.Add(1)
	h.writeAudit(AuditEntry{Conn: id, Action: "CONNECT"})
	return id
}

func (h *Hub) handleMessage(id string, msg protocol.ClientMessage) {
	c := h.conns[id]
	if c == nil {
		return
	}
	switch m := msg.(type) {
	case protocol.JoinMsg:
		h.handleJoin(c, m.Room)
	case protocol.StateMsg:
		h.handleState(c, m.Player)
	case protocol.PingMsg:
		h.handlePing(c, m.Timestamp)
	default:
		h.unknown.Add(1)
		h.log.Printf("conn %s: unknown message %T dropped", id, msg)
	}
}

func (h *Hub) handleJoin(c *connRecord, requested string) {
	room := strings.TrimSpace(requested)
	if room == "" {
		room = h.cfg.DefaultRoom
	}

	from := ""
	if c.joined && c.room != room {
		from = c.room
		if c.snap != nil {
			h.broadcast(from, c.id, protocol.PlayerLeaveMsg{ID: c.id})
			c.snap = nil
		}
		h.writeAudit(AuditEntry{Conn: c.id, Action: "LEAVE", Room: from})
	}
	if !c.joined {
		h.joined.Add(1)
	}
	c.joined = true
	c.room = room

	players := make([]protocol.Snapshot, 0, 8)
	for _, o := range h.conns {
		if o.id == c.id || !o.joined || o.room != room || o.snap == nil {
			continue
		}
		players = append(players, *o.snap)
	}
	sort.Slice(players, func(i, j int) bool {
		if players[i].Timestamp != players[j].Timestamp {
			return players[i].Timestamp < players[j].Timestamp
		}
		return players[i].ID < players[j].ID
	})
	h.sendTo(c, protocol.InitMsg{ID: c.id, RoomID: room, Players: players})

	h.writeAudit(AuditEntry{Conn: c.id, Action: "JOIN", Room: room, FromRoom: from})
	if h.presence != nil {
		h.presence.RecordJoin(c.id, room)
	}
}

func (h *Hub) handleState(c *connRecord, player protocol.Snapshot) {
	if !c.joined {
		return
	}
	player.ID = c.id
	snap := player
	c.snap = &snap
	h.broadcast(c.room, c.id, protocol.PlayerUpdateMsg{Player: player})
}

func (h *Hub) handlePing(c *connRecord, ts []byte) {
	h.sendTo(c, protocol.PongMsg{Timestamp: ts})
}

func (h *Hub) handleDisconnect(id string) {
	c := h.conns[id]
	if c == nil {
		return
	}
	delete(h.conns, id)
	h.connections.Add(-1)
	if c.joined {
		h.joined.Add(-1)
		h.broadcast(c.room, id, protocol.PlayerLeaveMsg{ID: id})
		if h.presence != nil {
			h.presence.RecordLeave(id)
		}
	}
	h.writeAudit(AuditEntry{Conn: id, Action: "DISCONNECT", Room: c.room})
}

// broadcast encodes msg once and offers it to every open member of room except exclude.
func (h *Hub) broadcast(room, exclude string, msg protocol.ServerMessage) {
	b, err := protocol.Encode(msg)
	if err != nil {
		h.log.Printf("broadcast encode: %v", err)
		return
	}
	h.broadcasts.Add(1)
	for _, o := range h.conns {
		if o.id == exclude || !o.joined || o.room != room {
			continue
		}
		if o.ch == nil || !o.ch.Open() {
			continue
		}
		if !o.ch.Send(b) {
			h.droppedSends.Add(1)
		}
	}
}

func (h *Hub) sendTo(c *connRecord, msg protocol.ServerMessage) {
	b, err := protocol.Encode(msg)
	if err != nil {
		h.log.Printf("conn %s: encode: %v", c.id, err)
		return
	}
	if c.ch == nil || !c.ch.Open() {
		return
	}
	if !c.ch.Send(b) {
		h.droppedSends.Add(1)
	}
}

func (h *Hub) rooms() []RoomInfo {
	byRoom := map[string]*RoomInfo{}
	for _, c := range h.conns {
		if !c.joined {
			continue
		}
		ri := byRoom[c.room]
		if ri == nil {
			ri = &RoomInfo{ID: c.room}
			byRoom[c.room] = ri
		}
		ri.Members++
		if c.snap != nil {
			ri.WithSnapshot++
		}
	}
	out := make([]RoomInfo, 0, len(byRoom))
	for _, ri := range byRoom {
		out = append(out, *ri)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (h *Hub) writeAudit(e AuditEntry) {
	if h.audit == nil {
		return
	}
	e.Time = time.Now().UTC().Format(time.RFC3339Nano)
	if err := h.audit.WriteAudit(e); err != nil {
		h.log.Printf("audit: %v", err)
	}
}
