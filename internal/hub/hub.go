package hub

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"roomsync.ai/internal/protocol"
)

var ErrStopped = errors.New("hub: stopped")

// Channel is the hub's handle on one client connection. Send must not block.
type Channel interface {
	// Send queues one encoded frame and reports whether it was accepted.
	Send(b []byte) bool
	// Open reports whether the underlying connection can still take frames.
	Open() bool
}

type Config struct {
	DefaultRoom string
	// EventQueue bounds the dispatch queue shared by all connections.
	EventQueue int
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// PresenceIndex mirrors room membership into a read model. Implementations must not block.
type PresenceIndex interface {
	RecordJoin(connID, room string)
	RecordLeave(connID string)
}

type AuditEntry struct {
	Time     string `json:"time"`
	Conn     string `json:"conn"`
	Action   string `json:"action"` // CONNECT, JOIN, LEAVE, DISCONNECT
	Room     string `json:"room,omitempty"`
	FromRoom string `json:"from_room,omitempty"`
}

type RoomInfo struct {
	ID           string `json:"id"`
	Members      int    `json:"members"`
	WithSnapshot int    `json:"with_snapshot"`
}

type Metrics struct {
	Connections  int64  `json:"connections"`
	Joined       int64  `json:"joined"`
	MessagesIn   uint64 `json:"messages_in"`
	Broadcasts   uint64 `json:"broadcasts"`
	DroppedSends uint64 `json:"dropped_sends"`
	Unknown      uint64 `json:"unknown"`
}

// Hub relays avatar snapshots between connections that share a room.
// All connection state is owned by the Run goroutine; other goroutines talk to it through events.
type Hub struct {
	cfg Config
	log *log.Logger

	events chan event
	done   chan struct{}

	conns map[string]*connRecord

	// Optional sinks (may be nil). Implemented in internal/persistence/*.
	audit    AuditLogger
	presence PresenceIndex

	newID func() string

	connections  atomic.Int64
	joined       atomic.Int64
	messagesIn   atomic.Uint64
	broadcasts   atomic.Uint64
	droppedSends atomic.Uint64
	unknown      atomic.Uint64
}

type eventKind int

const (
	evConnect eventKind = iota + 1
	evMessage
	evDisconnect
	evRooms
)

type event struct {
	kind eventKind
	id   string
	ch   Channel
	msg  protocol.ClientMessage

	idResp    chan string
	roomsResp chan []RoomInfo
}

func New(cfg Config, logger *log.Logger) *Hub {
	cfg.DefaultRoom = strings.TrimSpace(cfg.DefaultRoom)
	if cfg.DefaultRoom == "" {
		cfg.DefaultRoom = "lobby"
	}
	if cfg.EventQueue <= 0 {
		cfg.EventQueue = 1024
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		cfg:    cfg,
		log:    logger,
		events: make(chan event, cfg.EventQueue),
		done:   make(chan struct{}),
		conns:  map[string]*connRecord{},
		newID:  uuid.NewString,
	}
}

func (h *Hub) SetAuditLogger(a AuditLogger)     { h.audit = a }
func (h *Hub) SetPresenceIndex(p PresenceIndex) { h.presence = p }

func (h *Hub) DefaultRoom() string { return h.cfg.DefaultRoom }

// Run is the single dispatch loop. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-h.events:
			h.dispatch(ev)
		}
	}
}

// Connect registers a new, unjoined connection and returns its hub-assigned id.
func (h *Hub) Connect(ctx context.Context, ch Channel) (string, error) {
	resp := make(chan string, 1)
	if err := h.enqueue(ctx, event{kind: evConnect, ch: ch, idResp: resp}); err != nil {
		return "", err
	}
	select {
	case id := <-resp:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-h.done:
		return "", ErrStopped
	}
}

// Deliver hands a decoded client message to the dispatch loop.
func (h *Hub) Deliver(ctx context.Context, id string, msg protocol.ClientMessage) error {
	return h.enqueue(ctx, event{kind: evMessage, id: id, msg: msg})
}

// Disconnect removes the connection. It is safe to call more than once.
func (h *Hub) Disconnect(id string) {
	_ = h.enqueue(context.Background(), event{kind: evDisconnect, id: id})
}

// Rooms reports current occupancy, answered from the dispatch loop.
func (h *Hub) Rooms(ctx context.Context) ([]RoomInfo, error) {
	resp := make(chan []RoomInfo, 1)
	if err := h.enqueue(ctx, event{kind: evRooms, roomsResp: resp}); err != nil {
		return nil, err
	}
	select {
	case rooms := <-resp:
		return rooms, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return nil, ErrStopped
	}
}

func (h *Hub) Metrics() Metrics {
	return Metrics{
		Connections:  h.connections.Load(),
		Joined:       h.joined.Load(),
		MessagesIn:   h.messagesIn.Load(),
		Broadcasts:   h.broadcasts.Load(),
		DroppedSends: h.droppedSends.Load(),
		Unknown:      h.unknown.Load(),
	}
}

// CountUnknown records a frame the transport dropped before it reached the hub.
func (h *Hub) CountUnknown() { h.unknown.Add(1) }

func (h *Hub) enqueue(ctx context.Context, ev event) error {
	select {
	case <-h.done:
		return ErrStopped
	default:
	}
	select {
	case h.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrStopped
	}
}

func (h *Hub) dispatch(ev event) {
	switch ev.kind {
	case evConnect:
		ev.idResp <- h.handleConnect(ev.ch)
	case evMessage:
		h.messagesIn.Add(1)
		h.handleMessage(ev.id, ev.msg)
	case evDisconnect:
		h.handleDisconnect(ev.id)
	case evRooms:
		ev.roomsResp <- h.rooms()
	}
}
