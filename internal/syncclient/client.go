package syncclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"roomsync.ai/internal/protocol"
)

// ErrDisposed is returned by a Connect whose dial was overtaken by Dispose.
var ErrDisposed = errors.New("syncclient: disposed")

// Handler applies hub traffic to the local world. It is only called from Pump.
type Handler interface {
	SetLocalID(id string)
	ApplySnapshot(snap protocol.Snapshot)
	RemoveProxy(id string)
	Clear()
}

type Config struct {
	URL            string
	Room           string
	SendInterval   time.Duration
	ReconnectDelay time.Duration
	Dialer         *websocket.Dialer
}

type Status struct {
	Connected bool
	Joined    bool
	ID        string
	Room      string
	RTT       time.Duration
	LastError string
}

// inbound is one queued event for Pump; lost marks a dropped connection.
type inbound struct {
	msg  protocol.ServerMessage
	lost bool
}

// Client owns one connection to the hub plus the reconnection policy.
type Client struct {
	cfg Config
	log *log.Logger

	mu sync.Mutex

	conn     *websocket.Conn
	joined   bool
	id       string
	room     string
	lastSend time.Time
	rtt      time.Duration
	lastErr  string

	pending []inbound

	reconnect    *time.Timer
	suppressNext bool
	// gen is bumped by Dispose; dials and timers started under an older gen are abandoned.
	gen uint64

	writeMu sync.Mutex
}

func New(cfg Config, logger *log.Logger) *Client {
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = 125 * time.Millisecond
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Client{cfg: cfg, log: logger, room: strings.TrimSpace(cfg.Room)}
}

// Connect dials the hub and sends join. On failure a reconnection is scheduled.
func (c *Client) Connect() error {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	conn, resp, err := c.cfg.Dialer.Dial(c.cfg.URL, http.Header{})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.mu.Lock()
		stale := c.gen != gen
		if !stale {
			c.lastErr = err.Error()
		}
		c.mu.Unlock()
		if stale {
			return ErrDisposed
		}
		c.log.Printf("dial %s: %v", c.cfg.URL, err)
		c.scheduleReconnect(gen)
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrDisposed
	}
	c.conn = conn
	c.joined = false
	c.lastErr = ""
	room := strings.TrimSpace(c.cfg.Room)
	c.mu.Unlock()

	go c.readLoop(conn)

	if err := c.write(protocol.JoinMsg{Room: room}); err != nil {
		c.log.Printf("send join: %v", err)
		return err
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			c.onClose(conn, err)
			return
		}
		m, err := protocol.DecodeServer(b)
		if err != nil {
			c.log.Printf("drop: %v", err)
			continue
		}
		switch msg := m.(type) {
		case protocol.PongMsg:
			c.onPong(msg)
		case protocol.InitMsg:
			c.mu.Lock()
			if want := strings.TrimSpace(c.cfg.Room); want != "" && want != msg.RoomID {
				c.log.Printf("room mismatch: requested %q, hub assigned %q", want, msg.RoomID)
			}
			c.id = msg.ID
			c.room = msg.RoomID
			c.joined = true
			c.pending = append(c.pending, inbound{msg: msg})
			c.mu.Unlock()
		default:
			c.mu.Lock()
			c.pending = append(c.pending, inbound{msg: m})
			c.mu.Unlock()
		}
	}
}

func (c *Client) onClose(conn *websocket.Conn, err error) {
	_ = conn.Close()

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.joined = false
	c.pending = append(c.pending, inbound{lost: true})
	self := c.suppressNext
	c.suppressNext = false
	gen := c.gen
	if !self {
		c.lastErr = err.Error()
	}
	c.mu.Unlock()

	if self {
		return
	}
	c.log.Printf("connection lost: %v; reconnecting in %s", err, c.cfg.ReconnectDelay)
	c.scheduleReconnect(gen)
}

// scheduleReconnect arms at most one retry, and none once Dispose has moved past gen.
func (c *Client) scheduleReconnect(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reconnect != nil || c.gen != gen {
		return
	}
	c.reconnect = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.reconnect = nil
		c.mu.Unlock()
		_ = c.Connect()
	})
}

// Dispose closes the connection without triggering a reconnection, cancels any pending attempt
// and abandons a dial that is still in flight.
func (c *Client) Dispose() {
	c.mu.Lock()
	c.gen++
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	conn := c.conn
	if conn != nil {
		c.suppressNext = true
	}
	c.mu.Unlock()

	if conn == nil {
		return
	}
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "dispose"), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	_ = conn.Close()
}

// Pump drains queued hub traffic into h. Call it from the update tick.
func (c *Client) Pump(h Handler) int {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, in := range batch {
		if in.lost {
			h.Clear()
			continue
		}
		switch m := in.msg.(type) {
		case protocol.InitMsg:
			h.SetLocalID(m.ID)
			for _, p := range m.Players {
				h.ApplySnapshot(p)
			}
		case protocol.PlayerUpdateMsg:
			h.ApplySnapshot(m.Player)
		case protocol.PlayerLeaveMsg:
			h.RemoveProxy(m.ID)
		default:
			c.log.Printf("unexpected message %T", m)
		}
	}
	return len(batch)
}

// MaybeSendState sends a fresh snapshot if the client has joined and the send interval elapsed.
func (c *Client) MaybeSendState(now time.Time, build func() protocol.Snapshot) bool {
	c.mu.Lock()
	if c.conn == nil || !c.joined || (!c.lastSend.IsZero() && now.Sub(c.lastSend) < c.cfg.SendInterval) {
		c.mu.Unlock()
		return false
	}
	c.lastSend = now
	c.mu.Unlock()

	if err := c.write(protocol.StateMsg{Player: build()}); err != nil {
		c.log.Printf("send state: %v", err)
		return false
	}
	return true
}

// Ping sends the current time in milliseconds; the matching pong updates RTT.
func (c *Client) Ping(now time.Time) error {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	return c.write(protocol.PingMsg{Timestamp: json.RawMessage(ts)})
}

func (c *Client) onPong(m protocol.PongMsg) {
	var ms float64
	if err := json.Unmarshal(m.Timestamp, &ms); err != nil {
		return
	}
	rtt := time.Since(time.UnixMilli(int64(ms)))
	if rtt < 0 {
		rtt = 0
	}
	c.mu.Lock()
	c.rtt = rtt
	c.mu.Unlock()
}

func (c *Client) RTT() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rtt
}

func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Connected: c.conn != nil,
		Joined:    c.joined,
		ID:        c.id,
		Room:      c.room,
		RTT:       c.rtt,
		LastError: c.lastErr,
	}
}

func (c *Client) write(msg any) error {
	b, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
