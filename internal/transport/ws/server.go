package ws

import (
	"context"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"roomsync.ai/internal/hub"
	"roomsync.ai/internal/protocol"
)

type Options struct {
	// OutboundQueue bounds frames buffered per connection before sends are dropped.
	OutboundQueue int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

type Server struct {
	hub  *hub.Hub
	log  *log.Logger
	opts Options

	upgrader websocket.Upgrader
}

func NewServer(h *hub.Hub, opts Options, logger *log.Logger) *Server {
	if opts.OutboundQueue <= 0 {
		opts.OutboundQueue = 64
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		hub:  h,
		log:  logger,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// conn adapts one websocket connection to hub.Channel.
type conn struct {
	out    chan []byte
	closed atomic.Bool
}

func (c *conn) Send(b []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.out <- b:
		return true
	default:
		return false
	}
}

func (c *conn) Open() bool { return !c.closed.Load() }

func (c *conn) markClosed() { c.closed.Store(true) }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		wsConn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer wsConn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		ch := &conn{out: make(chan []byte, s.opts.OutboundQueue)}
		defer ch.markClosed()

		id, err := s.hub.Connect(ctx, ch)
		if err != nil {
			s.log.Printf("connect: %v", err)
			return
		}
		defer s.hub.Disconnect(id)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-ch.out:
					_ = wsConn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
					if err := wsConn.WriteMessage(websocket.TextMessage, b); err != nil {
						ch.markClosed()
						cancel()
						_ = wsConn.Close()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = wsConn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
			_, msg, err := wsConn.ReadMessage()
			if err != nil {
				ch.markClosed()
				return
			}
			m, err := protocol.DecodeClient(msg)
			if err != nil {
				s.hub.CountUnknown()
				s.log.Printf("conn %s: drop: %v", id, err)
				continue
			}
			if err := s.hub.Deliver(ctx, id, m); err != nil {
				return
			}
		}
	}
}
