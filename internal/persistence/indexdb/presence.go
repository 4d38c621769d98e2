package indexdb

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// PresenceIndex mirrors hub room membership into SQLite for operators.
// Writes are queued and applied by a single writer goroutine; the hub never waits on disk.
type PresenceIndex struct {
	db  *sql.DB
	log *log.Logger

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// sendMu guards ch against a send racing Close.
	sendMu sync.RWMutex
	closed bool

	dropped  atomic.Uint64
	applied  atomic.Uint64
	failures atomic.Uint64
}

type reqKind int

const (
	reqJoin reqKind = iota + 1
	reqLeave
)

type req struct {
	kind   reqKind
	connID string
	room   string
	at     string
}

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	Applied       uint64 `json:"applied"`
	Dropped       uint64 `json:"dropped"`
	Failures      uint64 `json:"failures"`
}

type RoomRow struct {
	Room    string `json:"room"`
	Members int    `json:"members"`
	Since   string `json:"since"`
}

// OpenPresence opens the index for a running hub. Rows left by a previous process are cleared.
func OpenPresence(path string, logger *log.Logger) (*PresenceIndex, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`DELETE FROM presence;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &PresenceIndex{
		db:  db,
		log: logger,
		ch:  make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

// OpenReader opens an existing index for queries only (cmd/admin).
func OpenReader(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return openDB(path)
}

func openDB(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS presence (
			conn_id TEXT PRIMARY KEY,
			room TEXT NOT NULL,
			joined_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_presence_room ON presence(room);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *PresenceIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.sendMu.Lock()
		s.closed = true
		close(s.ch)
		s.sendMu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordJoin upserts the connection's room. A join to a new room replaces the old row.
func (s *PresenceIndex) RecordJoin(connID, room string) {
	s.enqueue(req{kind: reqJoin, connID: connID, room: room, at: time.Now().UTC().Format(time.RFC3339Nano)})
}

func (s *PresenceIndex) RecordLeave(connID string) {
	s.enqueue(req{kind: reqLeave, connID: connID})
}

func (s *PresenceIndex) enqueue(r req) {
	if s == nil {
		return
	}
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- r:
	default:
		// Drop if the writer falls behind; the audit log remains the source of truth.
		s.dropped.Add(1)
	}
}

func (s *PresenceIndex) Stats() Stats {
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		Applied:       s.applied.Load(),
		Dropped:       s.dropped.Load(),
		Failures:      s.failures.Load(),
	}
}

// Rooms reads current occupancy from the index.
func (s *PresenceIndex) Rooms(ctx context.Context) ([]RoomRow, error) {
	return QueryRooms(ctx, s.db)
}

func QueryRooms(ctx context.Context, db *sql.DB) ([]RoomRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT room, COUNT(*), MIN(joined_at) FROM presence GROUP BY room ORDER BY room`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RoomRow
	for rows.Next() {
		var r RoomRow
		if err := rows.Scan(&r.Room, &r.Members, &r.Since); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PresenceIndex) loop() {
	upsert, err := s.db.Prepare(`INSERT INTO presence(conn_id,room,joined_at) VALUES(?,?,?)
		ON CONFLICT(conn_id) DO UPDATE SET room=excluded.room, joined_at=excluded.joined_at`)
	if err != nil {
		s.log.Printf("presence: prepare upsert: %v", err)
	}
	del, err := s.db.Prepare(`DELETE FROM presence WHERE conn_id=?`)
	if err != nil {
		s.log.Printf("presence: prepare delete: %v", err)
	}
	defer func() {
		if upsert != nil {
			_ = upsert.Close()
		}
		if del != nil {
			_ = del.Close()
		}
	}()

	for r := range s.ch {
		var err error
		switch r.kind {
		case reqJoin:
			if upsert == nil {
				continue
			}
			_, err = upsert.Exec(r.connID, r.room, r.at)
		case reqLeave:
			if del == nil {
				continue
			}
			_, err = del.Exec(r.connID)
		}
		if err != nil {
			s.failures.Add(1)
			s.log.Printf("presence: %v", err)
			continue
		}
		s.applied.Add(1)
	}
}
