package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"roomsync.ai/internal/hub"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 32*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// AuditLogger writes hub membership events as compressed JSONL.
// WriteAudit only queues; a background goroutine owns the file.
type AuditLogger struct {
	w *JSONLZstdWriter

	ch   chan hub.AuditEntry
	done chan struct{}
	once sync.Once

	// sendMu guards ch against a send racing Close.
	sendMu  sync.RWMutex
	closed  bool
	dropped atomic.Uint64
	lastErr atomic.Value // string
}

func NewAuditLogger(dataDir string) *AuditLogger {
	l := &AuditLogger{
		w:    NewJSONLZstdWriter(filepath.Join(dataDir, "audit"), "audit"),
		ch:   make(chan hub.AuditEntry, 4096),
		done: make(chan struct{}),
	}
	go l.loop()
	return l
}

func (l *AuditLogger) loop() {
	defer close(l.done)
	for e := range l.ch {
		if err := l.w.Write(e); err != nil {
			l.lastErr.Store(err.Error())
		}
	}
}

func (l *AuditLogger) WriteAudit(e hub.AuditEntry) error {
	l.sendMu.RLock()
	defer l.sendMu.RUnlock()
	if l.closed {
		return fmt.Errorf("audit log closed")
	}
	select {
	case l.ch <- e:
		return nil
	default:
		l.dropped.Add(1)
		return fmt.Errorf("audit queue full")
	}
}

func (l *AuditLogger) Dropped() uint64 { return l.dropped.Load() }

func (l *AuditLogger) LastError() string {
	s, _ := l.lastErr.Load().(string)
	return s
}

// Close drains queued entries and finalizes the current file.
func (l *AuditLogger) Close() error {
	var err error
	l.once.Do(func() {
		l.sendMu.Lock()
		l.closed = true
		close(l.ch)
		l.sendMu.Unlock()
		<-l.done
		err = l.w.Close()
	})
	return err
}

// AuditFiles lists audit files under dataDir in chronological order.
func AuditFiles(dataDir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dataDir, "audit", "audit-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadAudit decodes every entry of one compressed JSONL file.
func ReadAudit(path string, fn func(hub.AuditEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	return readJSONL(dec, fn)
}

func readJSONL(r io.Reader, fn func(hub.AuditEntry) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e hub.AuditEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return fmt.Errorf("%s: %w", line, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}
