// Package audit provides a durable, append-only record of
// security-relevant events. Every record is persisted twice: appended to
// a cumulative index file and written as its own standalone file. Records
// are immutable and never read back by the server.
package audit

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EventType classifies an audit record.
type EventType string

const (
	EventLogin        EventType = "login"
	EventLogout       EventType = "logout"
	EventChat         EventType = "chat"
	EventChatError    EventType = "chat_error"
	EventAuthRequired EventType = "auth_required"
)

// Record is one immutable audit entry. ID and Timestamp are assigned by
// the log at write time; everything else comes from the caller. UserID is
// empty for unauthenticated attempts.
type Record struct {
	ID        string    `json:"id"`
	Timestamp string    `json:"timestamp"`
	EventType EventType `json:"eventType"`
	OK        bool      `json:"ok"`

	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
	ClientIP  string `json:"clientIp"`
	UserAgent string `json:"userAgent"`
	Path      string `json:"path"`
	Method    string `json:"method"`

	DurationMs     int64  `json:"durationMs,omitempty"`
	UpstreamStatus int    `json:"upstreamStatus,omitempty"`
	Endpoint       string `json:"endpoint,omitempty"`
	Model          string `json:"model,omitempty"`
	UserMessage    string `json:"userMessage,omitempty"`
	Assistant      string `json:"assistant,omitempty"`
	MessagesJSON   string `json:"messagesJson,omitempty"`
	RequestJSON    string `json:"requestJson,omitempty"`
	ResponseJSON   string `json:"responseJson,omitempty"`
	ErrorJSON      string `json:"errorJson,omitempty"`
}

// Recorder is the write side of the audit log. Writes are best-effort:
// they never block the caller's primary action and never return an error
// to it.
type Recorder interface {
	Write(Record)
	Close() error
}

// Noop discards all records.
type Noop struct{}

func (Noop) Write(Record) {}

func (Noop) Close() error { return nil }

// Config controls the file-backed audit log.
type Config struct {
	Dir       string
	QueueSize int
}

const indexFileName = "interactions.json"

// Log is the file-backed Recorder. All writes are serialized through a
// single worker goroutine, so overlapping requests cannot race on the
// index file's read-modify-write cycle.
type Log struct {
	dir       string
	indexPath string
	logger    *slog.Logger

	queue   chan Record
	drained chan struct{}

	mu     sync.RWMutex
	closed bool
}

// New creates the log directory if needed and starts the writer.
func New(cfg Config, logger *slog.Logger) (*Log, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("audit log dir is not set")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit log dir: %w", err)
	}

	l := &Log{
		dir:       cfg.Dir,
		indexPath: filepath.Join(cfg.Dir, indexFileName),
		logger:    logger,
		queue:     make(chan Record, cfg.QueueSize),
		drained:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// Write queues one record for persistence, assigning its ID and timestamp
// if unset. It never blocks: if the queue is full the record is dropped
// and the loss reported to the operational log.
func (l *Log) Write(rec Record) {
	if rec.ID == "" {
		rec.ID = newRecordID()
	}
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.logger.Warn("audit log closed, dropping record", "event_type", rec.EventType, "id", rec.ID)
		return
	}
	select {
	case l.queue <- rec:
	default:
		l.logger.Warn("audit queue full, dropping record", "event_type", rec.EventType, "id", rec.ID)
	}
}

// Close stops accepting records and waits for queued ones to be written.
func (l *Log) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()
	<-l.drained
	return nil
}

func (l *Log) run() {
	defer close(l.drained)
	for rec := range l.queue {
		if err := l.persist(rec); err != nil {
			l.logger.Error("audit write failed", "error", err, "event_type", rec.EventType, "id", rec.ID)
		}
	}
}

// persist attempts both targets independently: an index failure must not
// cost us the standalone copy, and vice versa.
func (l *Log) persist(rec Record) error {
	indexErr := l.appendIndex(rec)
	fileErr := l.writeRecordFile(rec)
	if indexErr != nil || fileErr != nil {
		return fmt.Errorf("index: %v, record file: %v", indexErr, fileErr)
	}
	return nil
}

// appendIndex rewrites the cumulative index with the new record appended.
// A missing or corrupt index is treated as empty rather than failing the
// write. The replace goes through a temp file and rename, which is atomic
// only where the filesystem supports atomic rename.
func (l *Log) appendIndex(rec Record) error {
	records := l.readIndex()
	records = append(records, rec)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	data = append(data, '\n')

	tmp := l.indexPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index temp file: %w", err)
	}
	if err := os.Rename(tmp, l.indexPath); err != nil {
		// Some filesystems refuse to rename over an existing file.
		if rmErr := os.Remove(l.indexPath); rmErr != nil {
			return fmt.Errorf("replace index: %w", err)
		}
		if err := os.Rename(tmp, l.indexPath); err != nil {
			return fmt.Errorf("replace index: %w", err)
		}
	}
	return nil
}

func (l *Log) readIndex() []Record {
	raw, err := os.ReadFile(l.indexPath)
	if err != nil {
		return nil
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		l.logger.Warn("audit index unreadable, resetting to empty", "error", err, "path", l.indexPath)
		return nil
	}
	return records
}

var stampReplacer = strings.NewReplacer(":", "-", ".", "-")

// writeRecordFile writes the record's permanent standalone copy, named by
// timestamp and ID prefix so names are unique and sort by arrival.
func (l *Log) writeRecordFile(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	data = append(data, '\n')

	name := fmt.Sprintf("interaction-%s-%s.json", stampReplacer.Replace(rec.Timestamp), rec.ID[:8])
	if err := os.WriteFile(filepath.Join(l.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write record file: %w", err)
	}
	return nil
}

func newRecordID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the platform source is broken.
		return fmt.Sprintf("ts%032x", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

// Snapshot serializes a value for forensic replay fields. Unserializable
// values are recorded as such instead of failing the audit write.
func Snapshot(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"unserializable":true,"type":%q}`, fmt.Sprintf("%T", v))
	}
	return string(b)
}
