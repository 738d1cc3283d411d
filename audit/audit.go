// Package audit keeps a trail of host calls in SQLite.
//
// Entries are queued by a kit middleware and written in batches by one
// goroutine; a full queue falls back to a synchronous insert.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/readmark/annotate"
	"github.com/hazyhaar/readmark/dbopen"
	"github.com/hazyhaar/readmark/idgen"
	"github.com/hazyhaar/readmark/kit"
)

// Schema creates the audit table.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	entry_id    TEXT PRIMARY KEY,
	ts          INTEGER NOT NULL,
	op          TEXT NOT NULL,
	transport   TEXT NOT NULL DEFAULT '',
	page_id     TEXT NOT NULL DEFAULT '',
	trace_id    TEXT NOT NULL DEFAULT '',
	params      TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	error_code  TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_audit_page ON audit_log(page_id, ts);
`

// Init creates the audit table in db.
func Init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("audit: init: %w", err)
	}
	return nil
}

// Entry is one recorded host call.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Op         string    `json:"op"`
	Transport  string    `json:"transport"`
	PageID     string    `json:"pageId,omitempty"`
	TraceID    string    `json:"traceId,omitempty"`
	Params     string    `json:"params,omitempty"`
	Status     string    `json:"status"`
	ErrorCode  string    `json:"errorCode,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"durationMs"`
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	PageID string
	Op     string
	Since  time.Time
	// Limit defaults to 100.
	Limit int
}

// Option configures a Logger.
type Option func(*Logger)

// WithIDs sets the entry id generator.
func WithIDs(gen idgen.Generator) Option { return func(l *Logger) { l.newID = gen } }

// WithFlushInterval sets how often queued entries are written. Default: 2s.
func WithFlushInterval(d time.Duration) Option { return func(l *Logger) { l.interval = d } }

// WithLogger sets the logger for write failures.
func WithLogger(lg *slog.Logger) Option { return func(l *Logger) { l.logger = lg } }

// Logger writes audit entries.
type Logger struct {
	db       *sql.DB
	newID    idgen.Generator
	interval time.Duration
	logger   *slog.Logger

	ch   chan Entry
	stop chan struct{}
	done chan struct{}
}

// New starts a Logger over db, which must carry Schema. bufferSize defaults
// to 1000.
func New(db *sql.DB, bufferSize int, opts ...Option) *Logger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	l := &Logger{
		db:       db,
		newID:    idgen.Prefixed("audit_", idgen.Default),
		interval: 2 * time.Second,
		logger:   slog.Default(),
		ch:       make(chan Entry, bufferSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.flushLoop()
	return l
}

// Middleware records every call of the endpoint named op.
func (l *Logger) Middleware(op string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			e := Entry{
				Timestamp:  start,
				Op:         op,
				Transport:  kit.GetTransport(ctx),
				PageID:     kit.GetPageID(ctx),
				TraceID:    kit.GetTraceID(ctx),
				DurationMs: time.Since(start).Milliseconds(),
				Status:     "success",
			}
			if b, merr := json.Marshal(req); merr == nil {
				e.Params = truncate(string(b), maxParams)
			}
			if err != nil {
				e.Status = "error"
				e.ErrorCode = annotate.ErrorCode(err)
				e.Error = err.Error()
			}
			l.LogAsync(e)
			return resp, err
		}
	}
}

// Log writes e now.
func (l *Logger) Log(ctx context.Context, e Entry) error {
	l.fill(&e)
	return l.insert(ctx, e)
}

// LogAsync queues e.
func (l *Logger) LogAsync(e Entry) {
	l.fill(&e)
	select {
	case l.ch <- e:
	default:
		l.logger.Warn("audit: buffer full, writing synchronously", "op", e.Op)
		if err := l.insert(context.Background(), e); err != nil {
			l.logger.Error("audit: sync insert", "error", err)
		}
	}
}

// Query returns matching entries, newest first.
func (l *Logger) Query(ctx context.Context, f Filter) ([]Entry, error) {
	q := `SELECT entry_id, ts, op, transport, page_id, trace_id, params,
		status, error_code, error, duration_ms FROM audit_log WHERE 1=1`
	var args []any
	if f.PageID != "" {
		q += " AND page_id = ?"
		args = append(args, f.PageID)
	}
	if f.Op != "" {
		q += " AND op = ?"
		args = append(args, f.Op)
	}
	if !f.Since.IsZero() {
		q += " AND ts >= ?"
		args = append(args, f.Since.UnixMilli())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " ORDER BY ts DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e  Entry
			ts int64
		)
		if err := rows.Scan(&e.ID, &ts, &e.Op, &e.Transport, &e.PageID, &e.TraceID,
			&e.Params, &e.Status, &e.ErrorCode, &e.Error, &e.DurationMs); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Timestamp = time.UnixMilli(ts).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cleanup deletes entries older than retention.
func (l *Logger) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	res, err := dbopen.Exec(ctx, l.db, "DELETE FROM audit_log WHERE ts < ?",
		time.Now().Add(-retention).UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("audit: cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close drains the queue and stops the writer.
func (l *Logger) Close() error {
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
	<-l.done
	return nil
}

func (l *Logger) fill(e *Entry) {
	if e.ID == "" {
		e.ID = l.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Status == "" {
		e.Status = "success"
		if e.Error != "" {
			e.Status = "error"
		}
	}
}

func (l *Logger) flushLoop() {
	defer close(l.done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	batch := make([]Entry, 0, 100)

	for {
		select {
		case <-l.stop:
			l.write(l.drain(batch))
			return
		case e := <-l.ch:
			batch = append(batch, e)
			if len(batch) >= 100 {
				l.write(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			l.write(batch)
			batch = batch[:0]
		}
	}
}

func (l *Logger) drain(batch []Entry) []Entry {
	for {
		select {
		case e := <-l.ch:
			batch = append(batch, e)
		default:
			return batch
		}
	}
}

func (l *Logger) write(batch []Entry) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := dbopen.RunTx(ctx, l.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, insertSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range batch {
			if _, err := stmt.ExecContext(ctx, args(e)...); err != nil {
				return fmt.Errorf("insert %s: %w", e.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		l.logger.Error("audit: write batch", "entries", len(batch), "error", err)
	}
}

const insertSQL = `INSERT OR IGNORE INTO audit_log
	(entry_id, ts, op, transport, page_id, trace_id, params, status, error_code, error, duration_ms)
	VALUES (?,?,?,?,?,?,?,?,?,?,?)`

func (l *Logger) insert(ctx context.Context, e Entry) error {
	_, err := dbopen.Exec(ctx, l.db, insertSQL, args(e)...)
	return err
}

// maxParams caps the stored request JSON; inline article HTML can be large.
const maxParams = 1024

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}

func args(e Entry) []any {
	return []any{e.ID, e.Timestamp.UnixMilli(), e.Op, e.Transport, e.PageID, e.TraceID,
		e.Params, e.Status, e.ErrorCode, e.Error, e.DurationMs}
}
