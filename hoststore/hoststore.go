// Package hoststore is a reference host-side store for highlights. It
// subscribes to the bridge like any host would and keeps every page's
// highlights in SQLite, keyed by the article URL so they outlive the page
// session.
package hoststore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/readmark/bridge"
	"github.com/hazyhaar/readmark/dbopen"
)

// Schema is applied on Open.
const Schema = `
CREATE TABLE IF NOT EXISTS pages (
    id        TEXT PRIMARY KEY,
    url       TEXT NOT NULL,
    title     TEXT NOT NULL DEFAULT '',
    opened_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);

CREATE TABLE IF NOT EXISTS highlights (
    url        TEXT NOT NULL,
    id         TEXT NOT NULL,
    page_id    TEXT NOT NULL,
    text       TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (url, id)
);
`

// ErrUnknownPage is returned for a message whose page was never registered.
var ErrUnknownPage = errors.New("hoststore: unknown page")

// Record is one stored highlight.
type Record struct {
	URL       string    `json:"url"`
	ID        string    `json:"id"`
	PageID    string    `json:"pageId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists highlights.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open opens or creates the store at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("hoststore: %w", err)
	}
	return New(db, opts...), nil
}

// New wraps an open database that already carries Schema.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// DB returns the underlying database.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// RegisterPage records which article a page session shows.
func (s *Store) RegisterPage(ctx context.Context, pageID, url, title string) error {
	_, err := dbopen.Exec(ctx, s.db,
		`INSERT INTO pages (id, url, title, opened_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET url = excluded.url, title = excluded.title`,
		pageID, url, title, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("hoststore: register page: %w", err)
	}
	return nil
}

// Highlights lists the stored highlights of url, oldest first.
func (s *Store) Highlights(ctx context.Context, url string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, id, page_id, text, created_at FROM highlights
		 WHERE url = ? ORDER BY created_at, rowid`, url)
	if err != nil {
		return nil, fmt.Errorf("hoststore: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var ms int64
		if err := rows.Scan(&r.URL, &r.ID, &r.PageID, &r.Text, &ms); err != nil {
			return nil, fmt.Errorf("hoststore: scan: %w", err)
		}
		r.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Apply updates the store from one bridge message. Messages other than
// highlight lifecycle notifications are ignored.
func (s *Store) Apply(ctx context.Context, msg bridge.Message) error {
	switch msg.Type {
	case bridge.KindHighlightCreated, bridge.KindHighlightRemoved, bridge.KindAllHighlightsRemoved:
	default:
		return nil
	}
	url, err := s.pageURL(ctx, msg.Page)
	if err != nil {
		return err
	}

	switch msg.Type {
	case bridge.KindHighlightCreated:
		var p bridge.HighlightCreated
		if err := payload(msg.Data, &p); err != nil {
			return err
		}
		_, err = dbopen.Exec(ctx, s.db,
			`INSERT INTO highlights (url, id, page_id, text, created_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(url, id) DO UPDATE SET text = excluded.text`,
			url, p.ID, msg.Page, p.Text, p.Timestamp)
	case bridge.KindHighlightRemoved:
		var p bridge.HighlightRemoved
		if err := payload(msg.Data, &p); err != nil {
			return err
		}
		_, err = dbopen.Exec(ctx, s.db, `DELETE FROM highlights WHERE url = ? AND id = ?`, url, p.ID)
	case bridge.KindAllHighlightsRemoved:
		_, err = dbopen.Exec(ctx, s.db, `DELETE FROM highlights WHERE url = ?`, url)
	}
	if err != nil {
		return fmt.Errorf("hoststore: %s: %w", msg.Type, err)
	}
	s.logger.Debug("hoststore: applied", "type", msg.Type, "page", msg.Page, "url", url)
	return nil
}

// Sink returns a bridge sink feeding Apply.
func (s *Store) Sink() bridge.Sink {
	return bridge.Func(s.Apply)
}

func (s *Store) pageURL(ctx context.Context, pageID string) (string, error) {
	var url string
	err := s.db.QueryRowContext(ctx, `SELECT url FROM pages WHERE id = ?`, pageID).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %q", ErrUnknownPage, pageID)
	}
	if err != nil {
		return "", fmt.Errorf("hoststore: page lookup: %w", err)
	}
	return url, nil
}

// payload decodes message data into dst. In-process messages carry the
// typed value; anything else goes through JSON.
func payload[T any](data any, dst *T) error {
	if v, ok := data.(T); ok {
		*dst = v
		return nil
	}
	if v, ok := data.(*T); ok && v != nil {
		*dst = *v
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("hoststore: payload: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("hoststore: payload: %w", err)
	}
	return nil
}
