// Package transcriptcache persists recognised tokens in SQLite so repeated
// alignments of the same recording skip the speech-to-text call.
//
// Entries are keyed by a SHA-256 digest of the PCM audio and its format,
// together with the provider name, model and language that produced them.
// Only tokens and the transcript text are stored; the audio itself is not.
package transcriptcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/scriptsync/pkg/align"
	"github.com/MrWong99/scriptsync/pkg/provider/stt"
)

// ErrMiss is returned by [Cache.Get] when no usable entry exists.
var ErrMiss = errors.New("transcriptcache: miss")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS transcripts (
	key        TEXT PRIMARY KEY,
	provider   TEXT NOT NULL,
	model      TEXT NOT NULL,
	language   TEXT NOT NULL,
	text       TEXT NOT NULL,
	tokens     TEXT NOT NULL,
	created_at INTEGER NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS transcripts_created_at ON transcripts(created_at)`,
}

// Key identifies the transcription of one recording by one provider
// configuration.
type Key struct {
	Provider string
	Model    string
	Language string
	Audio    stt.Audio
}

// Digest returns the hex-encoded SHA-256 cache key.
func (k Key) Digest() string {
	h := sha256.New()
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[:4], uint32(k.Audio.SampleRate))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(k.Audio.Channels))
	h.Write(hdr[:])
	h.Write(k.Audio.PCM)
	for _, s := range []string{k.Provider, k.Model, k.Language} {
		h.Write([]byte{0})
		h.Write([]byte(s))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Entry is a cached transcription.
type Entry struct {
	Text      string
	Tokens    []align.RecognizedToken
	CreatedAt time.Time
}

// Option configures a [Cache].
type Option func(*Cache)

// WithMaxAge makes [Cache.Get] treat entries older than d as misses. Zero
// disables expiry.
func WithMaxAge(d time.Duration) Option {
	return func(c *Cache) { c.maxAge = d }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Cache is a SQLite-backed transcript store. It is safe for concurrent use.
type Cache struct {
	db     *sql.DB
	path   string
	maxAge time.Duration
	now    func() time.Time
}

// Open creates or opens the cache database at path, creating parent
// directories as needed.
func Open(ctx context.Context, path string, opts ...Option) (*Cache, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("transcriptcache: path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("transcriptcache: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("transcriptcache: open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("transcriptcache: apply pragma %q: %w", pragma, execErr)
		}
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("transcriptcache: init schema: %w", err)
		}
	}

	c := &Cache{db: db, path: path, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Path returns the database file path.
func (c *Cache) Path() string { return c.path }

// Close closes the underlying database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Ping verifies the database is reachable.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("transcriptcache: ping: %w", err)
	}
	return nil
}

// Get returns the entry for key or [ErrMiss].
func (c *Cache) Get(ctx context.Context, key Key) (Entry, error) {
	var (
		text    string
		raw     string
		created int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT text, tokens, created_at FROM transcripts WHERE key = ?`,
		key.Digest(),
	).Scan(&text, &raw, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrMiss
	}
	if err != nil {
		return Entry{}, fmt.Errorf("transcriptcache: get: %w", err)
	}

	e := Entry{Text: text, CreatedAt: time.UnixMilli(created)}
	if c.maxAge > 0 && c.now().Sub(e.CreatedAt) > c.maxAge {
		return Entry{}, ErrMiss
	}
	if err := json.Unmarshal([]byte(raw), &e.Tokens); err != nil {
		return Entry{}, fmt.Errorf("transcriptcache: decode tokens: %w", err)
	}
	if e.Tokens == nil {
		e.Tokens = []align.RecognizedToken{}
	}
	return e, nil
}

// Put stores tokens and text under key, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key Key, text string, tokens []align.RecognizedToken) error {
	if tokens == nil {
		tokens = []align.RecognizedToken{}
	}
	raw, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("transcriptcache: encode tokens: %w", err)
	}
	err = retryOnBusy(ctx, func() error {
		_, err := c.db.ExecContext(ctx, `
INSERT INTO transcripts (key, provider, model, language, text, tokens, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	text = excluded.text,
	tokens = excluded.tokens,
	created_at = excluded.created_at`,
			key.Digest(), key.Provider, key.Model, key.Language, text, string(raw), c.now().UnixMilli())
		return err
	})
	if err != nil {
		return fmt.Errorf("transcriptcache: put: %w", err)
	}
	return nil
}

// Prune deletes entries created before cutoff and returns how many were
// removed.
func (c *Cache) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var err error
		res, err = c.db.ExecContext(ctx, `DELETE FROM transcripts WHERE created_at < ?`, cutoff.UnixMilli())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("transcriptcache: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("transcriptcache: prune: %w", err)
	}
	return n, nil
}

// Len returns the number of stored entries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transcripts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("transcriptcache: count: %w", err)
	}
	return n, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := range busyRetryAttempts {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, busyRetryMaxBackoff)
	}
	return lastErr
}
