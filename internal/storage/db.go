package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ErrNotFound is returned by writes that target a post or folder that does not exist
var ErrNotFound = errors.New("not found")

// DB wraps SQLite database operations for posts, folders and settings
type DB struct {
	db     *sql.DB
	logger *zap.SugaredLogger
	now    func() time.Time
}

// Option configures a DB
type Option func(*DB)

// WithLogger sets the logger used for store diagnostics
func WithLogger(l *zap.SugaredLogger) Option {
	return func(d *DB) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock overrides the clock used to stamp added_at/updated_at
func WithClock(now func() time.Time) Option {
	return func(d *DB) {
		if now != nil {
			d.now = now
		}
	}
}

// Open opens or creates a SQLite database and ensures the schema exists
func Open(path string, opts ...Option) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	// Each connection to :memory: is a separate database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable foreign keys and WAL mode
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "exec %q", pragma)
		}
	}

	storage := New(db, opts...)

	if err := storage.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "init schema")
	}

	storage.logger.Debugw("Database opened", "path", path)
	return storage, nil
}

// New wraps an existing connection without touching the schema
func New(db *sql.DB, opts ...Option) *DB {
	d := &DB{
		db:     db,
		logger: zap.NewNop().Sugar(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// initSchema creates tables if they don't exist
func (d *DB) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reddit_id TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		body_text TEXT,
		author TEXT NOT NULL DEFAULT '',
		subreddit TEXT NOT NULL DEFAULT '',
		reddit_created_at TEXT,
		added_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		custom_title TEXT,
		custom_body TEXT,
		notes TEXT,
		rating INTEGER,
		is_read INTEGER NOT NULL DEFAULT 0,
		is_favorite INTEGER NOT NULL DEFAULT 0,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		extra_fields TEXT,
		body_minhash TEXT,
		summary TEXT,
		synced_at TEXT,
		last_sync_status TEXT,
		last_sync_error TEXT
	);

	CREATE TABLE IF NOT EXISTS folders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS post_folders (
		post_id INTEGER NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		folder_id INTEGER NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
		PRIMARY KEY (post_id, folder_id)
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_posts_reddit_id ON posts(reddit_id);
	CREATE INDEX IF NOT EXISTS idx_posts_added ON posts(added_at);
	CREATE INDEX IF NOT EXISTS idx_posts_deleted ON posts(is_deleted);
	CREATE INDEX IF NOT EXISTS idx_post_folders_folder ON post_folders(folder_id);
	`

	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// timestamp returns the current time truncated to the stored precision, so a
// value read back compares equal to the value written
func (d *DB) timestamp() time.Time {
	return d.now().UTC().Truncate(time.Millisecond)
}
