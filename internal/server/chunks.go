package server

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"

	"github.com/renderinc/reddit-stash/internal/embeddings"
	"github.com/renderinc/reddit-stash/internal/storage"
)

// ErrCollectionNotFound is returned when reading a collection nothing has been synced into
var ErrCollectionNotFound = errors.New("collection not found")

// Chunk is one embedded post in a collection
type Chunk struct {
	PostID      int64
	ContentHash string
	Text        string
	Metadata    string // JSON object
	Embedding   []float32
	UpdatedAt   time.Time
}

// ChunkStore keeps one SQLite table per collection
type ChunkStore struct {
	db *sql.DB

	mu    sync.Mutex
	known map[string]bool
}

// OpenChunkStore opens or creates the chunk database
func OpenChunkStore(path string) (*ChunkStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open chunk database")
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "exec %q", pragma)
		}
	}

	return &ChunkStore{db: db, known: map[string]bool{}}, nil
}

// Close closes the database
func (s *ChunkStore) Close() error {
	return s.db.Close()
}

// validCollection guards table names, which cannot be bound as parameters
func validCollection(name string) bool {
	if !strings.HasPrefix(name, "chunks_") {
		return false
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			return false
		}
	}
	return true
}

func (s *ChunkStore) ensure(ctx context.Context, collection string) error {
	if !validCollection(collection) {
		return errors.Newf("invalid collection name %q", collection)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.known[collection] {
		return nil
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		post_id INTEGER PRIMARY KEY,
		content_hash TEXT NOT NULL,
		text TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		embedding BLOB NOT NULL,
		updated_at TEXT NOT NULL
	)`, collection)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrapf(err, "create collection %s", collection)
	}

	s.known[collection] = true
	return nil
}

func (s *ChunkStore) exists(ctx context.Context, collection string) (bool, error) {
	if !validCollection(collection) {
		return false, nil
	}

	s.mu.Lock()
	known := s.known[collection]
	s.mu.Unlock()
	if known {
		return true, nil
	}

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, collection).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "check collection")
	}
	return n > 0, nil
}

// Hash returns the stored content hash for a post, or "" when absent
func (s *ChunkStore) Hash(ctx context.Context, collection string, postID int64) (string, error) {
	ok, err := s.exists(ctx, collection)
	if err != nil || !ok {
		return "", err
	}

	var hash string
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT content_hash FROM %s WHERE post_id = ?`, collection), postID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "read content hash")
	}
	return hash, nil
}

// Upsert inserts or replaces a chunk, creating the collection on first use
func (s *ChunkStore) Upsert(ctx context.Context, collection string, c *Chunk) error {
	if err := s.ensure(ctx, collection); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (post_id, content_hash, text, metadata, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(post_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			text = excluded.text,
			metadata = excluded.metadata,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
	`, collection)

	_, err := s.db.ExecContext(ctx, query,
		c.PostID, c.ContentHash, c.Text, c.Metadata,
		embeddings.SerializeEmbedding(c.Embedding),
		storage.FormatTimestamp(c.UpdatedAt),
	)
	return errors.Wrapf(err, "upsert post %d", c.PostID)
}

// TouchMetadata refreshes metadata for an unchanged chunk without re-embedding
func (s *ChunkStore) TouchMetadata(ctx context.Context, collection string, postID int64, metadata string, at time.Time) error {
	if err := s.ensure(ctx, collection); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE %s SET metadata = ?, updated_at = ? WHERE post_id = ?`, collection),
		metadata, storage.FormatTimestamp(at), postID)
	return errors.Wrapf(err, "update metadata for post %d", postID)
}

// Delete removes a post from a collection. Missing rows are not an error.
func (s *ChunkStore) Delete(ctx context.Context, collection string, postID int64) error {
	ok, err := s.exists(ctx, collection)
	if err != nil || !ok {
		return err
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE post_id = ?`, collection), postID)
	return errors.Wrapf(err, "delete post %d", postID)
}

// Get returns one chunk, or nil when absent
func (s *ChunkStore) Get(ctx context.Context, collection string, postID int64) (*Chunk, error) {
	ok, err := s.exists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(ErrCollectionNotFound, "%s", collection)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT post_id, content_hash, text, metadata, embedding, updated_at
		FROM %s WHERE post_id = ?
	`, collection), postID)
	if err != nil {
		return nil, errors.Wrap(err, "query chunk")
	}
	chunks, err := scanChunks(rows)
	if err != nil || len(chunks) == 0 {
		return nil, err
	}
	return chunks[0], nil
}

// All returns every chunk in a collection
func (s *ChunkStore) All(ctx context.Context, collection string) ([]*Chunk, error) {
	ok, err := s.exists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(ErrCollectionNotFound, "%s", collection)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT post_id, content_hash, text, metadata, embedding, updated_at
		FROM %s ORDER BY post_id
	`, collection))
	if err != nil {
		return nil, errors.Wrap(err, "query chunks")
	}
	return scanChunks(rows)
}

// Collections lists every collection table
func (s *ChunkStore) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'chunks\_%' ESCAPE '\' ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "list collections")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "scan collection")
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func scanChunks(rows *sql.Rows) ([]*Chunk, error) {
	defer rows.Close()

	var chunks []*Chunk
	for rows.Next() {
		var (
			c         Chunk
			blob      []byte
			updatedAt string
		)
		if err := rows.Scan(&c.PostID, &c.ContentHash, &c.Text, &c.Metadata, &blob, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "scan chunk")
		}
		c.Embedding = embeddings.DeserializeEmbedding(blob)
		if t, err := storage.ParseTimestamp(updatedAt); err == nil {
			c.UpdatedAt = t
		}
		chunks = append(chunks, &c)
	}
	return chunks, rows.Err()
}
