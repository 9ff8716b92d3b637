package storage

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"
)

const postColumns = `
	id, reddit_id, url, title, body_text, author, subreddit, reddit_created_at,
	added_at, updated_at, custom_title, custom_body, notes, rating,
	is_read, is_favorite, is_deleted, extra_fields, body_minhash, summary,
	synced_at, last_sync_status, last_sync_error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*Post, error) {
	var p Post
	var bodyText, customTitle, customBody sql.NullString
	var notes, extra, minhash, summary sql.NullString
	var redditCreated, addedAt, updatedAt sql.NullString
	var syncedAt, syncStatus, syncErr sql.NullString
	var rating sql.NullInt64
	var isRead, isFavorite, isDeleted int

	err := row.Scan(
		&p.ID, &p.RedditID, &p.URL, &p.Title, &bodyText, &p.Author, &p.Subreddit, &redditCreated,
		&addedAt, &updatedAt, &customTitle, &customBody, &notes, &rating,
		&isRead, &isFavorite, &isDeleted, &extra, &minhash, &summary,
		&syncedAt, &syncStatus, &syncErr,
	)
	if err != nil {
		return nil, err
	}

	p.BodyText = nullableString(bodyText)
	p.CustomTitle = nullableString(customTitle)
	p.CustomBody = nullableString(customBody)
	p.Notes = nullableString(notes)
	p.ExtraFields = nullableString(extra)
	p.BodyMinHash = nullableString(minhash)
	p.Summary = nullableString(summary)
	p.LastSyncStatus = nullableString(syncStatus)
	p.LastSyncError = nullableString(syncErr)
	p.IsRead = isRead != 0
	p.IsFavorite = isFavorite != 0
	p.IsDeleted = isDeleted != 0

	if rating.Valid {
		r := int(rating.Int64)
		p.Rating = &r
	}

	if p.AddedAt, err = ParseTimestamp(addedAt.String); err != nil {
		return nil, errors.Wrapf(err, "post %d added_at", p.ID)
	}
	if p.UpdatedAt, err = ParseTimestamp(updatedAt.String); err != nil {
		return nil, errors.Wrapf(err, "post %d updated_at", p.ID)
	}
	if redditCreated.Valid && redditCreated.String != "" {
		t, err := ParseTimestamp(redditCreated.String)
		if err != nil {
			return nil, errors.Wrapf(err, "post %d reddit_created_at", p.ID)
		}
		p.RedditCreatedAt = &t
	}
	if syncedAt.Valid && syncedAt.String != "" {
		t, err := ParseTimestamp(syncedAt.String)
		if err != nil {
			return nil, errors.Wrapf(err, "post %d synced_at", p.ID)
		}
		p.SyncedAt = &t
	}

	return &p, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CreatePost inserts a new post and assigns its ID. AddedAt and UpdatedAt are
// stamped when zero; sync state always starts empty.
func (d *DB) CreatePost(ctx context.Context, p *Post) error {
	if strings.TrimSpace(p.URL) == "" {
		return errors.New("post url is required")
	}

	now := d.timestamp()
	if p.AddedAt.IsZero() {
		p.AddedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.AddedAt
	}
	p.SyncedAt = nil
	p.LastSyncStatus = nil
	p.LastSyncError = nil

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
	INSERT INTO posts (
		reddit_id, url, title, body_text, author, subreddit, reddit_created_at,
		added_at, updated_at, custom_title, custom_body, notes, rating,
		is_read, is_favorite, is_deleted, extra_fields, body_minhash, summary
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.RedditID, p.URL, p.Title, p.BodyText, p.Author, p.Subreddit, formatNullable(p.RedditCreatedAt),
		FormatTimestamp(p.AddedAt), FormatTimestamp(p.UpdatedAt), p.CustomTitle, p.CustomBody, p.Notes, p.Rating,
		boolInt(p.IsRead), boolInt(p.IsFavorite), boolInt(p.IsDeleted), p.ExtraFields, p.BodyMinHash, p.Summary,
	)
	if err != nil {
		return errors.Wrap(err, "insert post")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "last insert id")
	}

	for _, folderID := range p.FolderIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO post_folders (post_id, folder_id) VALUES (?, ?)", id, folderID); err != nil {
			return errors.Wrapf(err, "add post to folder %d", folderID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}

	p.ID = id
	d.logger.Debugw("Post created", "id", id, "url", p.URL)
	return nil
}

// UpdatePost applies user edits and bumps updated_at
func (d *DB) UpdatePost(ctx context.Context, id int64, u PostUpdate) error {
	sets := []string{}
	args := []any{}

	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if u.CustomTitle != nil {
		add("custom_title", *u.CustomTitle)
	}
	if u.CustomBody != nil {
		add("custom_body", *u.CustomBody)
	}
	if u.Notes != nil {
		add("notes", *u.Notes)
	}
	if u.Rating != nil {
		add("rating", *u.Rating)
	}
	if u.IsRead != nil {
		add("is_read", boolInt(*u.IsRead))
	}
	if u.IsFavorite != nil {
		add("is_favorite", boolInt(*u.IsFavorite))
	}
	if u.ExtraFields != nil {
		add("extra_fields", *u.ExtraFields)
	}

	add("updated_at", FormatTimestamp(d.timestamp()))
	args = append(args, id)

	query := "UPDATE posts SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	return d.execOne(ctx, query, args...)
}

// SoftDelete marks a post deleted. The row stays so the deletion can sync.
func (d *DB) SoftDelete(ctx context.Context, id int64) error {
	return d.execOne(ctx,
		"UPDATE posts SET is_deleted = 1, updated_at = ? WHERE id = ?",
		FormatTimestamp(d.timestamp()), id)
}

// SetSummary stores an AI summary; it is user-visible content so updated_at moves
func (d *DB) SetSummary(ctx context.Context, id int64, summary string) error {
	return d.execOne(ctx,
		"UPDATE posts SET summary = ?, updated_at = ? WHERE id = ?",
		summary, FormatTimestamp(d.timestamp()), id)
}

// SetBodyMinHash stores a serialized signature. Derived data, so updated_at
// is left alone.
func (d *DB) SetBodyMinHash(ctx context.Context, id int64, signature string) error {
	return d.execOne(ctx, "UPDATE posts SET body_minhash = ? WHERE id = ?", signature, id)
}

// GetByID retrieves a post by ID, including soft-deleted posts.
// Returns nil, nil when no such post exists.
func (d *DB) GetByID(ctx context.Context, id int64) (*Post, error) {
	row := d.db.QueryRowContext(ctx, "SELECT "+postColumns+" FROM posts WHERE id = ?", id)

	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get post %d", id)
	}

	if err := d.attachFolders(ctx, []*Post{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// List retrieves posts, most recently added first
func (d *DB) List(ctx context.Context, includeDeleted bool) ([]*Post, error) {
	query := "SELECT " + postColumns + " FROM posts"
	if !includeDeleted {
		query += " WHERE is_deleted = 0"
	}
	query += " ORDER BY added_at DESC, id DESC"

	posts, err := d.queryPosts(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list posts")
	}
	return posts, nil
}

// PostsWithSignatures returns non-deleted posts carrying a stored MinHash,
// most recently added first
func (d *DB) PostsWithSignatures(ctx context.Context) ([]*Post, error) {
	posts, err := d.queryPosts(ctx, "SELECT "+postColumns+` FROM posts
		WHERE is_deleted = 0 AND body_minhash IS NOT NULL AND body_minhash != ''
		ORDER BY added_at DESC, id DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "list posts with signatures")
	}
	return posts, nil
}

// Count returns the number of non-deleted posts
func (d *DB) Count(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts WHERE is_deleted = 0").Scan(&count)
	return count, err
}

func (d *DB) queryPosts(ctx context.Context, query string, args ...any) ([]*Post, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := d.attachFolders(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// execOne runs a single-row write and reports ErrNotFound when nothing matched
func (d *DB) execOne(ctx context.Context, query string, args ...any) error {
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
