package storage

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

// CreateFolder creates a folder and returns its ID
func (d *DB) CreateFolder(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("folder name is required")
	}

	res, err := d.db.ExecContext(ctx,
		"INSERT INTO folders (name, created_at) VALUES (?, ?)",
		name, FormatTimestamp(d.timestamp()))
	if err != nil {
		return 0, errors.Wrapf(err, "create folder %q", name)
	}
	return res.LastInsertId()
}

// ListFolders returns all folders ordered by name
func (d *DB) ListFolders(ctx context.Context) ([]*Folder, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT id, name, created_at FROM folders ORDER BY name")
	if err != nil {
		return nil, errors.Wrap(err, "list folders")
	}
	defer rows.Close()

	var folders []*Folder
	for rows.Next() {
		f := &Folder{}
		var created string
		if err := rows.Scan(&f.ID, &f.Name, &created); err != nil {
			return nil, err
		}
		if f.CreatedAt, err = ParseTimestamp(created); err != nil {
			return nil, errors.Wrapf(err, "folder %d created_at", f.ID)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

// AddToFolder associates a post with a folder. Membership is part of the
// post, so updated_at moves.
func (d *DB) AddToFolder(ctx context.Context, postID, folderID int64) error {
	return d.changeMembership(ctx, postID,
		"INSERT OR IGNORE INTO post_folders (post_id, folder_id) VALUES (?, ?)", postID, folderID)
}

// RemoveFromFolder drops a post/folder association
func (d *DB) RemoveFromFolder(ctx context.Context, postID, folderID int64) error {
	return d.changeMembership(ctx, postID,
		"DELETE FROM post_folders WHERE post_id = ? AND folder_id = ?", postID, folderID)
}

func (d *DB) changeMembership(ctx context.Context, postID int64, query string, args ...any) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "UPDATE posts SET updated_at = ? WHERE id = ?",
		FormatTimestamp(d.timestamp()), postID)
	if err != nil {
		return errors.Wrap(err, "touch post")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(err, "update folder membership")
	}

	return tx.Commit()
}

// attachFolders fills FolderIDs for the given posts with one query
func (d *DB) attachFolders(ctx context.Context, posts []*Post) error {
	if len(posts) == 0 {
		return nil
	}

	byID := make(map[int64]*Post, len(posts))
	placeholders := make([]string, 0, len(posts))
	args := make([]any, 0, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
		placeholders = append(placeholders, "?")
		args = append(args, p.ID)
	}

	rows, err := d.db.QueryContext(ctx,
		"SELECT post_id, folder_id FROM post_folders WHERE post_id IN ("+strings.Join(placeholders, ",")+") ORDER BY folder_id",
		args...)
	if err != nil {
		return errors.Wrap(err, "load folder ids")
	}
	defer rows.Close()

	for rows.Next() {
		var postID, folderID int64
		if err := rows.Scan(&postID, &folderID); err != nil {
			return err
		}
		if p := byID[postID]; p != nil {
			p.FolderIDs = append(p.FolderIDs, folderID)
		}
	}
	return rows.Err()
}
