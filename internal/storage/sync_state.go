package storage

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// PendingSyncPosts returns posts whose local edits have not been confirmed by
// the sync server: synced_at is NULL or strictly earlier than updated_at.
// The comparison runs on parsed instants, not on the stored strings.
// Soft-deleted posts are included only when includeDeleted is set, which lets
// the server tombstone them.
func (d *DB) PendingSyncPosts(ctx context.Context, includeDeleted bool) ([]*Post, error) {
	query := "SELECT " + postColumns + " FROM posts"
	if !includeDeleted {
		query += " WHERE is_deleted = 0"
	}
	query += " ORDER BY id"

	posts, err := d.queryPosts(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "list pending posts")
	}

	pending := posts[:0]
	for _, p := range posts {
		if p.IsDirty() {
			pending = append(pending, p)
		}
	}
	return pending, nil
}

// UpdateSyncState writes the outcome of one sync attempt. The three fields are
// written by a single statement so readers never see a partial update.
// updated_at is deliberately untouched.
func (d *DB) UpdateSyncState(ctx context.Context, postID int64, status string, syncedAt *time.Time, syncErr *string) error {
	_, err := d.db.ExecContext(ctx,
		"UPDATE posts SET synced_at = ?, last_sync_status = ?, last_sync_error = ? WHERE id = ?",
		formatNullable(syncedAt), status, syncErr, postID)
	if err != nil {
		return errors.Wrapf(err, "update sync state for post %d", postID)
	}
	return nil
}

// ResetSyncStateForAll clears sync bookkeeping on every non-deleted post so
// the next sweep resubmits all of them
func (d *DB) ResetSyncStateForAll(ctx context.Context) error {
	res, err := d.db.ExecContext(ctx,
		"UPDATE posts SET synced_at = NULL, last_sync_status = NULL, last_sync_error = NULL WHERE is_deleted = 0")
	if err != nil {
		return errors.Wrap(err, "reset sync state")
	}

	n, _ := res.RowsAffected()
	d.logger.Infow("Sync state reset", "posts", n)
	return nil
}
