package storage

import "time"

// Post is a bookmarked Reddit post as stored locally
type Post struct {
	ID              int64      `db:"id"`
	RedditID        string     `db:"reddit_id"`
	URL             string     `db:"url"`
	Title           string     `db:"title"`
	BodyText        *string    `db:"body_text"`
	Author          string     `db:"author"`
	Subreddit       string     `db:"subreddit"`
	RedditCreatedAt *time.Time `db:"reddit_created_at"`
	AddedAt         time.Time  `db:"added_at"`
	UpdatedAt       time.Time  `db:"updated_at"` // bumped on every user-facing write

	CustomTitle *string `db:"custom_title"` // user override of Title
	CustomBody  *string `db:"custom_body"`  // user override of BodyText
	Notes       *string `db:"notes"`
	Rating      *int    `db:"rating"`
	IsRead      bool    `db:"is_read"`
	IsFavorite  bool    `db:"is_favorite"`
	IsDeleted   bool    `db:"is_deleted"`   // soft delete
	ExtraFields *string `db:"extra_fields"` // JSON object
	BodyMinHash *string `db:"body_minhash"` // JSON array, see internal/minhash
	Summary     *string `db:"summary"`

	SyncedAt       *time.Time `db:"synced_at"` // nil = never synced
	LastSyncStatus *string    `db:"last_sync_status"`
	LastSyncError  *string    `db:"last_sync_error"`

	FolderIDs []int64
}

// CanonicalTitle returns the user's title override when set
func (p *Post) CanonicalTitle() string {
	if p.CustomTitle != nil {
		return *p.CustomTitle
	}
	return p.Title
}

// CanonicalBody returns customBody, then bodyText, then "".
// This is the text used for duplicate detection and sync payloads.
func (p *Post) CanonicalBody() string {
	if p.CustomBody != nil {
		return *p.CustomBody
	}
	if p.BodyText != nil {
		return *p.BodyText
	}
	return ""
}

// IsDirty reports whether the post changed since its last confirmed sync:
// never synced, or synced strictly before the latest update.
// Deletion is not considered here; callers decide whether tombstones sync.
func (p *Post) IsDirty() bool {
	if p.SyncedAt == nil {
		return true
	}
	return p.SyncedAt.Before(p.UpdatedAt)
}

// Folder groups posts. A post may belong to any number of folders.
type Folder struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

// PostUpdate holds optional edits; nil fields are left unchanged
type PostUpdate struct {
	CustomTitle *string
	CustomBody  *string
	Notes       *string
	Rating      *int
	IsRead      *bool
	IsFavorite  *bool
	ExtraFields *string
}
