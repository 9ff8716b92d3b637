package sync

import (
	"github.com/renderinc/reddit-stash/internal/remote"
	"github.com/renderinc/reddit-stash/internal/storage"
)

// Project converts a stored post into its /sync wire record. User overrides
// win for title and body, body is never null, and timestamps use
// storage.TimestampLayout.
func Project(p *storage.Post) remote.Post {
	wire := remote.Post{
		ID:          p.ID,
		RedditID:    p.RedditID,
		URL:         p.URL,
		Title:       p.CanonicalTitle(),
		BodyText:    p.CanonicalBody(),
		Author:      p.Author,
		Subreddit:   p.Subreddit,
		AddedAt:     storage.FormatTimestamp(p.AddedAt),
		UpdatedAt:   storage.FormatTimestamp(p.UpdatedAt),
		CustomTitle: p.CustomTitle,
		CustomBody:  p.CustomBody,
		Notes:       p.Notes,
		Rating:      p.Rating,
		IsRead:      p.IsRead,
		IsFavorite:  p.IsFavorite,
		IsDeleted:   p.IsDeleted,
		ExtraFields: p.ExtraFields,
		BodyMinHash: p.BodyMinHash,
		Summary:     p.Summary,
	}

	if p.RedditCreatedAt != nil {
		created := storage.FormatTimestamp(*p.RedditCreatedAt)
		wire.RedditCreatedAt = &created
	}

	return wire
}
