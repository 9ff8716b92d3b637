// Package dedup finds near-duplicate posts by comparing MinHash signatures of
// their body text.
//
// Results follow the store's iteration order (most recently added first), not
// similarity. Each lookup is a linear scan over every post with a stored
// signature, which is fine for a personal bookmark collection.
package dedup

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/renderinc/reddit-stash/internal/logger"
	"github.com/renderinc/reddit-stash/internal/minhash"
	"github.com/renderinc/reddit-stash/internal/storage"
)

const (
	// DefaultThreshold is the minimum similarity for a post to count as a duplicate
	DefaultThreshold = 0.75
	// MinBodyLength is the shortest trimmed body worth signing
	MinBodyLength = 10
)

// Store is the subset of the post store the detector needs
type Store interface {
	PostsWithSignatures(ctx context.Context) ([]*storage.Post, error)
	GetByID(ctx context.Context, id int64) (*storage.Post, error)
	SetBodyMinHash(ctx context.Context, id int64, signature string) error
}

// Match is a candidate duplicate with its estimated similarity
type Match struct {
	Post       *storage.Post
	Similarity float64
}

// Detector layers the MinHash engine over a post store
type Detector struct {
	store   Store
	numPerm int
	logger  *zap.SugaredLogger
}

// NewDetector creates a detector using DefaultNumPerm signatures
func NewDetector(store Store, l *zap.SugaredLogger) *Detector {
	return &Detector{
		store:   store,
		numPerm: minhash.DefaultNumPerm,
		logger:  logger.OrNop(l),
	}
}

// Signature returns the serialized signature to store for a body, or nil when
// the body is too short to carry signal
func (d *Detector) Signature(bodyText string) *string {
	if tooShort(bodyText) {
		return nil
	}
	sig := minhash.Marshal(minhash.Generate(bodyText, d.numPerm))
	return &sig
}

// FindSimilarPosts returns non-deleted posts whose stored signature is at
// least threshold similar to bodyText
func (d *Detector) FindSimilarPosts(ctx context.Context, bodyText string, threshold float64) ([]*storage.Post, error) {
	matches, err := d.FindMatches(ctx, bodyText, threshold)
	if err != nil {
		return nil, err
	}

	posts := make([]*storage.Post, 0, len(matches))
	for _, m := range matches {
		posts = append(posts, m.Post)
	}
	return posts, nil
}

// FindMatches is FindSimilarPosts with the similarity of each hit attached
func (d *Detector) FindMatches(ctx context.Context, bodyText string, threshold float64) ([]Match, error) {
	if tooShort(bodyText) {
		return []Match{}, nil
	}

	candidate := minhash.Generate(bodyText, d.numPerm)

	posts, err := d.store.PostsWithSignatures(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load signatures")
	}

	matches := []Match{}
	for _, p := range posts {
		if p.BodyMinHash == nil {
			continue
		}

		stored, err := minhash.Parse(*p.BodyMinHash)
		if err != nil {
			d.logger.Warnw("Skipping malformed signature", "post_id", p.ID, "error", err)
			continue
		}

		if sim := minhash.Similarity(candidate, stored); sim >= threshold {
			matches = append(matches, Match{Post: p, Similarity: sim})
		}
	}

	d.logger.Debugw("Duplicate scan complete", "scanned", len(posts), "matches", len(matches))
	return matches, nil
}

// FindDuplicatesOf checks an existing post against the rest of the store. The
// post itself is never reported.
func (d *Detector) FindDuplicatesOf(ctx context.Context, postID int64, threshold float64) ([]Match, error) {
	p, err := d.store.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.Wrapf(storage.ErrNotFound, "post %d", postID)
	}

	matches, err := d.FindMatches(ctx, p.CanonicalBody(), threshold)
	if err != nil {
		return nil, err
	}

	others := matches[:0]
	for _, m := range matches {
		if m.Post.ID != postID {
			others = append(others, m)
		}
	}
	return others, nil
}

// RefreshSignature recomputes a post's stored signature from its current
// canonical body. Signatures are never refreshed implicitly on edit.
func (d *Detector) RefreshSignature(ctx context.Context, postID int64) error {
	p, err := d.store.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if p == nil {
		return errors.Wrapf(storage.ErrNotFound, "post %d", postID)
	}

	sig := d.Signature(p.CanonicalBody())
	if sig == nil {
		sig = new(string)
	}
	return d.store.SetBodyMinHash(ctx, postID, *sig)
}

// tooShort counts characters, not bytes, of the trimmed body
func tooShort(bodyText string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(bodyText)) < MinBodyLength
}
