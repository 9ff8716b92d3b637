package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/renderinc/reddit-stash/internal/embeddings"
	"github.com/renderinc/reddit-stash/internal/remote"
	"github.com/renderinc/reddit-stash/internal/storage"
)

const (
	StatusSynced    = "synced"
	StatusUnchanged = "unchanged"
	StatusDeleted   = "deleted"
	StatusFailed    = "failed"

	defaultK = 10
	maxK     = 100
)

// Error carries an HTTP status for the handler; Detail becomes {"detail": ...}
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string { return e.Detail }

func badRequest(format string, args ...any) error {
	return &Error{Status: http.StatusBadRequest, Detail: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) error {
	return &Error{Status: http.StatusNotFound, Detail: fmt.Sprintf(format, args...)}
}

// Service embeds synced posts into per-profile collections and ranks them
type Service struct {
	store    *ChunkStore
	profiles map[string]embeddings.Embedder
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the clock used for updated_at
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a service over store with one embedder per profile name
func NewService(store *ChunkStore, profiles map[string]embeddings.Embedder, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		profiles: profiles,
		logger:   zap.NewNop().Sugar(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Profiles returns the configured profile names, sorted
func (s *Service) Profiles() []string {
	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) embedder(profile string) (embeddings.Embedder, error) {
	e, ok := s.profiles[profile]
	if !ok {
		return nil, badRequest("unknown embedding profile %q (available: %s)", profile, strings.Join(s.Profiles(), ", "))
	}
	return e, nil
}

// chunkText is what gets embedded for a post
func chunkText(p *remote.Post) string {
	title := p.Title
	if p.CustomTitle != nil {
		title = *p.CustomTitle
	}
	body := p.BodyText
	if p.CustomBody != nil {
		body = *p.CustomBody
	}
	return strings.TrimSpace(strings.TrimSpace(title) + "\n\n" + strings.TrimSpace(body))
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func chunkMetadata(p *remote.Post) string {
	meta := map[string]any{
		"title":      p.Title,
		"url":        p.URL,
		"subreddit":  p.Subreddit,
		"author":     p.Author,
		"added_at":   p.AddedAt,
		"updated_at": p.UpdatedAt,
	}
	if p.CustomTitle != nil {
		meta["title"] = *p.CustomTitle
	}
	if p.Rating != nil {
		meta["rating"] = *p.Rating
	}
	if p.IsFavorite {
		meta["is_favorite"] = true
	}
	raw, _ := json.Marshal(meta)
	return string(raw)
}

// postOutcome accumulates per-profile results for one post
type postOutcome struct {
	embedded bool
	errs     []string
}

func (o *postOutcome) fail(profile string, err error) {
	o.errs = append(o.errs, profile+": "+err.Error())
}

// Sync applies a batch of post snapshots. Request-level problems are returned
// as errors; per-post problems become failed results.
func (s *Service) Sync(ctx context.Context, req *remote.SyncRequest) (*remote.SyncResponse, error) {
	if strings.TrimSpace(req.TableName) == "" {
		return nil, badRequest("table_name is required")
	}
	if len(req.EmbeddingProfiles) == 0 {
		return nil, badRequest("embedding_profiles must not be empty")
	}
	for _, profile := range req.EmbeddingProfiles {
		if _, err := s.embedder(profile); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	outcomes := make([]*postOutcome, len(req.Posts))
	for i := range outcomes {
		outcomes[i] = &postOutcome{}
	}

	for _, profile := range req.EmbeddingProfiles {
		s.syncProfile(ctx, profile, req, outcomes, now)
	}

	stamp := storage.FormatTimestamp(now)
	resp := &remote.SyncResponse{Results: make([]remote.SyncResult, len(req.Posts))}
	for i, p := range req.Posts {
		o := outcomes[i]
		result := remote.SyncResult{PostID: remote.NewPostID(p.ID), Success: len(o.errs) == 0}
		switch {
		case !result.Success:
			result.Status = StatusFailed
			msg := strings.Join(o.errs, "; ")
			result.Error = &msg
		case p.IsDeleted:
			result.Status = StatusDeleted
		case o.embedded:
			result.Status = StatusSynced
		default:
			result.Status = StatusUnchanged
		}
		if result.Success {
			result.UpdatedAt = &stamp
		}
		resp.Results[i] = result
	}

	s.logger.Infow("Synced posts",
		"table", req.TableName,
		"profiles", req.EmbeddingProfiles,
		"posts", len(req.Posts),
		"force_embed", req.ForceEmbed,
	)
	return resp, nil
}

func (s *Service) syncProfile(ctx context.Context, profile string, req *remote.SyncRequest, outcomes []*postOutcome, now time.Time) {
	collection := remote.CollectionName(profile, req.TableName)
	embedder, _ := s.embedder(profile)

	type pending struct {
		idx  int
		text string
		hash string
	}
	var toEmbed []pending

	for i := range req.Posts {
		p := &req.Posts[i]
		o := outcomes[i]

		if p.ID <= 0 {
			o.fail(profile, errors.Newf("invalid post id %d", p.ID))
			continue
		}

		if p.IsDeleted {
			if err := s.store.Delete(ctx, collection, p.ID); err != nil {
				o.fail(profile, err)
			}
			continue
		}

		text := chunkText(p)
		if text == "" {
			o.fail(profile, errors.New("post has no text to embed"))
			continue
		}

		hash := contentHash(text)
		if !req.ForceEmbed {
			existing, err := s.store.Hash(ctx, collection, p.ID)
			if err != nil {
				o.fail(profile, err)
				continue
			}
			if existing == hash {
				if err := s.store.TouchMetadata(ctx, collection, p.ID, chunkMetadata(p), now); err != nil {
					o.fail(profile, err)
				}
				continue
			}
		}

		toEmbed = append(toEmbed, pending{idx: i, text: text, hash: hash})
	}

	if len(toEmbed) == 0 {
		return
	}

	texts := make([]string, len(toEmbed))
	for i, pe := range toEmbed {
		texts[i] = pe.text
	}

	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err == nil && len(vectors) != len(texts) {
		err = errors.Newf("expected %d embeddings, got %d", len(texts), len(vectors))
	}
	if err != nil {
		s.logger.Warnw("Embedding failed", "profile", profile, "posts", len(toEmbed), "error", err)
		for _, pe := range toEmbed {
			outcomes[pe.idx].fail(profile, errors.Wrap(err, "embed"))
		}
		return
	}

	for i, pe := range toEmbed {
		p := &req.Posts[pe.idx]
		chunk := &Chunk{
			PostID:      p.ID,
			ContentHash: pe.hash,
			Text:        pe.text,
			Metadata:    chunkMetadata(p),
			Embedding:   vectors[i],
			UpdatedAt:   now,
		}
		if err := s.store.Upsert(ctx, collection, chunk); err != nil {
			outcomes[pe.idx].fail(profile, err)
			continue
		}
		outcomes[pe.idx].embedded = true
	}
}

// checkCollection rejects a client whose collection naming disagrees with ours
func checkCollection(sent, profile, table string) (string, error) {
	expected := remote.CollectionName(profile, table)
	if sent != "" && sent != expected {
		return "", badRequest("collection %q does not match %q for profile %q and table %q", sent, expected, profile, table)
	}
	return expected, nil
}

func clampK(k int) int {
	if k <= 0 {
		return defaultK
	}
	if k > maxK {
		return maxK
	}
	return k
}

// Search embeds the query with the profile's embedder and ranks the collection
func (s *Service) Search(ctx context.Context, req *remote.SearchRequest) (*remote.SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, badRequest("q must not be empty")
	}
	if strings.TrimSpace(req.TableName) == "" {
		return nil, badRequest("table_name is required")
	}
	embedder, err := s.embedder(req.EmbeddingProfile)
	if err != nil {
		return nil, err
	}
	collection, err := checkCollection(req.Collection, req.EmbeddingProfile, req.TableName)
	if err != nil {
		return nil, err
	}

	chunks, err := s.collection(ctx, collection)
	if err != nil {
		return nil, err
	}

	vec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}

	k := clampK(req.K)
	return &remote.SearchResponse{
		Query:   query,
		K:       k,
		Results: toHits(rank(vec, chunks, 0, k), req.IncludeText),
	}, nil
}

// Similar ranks the collection against a stored post's vector
func (s *Service) Similar(ctx context.Context, req *remote.SimilarRequest) (*remote.SearchResponse, error) {
	if req.PostID <= 0 {
		return nil, badRequest("post_id must be a positive integer")
	}
	if strings.TrimSpace(req.TableName) == "" {
		return nil, badRequest("table_name is required")
	}
	if _, err := s.embedder(req.EmbeddingProfile); err != nil {
		return nil, err
	}
	collection, err := checkCollection(req.Collection, req.EmbeddingProfile, req.TableName)
	if err != nil {
		return nil, err
	}

	chunks, err := s.collection(ctx, collection)
	if err != nil {
		return nil, err
	}

	var target *Chunk
	for _, c := range chunks {
		if c.PostID == req.PostID {
			target = c
			break
		}
	}
	if target == nil {
		return nil, notFound("post %d not found in collection %s", req.PostID, collection)
	}

	k := clampK(req.K)
	return &remote.SearchResponse{
		PostID:  remote.NewPostID(req.PostID),
		K:       k,
		Results: toHits(rank(target.Embedding, chunks, req.PostID, k), req.IncludeText),
	}, nil
}

func (s *Service) collection(ctx context.Context, name string) ([]*Chunk, error) {
	chunks, err := s.store.All(ctx, name)
	if errors.Is(err, ErrCollectionNotFound) {
		return nil, notFound("collection %s not found", name)
	}
	return chunks, err
}

// Collections lists synced collections for the health endpoint
func (s *Service) Collections(ctx context.Context) ([]string, error) {
	return s.store.Collections(ctx)
}
