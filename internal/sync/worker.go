// Package sync pushes locally edited posts to the remote index server and
// records the outcome of every attempt on the post itself.
//
// A post is pending while its synced_at is NULL or earlier than its
// updated_at. synced_at only ever comes from the server's reported time,
// so a client with a skewed clock cannot mark stale content as synced.
package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/renderinc/reddit-stash/internal/remote"
	"github.com/renderinc/reddit-stash/internal/storage"
)

const (
	// DefaultBatchSize is the number of posts sent per /sync request
	DefaultBatchSize = 10
	// DefaultBatchTimeout bounds one /sync request
	DefaultBatchTimeout = 30 * time.Second

	StatusSynced = "synced"
	StatusFailed = "failed"
)

// Store is the subset of the post store the reconciler needs
type Store interface {
	PendingSyncPosts(ctx context.Context, includeDeleted bool) ([]*storage.Post, error)
	GetByID(ctx context.Context, id int64) (*storage.Post, error)
	UpdateSyncState(ctx context.Context, postID int64, status string, syncedAt *time.Time, syncErr *string) error
	ResetSyncStateForAll(ctx context.Context) error
}

// Transport sends one batch to the server
type Transport interface {
	Sync(ctx context.Context, req *remote.SyncRequest) (*remote.SyncResponse, error)
}

// TransportFactory builds a transport for a normalized server URL. Settings
// are reloaded per sweep, so the server can change between sweeps.
type TransportFactory func(serverURL string) Transport

// Result is the outcome of one post in one attempt. It is folded into the
// post's sync fields immediately and not stored on its own.
type Result struct {
	PostID    int64
	Status    string
	Success   bool
	UpdatedAt *time.Time // server-reported completion time
	Error     *string
}

// Reconciler moves pending posts to the remote index
type Reconciler struct {
	store        Store
	settings     remote.SettingsReader
	newTransport TransportFactory
	batchSize    int
	batchTimeout time.Duration
	logger       *zap.SugaredLogger

	syncing atomic.Bool
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithBatchSize sets the number of posts per request
func WithBatchSize(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithBatchTimeout bounds each request; zero disables the timeout
func WithBatchTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d >= 0 {
			r.batchTimeout = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTransportFactory replaces the HTTP transport
func WithTransportFactory(f TransportFactory) Option {
	return func(r *Reconciler) {
		if f != nil {
			r.newTransport = f
		}
	}
}

// NewReconciler creates a reconciler over a store and a settings source
func NewReconciler(store Store, settings remote.SettingsReader, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:        store,
		settings:     settings,
		batchSize:    DefaultBatchSize,
		batchTimeout: DefaultBatchTimeout,
		logger:       zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.newTransport == nil {
		logger := r.logger
		r.newTransport = func(serverURL string) Transport {
			return remote.NewClient(serverURL, remote.WithLogger(logger))
		}
	}
	return r
}

// Syncing reports whether a sweep is in progress
func (r *Reconciler) Syncing() bool {
	return r.syncing.Load()
}

// SyncPendingPosts pushes every pending post. When no server is configured,
// or another sweep is already running, it returns an empty list. Transport
// failures are reported per post in the results, never as an error.
func (r *Reconciler) SyncPendingPosts(ctx context.Context) ([]Result, error) {
	if !r.syncing.CompareAndSwap(false, true) {
		r.logger.Debugw("Sync already in progress, skipping")
		return []Result{}, nil
	}
	defer r.syncing.Store(false)

	settings, err := remote.LoadSettings(ctx, r.settings)
	if err != nil {
		return nil, err
	}
	if !settings.Configured() {
		return []Result{}, nil
	}

	return r.sweep(ctx, settings, false)
}

// ForceResyncAllPosts clears sync state on every non-deleted post, then
// sweeps with force_embed so the server regenerates embeddings
func (r *Reconciler) ForceResyncAllPosts(ctx context.Context) ([]Result, error) {
	if !r.syncing.CompareAndSwap(false, true) {
		r.logger.Debugw("Sync already in progress, skipping forced resync")
		return []Result{}, nil
	}
	defer r.syncing.Store(false)

	settings, err := remote.LoadSettings(ctx, r.settings)
	if err != nil {
		return nil, err
	}
	if !settings.Configured() {
		return []Result{}, nil
	}

	if err := r.store.ResetSyncStateForAll(ctx); err != nil {
		return nil, errors.Wrap(err, "reset sync state")
	}

	return r.sweep(ctx, settings, true)
}

// SyncSinglePost pushes one post right away, typically after a user save.
// It does not take the sweep guard: a concurrent sweep may write the same
// post, and the last write wins. A missing post yields an empty list.
func (r *Reconciler) SyncSinglePost(ctx context.Context, postID int64) ([]Result, error) {
	settings, err := remote.LoadSettings(ctx, r.settings)
	if err != nil {
		return nil, err
	}
	if !settings.Configured() {
		return []Result{}, nil
	}

	post, err := r.store.GetByID(ctx, postID)
	if err != nil {
		return nil, errors.Wrapf(err, "load post %d", postID)
	}
	if post == nil || (post.IsDeleted && !settings.IncludeDeleted) {
		return []Result{}, nil
	}

	transport := r.newTransport(settings.ServerURL)
	return r.syncBatch(ctx, transport, settings, []*storage.Post{post}, false, 0), nil
}

func (r *Reconciler) sweep(ctx context.Context, settings remote.Settings, force bool) ([]Result, error) {
	startTime := time.Now()

	posts, err := r.store.PendingSyncPosts(ctx, settings.IncludeDeleted)
	if err != nil {
		return nil, errors.Wrap(err, "load pending posts")
	}
	if len(posts) == 0 {
		return []Result{}, nil
	}

	batches := partition(posts, r.batchSize)
	r.logger.Infow("Starting sync",
		"server", settings.ServerURL,
		"table", settings.TableName,
		"posts", len(posts),
		"batches", len(batches),
		"force", force)

	transport := r.newTransport(settings.ServerURL)

	// Each batch fails independently; all must settle before returning
	batchResults := make([][]Result, len(batches))
	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batchResults[i] = r.syncBatch(ctx, transport, settings, batch, force, i)
		}()
	}
	wg.Wait()

	results := make([]Result, 0, len(posts))
	for _, br := range batchResults {
		results = append(results, br...)
	}

	stats := Summarize(results)
	stats.Duration = time.Since(startTime)
	r.logger.Infow("Sync complete",
		"synced", stats.Synced,
		"failed", stats.Failed,
		"duration", stats.Duration)

	return results, nil
}

// syncBatch sends one request and records exactly one outcome per post
func (r *Reconciler) syncBatch(ctx context.Context, transport Transport, settings remote.Settings, posts []*storage.Post, force bool, index int) []Result {
	req := &remote.SyncRequest{
		Posts:             make([]remote.Post, 0, len(posts)),
		TableName:         settings.TableName,
		EmbeddingProfiles: settings.EmbeddingProfiles(),
		ForceEmbed:        force,
	}
	for _, p := range posts {
		req.Posts = append(req.Posts, Project(p))
	}

	reqCtx := ctx
	if r.batchTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, r.batchTimeout)
		defer cancel()
	}

	resp, err := transport.Sync(reqCtx, req)
	if err != nil {
		msg := r.describeFailure(reqCtx, err)
		r.logger.Warnw("Sync batch failed", "batch", index, "posts", len(posts), "error", msg)

		results := make([]Result, 0, len(posts))
		for _, p := range posts {
			results = append(results, r.persist(ctx, p, Result{
				PostID: p.ID,
				Status: StatusFailed,
				Error:  &msg,
			}))
		}
		return results
	}

	byID := make(map[int64]remote.SyncResult, len(resp.Results))
	inBatch := make(map[int64]bool, len(posts))
	for _, p := range posts {
		inBatch[p.ID] = true
	}
	for _, wr := range resp.Results {
		id, ok := wr.PostID.Int64()
		if !ok || !inBatch[id] {
			r.logger.Warnw("Ignoring result for unknown post", "batch", index, "post_id", wr.PostID.String())
			continue
		}
		if _, dup := byID[id]; dup {
			continue
		}
		byID[id] = wr
	}

	results := make([]Result, 0, len(posts))
	for _, p := range posts {
		wr, ok := byID[p.ID]
		if !ok {
			msg := "no result returned for post"
			results = append(results, r.persist(ctx, p, Result{PostID: p.ID, Status: StatusFailed, Error: &msg}))
			continue
		}
		results = append(results, r.persist(ctx, p, fromWire(wr)))
	}
	return results
}

func fromWire(wr remote.SyncResult) Result {
	id, _ := wr.PostID.Int64()
	res := Result{PostID: id, Status: wr.Status, Success: wr.Success}

	if res.Status == "" {
		res.Status = StatusFailed
		if res.Success {
			res.Status = StatusSynced
		}
	}

	if wr.UpdatedAt != nil {
		if t, err := storage.ParseTimestamp(*wr.UpdatedAt); err == nil {
			res.UpdatedAt = &t
		}
	}

	if !res.Success {
		msg := "sync failed"
		if wr.Error != nil && *wr.Error != "" {
			msg = *wr.Error
		}
		res.Error = &msg
	}

	return res
}

// persist writes the three sync fields for one post. synced_at advances only
// on success with a usable server time; otherwise the post's current value is
// kept, re-read so a concurrent write is not rolled back. The write outlives
// cancellation of the sweep: a submitted post always gets its update.
func (r *Reconciler) persist(ctx context.Context, p *storage.Post, res Result) Result {
	ctx = context.WithoutCancel(ctx)

	syncedAt := res.UpdatedAt
	if !res.Success || syncedAt == nil {
		syncedAt = r.currentSyncedAt(ctx, p)
	}

	var syncErr *string
	if !res.Success {
		syncErr = res.Error
	}

	if err := r.store.UpdateSyncState(ctx, p.ID, res.Status, syncedAt, syncErr); err != nil {
		r.logger.Errorw("Failed to record sync state", "post_id", p.ID, "error", err)
	}
	return res
}

func (r *Reconciler) currentSyncedAt(ctx context.Context, p *storage.Post) *time.Time {
	current, err := r.store.GetByID(ctx, p.ID)
	if err != nil || current == nil {
		return p.SyncedAt
	}
	return current.SyncedAt
}

func (r *Reconciler) describeFailure(ctx context.Context, err error) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "sync request timed out after " + r.batchTimeout.String()
	}
	if errors.Is(err, remote.ErrEmptyResults) {
		return "sync server returned no results"
	}
	var httpErr *remote.HTTPError
	if errors.As(err, &httpErr) {
		return "sync server error: " + httpErr.Error()
	}
	return "sync request failed: " + err.Error()
}

// partition splits posts into consecutive batches of at most size posts
func partition(posts []*storage.Post, size int) [][]*storage.Post {
	if size <= 0 {
		size = DefaultBatchSize
	}
	batches := make([][]*storage.Post, 0, (len(posts)+size-1)/size)
	for start := 0; start < len(posts); start += size {
		end := min(start+size, len(posts))
		batches = append(batches, posts[start:end])
	}
	return batches
}
