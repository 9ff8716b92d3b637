package sync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/renderinc/reddit-stash/internal/remote"
	"github.com/renderinc/reddit-stash/internal/storage"
)

type syncUpdate struct {
	postID   int64
	status   string
	syncedAt *time.Time
	err      *string
}

// memStore is an in-memory Store that records every sync-state write
type memStore struct {
	mu      sync.Mutex
	posts   map[int64]*storage.Post
	updates []syncUpdate
	resets  int
}

func newMemStore(posts ...*storage.Post) *memStore {
	s := &memStore{posts: map[int64]*storage.Post{}}
	for _, p := range posts {
		s.posts[p.ID] = p
	}
	return s
}

func copyPost(p *storage.Post) *storage.Post {
	c := *p
	return &c
}

func (s *memStore) PendingSyncPosts(ctx context.Context, includeDeleted bool) ([]*storage.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*storage.Post
	for _, p := range s.posts {
		if p.IsDeleted && !includeDeleted {
			continue
		}
		if p.IsDirty() {
			pending = append(pending, copyPost(p))
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	return pending, nil
}

func (s *memStore) GetByID(ctx context.Context, id int64) (*storage.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		return nil, nil
	}
	return copyPost(p), nil
}

func (s *memStore) UpdateSyncState(ctx context.Context, postID int64, status string, syncedAt *time.Time, syncErr *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updates = append(s.updates, syncUpdate{postID: postID, status: status, syncedAt: syncedAt, err: syncErr})
	if p, ok := s.posts[postID]; ok {
		p.SyncedAt = syncedAt
		p.LastSyncStatus = &status
		p.LastSyncError = syncErr
	}
	return nil
}

func (s *memStore) ResetSyncStateForAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resets++
	for _, p := range s.posts {
		if p.IsDeleted {
			continue
		}
		p.SyncedAt = nil
		p.LastSyncStatus = nil
		p.LastSyncError = nil
	}
	return nil
}

func (s *memStore) post(id int64) *storage.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyPost(s.posts[id])
}

func (s *memStore) updateCounts() map[int64]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := map[int64]int{}
	for _, u := range s.updates {
		counts[u.postID]++
	}
	return counts
}

// fakeTransport records requests and answers with respond
type fakeTransport struct {
	mu       sync.Mutex
	requests []*remote.SyncRequest
	respond  func(ctx context.Context, req *remote.SyncRequest) (*remote.SyncResponse, error)
}

func (f *fakeTransport) Sync(ctx context.Context, req *remote.SyncRequest) (*remote.SyncResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.respond == nil {
		return succeedAll(ctx, req)
	}
	return f.respond(ctx, req)
}

func (f *fakeTransport) sizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	sizes := make([]int, 0, len(f.requests))
	for _, req := range f.requests {
		sizes = append(sizes, len(req.Posts))
	}
	sort.Sort(sort.Reverse(sort.IntSlice(sizes)))
	return sizes
}

func (f *fakeTransport) factory() TransportFactory {
	return func(string) Transport { return f }
}

const serverTime = "2024-03-01T12:00:00"

func succeedAll(ctx context.Context, req *remote.SyncRequest) (*remote.SyncResponse, error) {
	resp := &remote.SyncResponse{}
	for _, p := range req.Posts {
		at := serverTime
		resp.Results = append(resp.Results, remote.SyncResult{
			PostID:    remote.NewPostID(p.ID),
			Status:    StatusSynced,
			Success:   true,
			UpdatedAt: &at,
		})
	}
	return resp, nil
}

type mapSettings map[string]string

func (m mapSettings) GetSetting(ctx context.Context, key string) (string, error) {
	return m[key], nil
}

func configured() mapSettings {
	return mapSettings{storage.SettingSyncServerURL: "localhost:8000"}
}

var baseTime = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func dirtyPost(id int64) *storage.Post {
	body := "body"
	return &storage.Post{
		ID:        id,
		URL:       "https://reddit.com/p",
		Title:     "title",
		BodyText:  &body,
		AddedAt:   baseTime,
		UpdatedAt: baseTime,
	}
}

func syncedPost(id int64) *storage.Post {
	p := dirtyPost(id)
	at := baseTime.Add(time.Minute)
	p.SyncedAt = &at
	return p
}

func dirtyPosts(n int) []*storage.Post {
	posts := make([]*storage.Post, 0, n)
	for i := 1; i <= n; i++ {
		posts = append(posts, dirtyPost(int64(i)))
	}
	return posts
}
