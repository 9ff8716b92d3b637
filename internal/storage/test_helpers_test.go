package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// testClock is a settable clock for deterministic timestamps
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 7, 21, 19, 14, 17, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func openTestDB(t *testing.T) (*DB, *testClock) {
	t.Helper()

	clock := newTestClock()
	db, err := Open(":memory:", WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return db, clock
}

func strPtr(s string) *string { return &s }

func createPost(t *testing.T, db *DB, url, body string) *Post {
	t.Helper()

	p := &Post{
		RedditID:  "t3_" + url,
		URL:       "https://reddit.com/r/golang/" + url,
		Title:     "title " + url,
		BodyText:  strPtr(body),
		Author:    "gopher",
		Subreddit: "golang",
	}
	require.NoError(t, db.CreatePost(context.Background(), p))
	require.NotZero(t, p.ID)
	return p
}
