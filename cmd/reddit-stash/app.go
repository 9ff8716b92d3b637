package main

import (
	"context"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/renderinc/reddit-stash/internal/dedup"
	"github.com/renderinc/reddit-stash/internal/logger"
	"github.com/renderinc/reddit-stash/internal/search"
	"github.com/renderinc/reddit-stash/internal/storage"
	stashsync "github.com/renderinc/reddit-stash/internal/sync"
)

func openDB() (*storage.DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create data directory")
	}

	db, err := storage.Open(cfg.DBPath(), storage.WithLogger(logger.Named("storage")))
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", cfg.DBPath())
	}
	return db, nil
}

func openIndex() (*search.Index, error) {
	idx, err := search.Open(cfg.IndexPath())
	if err != nil {
		return nil, errors.Wrapf(err, "open search index %s", cfg.IndexPath())
	}
	return idx, nil
}

func newDetector(db *storage.DB) *dedup.Detector {
	return dedup.NewDetector(db, logger.Named("dedup"))
}

func newReconciler(db *storage.DB) *stashsync.Reconciler {
	return stashsync.NewReconciler(db, db,
		stashsync.WithBatchSize(cfg.Sync.BatchSize),
		stashsync.WithBatchTimeout(cfg.BatchTimeout()),
		stashsync.WithLogger(logger.Named("sync")),
	)
}

// reindexPost keeps the local keyword index in step with a write. The
// database is the source of truth, so failures only warn; `reindex` repairs.
func reindexPost(ctx context.Context, db *storage.DB, id int64) {
	idx, err := openIndex()
	if err != nil {
		logger.Logger.Warnw("Search index unavailable, run `reddit-stash reindex` later", "error", err)
		return
	}
	defer idx.Close()

	p, err := db.GetByID(ctx, id)
	if err != nil || p == nil {
		logger.Logger.Warnw("Could not reload post for indexing", "id", id, "error", err)
		return
	}
	if err := idx.IndexPost(p); err != nil {
		logger.Logger.Warnw("Failed to index post", "id", id, "error", err)
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Newf("invalid post id %q", s)
	}
	return id, nil
}

func strPtr(s string) *string { return &s }
