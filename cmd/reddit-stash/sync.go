package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/renderinc/reddit-stash/internal/logger"
	"github.com/renderinc/reddit-stash/internal/remote"
	stashsync "github.com/renderinc/reddit-stash/internal/sync"
)

var (
	syncPost  int64
	syncForce bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push pending posts to the index server",
	Long: `Push every post changed since its last confirmed sync.

  --post <id>  sync one post now, whether or not it is pending
  --force      clear all sync state and re-embed every post`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if syncPost != 0 && syncForce {
			return errors.New("--post and --force are mutually exclusive")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		settings, err := remote.LoadSettings(ctx, db)
		if err != nil {
			return err
		}
		if !settings.Configured() {
			return errors.WithHint(errors.New("sync server is not configured"),
				"set it with: reddit-stash settings set sync_server_url <url>")
		}

		rec := newReconciler(db)
		var results []stashsync.Result
		switch {
		case syncPost != 0:
			results, err = rec.SyncSinglePost(ctx, syncPost)
		case syncForce:
			results, err = rec.ForceResyncAllPosts(ctx)
		default:
			results, err = rec.SyncPendingPosts(ctx)
		}
		if err != nil {
			return err
		}

		printSyncResults(cmd, results)
		return nil
	},
}

func printSyncResults(cmd *cobra.Command, results []stashsync.Result) {
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "Nothing to sync")
		return
	}

	stats := stashsync.Summarize(results)
	fmt.Fprintf(out, "Synced %d of %d posts", stats.Synced, stats.Total)
	if stats.Failed > 0 {
		fmt.Fprintf(out, " (%d failed)", stats.Failed)
	}
	fmt.Fprintln(out)

	for _, res := range results {
		if !res.Success && res.Error != nil {
			fmt.Fprintf(out, "  post %d: %s\n", res.PostID, *res.Error)
		}
	}
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Sync pending posts periodically until interrupted",
	Long: `Run a sync sweep on start and then every sync.interval_seconds.
Send SIGHUP to trigger a sweep immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		log := logger.Named("daemon")
		sched := stashsync.NewScheduler(newReconciler(db), cfg.SyncInterval(), log)

		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		go func() {
			for {
				select {
				case <-hup:
					log.Infow("Sync triggered by SIGHUP")
					sched.Trigger()
				case <-ctx.Done():
					return
				}
			}
		}()

		log.Infow("Sync daemon started", "interval", cfg.SyncInterval(), "batch_size", cfg.Sync.BatchSize)
		sched.Run(ctx)

		last, stats := sched.Last()
		log.Infow("Sync daemon stopped", "last_run", last, "last_synced", stats.Synced, "last_failed", stats.Failed)
		return nil
	},
}

func init() {
	syncCmd.Flags().Int64Var(&syncPost, "post", 0, "Sync a single post")
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "Re-sync and re-embed every post")
}
