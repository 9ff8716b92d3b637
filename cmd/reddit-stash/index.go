package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/renderinc/reddit-stash/internal/remote"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the offline keyword index from the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		idx, err := openIndex()
		if err != nil {
			return err
		}
		defer idx.Close()

		start := time.Now()
		posts, err := db.List(cmd.Context(), false)
		if err != nil {
			return err
		}
		if err := idx.Rebuild(posts); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d posts in %v\n", len(posts), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show post, sync and index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		total, err := db.Count(ctx)
		if err != nil {
			return err
		}
		settings, err := remote.LoadSettings(ctx, db)
		if err != nil {
			return err
		}
		pending, err := db.PendingSyncPosts(ctx, settings.IncludeDeleted)
		if err != nil {
			return err
		}
		signed, err := db.PostsWithSignatures(ctx)
		if err != nil {
			return err
		}

		var indexed uint64
		if idx, err := openIndex(); err == nil {
			indexed, _ = idx.Count()
			idx.Close()
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Database:       %s\n", cfg.DBPath())
		fmt.Fprintf(out, "Posts:          %d\n", total)
		fmt.Fprintf(out, "Pending sync:   %d\n", len(pending))
		fmt.Fprintf(out, "With MinHash:   %d\n", len(signed))
		fmt.Fprintf(out, "Keyword index:  %d docs\n", indexed)
		if settings.Configured() {
			fmt.Fprintf(out, "Sync server:    %s (table %s)\n", settings.ServerURL, settings.TableName)
			fmt.Fprintf(out, "Collections:    %s, %s\n",
				remote.CollectionName(settings.SemanticProfile, settings.TableName),
				remote.CollectionName(settings.SimilarityProfile, settings.TableName))
		} else {
			fmt.Fprintln(out, "Sync server:    not configured")
		}
		return nil
	},
}
