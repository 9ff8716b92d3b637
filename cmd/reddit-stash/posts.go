package main

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/renderinc/reddit-stash/internal/dedup"
	"github.com/renderinc/reddit-stash/internal/logger"
	"github.com/renderinc/reddit-stash/internal/storage"
)

var (
	addURL       string
	addTitle     string
	addBody      string
	addAuthor    string
	addSubreddit string
	addRedditID  string

	editTitle    string
	editBody     string
	editNotes    string
	editRating   int
	editFavorite bool
	editRead     bool
	editNoSync   bool

	listDeleted bool

	dupesPost      int64
	dupesThreshold float64
	dupesRefresh   bool
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Save a post, warning about near-duplicates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		det := newDetector(db)
		matches, err := det.FindMatches(ctx, addBody, dedup.DefaultThreshold)
		if err != nil {
			return err
		}

		p := &storage.Post{
			RedditID:    addRedditID,
			URL:         addURL,
			Title:       addTitle,
			Author:      addAuthor,
			Subreddit:   addSubreddit,
			BodyMinHash: det.Signature(addBody),
		}
		if addBody != "" {
			p.BodyText = strPtr(addBody)
		}
		if err := db.CreatePost(ctx, p); err != nil {
			return err
		}
		reindexPost(ctx, db, p.ID)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Added post %d\n", p.ID)
		if len(matches) > 0 {
			fmt.Fprintf(out, "Possible duplicates:\n")
			printMatches(cmd, matches)
		}
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <post-id>",
	Short: "Edit a post's title, body, notes, rating or flags",
	Long: `Edit a post. When a sync server is configured the edited post is
pushed right away; --no-sync leaves it for the next sweep.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		var u storage.PostUpdate
		if flags.Changed("title") {
			u.CustomTitle = strPtr(editTitle)
		}
		if flags.Changed("body") {
			u.CustomBody = strPtr(editBody)
		}
		if flags.Changed("notes") {
			u.Notes = strPtr(editNotes)
		}
		if flags.Changed("rating") {
			u.Rating = &editRating
		}
		if flags.Changed("favorite") {
			u.IsFavorite = &editFavorite
		}
		if flags.Changed("read") {
			u.IsRead = &editRead
		}
		if u == (storage.PostUpdate{}) {
			return errors.WithHint(errors.New("nothing to change"), "pass at least one of --title --body --notes --rating --favorite --read")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.UpdatePost(ctx, id, u); err != nil {
			return err
		}
		if u.CustomBody != nil {
			if err := newDetector(db).RefreshSignature(ctx, id); err != nil {
				return err
			}
		}
		reindexPost(ctx, db, id)

		fmt.Fprintf(cmd.OutOrStdout(), "Updated post %d\n", id)
		if editNoSync {
			return nil
		}

		// The edit is saved; a failed push leaves the post pending for the next sweep
		results, err := newReconciler(db).SyncSinglePost(ctx, id)
		if err != nil {
			logger.Logger.Warnw("Could not push edited post", "id", id, "error", err)
			return nil
		}
		if len(results) > 0 {
			printSyncResults(cmd, results)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <post-id>",
	Short: "Soft-delete a post; the deletion syncs as a tombstone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.SoftDelete(ctx, id); err != nil {
			return err
		}
		reindexPost(ctx, db, id)

		fmt.Fprintf(cmd.OutOrStdout(), "Deleted post %d\n", id)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved posts with their sync state",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		posts, err := db.List(cmd.Context(), listDeleted)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, p := range posts {
			fmt.Fprintf(out, "%5d  %-8s  %s\n", p.ID, syncLabel(p), p.CanonicalTitle())
		}
		fmt.Fprintf(out, "%d posts\n", len(posts))
		return nil
	},
}

func syncLabel(p *storage.Post) string {
	switch {
	case p.IsDeleted && p.IsDirty():
		return "deleting"
	case p.IsDeleted:
		return "deleted"
	case p.LastSyncStatus != nil && *p.LastSyncStatus == "failed":
		return "failed"
	case p.IsDirty():
		return "pending"
	default:
		return "synced"
	}
}

var dupesCmd = &cobra.Command{
	Use:   "dupes [text]",
	Short: "Find near-duplicate posts by MinHash similarity",
	Long: `Find near-duplicates of a piece of text, or of a saved post with --post.

--refresh recomputes every stored signature from the current body first,
which is needed after bodies were edited outside this tool.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if dupesPost == 0 && len(args) == 0 && !dupesRefresh {
			return errors.New("pass text to compare or --post <id>")
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		det := newDetector(db)

		if dupesRefresh {
			posts, err := db.List(ctx, false)
			if err != nil {
				return err
			}
			for _, p := range posts {
				if err := det.RefreshSignature(ctx, p.ID); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %d signatures\n", len(posts))
		}

		var matches []dedup.Match
		switch {
		case dupesPost != 0:
			matches, err = det.FindDuplicatesOf(ctx, dupesPost, dupesThreshold)
		case len(args) == 1:
			matches, err = det.FindMatches(ctx, args[0], dupesThreshold)
		default:
			return nil
		}
		if err != nil {
			return err
		}

		if len(matches) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No duplicates found")
			return nil
		}
		printMatches(cmd, matches)
		return nil
	},
}

func printMatches(cmd *cobra.Command, matches []dedup.Match) {
	out := cmd.OutOrStdout()
	for _, m := range matches {
		fmt.Fprintf(out, "  %5d  %3.0f%%  %s\n", m.Post.ID, m.Similarity*100, strings.TrimSpace(m.Post.CanonicalTitle()))
	}
}

func init() {
	addCmd.Flags().StringVar(&addURL, "url", "", "Post URL (required)")
	addCmd.Flags().StringVar(&addTitle, "title", "", "Post title")
	addCmd.Flags().StringVar(&addBody, "body", "", "Post body text")
	addCmd.Flags().StringVar(&addAuthor, "author", "", "Reddit author")
	addCmd.Flags().StringVar(&addSubreddit, "subreddit", "", "Subreddit without r/")
	addCmd.Flags().StringVar(&addRedditID, "reddit-id", "", "Reddit fullname, e.g. t3_abc123")
	_ = addCmd.MarkFlagRequired("url")

	editCmd.Flags().StringVar(&editTitle, "title", "", "Custom title")
	editCmd.Flags().StringVar(&editBody, "body", "", "Custom body")
	editCmd.Flags().StringVar(&editNotes, "notes", "", "Personal notes")
	editCmd.Flags().IntVar(&editRating, "rating", 0, "Rating")
	editCmd.Flags().BoolVar(&editFavorite, "favorite", false, "Mark as favorite")
	editCmd.Flags().BoolVar(&editRead, "read", false, "Mark as read")
	editCmd.Flags().BoolVar(&editNoSync, "no-sync", false, "Do not push the edit to the sync server now")

	listCmd.Flags().BoolVar(&listDeleted, "deleted", false, "Include soft-deleted posts")

	dupesCmd.Flags().Int64Var(&dupesPost, "post", 0, "Compare against a saved post")
	dupesCmd.Flags().Float64Var(&dupesThreshold, "threshold", dedup.DefaultThreshold, "Minimum similarity (0-1)")
	dupesCmd.Flags().BoolVar(&dupesRefresh, "refresh", false, "Recompute stored signatures first")
}
