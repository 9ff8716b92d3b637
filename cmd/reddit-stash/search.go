package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/renderinc/reddit-stash/internal/logger"
	"github.com/renderinc/reddit-stash/internal/search"
	"github.com/renderinc/reddit-stash/internal/storage"
)

var (
	searchK      int
	searchText   bool
	searchLocal  bool
	searchHybrid float64
	similarK     int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Semantic search on the index server, or keyword search offline",
	Long: `Search saved posts.

By default the query goes to the index server. --local uses the offline
keyword index (bleve query syntax: "exact phrase", fuzzy~, +must -not).
--hybrid <w> runs both and fuses them, w being the keyword weight in [0,1].`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		query := strings.Join(args, " ")
		hybrid := cmd.Flags().Changed("hybrid")

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		var local []*search.LocalHit
		if searchLocal || hybrid {
			idx, err := openIndex()
			if err != nil {
				return err
			}
			defer idx.Close()

			if local, err = idx.Search(query, searchK); err != nil {
				return err
			}
			if searchLocal && !hybrid {
				printLocalHits(cmd.OutOrStdout(), query, local)
				return nil
			}
		}

		client := search.NewClient(db, search.WithLogger(logger.Named("search")))
		results, err := client.Search(ctx, search.SearchParams{Query: query, K: searchK, IncludeText: searchText})
		if err != nil {
			return err
		}

		if hybrid {
			fused, err := search.Fuse(local, results, searchK, searchHybrid)
			if err != nil {
				return err
			}
			printFused(cmd.OutOrStdout(), cmd, db, fused)
			return nil
		}

		printResults(cmd, db, results)
		return nil
	},
}

var similarCmd = &cobra.Command{
	Use:   "similar <post-id>",
	Short: "Find posts semantically similar to a synced post",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		client := search.NewClient(db, search.WithLogger(logger.Named("search")))
		results, err := client.Similar(cmd.Context(), search.SimilarParams{PostID: id, K: similarK})
		if err != nil {
			return err
		}

		printResults(cmd, db, results)
		return nil
	},
}

// titleFor prefers the local title, falling back to server metadata
func titleFor(cmd *cobra.Command, db *storage.DB, id int64, meta map[string]any) string {
	if p, err := db.GetByID(cmd.Context(), id); err == nil && p != nil {
		return p.CanonicalTitle()
	}
	if t, ok := meta["title"].(string); ok {
		return t
	}
	return "(unknown post)"
}

func printResults(cmd *cobra.Command, db *storage.DB, results []search.Result) {
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		fmt.Fprintln(out, "No results")
		return
	}

	for i, r := range results {
		score := ""
		if r.Score != nil {
			score = fmt.Sprintf("  %.3f", *r.Score)
		}
		fmt.Fprintf(out, "%2d. [%d]%s  %s\n", i+1, r.PostID, score, titleFor(cmd, db, r.PostID, r.Metadata))
		if r.Text != "" {
			fmt.Fprintf(out, "    %s\n", preview(r.Text, 200))
		}
	}
}

func printLocalHits(out io.Writer, query string, hits []*search.LocalHit) {
	if len(hits) == 0 {
		fmt.Fprintf(out, "No results for %q\n", query)
		return
	}

	for i, h := range hits {
		fmt.Fprintf(out, "%2d. [%d]  %.3f  %s", i+1, h.PostID, h.Score, h.Title)
		if h.Subreddit != "" {
			fmt.Fprintf(out, "  (r/%s)", h.Subreddit)
		}
		fmt.Fprintln(out)
		for _, frags := range h.Fragments {
			if len(frags) > 0 {
				fmt.Fprintf(out, "    %s\n", frags[0])
				break
			}
		}
	}
}

func printFused(out io.Writer, cmd *cobra.Command, db *storage.DB, hits []*search.FusedHit) {
	if len(hits) == 0 {
		fmt.Fprintln(out, "No results")
		return
	}

	for i, h := range hits {
		source := "semantic"
		switch {
		case h.Keyword && h.Semantic:
			source = "both"
		case h.Keyword:
			source = "keyword"
		}
		title := h.Title
		if title == "" {
			title = titleFor(cmd, db, h.PostID, nil)
		}
		fmt.Fprintf(out, "%2d. [%d]  %.3f  %-8s  %s\n", i+1, h.PostID, h.Score, source, title)
	}
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "…"
	}
	return s
}

func init() {
	searchCmd.Flags().IntVarP(&searchK, "k", "k", search.DefaultK, "Number of results")
	searchCmd.Flags().BoolVar(&searchText, "text", false, "Include matched text")
	searchCmd.Flags().BoolVar(&searchLocal, "local", false, "Keyword search the offline index only")
	searchCmd.Flags().Float64Var(&searchHybrid, "hybrid", 0.5, "Fuse keyword and semantic results; value is the keyword weight")

	similarCmd.Flags().IntVarP(&similarK, "k", "k", search.DefaultK, "Number of results")
}
