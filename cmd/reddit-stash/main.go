package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/renderinc/reddit-stash/internal/config"
	"github.com/renderinc/reddit-stash/internal/logger"
)

var (
	configFile string
	dataDir    string
	jsonLogs   bool
	verbosity  int

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "reddit-stash",
	Short: "Local-first Reddit bookmarks with duplicate detection, sync and search",
	Long: `reddit-stash keeps saved Reddit posts in a local SQLite database, flags
near-duplicates with MinHash, pushes changes to a remote index server and
queries it for semantic search.

Examples:
  reddit-stash add --url https://reddit.com/r/golang/abc --title "Generics" --body "..."
  reddit-stash settings set sync_server_url localhost:6893
  reddit-stash sync                  # push pending posts
  reddit-stash search "type parameters"
  reddit-stash search --local generics
  reddit-stash summarize 12          # Ctrl+C stops and keeps the partial summary
  reddit-stash serve                 # run the index server`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		overrides := map[string]any{}
		if cmd.Flags().Changed("data-dir") {
			overrides["data_dir"] = dataDir
		}
		if jsonLogs {
			overrides["log.json"] = true
		}

		c, err := config.Load(configFile, overrides)
		if err != nil {
			return errors.Wrap(err, "load configuration")
		}
		cfg = c

		if err := logger.Initialize(cfg.Log.JSON, verbosity); err != nil {
			return errors.Wrap(err, "initialize logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default ./stash.toml)")
	flags.StringVar(&dataDir, "data-dir", "./data", "Directory for the database and index files")
	flags.BoolVar(&jsonLogs, "json-logs", false, "Log as JSON")
	flags.CountVarP(&verbosity, "verbose", "v", "Increase log verbosity")

	rootCmd.AddCommand(
		addCmd, editCmd, deleteCmd, listCmd, dupesCmd,
		syncCmd, daemonCmd,
		searchCmd, similarCmd, summarizeCmd,
		settingsCmd, foldersCmd,
		reindexCmd, statsCmd, serveCmd,
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
		os.Exit(1)
	}
}
