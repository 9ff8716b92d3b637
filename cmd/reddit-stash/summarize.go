package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/renderinc/reddit-stash/internal/completion"
	"github.com/renderinc/reddit-stash/internal/logger"
)

var summarizeDryRun bool

var summarizeCmd = &cobra.Command{
	Use:   "summarize <post-id>",
	Short: "Stream an AI summary of a post and store it",
	Long: `Stream a summary from the configured chat-completions endpoints
(ai_endpoints, tried in order) and save it on the post.

Ctrl+C stops the stream; the partial summary is still saved.`,
	Args: cobra.ExactArgs(1),
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

		// The signal context stops the stream; everything after must still run
		sigCtx := cmd.Context()
		ctx := context.WithoutCancel(sigCtx)

		p, err := db.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p == nil || p.IsDeleted {
			return errors.Newf("post %d not found", id)
		}

		ccfg, err := completion.LoadConfig(ctx, db)
		if err != nil {
			return err
		}
		if len(ccfg.Endpoints) == 0 {
			return errors.WithHint(completion.ErrNoEndpoints,
				"set them with: reddit-stash settings set ai_endpoints https://openrouter.ai/api/v1/chat/completions")
		}
		ccfg.IdleTimeout = cfg.IdleTimeout()
		ccfg.KeepPartialOnFailover = cfg.Completion.KeepPartialOnFailover

		out := cmd.OutOrStdout()
		client := completion.NewClient(ccfg, completion.WithLogger(logger.Named("completion")))
		stream := client.Start(ctx, completion.SummarizeRequest(p), completion.Callbacks{
			OnDelta: func(delta, full string) {
				fmt.Fprint(out, delta)
			},
			OnFinish: func(full string, usage *completion.Usage) {
				fmt.Fprintln(out)
				if usage != nil {
					logger.Logger.Debugw("Completion usage", "prompt_tokens", usage.PromptTokens, "completion_tokens", usage.CompletionTokens)
				}
			},
		})

		go func() {
			select {
			case <-sigCtx.Done():
				stream.Stop()
			case <-stream.Done():
			}
		}()

		text, err := stream.Wait()
		if err != nil {
			return errors.Wrap(err, "summarize")
		}

		summary := strings.TrimSpace(text)
		if summary == "" {
			fmt.Fprintln(out, "Empty summary, nothing saved")
			return nil
		}
		if summarizeDryRun {
			return nil
		}
		if err := db.SetSummary(ctx, id, summary); err != nil {
			return err
		}
		if stream.Stopped() {
			fmt.Fprintln(out, "Stopped; partial summary saved")
		}
		return nil
	},
}

func init() {
	summarizeCmd.Flags().BoolVar(&summarizeDryRun, "dry-run", false, "Print the summary without saving it")
}
