package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/renderinc/reddit-stash/internal/embeddings"
	"github.com/renderinc/reddit-stash/internal/logger"
	"github.com/renderinc/reddit-stash/internal/server"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the index server (/sync, /search, /similar)",
	Long: `Run the index server. Each embedding profile in server.profiles gets its
own collections; clients pick profiles with the semantic_embedding_profile
and similarity_embedding_profile settings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logger.Named("server")

		if len(cfg.Server.Profiles) == 0 {
			return errors.New("no embedding profiles configured under server.profiles")
		}

		profiles := make(map[string]embeddings.Embedder, len(cfg.Server.Profiles))
		for name, p := range cfg.Server.Profiles {
			e, err := embeddings.New(p, nil)
			if err != nil {
				return errors.Wrapf(err, "profile %s", name)
			}

			healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := e.Health(healthCtx); err != nil {
				log.Warnw("Embedding profile not healthy, requests using it will fail", "profile", name, "error", err)
			}
			cancel()

			profiles[name] = e
		}

		if err := os.MkdirAll(filepath.Dir(cfg.Server.DBPath), 0o755); err != nil {
			return errors.Wrap(err, "create server data directory")
		}
		store, err := server.OpenChunkStore(cfg.Server.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()

		addr := cfg.ServerAddr()
		if cmd.Flags().Changed("host") || cmd.Flags().Changed("port") {
			host, port := cfg.Server.Host, cfg.Server.Port
			if cmd.Flags().Changed("host") {
				host = serveHost
			}
			if cmd.Flags().Changed("port") {
				port = servePort
			}
			addr = net.JoinHostPort(host, strconv.Itoa(port))
		}

		svc := server.NewService(store, profiles, server.WithLogger(log))
		return server.New(svc, log).ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "localhost", "Host to bind to (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 6893, "Port to listen on (overrides server.port)")
}
