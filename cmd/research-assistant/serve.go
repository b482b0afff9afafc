// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/research-assistant/internal/ratelimit"
	"github.com/pdiddy/research-assistant/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat and research HTTP API",
	Long: `Serve starts the HTTP API: routed chat, blocking and streaming deep
research, rate-limit and cache statistics. The server shuts down gracefully
on SIGINT or SIGTERM.

With --watch, trait and document files under the knowledge directory are
re-ingested when they change.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	watch, _ := cmd.Flags().GetBool("watch")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	deps := server.Deps{
		Chat:       a.router,
		Classifier: a.classifier,
		Limiter:    ratelimit.New(cfg.RateLimit, logger.Named("ratelimit")),
		Memory:     a.memory,
		Usage:      a.usage,
		Version:    version,
		Log:        logger.Named("server"),
	}
	if a.research != nil {
		deps.Research = a.research
	}
	srv, err := server.New(cfg.Server, deps)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return a.memory.Run(gctx, time.Minute) })
	if watch {
		g.Go(func() error { return a.store.Watch(gctx, a.embedder, 500*time.Millisecond, os.Stderr) })
	}
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("server stopped", zap.String("addr", cfg.Server.Addr))
	return nil
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default from server.addr)")
	serveCmd.Flags().Bool("watch", false, "re-ingest the knowledge directory when files change")

	rootCmd.AddCommand(serveCmd)
}
