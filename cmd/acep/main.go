package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"

	"github.com/acepenergy/acep/pkg/chat"
	"github.com/acepenergy/acep/pkg/log"
	"github.com/acepenergy/acep/pkg/metrics"
	"github.com/acepenergy/acep/pkg/server"
	"github.com/acepenergy/acep/pkg/storage"
	"github.com/acepenergy/acep/pkg/weather"
)

func main() {
	// init packages
	s := storage.Configured()
	w := weather.Configured()
	c := chat.Configured()

	// init server
	srv := server.Configured(s, w, c)

	// parse flags
	lflag.Configure()

	// lflag automatically sets llog's level, but we need to set the slog level
	level, err := log.LevelFromFlags()
	if err != nil {
		panic(err)
	}
	log.SetDefaultLogLevel(level)
	slog.Debug("logger configured", slog.String("level", level.String()))

	metrics.Init()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	if err := w.Start(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to start weather refresh", slog.Any("error", err))
		os.Exit(1)
	}
	defer w.Stop()

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
