package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/tug-of-war-backend/internal/archive"
	"github.com/DoyleJ11/tug-of-war-backend/internal/config"
	"github.com/DoyleJ11/tug-of-war-backend/internal/httpapi"
	"github.com/DoyleJ11/tug-of-war-backend/internal/hub"
	"github.com/DoyleJ11/tug-of-war-backend/internal/logging"
	"github.com/DoyleJ11/tug-of-war-backend/internal/reaper"
	"github.com/DoyleJ11/tug-of-war-backend/internal/session"
	"github.com/DoyleJ11/tug-of-war-backend/internal/token"
)

const releaseVersion = "1.0.0"

func main() {
	cfg := &config.Config{}
	cobra.CheckErr(config.NewCommand(cfg, releaseVersion, serve).Execute())
}

func serve(cmd *cobra.Command, cfg *config.Config) error {
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rec archive.Recorder = archive.Nop{}
	if cfg.DatabaseURL != "" {
		store, err := archive.Open(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		rec = store
		log.Info("match archive enabled")
	}

	h := hub.NewHub(ctx, token.NewRegistry(),
		hub.WithLogger(log),
		hub.WithOnFinished(archive.Sink(context.WithoutCancel(ctx), rec, log, 5*time.Second)),
	)
	binder := session.NewBinder(h, cfg.AdminCode, log)
	if cfg.AdminCode == "" {
		log.Warn("no admin code configured; anyone may create rooms and join as admin")
	}

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:            h,
			Binder:         binder,
			Logger:         log,
			AllowedOrigins: cfg.AllowedOrigins,
			PublicURL:      cfg.PublicURL,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		// Hijacked websocket connections outlive Shutdown; tie them to ctx.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	if cfg.RoomIdleTimeout > 0 {
		r := reaper.New(h, cfg.RoomIdleTimeout, log)
		if err := r.Start(ctx, cfg.ReapSchedule); err != nil {
			return err
		}
		defer r.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("version", releaseVersion))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(sctx)
		h.Shutdown()
		<-h.Done()
		return err
	})

	return g.Wait()
}
