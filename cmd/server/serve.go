package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hperssn/kioskcheck/internal/config"
	"github.com/hperssn/kioskcheck/internal/domain"
	"github.com/hperssn/kioskcheck/internal/feed"
	"github.com/hperssn/kioskcheck/internal/logger"
	"github.com/hperssn/kioskcheck/internal/runner"
	"github.com/hperssn/kioskcheck/internal/storage"
	"github.com/hperssn/kioskcheck/internal/submit"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the sensor feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat).With(slog.String("app", cfg.AppName))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer repo.Close()

	socket := feed.NewSocketFeed(feed.SocketConfig{
		URL:              cfg.Socket.URL,
		MaxReconnects:    cfg.Socket.MaxReconnects,
		ReconnectDelay:   cfg.Socket.ReconnectDelay,
		HandshakeTimeout: cfg.Socket.HandshakeTimeout,
	}, log)

	table := runner.SubscriptionTable{
		domain.StageTemperature: {socket},
		domain.StageAlcohol:     {socket},
	}
	rdb, err := feed.ConnectRedis(ctx, feed.RedisConfig{
		URL:             cfg.Push.RedisURL,
		ConnectAttempts: cfg.Push.ConnectAttempts,
		ConnectInterval: cfg.Push.ConnectInterval,
	})
	if err != nil {
		log.Warn("push feed unavailable, alcohol stage uses the socket only", logger.Error(err))
	} else {
		defer rdb.Close()
		table = runner.DefaultTable(socket, feed.NewPushFeed(rdb, cfg.Push.Channel, log))
	}

	screen := newKioskScreen(log)
	manager := runner.NewSessionManager(runner.Options{
		Table:         table,
		Submitter:     submit.NewClient(cfg.Submit.Endpoint, cfg.Submit.Timeout),
		Navigator:     screen,
		Notifier:      screen,
		Results:       repo,
		Logger:        log,
		SubmitTimeout: cfg.Submit.Timeout,
		Decay:         cfg.Session.DecayEnabled,
		DecayGrace:    cfg.Session.DecayGrace,
	}, cfg.Session.Retention)
	defer manager.Close()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(manager, repo, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		err := socket.Run(ctx)
		if errors.Is(err, feed.ErrReconnectsExhausted) {
			// Open sessions fail through their idle timeout.
			log.Error("socket feed stopped", logger.Error(err))
			return nil
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		log.Info("listening", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil {
		log.Error("server stopped", logger.Error(err))
		return err
	}
	log.Info("server stopped")
	return nil
}
