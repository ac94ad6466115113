package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/vango-go/posecoach/pkg/feedback"
	"github.com/vango-go/posecoach/pkg/gateway/config"
	"github.com/vango-go/posecoach/pkg/gateway/live/sessions"
	"github.com/vango-go/posecoach/pkg/gateway/metrics"
	gatewayserver "github.com/vango-go/posecoach/pkg/gateway/server"
)

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func newComposer(cfg config.Config, logger *slog.Logger) *feedback.Composer {
	return &feedback.Composer{
		Model:        cfg.Model,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		Persona:      cfg.Persona,
		Timeout:      cfg.FeedbackTimeout,
		Retries:      cfg.FeedbackRetries,
		RetryBackoff: cfg.FeedbackRetryBackoff,
		Logger:       logger,
	}
}

func runServe(ctx context.Context, stderr io.Writer, deps appDeps, addrOverride string) error {
	if deps.loadConfig == nil || deps.newProvider == nil || deps.listen == nil {
		return errors.New("missing serve dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addrOverride != "" {
		cfg.Addr = addrOverride
	}
	logger := newLogger(stderr, cfg.LogLevel, cfg.LogFormat)

	httpClient := gatewayserver.NewHTTPClient(cfg)
	provider, err := deps.newProvider(ctx, cfg, httpClient)
	if err != nil {
		return fmt.Errorf("init provider %s: %w", cfg.Provider, err)
	}
	composer := newComposer(cfg, logger)
	composer.Provider = provider

	opts := gatewayserver.Options{
		Feedback: composer,
		Sessions: sessions.NewTracker(),
	}
	if cfg.MetricsEnabled {
		opts.Metrics = metrics.New(metrics.DefaultNamespace)
		opts.Feedback = metrics.InstrumentFeedback(composer, opts.Metrics, cfg.Provider)
	}
	if cfg.HistoryDBPath != "" {
		if deps.openHistory == nil {
			return errors.New("missing openHistory dependency")
		}
		store, err := deps.openHistory(ctx, cfg.HistoryDBPath)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
		opts.History = store
	}

	gw := gatewayserver.New(cfg, logger, opts)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	ln, err := deps.listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	logger.Info("starting posecoach", "addr", ln.Addr().String(), "provider", cfg.Provider, "model", cfg.Model, "history", cfg.HistoryDBPath != "")

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("shutdown signal received", "signal", sig.String())
		case <-gctx.Done():
		}
		return shutdown(httpSrv, gw.Sessions(), cfg, logger)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("posecoach stopped")
	return nil
}

// shutdown stops accepting sessions, warns live ones, and gives them the
// grace period to finish before canceling the rest.
func shutdown(httpSrv *http.Server, tracker *sessions.Tracker, cfg config.Config, logger *slog.Logger) error {
	tracker.SetDraining(true)
	if warned := tracker.WarnAll("server_draining", "server is shutting down"); warned > 0 {
		logger.Info("warned live sessions", "count", warned)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !tracker.Wait(waitCtx) {
		canceled := tracker.CancelAll()
		logger.Warn("grace period elapsed, canceled live sessions", "count", canceled)
	}
	return nil
}
