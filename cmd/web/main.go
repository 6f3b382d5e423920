package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mediaDownloader/internal/config"
	"mediaDownloader/internal/contact"
	"mediaDownloader/internal/converter"
	"mediaDownloader/internal/handlers"
	"mediaDownloader/internal/poller"
	"mediaDownloader/internal/settings"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.FromEnv()
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flag.StringVar(&cfg.SettingsDB, "settings", cfg.SettingsDB, "path of the settings database")
	flag.Parse()

	if cfg.APIKey == "" {
		logger.Warn("CONVERT_API_KEY is not set, the conversion endpoint will likely reject requests")
	}

	prefs, err := settings.Open(cfg.SettingsDB)
	if err != nil {
		logger.Error("failed to open settings", "path", cfg.SettingsDB, "error", err)
		os.Exit(1)
	}
	defer prefs.Close()
	if err := prefs.Load(); err != nil {
		logger.Warn("failed to load settings, using defaults", "error", err)
	}

	httpClient := converter.NewHTTPClient(cfg.HTTPTimeout)
	conv := converter.NewService(logger, converter.Options{
		ConvertURL:  cfg.ConvertURL,
		ProgressURL: cfg.ProgressURL,
		APIKey:      cfg.APIKey,
		Client:      httpClient,
	})
	poll := poller.New(logger, conv, poller.Options{
		Interval:    cfg.PollInterval,
		MaxAttempts: cfg.PollMaxAttempts,
	})
	forwarder := contact.NewForwarder(logger, httpClient, cfg.SendEmailURL, cfg.ContactTo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := handlers.NewApp(ctx, logger, handlers.Deps{
		Converter:   conv,
		Poller:      poll,
		Preferences: prefs,
		Contact:     forwarder,
	})
	app.Sessions().StartCleanupLoop(ctx, 10*time.Minute, cfg.SessionTTL)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server started", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received")
	cancel()
	app.Sessions().CloseAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		_ = srv.Close()
	}
	logger.Info("server stopped")
}
