package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sanlk21/smartrice-bidding/internal/app"
	"github.com/sanlk21/smartrice-bidding/internal/archive"
	"github.com/sanlk21/smartrice-bidding/internal/channel"
	"github.com/sanlk21/smartrice-bidding/internal/config"
	"github.com/sanlk21/smartrice-bidding/internal/database"
	"github.com/sanlk21/smartrice-bidding/internal/metrics"
	"github.com/sanlk21/smartrice-bidding/internal/router"
	"github.com/sanlk21/smartrice-bidding/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/archiver.yaml", "path to config file")
	lotsFlag := flag.String("lots", "", "comma-separated lot IDs to subscribe to (default: every lot the channel delivers)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("archiver " + version.String())
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting archiver", version.Attr(), "config", *configPath)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if !cfg.Archive.Enabled {
		logger.Error("archive is disabled in config, set archive.enabled")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := archive.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to prepare schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	reg := metrics.NewRegistry()

	writer := archive.NewOfferWriter(app.ArchiveConfig(cfg), pool, app.NewAPIClient(cfg, logger), logger, reg)
	if err := writer.Start(ctx); err != nil {
		logger.Error("failed to start offer writer", "error", err)
		os.Exit(1)
	}

	ch, err := app.NewChannel(cfg, logger, reg)
	if err != nil {
		logger.Error("failed to create push channel", "error", err)
		os.Exit(1)
	}
	ch.Subscribe(channel.EventConnection, func(ev channel.Event) {
		if ev.Connection != nil && ev.Connection.Status == channel.StatusFailed {
			logger.Error("push channel gave up reconnecting", "error", ev.Connection.Err)
			cancel()
		}
	})

	rt := router.New(ch, logger, reg)
	rt.Start()

	lots := splitLots(*lotsFlag)
	if len(lots) == 0 {
		rt.WatchAll(writer)
	}
	for _, lotID := range lots {
		rt.Watch(lotID, writer)
	}

	handler := archive.NewHandler(archive.NewHistoryReader(pool), pool, writer, reg.Handler(), logger).
		WithChannel(ch)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: handler.Routes(cfg.Metrics.Path),
	}
	go func() {
		logger.Info("starting http server", "port", cfg.Metrics.Port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := ch.Connect(ctx); err != nil {
		logger.Warn("push channel not connected yet", "error", err)
	}

	logger.Info("archiver running",
		"instance_id", cfg.Instance.ID,
		"lots", lots,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	rt.Stop()
	ch.Close()
	writer.Stop(shutdownCtx)
	server.Shutdown(shutdownCtx)

	stats := writer.Stats()
	logger.Info("archiver stopped",
		"received", stats.Received,
		"inserted", stats.Inserts,
		"conflicts", stats.Conflicts,
		"errors", stats.Errors,
	)
}

func splitLots(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
