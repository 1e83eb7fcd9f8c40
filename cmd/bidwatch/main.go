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

	"github.com/sanlk21/smartrice-bidding/internal/api"
	"github.com/sanlk21/smartrice-bidding/internal/app"
	"github.com/sanlk21/smartrice-bidding/internal/bidding"
	"github.com/sanlk21/smartrice-bidding/internal/channel"
	"github.com/sanlk21/smartrice-bidding/internal/config"
	"github.com/sanlk21/smartrice-bidding/internal/metrics"
	"github.com/sanlk21/smartrice-bidding/internal/sequencer"
	"github.com/sanlk21/smartrice-bidding/internal/validator"
	"github.com/sanlk21/smartrice-bidding/internal/version"
	"github.com/sanlk21/smartrice-bidding/internal/viewmodel"
)

func main() {
	configPath := flag.String("config", "configs/bidwatch.yaml", "path to config file")
	lotsFlag := flag.String("lots", "", "comma-separated lot IDs to watch")
	offer := flag.Float64("offer", 0, "place an offer of this amount on the first lot")
	acceptTerms := flag.Bool("accept-terms", false, "accept the bidding terms for -offer")
	debug := flag.Bool("debug", false, "enable debug logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("bidwatch " + version.String())
		return
	}

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting bidwatch", version.Attr(), "config", *configPath)

	lots := splitLots(*lotsFlag)
	if len(lots) == 0 {
		logger.Error("no lots given, use -lots")
		os.Exit(2)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"api_url", cfg.API.BaseURL,
		"transport", cfg.Channel.Transport,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	reg := metrics.NewRegistry()
	metricsServer := startMetricsServer(cfg, reg, logger)

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

	session := bidding.New(app.SessionConfig(cfg), app.NewAPIClient(cfg, logger), ch,
		bidding.WithLogger(logger),
		bidding.WithMetrics(reg),
	)
	if err := session.Start(ctx); err != nil {
		// The channel keeps retrying; lots still load over REST.
		logger.Warn("push channel not connected yet", "error", err)
	}

	for _, lotID := range lots {
		if _, err := session.OpenLot(ctx, lotID, printSnapshot(logger)); err != nil {
			// The view stays open and loads on the next refresh.
			logger.Error("failed to load lot", "lot_id", lotID, "error", err)
		}
	}

	if *offer > 0 {
		if err := placeOffer(session, lots[0], *offer, *acceptTerms, logger); err != nil {
			logger.Error("offer not started", "lot_id", lots[0], "error", err)
		}
	}

	logger.Info("bidwatch running", "lots", lots)

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := session.Stop(shutdownCtx); err != nil {
		logger.Warn("session stop", "error", err)
	}
	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx)
	}

	logger.Info("bidwatch stopped")
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

func startMetricsServer(cfg *config.Config, reg *metrics.Registry, logger *slog.Logger) *http.Server {
	if cfg.Metrics.Port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, reg.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: mux,
	}
	go func() {
		logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return server
}

func printSnapshot(logger *slog.Logger) func(viewmodel.Snapshot) {
	return func(s viewmodel.Snapshot) {
		if !s.Loaded {
			return
		}
		logger.Info("lot",
			"lot_id", s.LotID,
			"variety", s.Lot.Commodity.Variety,
			"status", s.Status,
			"price", s.CurrentPrice.StringFixed(2),
			"average", s.MovingAverage.StringFixed(2),
			"trend", s.Trend,
			"bids", s.TotalBids,
			"pending", s.PendingOptimistic,
			"time_left", s.TimeLeft.Truncate(time.Second),
		)
	}
}

// placeOffer drives one confirmation sequence. Accepting terms arms the
// countdown; the offer is sent when it reaches zero.
func placeOffer(session *bidding.Session, lotID string, amount float64, accept bool, logger *slog.Logger) error {
	seq, err := session.NewOffer(lotID, func(st sequencer.State) {
		attrs := []any{
			"lot_id", st.LotID,
			"status", st.Status,
			"amount", st.Amount.StringFixed(2),
			"countdown", st.CountdownRemaining,
		}
		if st.Err != nil {
			attrs = append(attrs, "error", st.Err)
			if code := errorCode(st.Err); code != "" {
				attrs = append(attrs, "code", code)
			}
		}
		if st.Offer != nil {
			attrs = append(attrs, "offer_id", st.Offer.ID)
		}
		logger.Info("offer", attrs...)
	})
	if err != nil {
		return err
	}

	if err := seq.SetAmount(amount); err != nil {
		return err
	}
	if !accept {
		logger.Warn("terms not accepted, offer will not be sent", "lot_id", lotID)
		return nil
	}
	return seq.AcceptTerms(true)
}

// errorCode returns the validation or store rejection code behind err.
func errorCode(err error) string {
	if code := validator.CodeOf(err); code != "" {
		return string(code)
	}
	var subErr *api.SubmissionError
	if errors.As(err, &subErr) {
		return subErr.Code()
	}
	return ""
}
