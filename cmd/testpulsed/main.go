package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/testpulse/testpulse/alerts"
	"github.com/testpulse/testpulse/api"
	"github.com/testpulse/testpulse/config"
	"github.com/testpulse/testpulse/engine"
	"github.com/testpulse/testpulse/scoring"
	"github.com/testpulse/testpulse/uploader"
	"github.com/testpulse/testpulse/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("testpulsed starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"upload_endpoint", cfg.Engine.UploadEndpoint,
		"sampling_rate", cfg.Engine.SamplingRate,
		"batch_size", cfg.Engine.BatchSize,
		"auth_mode", cfg.Server.Auth.Mode,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Upload path: HTTP transport wrapped in the retry policy. A daemon with
	// no endpoint configured keeps everything local (scoring still runs).
	var sink *uploader.Retrier
	if cfg.Engine.UploadEndpoint != "" {
		httpUp, err := uploader.NewHTTP(cfg.Engine)
		if err != nil {
			slog.Error("failed to build uploader", "err", err)
			os.Exit(1)
		}
		sink = uploader.NewRetrier(httpUp, cfg.Engine)
	} else {
		slog.Warn("no upload endpoint configured — records stay local")
		sink = uploader.NewRetrier(discard{}, cfg.Engine)
	}

	eng := engine.New(cfg.Engine, sink)

	// Alerts engine and WebSocket hub both consume recomputed scores: one
	// evaluates rules, the other pushes live updates to dashboard clients.
	alertEngine := alerts.New(cfg.Server.Alerts)
	hub := ws.New(eng, cfg.Server.BroadcastInterval)
	eng.SetNotify(func(res *scoring.Result) {
		alertEngine.Evaluate(res)
		hub.Publish(res)
	})

	go eng.Run(ctx)

	// Hot reload: sampling rate and alert rules apply without a restart.
	go func() {
		err := config.Watch(ctx, *configPath, func(next *config.Config) {
			eng.SetSamplingRate(next.Engine.SamplingRate)
			alertEngine.SetRules(next.Server.Alerts.Rules)
			slog.Info("config reloaded",
				"sampling_rate", next.Engine.SamplingRate,
				"alert_rules", len(next.Server.Alerts.Rules))
		})
		if err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	go hub.Run(ctx)

	// Combined HTTP server: REST API + metrics + WebSocket hub on HTTPPort.
	httpMux := http.NewServeMux()
	httpMux.Handle("/", api.New(eng, alertEngine, cfg.Server.Auth))
	httpMux.Handle("/ws/stream", hub)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: httpMux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("testpulsed shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Engine.ShutdownGrace)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	eng.Close(shutdownCtx)
	slog.Info("testpulsed stopped")
}

// discard accepts batches without sending them anywhere. Used when no upload
// endpoint is configured.
type discard struct{}

func (discard) UploadBatch(_ context.Context, _ uploader.Batch) error { return nil }
