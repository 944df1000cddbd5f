// Package runtime hosts the long-running render daemon: telemetry, HTTP
// health and metrics, the message bus and the render service.
package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/intonelabs/intone/internal/bus"
	"github.com/intonelabs/intone/internal/config"
	"github.com/intonelabs/intone/internal/emotion"
	"github.com/intonelabs/intone/internal/finish"
	"github.com/intonelabs/intone/internal/history"
	"github.com/intonelabs/intone/internal/natsserver"
	"github.com/intonelabs/intone/internal/pipeline"
	"github.com/intonelabs/intone/internal/service"
	"github.com/intonelabs/intone/internal/synth"
)

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	tel        *telemetry
	ready      atomic.Bool
	wg         sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings all components up and blocks until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := newTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tel = tel

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer busClient.Close()

	store, err := history.Open(ctx, r.cfg.History, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	table, err := emotion.LoadTable(r.cfg.Emotions.Path, r.logger)
	if err != nil {
		return fmt.Errorf("failed to load emotion table: %w", err)
	}

	engine, err := synth.NewEngine(r.cfg.Engine)
	if err != nil {
		return fmt.Errorf("failed to build synthesis engine: %w", err)
	}
	if closer, ok := engine.(io.Closer); ok {
		defer closer.Close()
	}

	adapter := synth.NewAdapter(engine, r.cfg.Engine.SampleRate, r.cfg.Engine.Channels, r.cfg.Engine.Workers, r.logger)
	finisher := finish.NewFinisher(
		finish.NewFFmpegNormalizer(r.cfg.Output.FFmpegPath),
		finish.NewEncoder(r.cfg.Output.FFmpegPath),
		r.logger,
	)
	runner := pipeline.NewRunner(table, adapter, finisher, store,
		r.cfg.Engine.SampleRate, r.cfg.Engine.Channels, r.logger)

	renderSvc := service.New(ctx, r.cfg, busClient, runner, r.logger)
	if err := renderSvc.Start(); err != nil {
		return fmt.Errorf("failed to start render service: %w", err)
	}
	defer renderSvc.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if handler := r.tel.MetricsHandler(); handler != nil {
		mux.Handle("/metrics", handler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if err := r.tel.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
