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

	"github.com/pulmonics/lung-sound-api/internal/bootstrap"
	"github.com/pulmonics/lung-sound-api/internal/config"
	"github.com/pulmonics/lung-sound-api/internal/observability/logging"
	"github.com/pulmonics/lung-sound-api/internal/observability/metrics"
)

const serviceName = "worker"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(os.Stdout, serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := startMetricsServer(cfg.WorkerMetricsPort, workerMetrics)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	go sweepStaleLoop(ctx, app, workerMetrics, cfg.SweepInterval)

	slog.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribePredictionQueued(ctx, func(handlerCtx context.Context, predictionID string) error {
		if rec, err := app.Repo.GetByID(handlerCtx, predictionID); err == nil {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(rec.CreatedAt))
		}

		workerMetrics.StartPrediction()
		start := time.Now()

		processCtx, cancel := context.WithTimeout(handlerCtx, cfg.ProcessTimeout)
		defer cancel()
		err := app.ProcessUC.ProcessByID(processCtx, predictionID)

		workerMetrics.FinishPrediction(serviceName, time.Since(start), err)
		return err
	})
	if err != nil {
		slog.Error("worker subscribe failed", "error", err)
		os.Exit(1)
	}
}

// sweepStaleLoop periodically fails records stuck in processing past the
// configured deadline so pollers are not left waiting on dead work.
func sweepStaleLoop(ctx context.Context, app *bootstrap.App, m *metrics.WorkerMetrics, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			count, err := app.SweepUC.SweepStale(sweepCtx)
			cancel()
			if err != nil {
				slog.Error("sweep stale predictions", "error", err)
				continue
			}
			if count > 0 {
				m.AddStaleReclaimed(serviceName, count)
				slog.Warn("reclaimed stale predictions", "count", count)
			}
		}
	}
}

func startMetricsServer(port string, m *metrics.WorkerMetrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server failed", "error", err)
		}
	}()
	return server
}
