// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"card-scan-workers/internal/cardmatch"
	"card-scan-workers/internal/common/camunda"
	"card-scan-workers/internal/common/config"
	"card-scan-workers/internal/common/logger"
	"card-scan-workers/internal/common/observability"
	"card-scan-workers/internal/scanner"
	"card-scan-workers/internal/vision"
	identifycard "card-scan-workers/internal/workers/scan/identify-card"
	scancard "card-scan-workers/internal/workers/scan/scan-card"
)

const resultMode = "single_result"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("version", cfg.App.Version),
		zap.String("catalog", cfg.Catalog.Backend),
		zap.String("cache", cfg.Cache.Backend),
	)

	tracer, err := observability.NewTracer(observability.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.App.Name,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		SampleRatio:    cfg.Tracing.SampleRatio,
	})
	if err != nil {
		zapLog.Fatal("tracer init failed", zap.Error(err))
	}
	obs := observability.New(cfg.App.Name, log)

	backends, err := scanner.BuildBackends(cfg, log)
	if err != nil {
		zapLog.Fatal("catalog backends failed", zap.Error(err))
	}

	opts, err := scanner.RetrieverOptions(cfg.Matching)
	if err != nil {
		zapLog.Fatal("invalid matching config", zap.Error(err))
	}
	retriever := cardmatch.NewRetriever(backends.Searcher, backends.Cache, opts, log)

	extractor := vision.NewOpenAIExtractor(scanner.VisionConfig(cfg.Vision), log)
	if cfg.Vision.APIKey == "" {
		zapLog.Warn("vision api key not set, scan-card jobs will report ocr_failed")
	}

	svc := scanner.NewService(extractor, retriever, log,
		scanner.WithObservability(obs),
		scanner.WithBatchConcurrency(cfg.Scanner.BatchConcurrency),
	)

	ctx := context.Background()
	connectCtx, cancelConnect := context.WithTimeout(ctx, 2*time.Minute)
	zeebe, err := camunda.Connect(connectCtx, &camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: cfg.Camunda.UsePlaintext,
		ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
		RetryConfig: &camunda.RetryConfig{
			MaxRetries: 10,
			BaseDelay:  2 * time.Second,
			MaxDelay:   30 * time.Second,
		},
	}, log)
	cancelConnect()
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	var workers []*camunda.CamundaWorker

	if config.IsWorkerEnabled(cfg, scancard.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, scancard.TaskType)
		hcfg := scancard.LoadConfig()
		hcfg.Timeout = config.GetDuration(wcfg.Timeout)
		handler := scancard.NewHandler(hcfg, svc, log)
		workers = append(workers, camunda.StartWorker(zeebe.GetClient(), scancard.TaskType, wcfg, handler.Handle, log))
	}

	if config.IsWorkerEnabled(cfg, identifycard.TaskType) {
		wcfg := config.GetWorkerConfig(cfg, identifycard.TaskType)
		hcfg := identifycard.LoadConfig()
		hcfg.Timeout = config.GetDuration(wcfg.Timeout)
		handler := identifycard.NewHandler(hcfg, svc, log)
		workers = append(workers, camunda.StartWorker(zeebe.GetClient(), identifycard.TaskType, wcfg, handler.Handle, log))
	}
	zapLog.Info("workers registered", zap.Int("count", len(workers)))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           newMux(cfg, svc, backends, zeebe),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}
	if err := backends.Close(); err != nil {
		zapLog.Error("Error closing catalog backends", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping meter provider", zap.Error(err))
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error flushing traces", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

func newMux(cfg *config.Config, svc *scanner.Service, backends *scanner.Backends, zeebe healthChecker) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		failures := backends.Check(ctx)
		if zeebe != nil {
			if err := zeebe.HealthCheck(ctx); err != nil {
				failures["zeebe"] = err.Error()
			}
		}

		status, code := "ready", http.StatusOK
		if len(failures) > 0 {
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]interface{}{
			"status":   status,
			"failures": failures,
			"time":     time.Now().Format(time.RFC3339),
		})
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		th := svc.Thresholds()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"version": cfg.App.Version,
			"mode":    resultMode,
			"catalog": cfg.Catalog.Backend,
			"levels":  cfg.Matching.Levels,
			"thresholds": map[string]int{
				"minScore":            th.MinScore,
				"verifiedScore":       th.VerifiedScore,
				"nameSimilarityFloor": th.NameSimilarityFloor,
				"ambiguityGap":        th.AmbiguityGap,
			},
		})
	})

	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
