package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"image-optimizer/internal/database"
	"image-optimizer/internal/handlers"
	"image-optimizer/internal/logging"
	"image-optimizer/internal/memory"
	"image-optimizer/internal/metrics"
	"image-optimizer/internal/middleware"
	"image-optimizer/internal/orchestrator"
	"image-optimizer/internal/presets"
	"image-optimizer/internal/scheduler"
	"image-optimizer/internal/startup"
	"image-optimizer/internal/storage"
)

func main() {
	startTime := time.Now()

	// Configure GOMEMLIMIT before any significant allocations
	memory.ConfigureFromEnv()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}

	// Initialize database
	dbStart := time.Now()
	db, err := database.New(config.DatabaseDir)
	if err != nil {
		logging.Fatal("Database error: %v", err)
	}
	defer db.Close()
	startup.LogDatabaseInit(time.Since(dbStart))

	// Initialize blob storage
	store, err := storage.NewDiskStore(config.DataDir)
	if err != nil {
		logging.Fatal("Storage error: %v", err)
	}

	// Preset catalog, with custom presets layered from the database
	catalog := presets.NewCatalog(config.PresetsPath, db)
	if _, err := catalog.Load(); err != nil {
		logging.Fatal("Preset catalog error: %v", err)
	}

	orch := orchestrator.New(db, store, catalog, config.MaxImageMP)

	// Backpressure between files when the heap nears the limit
	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()
	defer monitor.Stop()
	orch.SetMemoryMonitor(monitor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the job dispatch loop
	startup.LogWorkerInit(config.WorkerSleep, false)
	sched := scheduler.New(db, orch, config.WorkerSleep)
	go func() {
		if err := sched.Run(ctx, false); err != nil && err != context.Canceled {
			logging.Error("Scheduler stopped: %v", err)
		}
	}()

	// Metrics endpoint plus the queue/storage gauge collector
	var metricsSrv *http.Server
	if config.MetricsEnabled {
		go metrics.NewCollector(db, store, 15*time.Second).Run(ctx)

		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:        ":" + config.MetricsPort,
			Handler:     metricsMux,
			ReadTimeout: 15 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	// API routes and middleware
	h := handlers.New(db, store, catalog, orch, config)
	router := handlers.NewRouter(h)

	loggedHandler := middleware.Logger(middleware.DefaultLoggingConfig())(router)
	meteredHandler := middleware.Metrics(middleware.DefaultMetricsConfig())(loggedHandler)
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(meteredHandler)

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Start graceful shutdown handler
	go handleShutdown(srv, metricsSrv, cancel)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		logging.Fatal("Server error: %v", err)
	}
}

func handleShutdown(srv, metricsSrv *http.Server, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, ctxCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer ctxCancel()

	// Stop claiming new jobs; running ones finish their current file
	cancel()
	startup.LogShutdownStepComplete("Scheduler stopped")

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownComplete()
}
