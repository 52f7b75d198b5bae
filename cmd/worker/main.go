package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"image-optimizer/internal/database"
	"image-optimizer/internal/logging"
	"image-optimizer/internal/memory"
	"image-optimizer/internal/orchestrator"
	"image-optimizer/internal/presets"
	"image-optimizer/internal/scheduler"
	"image-optimizer/internal/startup"
	"image-optimizer/internal/storage"
)

// The worker runs the dispatch loop without the API server; useful for
// draining a queue from cron or scaling processing separately.
func main() {
	memory.ConfigureFromEnv()

	once := flag.Bool("once", false, "drain the pending queue and exit")
	sleep := flag.Duration("sleep", 0, "poll interval (overrides WORKER_SLEEP)")
	flag.Parse()

	config, err := startup.LoadConfig()
	if err != nil {
		logging.Fatal("Configuration error: %v", err)
	}
	if *sleep > 0 {
		config.WorkerSleep = *sleep
	}

	db, err := database.New(config.DatabaseDir)
	if err != nil {
		logging.Fatal("Database error: %v", err)
	}
	defer db.Close()

	store, err := storage.NewDiskStore(config.DataDir)
	if err != nil {
		logging.Fatal("Storage error: %v", err)
	}

	catalog := presets.NewCatalog(config.PresetsPath, db)
	if _, err := catalog.Load(); err != nil {
		logging.Fatal("Preset catalog error: %v", err)
	}

	orch := orchestrator.New(db, store, catalog, config.MaxImageMP)

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()
	defer monitor.Stop()
	orch.SetMemoryMonitor(monitor)

	sched := scheduler.New(db, orch, config.WorkerSleep)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		startup.LogShutdownInitiated(sig.String())
		cancel()
	}()

	startup.LogWorkerInit(config.WorkerSleep, *once)
	start := time.Now()
	if err := sched.Run(ctx, *once); err != nil && err != context.Canceled {
		logging.Fatal("Worker error: %v", err)
	}
	startup.LogShutdownStepComplete("Worker stopped")
	logging.Info("Worker ran for %v", time.Since(start))
	startup.LogShutdownComplete()
}
