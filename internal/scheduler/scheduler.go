package scheduler

import (
	"context"
	"sync"
	"time"

	"image-optimizer/internal/database"
	"image-optimizer/internal/logging"
	"image-optimizer/internal/metrics"
	"image-optimizer/internal/orchestrator"
)

// Scheduler polls the queue and hands claimed jobs to the
// orchestrator, keeping at most the configured concurrency in flight.
// Concurrency is re-read from settings on every poll, so changes apply
// without a restart.
type Scheduler struct {
	db    *database.DB
	orch  *orchestrator.Orchestrator
	sleep time.Duration
}

// New creates a scheduler polling every sleep interval.
func New(db *database.DB, orch *orchestrator.Orchestrator, sleep time.Duration) *Scheduler {
	if sleep <= 0 {
		sleep = 3 * time.Second
	}
	return &Scheduler{db: db, orch: orch, sleep: sleep}
}

// Run is the dispatch loop. With once set it drains the pending queue
// and returns when nothing is left in flight; otherwise it runs until
// the context is canceled, waiting for in-flight jobs before
// returning.
func (s *Scheduler) Run(ctx context.Context, once bool) error {
	var (
		mu       sync.Mutex
		inflight = make(map[int64]struct{})
		wg       sync.WaitGroup
	)

	for {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return err
		}

		concurrency := s.concurrency()
		metrics.WorkerConcurrency.Set(float64(concurrency))

		mu.Lock()
		free := concurrency - len(inflight)
		mu.Unlock()

		if free > 0 {
			jobs, err := s.db.ClaimPending(free)
			if err != nil {
				logging.Error("Failed to claim pending jobs: %v", err)
			}
			for _, job := range jobs {
				metrics.JobsClaimed.Inc()
				mu.Lock()
				inflight[job.ID] = struct{}{}
				mu.Unlock()

				wg.Add(1)
				go func(id int64) {
					defer wg.Done()
					defer func() {
						mu.Lock()
						delete(inflight, id)
						mu.Unlock()
					}()
					if err := s.orch.ProcessJob(ctx, id); err != nil && ctx.Err() == nil {
						logging.Error("Job %d run failed: %v", id, err)
					}
				}(job.ID)
			}
		}

		if once {
			mu.Lock()
			idle := len(inflight) == 0
			mu.Unlock()
			if idle && s.queueEmpty() {
				wg.Wait()
				return nil
			}
		}

		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-time.After(s.sleep):
		}
	}
}

func (s *Scheduler) concurrency() int {
	settings, err := s.db.GetSettings()
	if err != nil {
		logging.Warn("Failed to read settings, using concurrency 1: %v", err)
		return 1
	}
	return settings.ClampConcurrency()
}

func (s *Scheduler) queueEmpty() bool {
	counts, err := s.db.CountJobsByStatus()
	if err != nil {
		logging.Warn("Failed to count jobs: %v", err)
		return false
	}
	return counts[database.StatusPending] == 0 && counts[database.StatusProcessing] == 0
}
