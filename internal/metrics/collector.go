package metrics

import (
	"context"
	"time"

	"image-optimizer/internal/database"
	"image-optimizer/internal/logging"
	"image-optimizer/internal/storage"
)

// Collector periodically refreshes the gauge metrics that come from
// the database and the blob store.
type Collector struct {
	db       *database.DB
	store    *storage.DiskStore
	interval time.Duration
}

// NewCollector builds a collector; interval defaults to 15s when zero.
func NewCollector(db *database.DB, store *storage.DiskStore, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{db: db, store: store, interval: interval}
}

// Run refreshes gauges until the context is canceled.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.refresh()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.refresh()
		}
	}
}

func (c *Collector) refresh() {
	counts, err := c.db.CountJobsByStatus()
	if err != nil {
		logging.Warn("Metrics collector failed to count jobs: %v", err)
	} else {
		for _, status := range []string{
			database.StatusPending, database.StatusProcessing, database.StatusPaused,
			database.StatusCanceled, database.StatusDone, database.StatusError,
		} {
			QueueDepth.WithLabelValues(status).Set(float64(counts[status]))
		}
	}

	if c.store != nil {
		usage, err := c.store.Usage()
		if err != nil {
			logging.Warn("Metrics collector failed to measure storage: %v", err)
			return
		}
		for prefix, bytes := range usage {
			StorageBytes.WithLabelValues(prefix).Set(float64(bytes))
		}
	}
}
