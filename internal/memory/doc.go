// Package memory configures Go's runtime memory limit and provides
// backpressure signals for decode-heavy processing.
//
// Image decoding allocates whole uncompressed bitmaps, and the WebP
// encoder allocates outside the Go heap through CGO, so a container
// can be OOM-killed long before the Go GC feels any pressure. Unlike
// GOMAXPROCS, GOMEMLIMIT is not derived from cgroup limits
// automatically; call [ConfigureFromEnv] early in main to set it from
// the environment:
//
//   - GOMEMLIMIT: takes precedence when set (standard Go env var)
//   - MEMORY_LIMIT: container memory limit in bytes, typically from the
//     Kubernetes Downward API
//   - MEMORY_RATIO: fraction of the limit given to the Go heap
//     (default 0.85; the rest covers CGO encoder buffers and stacks)
//
// For runtime backpressure, [Monitor] samples heap usage and pauses
// processing above a critical watermark:
//
//	monitor := memory.NewMonitor(memory.DefaultConfig())
//	monitor.Start()
//	defer monitor.Stop()
//
//	// before decoding each file:
//	if !monitor.WaitIfPaused() {
//	    return // shutting down
//	}
//
// GOMEMLIMIT is a soft limit: the GC runs more aggressively near it,
// but CGO and mmap allocations are not counted, which is exactly why
// the ratio reserves headroom.
package memory
