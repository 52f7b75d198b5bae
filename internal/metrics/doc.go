// Package metrics exposes Prometheus instrumentation for the job
// pipeline: claim/completion counters, per-file histograms, and
// gauges refreshed by a background collector.
package metrics
