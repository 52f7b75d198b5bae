// Package orchestrator drives a job through the full processing
// pipeline and owns job-level lifecycle operations: run, reprocess,
// per-file reprocess and purge.
package orchestrator
