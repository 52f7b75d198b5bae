// Package scheduler dispatches pending jobs to the orchestrator,
// bounded by the concurrency stored in settings.
package scheduler
