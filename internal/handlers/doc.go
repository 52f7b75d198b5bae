// Package handlers implements the HTTP API: job submission and
// control, per-file overrides, presets, settings and health.
package handlers
