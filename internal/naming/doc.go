// Package naming builds deterministic output filenames: stem
// normalization, rename-pattern expansion, and per-job uniqueness
// enforcement for archive entries.
package naming
