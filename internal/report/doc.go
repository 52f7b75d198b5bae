// Package report builds the per-job deliverables: a fixed-width text
// report, a CSV with the same columns, and the ZIP archive bundling
// every rendered output with both reports.
package report
