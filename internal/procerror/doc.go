// Package procerror defines the closed set of processing error kinds and
// maps them to the fixed user-facing messages shown in job reports.
package procerror
