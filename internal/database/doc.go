// Package database persists jobs, their files, runtime settings, and
// custom presets in sqlite. The schema lives in migrate(); list and
// map columns are stored as JSON text. ClaimPending is the single
// point where workers take ownership of queued jobs.
package database
