// Package startup loads environment configuration, validates the data
// and database directories, and owns the structured startup/shutdown
// log blocks.
package startup
