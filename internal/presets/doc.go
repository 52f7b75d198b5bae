// Package presets loads and merges the preset catalog.
//
// The base catalog is a JSON file on disk (cached by mtime); custom
// presets created at runtime overlay it, shadowing base entries with
// the same id. The catalog also carries shared defaults: naming
// options, per-format quality tables, and resize policy.
package presets
