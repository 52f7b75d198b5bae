// Package resolve merges per-file overrides, saved recommendations,
// and catalog defaults into the effective processing configuration
// used by the renderer: preset, target size, resize mode, output
// formats, quality, and transparency handling.
package resolve
