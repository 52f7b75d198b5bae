// Package render produces the output variants of a source file. For
// each resolved format it walks the scale list (1x, optional 2x or a
// sharpened density), applies transparency rules and geometry, builds
// a unique output name, encodes, and re-embeds metadata when kept.
package render
