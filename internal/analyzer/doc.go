// Package analyzer derives per-image attributes from decoded pixel
// data: dimensions, orientation, aspect bucket, transparency, content
// type heuristic, and embedded-metadata tags.
package analyzer
