// Package recommend scores preset candidates and suggests output
// formats, quality, and crop mode for an analyzed source image.
package recommend
