// Package geometry implements the resize and crop primitives used by the
// variant renderer: cover, contain, and manual fractional crops, all
// honoring the no-upscale policy.
package geometry
