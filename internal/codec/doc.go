// Package codec decodes source images and encodes processed variants.
//
// Decoding goes through disintegration/imaging with EXIF
// auto-orientation; webp sources are handled by golang.org/x/image.
// Encoding uses the stdlib for jpg/png and kolesa-team/go-webp for
// webp, where a quality of 0 selects lossless output.
package codec
