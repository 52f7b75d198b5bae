// Package imagemeta extracts EXIF, ICC, and XMP blocks from JPEG, PNG,
// and WebP containers and re-embeds them into freshly encoded outputs.
// Pixel data is never touched; this is container-level surgery only.
package imagemeta
