package geometry

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Cover scales the image so it fills the target box and center-crops the
// excess. With noUpscale the scale factor is clamped to 1; when the
// clamped image cannot reach the target size, the crop falls back to the
// target aspect ratio so the output aspect is always exact. The returned
// bool reports whether the no-upscale clamp fired.
func Cover(img image.Image, targetWidth, targetHeight int, noUpscale bool) (image.Image, bool) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	ratio := math.Max(float64(targetWidth)/float64(width), float64(targetHeight)/float64(height))
	clamped := false
	if noUpscale && ratio > 1.0 {
		ratio = 1.0
		clamped = true
	}

	resized := img
	if ratio != 1.0 {
		resized = imaging.Resize(
			img,
			int(math.Ceil(float64(width)*ratio)),
			int(math.Ceil(float64(height)*ratio)),
			imaging.Lanczos,
		)
	}

	rw, rh := resized.Bounds().Dx(), resized.Bounds().Dy()
	if rw >= targetWidth && rh >= targetHeight {
		return imaging.CropCenter(resized, targetWidth, targetHeight), clamped
	}

	// Target size is unreachable without upscaling; crop to the target
	// aspect instead, keeping the full shorter axis.
	targetAspect := float64(targetWidth) / float64(targetHeight)
	inputAspect := float64(rw) / float64(rh)

	var cropWidth, cropHeight int
	if inputAspect > targetAspect {
		cropWidth = int(math.Round(float64(rh) * targetAspect))
		cropHeight = rh
	} else {
		cropWidth = rw
		cropHeight = int(math.Round(float64(rw) / targetAspect))
	}
	cropWidth = min(cropWidth, rw)
	cropHeight = min(cropHeight, rh)

	return imaging.CropCenter(resized, cropWidth, cropHeight), clamped
}

// Contain scales the image to fit inside the target box without
// cropping, preserving aspect. With noUpscale the image is returned
// untouched when it already fits; the bool reports the clamp.
func Contain(img image.Image, targetWidth, targetHeight int, noUpscale bool) (image.Image, bool) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	ratio := math.Min(float64(targetWidth)/float64(width), float64(targetHeight)/float64(height))
	clamped := false
	if noUpscale && ratio > 1.0 {
		ratio = 1.0
		clamped = true
	}

	if ratio == 1.0 {
		return img, clamped
	}

	outWidth := max(1, int(float64(width)*ratio))
	outHeight := max(1, int(float64(height)*ratio))
	return imaging.Resize(img, outWidth, outHeight, imaging.Lanczos), clamped
}

// ManualCrop cuts a rectangle given as fractions of the original
// dimensions in [0,1]. Edges are clamped to the image bounds and the
// result is never smaller than 1x1, even for degenerate input.
func ManualCrop(img image.Image, x, y, w, h float64) image.Image {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	left := int(math.Round(x * float64(width)))
	top := int(math.Round(y * float64(height)))
	right := int(math.Round((x + w) * float64(width)))
	bottom := int(math.Round((y + h) * float64(height)))

	left = max(0, min(left, width-1))
	top = max(0, min(top, height-1))
	right = max(left+1, min(right, width))
	bottom = max(top+1, min(bottom, height))

	return imaging.Crop(img, image.Rect(left, top, right, bottom))
}
