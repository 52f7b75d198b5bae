package analyzer

import (
	"image"
	"image/color"

	"image-optimizer/internal/imagemeta"
)

// Orientation values persisted on job files and shown in reports.
const (
	OrientationHorizontal = "HORIZONTAL"
	OrientationVertical   = "VERTICAL"
	OrientationSquare     = "SQUARE"
)

// Content type heuristic results.
const (
	TypePhoto = "photo"
	TypeUI    = "ui"
)

// Analysis holds the intrinsic attributes derived from decoded pixels.
type Analysis struct {
	Width           int
	Height          int
	Orientation     string
	AspectLabel     string
	HasTransparency bool
	Type            string
	MetadataTags    []string
}

// maxUIColors is the palette-size threshold under which an image is
// treated as a UI graphic rather than a photo.
const maxUIColors = 256

// Analyze derives all per-image attributes from decoded pixel data and
// the metadata blocks extracted from the source container.
func Analyze(img image.Image, meta *imagemeta.Payload) Analysis {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	hasTransparency := detectTransparency(img)

	return Analysis{
		Width:           width,
		Height:          height,
		Orientation:     orientationOf(width, height),
		AspectLabel:     ClosestAspectLabel(width, height),
		HasTransparency: hasTransparency,
		Type:            inferType(img, hasTransparency),
		MetadataTags:    meta.Tags(),
	}
}

func orientationOf(width, height int) string {
	switch {
	case width > height:
		return OrientationHorizontal
	case height > width:
		return OrientationVertical
	default:
		return OrientationSquare
	}
}

// aspectCandidates is the fixed bucket set, in catalog order for
// deterministic tie-breaking.
var aspectCandidates = []struct {
	label string
	ratio float64
}{
	{"16:9", 16.0 / 9.0},
	{"4:5", 4.0 / 5.0},
	{"1:1", 1.0},
	{"9:16", 9.0 / 16.0},
	{"4:3", 4.0 / 3.0},
	{"3:2", 3.0 / 2.0},
	{"21:9", 21.0 / 9.0},
}

// ClosestAspectLabel buckets a width/height pair into the nearest
// candidate aspect label. Returns "" for degenerate dimensions.
func ClosestAspectLabel(width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	ratio := float64(width) / float64(height)
	best := ""
	bestDiff := 0.0
	for _, candidate := range aspectCandidates {
		diff := ratio - candidate.ratio
		if diff < 0 {
			diff = -diff
		}
		if best == "" || diff < bestDiff {
			best = candidate.label
			bestDiff = diff
		}
	}
	return best
}

// detectTransparency reports whether the image carries an alpha channel
// with at least one non-opaque pixel, or a palette with transparency.
func detectTransparency(img image.Image) bool {
	switch typed := img.(type) {
	case *image.Paletted:
		for _, entry := range typed.Palette {
			if _, _, _, a := entry.RGBA(); a < 0xffff {
				return true
			}
		}
		return false
	case *image.NRGBA:
		for i := 3; i < len(typed.Pix); i += 4 {
			if typed.Pix[i] != 0xff {
				return true
			}
		}
		return false
	case *image.RGBA:
		for i := 3; i < len(typed.Pix); i += 4 {
			if typed.Pix[i] != 0xff {
				return true
			}
		}
		return false
	case *image.NRGBA64:
		for i := 6; i < len(typed.Pix); i += 8 {
			if typed.Pix[i] != 0xff || typed.Pix[i+1] != 0xff {
				return true
			}
		}
		return false
	case *image.Gray, *image.Gray16, *image.YCbCr, *image.CMYK:
		return false
	}

	// Unknown representation: fall back to the color model, then pixels.
	if _, ok := img.ColorModel().(color.Palette); !ok {
		switch img.ColorModel() {
		case color.GrayModel, color.Gray16Model, color.YCbCrModel, color.CMYKModel:
			return false
		}
	}
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a < 0xffff {
				return true
			}
		}
	}
	return false
}

// inferType classifies the image as a photo or a UI graphic. Paletted
// sources and images whose used-color count fits a 256-entry palette are
// UI; transparency always means UI.
func inferType(img image.Image, hasTransparency bool) string {
	if hasTransparency {
		return TypeUI
	}
	if _, ok := img.(*image.Paletted); ok {
		return TypeUI
	}
	if usedColorsAtMost(img, maxUIColors) {
		return TypeUI
	}
	return TypePhoto
}

// usedColorsAtMost counts distinct colors with an early exit once the
// limit is exceeded; photos typically bail within the first rows.
func usedColorsAtMost(img image.Image, limit int) bool {
	seen := make(map[color.Color]struct{}, limit+1)
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			seen[img.At(x, y)] = struct{}{}
			if len(seen) > limit {
				return false
			}
		}
	}
	return true
}
