package analyzer

import (
	"image"
	"image/color"
	"math/rand"
	"testing"

	"image-optimizer/internal/imagemeta"
)

// noisyImage builds an image with enough distinct colors to read as a
// photo rather than a UI graphic.
func noisyImage(t *testing.T, width, height int) *image.NRGBA {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	return img
}

func flatImage(t *testing.T, width, height int, c color.NRGBA) *image.NRGBA {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestOrientation(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		want          string
	}{
		{"landscape", 200, 100, OrientationHorizontal},
		{"portrait", 100, 200, OrientationVertical},
		{"square", 150, 150, OrientationSquare},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Analyze(noisyImage(t, tt.width, tt.height), &imagemeta.Payload{})
			if got.Orientation != tt.want {
				t.Errorf("orientation = %q, want %q", got.Orientation, tt.want)
			}
		})
	}
}

func TestClosestAspectLabel(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		want          string
	}{
		{"full hd", 1920, 1080, "16:9"},
		{"square", 1000, 1000, "1:1"},
		{"story", 1080, 1920, "9:16"},
		{"classic photo", 3000, 2000, "3:2"},
		{"instagram portrait", 1080, 1350, "4:5"},
		{"ultrawide", 2100, 900, "21:9"},
		{"degenerate", 0, 100, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClosestAspectLabel(tt.width, tt.height); got != tt.want {
				t.Errorf("ClosestAspectLabel(%d,%d) = %q, want %q", tt.width, tt.height, got, tt.want)
			}
		})
	}
}

func TestTransparencyDetection(t *testing.T) {
	opaque := flatImage(t, 10, 10, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	if Analyze(opaque, &imagemeta.Payload{}).HasTransparency {
		t.Error("opaque image reported transparent")
	}

	transparent := flatImage(t, 10, 10, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	transparent.Set(5, 5, color.NRGBA{R: 10, G: 20, B: 30, A: 128})
	if !Analyze(transparent, &imagemeta.Payload{}).HasTransparency {
		t.Error("semi-transparent pixel not detected")
	}

	palette := color.Palette{color.NRGBA{A: 255}, color.NRGBA{R: 255, A: 0}}
	paletted := image.NewPaletted(image.Rect(0, 0, 4, 4), palette)
	if !Analyze(paletted, &imagemeta.Payload{}).HasTransparency {
		t.Error("transparent palette entry not detected")
	}
}

func TestTypeHeuristic(t *testing.T) {
	photo := Analyze(noisyImage(t, 64, 64), &imagemeta.Payload{})
	if photo.Type != TypePhoto {
		t.Errorf("noisy image classified as %q", photo.Type)
	}

	flat := Analyze(flatImage(t, 64, 64, color.NRGBA{R: 200, G: 10, B: 10, A: 255}), &imagemeta.Payload{})
	if flat.Type != TypeUI {
		t.Errorf("flat image classified as %q", flat.Type)
	}

	transparent := flatImage(t, 64, 64, color.NRGBA{A: 255})
	transparent.Set(0, 0, color.NRGBA{A: 0})
	if got := Analyze(transparent, &imagemeta.Payload{}); got.Type != TypeUI {
		t.Errorf("transparent image classified as %q", got.Type)
	}

	palette := color.Palette{color.NRGBA{A: 255}, color.NRGBA{R: 255, A: 255}}
	paletted := image.NewPaletted(image.Rect(0, 0, 8, 8), palette)
	if got := Analyze(paletted, &imagemeta.Payload{}); got.Type != TypeUI {
		t.Errorf("paletted image classified as %q", got.Type)
	}
}

func TestMetadataTagsPassThrough(t *testing.T) {
	meta := &imagemeta.Payload{EXIF: []byte{1}, XMP: []byte{2}}
	got := Analyze(noisyImage(t, 16, 16), meta)
	if len(got.MetadataTags) != 2 || got.MetadataTags[0] != "EXIF" || got.MetadataTags[1] != "XMP" {
		t.Errorf("MetadataTags = %v", got.MetadataTags)
	}
}
