package render

import (
	"fmt"
	"image"
	"image/draw"
	"math"

	"image-optimizer/internal/codec"
	"image-optimizer/internal/database"
	"image-optimizer/internal/geometry"
	"image-optimizer/internal/imagemeta"
	"image-optimizer/internal/logging"
	"image-optimizer/internal/naming"
	"image-optimizer/internal/presets"
	"image-optimizer/internal/resolve"
)

// Variant is one rendered output of a source file.
type Variant struct {
	Name   string
	Format string
	Scale  string
	Width  int
	Height int
	Data   []byte
}

// Primary reports whether this is the file's main output.
func (v *Variant) Primary(primaryFormat string) bool {
	return v.Scale == "1x" && v.Format == primaryFormat
}

// Meta captures per-file render facts for the report row.
type Meta struct {
	InputWidth       int
	InputHeight      int
	OutputWidth      int
	OutputHeight     int
	ResizeMode       string
	NoUpscaleApplied bool
	Note             string

	TransparencyAction string
	Cropped            bool
}

// Result is the full outcome of rendering one file.
type Result struct {
	Variants      []Variant
	PrimaryIndex  int
	PrimaryFormat string
	Quality       int
	Meta          Meta
	Generate2x        bool
	GenerateSharpened bool
}

// File renders every variant of one source file: per resolved format,
// per scale, honoring transparency and no-upscale rules. metaPayload
// is the metadata extracted from the original, re-embedded when the
// file keeps metadata. names keeps output names unique across the
// whole job.
func File(img image.Image, metaPayload *imagemeta.Payload, file *database.JobFile, eff *resolve.Effective, data *presets.Data, names *naming.UniqueSet) (*Result, error) {
	defaults := &data.Defaults
	notes := eff.Note

	generate2x := eff.Generate2x
	generateSharpened := eff.GenerateSharpened
	if generate2x && generateSharpened {
		generateSharpened = false
		notes = mergeNotes(notes, `"Sharper" was disabled because 2x is active.`)
	}

	type scaleStep struct {
		value float64
		label string
	}
	var scales []scaleStep
	switch {
	case generate2x:
		scales = []scaleStep{{1.0, "1x"}, {2.0, "2x"}}
	case generateSharpened:
		scales = []scaleStep{{defaults.DensityScale(), "1x"}}
	default:
		scales = []scaleStep{{1.0, "1x"}}
	}

	pattern, nameOpts := resolve.NamingOptions(file, &data.Naming)

	result := &Result{
		PrimaryIndex:      -1,
		PrimaryFormat:     eff.PrimaryFormat,
		Generate2x:        generate2x,
		GenerateSharpened: generateSharpened,
	}

	for _, fmtName := range eff.OutputFormats {
		fmtQuality := resolve.QualityFor(file, fmtName, defaults, eff.Quality)
		for _, scale := range scales {
			targetWidth, targetHeight := 0, 0
			if eff.TargetWidth > 0 && eff.TargetHeight > 0 {
				targetWidth = int(math.Round(float64(eff.TargetWidth) * scale.value))
				targetHeight = int(math.Round(float64(eff.TargetHeight) * scale.value))
			}

			keepAlpha := file.HasTransparency &&
				(fmtName == codec.FormatWebP || fmtName == codec.FormatPNG) &&
				file.KeepTransparency

			variantImg, transparencyNote, transparencyAction := applyTransparencyRules(img, file.HasTransparency, file.KeepTransparency, fmtName)

			prepared, prepMeta := prepare(variantImg, targetWidth, targetHeight, eff.ResizeMode, file, keepAlpha, defaults.Resize.NoUpscale)

			bounds := prepared.Bounds()
			if scale.label == "2x" && targetWidth > 0 && targetHeight > 0 {
				if bounds.Dx() < targetWidth || bounds.Dy() < targetHeight {
					notes = mergeNotes(notes, "2x was not generated because the original does not reach the required size.")
					continue
				}
			}
			if generateSharpened && targetWidth > 0 && targetHeight > 0 {
				if bounds.Dx() < targetWidth || bounds.Dy() < targetHeight {
					notes = mergeNotes(notes, `"Sharper" was limited to the maximum possible by the original size.`)
				}
			}

			var candidate string
			if generate2x {
				base := naming.BuildBaseName(file.OriginalName, eff.PresetID, nameOpts)
				if scale.label == "2x" {
					candidate = fmt.Sprintf("%s__2x.%s", base, fmtName)
				} else {
					candidate = fmt.Sprintf("%s.%s", base, fmtName)
				}
			} else {
				candidate = naming.BuildName(file.OriginalName, fmtName, eff.PresetID, pattern, nameOpts)
			}
			candidate = names.Ensure(candidate)

			encoded, err := codec.EncodeBytes(prepared, fmtName, fmtQuality)
			if err != nil {
				return nil, err
			}
			if file.KeepMetadata && metaPayload != nil && !metaPayload.Empty() {
				embedded, err := imagemeta.Embed(encoded, fmtName, metaPayload, bounds.Dx(), bounds.Dy(), keepAlpha)
				if err != nil {
					logging.Warn("Failed to re-embed metadata into %s: %v", candidate, err)
				} else {
					encoded = embedded
				}
			}

			variant := Variant{
				Name:   candidate,
				Format: fmtName,
				Scale:  scale.label,
				Width:  bounds.Dx(),
				Height: bounds.Dy(),
				Data:   encoded,
			}
			result.Variants = append(result.Variants, variant)

			if result.PrimaryIndex < 0 && variant.Primary(eff.PrimaryFormat) {
				result.PrimaryIndex = len(result.Variants) - 1
				result.Meta = prepMeta
				result.Meta.Note = mergeNotes(prepMeta.Note, transparencyNote)
				result.Meta.TransparencyAction = transparencyAction
			}
		}
	}

	if result.PrimaryIndex < 0 && len(result.Variants) > 0 {
		result.PrimaryIndex = 0
	}
	result.Meta.Note = mergeNotes(result.Meta.Note, notes)
	result.Meta.Cropped = result.Meta.ResizeMode == "cover"
	result.Quality = resolve.QualityFor(file, eff.PrimaryFormat, defaults, eff.Quality)
	return result, nil
}

// prepare applies manual crop and the resize mode, collecting report
// facts along the way.
func prepare(img image.Image, targetWidth, targetHeight int, resizeMode string, file *database.JobFile, keepAlpha bool, noUpscale bool) (image.Image, Meta) {
	bounds := img.Bounds()
	meta := Meta{
		InputWidth:   bounds.Dx(),
		InputHeight:  bounds.Dy(),
		OutputWidth:  bounds.Dx(),
		OutputHeight: bounds.Dy(),
	}

	if targetWidth <= 0 || targetHeight <= 0 {
		return img, meta
	}

	if file.CropEnabled {
		img = geometry.ManualCrop(img, file.CropX, file.CropY, file.CropWidth, file.CropHeight)
		meta.Note = "Manual crop applied."
	}

	var (
		resized image.Image
		clamped bool
	)
	if resizeMode == "cover" {
		resized, clamped = geometry.Cover(img, targetWidth, targetHeight, noUpscale)
		meta.ResizeMode = "cover"
		if clamped {
			meta.NoUpscaleApplied = true
			meta.Note = mergeNotes(meta.Note, "The original does not reach the target size; it was not upscaled.")
		}
	} else {
		resized, clamped = geometry.Contain(img, targetWidth, targetHeight, noUpscale)
		meta.ResizeMode = "contain"
		if clamped {
			meta.NoUpscaleApplied = true
			meta.Note = mergeNotes(meta.Note, "The original does not reach the target size; it was not upscaled.")
		}
	}

	out := resized.Bounds()
	meta.OutputWidth = out.Dx()
	meta.OutputHeight = out.Dy()
	return resized, meta
}

// applyTransparencyRules flattens alpha when configuration or the
// output format requires it, reporting what happened.
func applyTransparencyRules(img image.Image, hasTransparency, keepTransparency bool, format string) (image.Image, string, string) {
	if !hasTransparency {
		return img, "", ""
	}
	if !keepTransparency {
		return flatten(img), "Transparency removed by configuration.", "Transparency removed"
	}
	if format == codec.FormatJPG {
		return flatten(img), "Transparency was lost when exporting to JPG.", "Transparency lost (JPG)"
	}
	return img, "", ""
}

// flatten composites the image over a white background.
func flatten(img image.Image) image.Image {
	bounds := img.Bounds()
	flat := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(flat, flat.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, bounds.Min, draw.Over)
	return flat
}

func mergeNotes(existing, extra string) string {
	if extra == "" {
		return existing
	}
	if existing == "" {
		return extra
	}
	return existing + " " + extra
}
