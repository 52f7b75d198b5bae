package recommend

import (
	"image-optimizer/internal/analyzer"
	"image-optimizer/internal/presets"
)

// Recommendation is the persisted suggestion for one source file. It
// drives the UI defaults and the report columns; the resolver falls
// back to it when the file carries no explicit overrides.
type Recommendation struct {
	PresetID    string
	PresetLabel string
	Formats     []string
	Quality     map[string]int
	CropMode    string
	CropReason  string
	Notes       string
}

// Build combines format, preset and crop suggestions for one analyzed
// file. jobPreset is the preset selected at job level, or nil.
func Build(analysis *analyzer.Analysis, jobPreset *presets.Preset, catalog []presets.Preset, defaults *presets.Defaults) Recommendation {
	formats, quality, notes := FormatsAndQuality(analysis, defaults)
	preset := Preset(analysis, jobPreset, catalog)
	cropMode, cropReason := CropMode(analysis, preset)

	rec := Recommendation{
		Formats:    formats,
		Quality:    quality,
		CropMode:   cropMode,
		CropReason: cropReason,
		Notes:      notes,
	}
	if preset != nil {
		rec.PresetID = preset.ID
		rec.PresetLabel = preset.Label
	}
	return rec
}

// FormatsAndQuality suggests output formats and a quality table based
// on content type and transparency.
func FormatsAndQuality(analysis *analyzer.Analysis, defaults *presets.Defaults) ([]string, map[string]int, string) {
	if analysis.Type == analyzer.TypePhoto && !analysis.HasTransparency {
		return []string{"avif", "webp"}, qualityTable(defaults, "photo"),
			"Photo without transparency: AVIF/WebP suggested."
	}

	formats := []string{"webp"}
	notes := "UI graphic: WebP suggested."
	if analysis.HasTransparency {
		formats = append(formats, "png")
		notes = "Image with transparency: WebP/PNG suggested."
	}
	return formats, qualityTable(defaults, "ui"), notes
}

func qualityTable(defaults *presets.Defaults, typeHint string) map[string]int {
	if defaults == nil {
		return map[string]int{}
	}
	table := make(map[string]int, len(defaults.Quality[typeHint]))
	for format, quality := range defaults.Quality[typeHint] {
		table[format] = quality
	}
	return table
}

// Preset picks the catalog entry closest to the source geometry. When
// the job already names a preset, candidates are narrowed to that
// preset's category first.
func Preset(analysis *analyzer.Analysis, jobPreset *presets.Preset, catalog []presets.Preset) *presets.Preset {
	if len(catalog) == 0 {
		return nil
	}

	filtered := catalog
	if jobPreset != nil {
		category := jobPreset.Category
		if category == "" {
			category = presets.InferCategory(jobPreset.ID)
		}
		var same []presets.Preset
		for _, preset := range catalog {
			presetCategory := preset.Category
			if presetCategory == "" {
				presetCategory = presets.InferCategory(preset.ID)
			}
			if presetCategory == category {
				same = append(same, preset)
			}
		}
		if len(same) > 0 {
			filtered = same
		}
	}

	if analysis.Width <= 0 || analysis.Height <= 0 {
		if jobPreset != nil {
			return jobPreset
		}
		first := filtered[0]
		return &first
	}

	best := 0
	bestScore := score(&filtered[0], analysis.Width, analysis.Height)
	for i := 1; i < len(filtered); i++ {
		if s := score(&filtered[i], analysis.Width, analysis.Height); s < bestScore {
			best, bestScore = i, s
		}
	}
	chosen := filtered[best]
	return &chosen
}

// score ranks a candidate: aspect mismatch weighs double, size
// mismatch once, and any upscaling carries a heavy fixed penalty plus
// the relative overshoot.
func score(preset *presets.Preset, originalWidth, originalHeight int) float64 {
	if preset.Width <= 0 || preset.Height <= 0 {
		return 9999.0
	}
	aspectTarget := float64(preset.Width) / float64(preset.Height)
	aspectSrc := float64(originalWidth) / float64(originalHeight)
	aspectDiff := abs(aspectTarget - aspectSrc)

	sizeDiff := abs(float64(preset.Width-originalWidth))/float64(originalWidth) +
		abs(float64(preset.Height-originalHeight))/float64(originalHeight)

	upscalePenalty := 0.0
	if preset.Width > originalWidth || preset.Height > originalHeight {
		upscalePenalty = 2.0 +
			max0(float64(preset.Width-originalWidth))/float64(preset.Width) +
			max0(float64(preset.Height-originalHeight))/float64(preset.Height)
	}

	return aspectDiff*2.0 + sizeDiff + upscalePenalty*3.0
}

// CropMode suggests cover only when a horizontal source targets a
// square or vertical preset; everything else defaults to contain.
func CropMode(analysis *analyzer.Analysis, preset *presets.Preset) (string, string) {
	if preset == nil || preset.Width <= 0 || preset.Height <= 0 {
		return "contain", ""
	}
	targetRatio := float64(preset.Width) / float64(preset.Height)
	if analysis.Orientation == analyzer.OrientationHorizontal && targetRatio <= 1 {
		return "cover", "Cropping recommended to fit a vertical/square format."
	}
	return "contain", ""
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
