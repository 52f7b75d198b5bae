package resolve

import (
	"strings"

	"image-optimizer/internal/codec"
	"image-optimizer/internal/database"
	"image-optimizer/internal/naming"
	"image-optimizer/internal/presets"
)

// Default quality used when the catalog carries no table entry.
const fallbackWebPQuality = 80

// Effective is the fully resolved processing configuration for one
// file: overrides merged with recommendations and catalog defaults.
type Effective struct {
	PresetID     string
	PresetLabel  string
	TargetWidth  int
	TargetHeight int
	ResizeMode   string

	OutputFormats []string
	PrimaryFormat string
	Quality       int
	KeepAlpha     bool
	Note          string

	Generate2x        bool
	GenerateSharpened bool
}

// Settings merges per-file overrides, the saved recommendation, and
// catalog defaults for one file of a job.
func Settings(file *database.JobFile, job *database.Job, catalog *presets.Catalog) (*Effective, error) {
	data, err := catalog.Load()
	if err != nil {
		return nil, err
	}
	defaults := &data.Defaults

	preset, err := effectivePreset(file, job, catalog, data)
	if err != nil {
		return nil, err
	}

	fallbackFormat := FallbackFormat(preset, defaults)
	fallbackQuality := FallbackQuality(preset, defaults)

	resizeMode := "contain"
	targetWidth, targetHeight := 0, 0
	if preset != nil {
		resizeMode = ResizeMode(preset, defaults)
		targetWidth, targetHeight = preset.Width, preset.Height
	}

	formats := OutputFormats(file, fallbackFormat)
	primary := PrimaryFormat(file, formats, fallbackFormat)
	quality := QualityFor(file, primary, defaults, fallbackQuality)

	keepAlpha := file.HasTransparency &&
		(primary == codec.FormatWebP || primary == codec.FormatPNG) &&
		file.KeepTransparency

	note := ""
	// preset mode is respected; only manual crop forces cover
	if file.CropEnabled {
		resizeMode = "cover"
		note = "Crop enabled."
	}

	eff := &Effective{
		TargetWidth:       targetWidth,
		TargetHeight:      targetHeight,
		ResizeMode:        resizeMode,
		OutputFormats:     formats,
		PrimaryFormat:     primary,
		Quality:           quality,
		KeepAlpha:         keepAlpha,
		Note:              note,
		Generate2x:        file.Generate2x,
		GenerateSharpened: file.GenerateSharpened,
	}
	if preset != nil {
		eff.PresetID = preset.ID
		eff.PresetLabel = preset.Label
	}
	return eff, nil
}

// effectivePreset walks the precedence chain: per-file selection, job
// preset, saved recommendation, first catalog entry.
func effectivePreset(file *database.JobFile, job *database.Job, catalog *presets.Catalog, data *presets.Data) (*presets.Preset, error) {
	if file.SelectedPresetID != "" {
		return catalog.Get(file.SelectedPresetID)
	}
	if job.Preset != "" {
		preset, err := catalog.Get(job.Preset)
		if err != nil {
			return nil, err
		}
		if preset != nil {
			return preset, nil
		}
	}
	if file.RecommendedPresetID != "" {
		return catalog.Get(file.RecommendedPresetID)
	}
	if len(data.Presets) > 0 {
		first := data.Presets[0]
		return &first, nil
	}
	return nil, nil
}

// FallbackFormat picks the job-level output format from the preset or
// catalog defaults, clamped to the supported set.
func FallbackFormat(preset *presets.Preset, defaults *presets.Defaults) string {
	candidate := ""
	if preset != nil {
		candidate = preset.RecommendedFormat
	}
	if candidate == "" {
		candidate = defaults.Output.RecommendedFormat
	}
	if candidate == "" {
		candidate = codec.FormatWebP
	}
	candidate = codec.NormalizeFormat(candidate)
	if !codec.IsSupportedOutput(candidate) {
		return codec.FormatWebP
	}
	return candidate
}

// FallbackQuality picks the job-level quality from the preset's type
// hint and the catalog quality tables.
func FallbackQuality(preset *presets.Preset, defaults *presets.Defaults) int {
	typeHint := "photo"
	if preset != nil && preset.TypeHint != "" {
		typeHint = preset.TypeHint
	}
	if _, ok := defaults.Quality[typeHint]; !ok {
		typeHint = "photo"
	}
	return defaults.QualityFor(typeHint, codec.FormatWebP, fallbackWebPQuality)
}

// ResizeMode resolves cover/contain from the preset's crop block, its
// resizeMode/cropMode aliases, the catalog default, and finally a
// category heuristic (social presets crop, the rest fit).
func ResizeMode(preset *presets.Preset, defaults *presets.Defaults) string {
	for _, candidate := range []string{
		normalizeMode(preset.Crop.Mode),
		normalizeMode(firstNonEmpty(preset.ResizeMode, preset.CropMode)),
		normalizeMode(defaults.Crop.Mode),
	} {
		if candidate != "" {
			return candidate
		}
	}
	if preset.Width > 0 && preset.Height > 0 {
		if presets.InferCategory(preset.ID) == "social" {
			return "cover"
		}
		return "contain"
	}
	return "contain"
}

func normalizeMode(mode string) string {
	switch strings.ToLower(mode) {
	case "cover":
		return "cover"
	case "contain", "fit", "inside":
		return "contain"
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// OutputFormats walks the format precedence chain: explicit per-file
// list, single per-file format, saved recommendation, fallback. Each
// stage is filtered to the supported set.
func OutputFormats(file *database.JobFile, fallbackFormat string) []string {
	if len(file.OutputFormats) > 0 {
		var formats []string
		for _, fmt := range file.OutputFormats {
			if codec.IsSupportedOutput(fmt) {
				formats = append(formats, codec.NormalizeFormat(fmt))
			}
		}
		if len(formats) > 0 {
			return formats
		}
	}
	if file.OutputFormat != "" && codec.IsSupportedOutput(file.OutputFormat) {
		return []string{codec.NormalizeFormat(file.OutputFormat)}
	}
	var recommended []string
	for _, fmt := range file.RecommendedFormats {
		if codec.IsSupportedOutput(fmt) {
			recommended = append(recommended, codec.NormalizeFormat(fmt))
		}
	}
	if len(recommended) > 0 {
		return recommended
	}
	if codec.IsSupportedOutput(fallbackFormat) {
		return []string{codec.NormalizeFormat(fallbackFormat)}
	}
	return []string{codec.FormatWebP}
}

// PrimaryFormat selects the format of the primary output among the
// resolved list.
func PrimaryFormat(file *database.JobFile, formats []string, fallbackFormat string) string {
	if file.OutputFormat != "" {
		normalized := codec.NormalizeFormat(file.OutputFormat)
		for _, fmt := range formats {
			if fmt == normalized {
				return fmt
			}
		}
	}
	if len(formats) > 0 {
		return formats[0]
	}
	if codec.IsSupportedOutput(fallbackFormat) {
		return codec.NormalizeFormat(fallbackFormat)
	}
	return codec.FormatWebP
}

// QualityFor resolves the encode quality for one output format,
// honoring per-file overrides. PNG always encodes lossless (0).
func QualityFor(file *database.JobFile, format string, defaults *presets.Defaults, fallbackQuality int) int {
	switch codec.NormalizeFormat(format) {
	case codec.FormatWebP:
		if file.QualityWebP > 0 {
			return file.QualityWebP
		}
		hint := file.AnalysisType
		if hint == "" {
			hint = "photo"
		}
		return defaults.QualityFor(hint, codec.FormatWebP, fallbackQuality)
	case codec.FormatJPG:
		if file.QualityJPG > 0 {
			return file.QualityJPG
		}
		return defaults.QualityFor("photo", codec.FormatJPG, 82)
	case codec.FormatPNG:
		return 0
	default:
		return fallbackQuality
	}
}

// NamingOptions merges the file's normalization overrides with the
// catalog naming block.
func NamingOptions(file *database.JobFile, cfg *presets.NamingConfig) (string, naming.Options) {
	base := cfg.Options()
	if file.NormalizeLowercase != nil {
		base.Lowercase = *file.NormalizeLowercase
	}
	if file.NormalizeRemoveAccents != nil {
		base.RemoveAccents = *file.NormalizeRemoveAccents
	}
	if file.NormalizeReplaceSpaces != "" {
		base.ReplaceSpaces = file.NormalizeReplaceSpaces
	}
	if file.NormalizeCollapseDashes != nil {
		base.CollapseDashes = *file.NormalizeCollapseDashes
	}
	pattern := file.RenamePattern
	if pattern == "" {
		pattern = cfg.Pattern
	}
	return pattern, base
}
