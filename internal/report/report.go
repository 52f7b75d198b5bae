package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"image-optimizer/internal/analyzer"
	"image-optimizer/internal/database"
)

// Report file names inside the job archive. Kept stable because
// downstream tooling greps for them.
const (
	TextFileName = "reporte.txt"
	CSVFileName  = "reporte.csv"
)

// Row is one report line, one per source file.
type Row struct {
	OriginalName string
	OriginalSize int64
	OutputName   string
	OutputSize   int64

	InputWidth   int
	InputHeight  int
	OutputWidth  int
	OutputHeight int

	ReductionPercent *float64
	ResizeMode       string
	Cropped          bool
	MetadataRemoved  bool

	AnalysisType    string
	HasTransparency bool
	Orientation     string
	AspectLabel     string
	FinalAspect     string
	MetadataTags    []string
	KeepMetadata    bool

	RecommendedPresetLabel string
	RecommendedFormats     []string
	RecommendedQuality     map[string]int
	RecommendedCropMode    string
	RecommendedCropReason  string

	AppliedPresetLabel string
	AppliedFormat      string
	AppliedQuality     int
	AppliedRename      string
	Outputs            []database.OutputInfo
	MetadataAction     string
	TransparencyAction string

	Status       string
	ErrorMessage string
	Note         string
}

// RowFromFile derives a report row entirely from the persisted file,
// so rows can be rebuilt for reprocessed or historical jobs.
func RowFromFile(f *database.JobFile) Row {
	row := Row{
		OriginalName: f.OriginalName,
		OriginalSize: f.OriginalSize,
		OutputName:   f.OutputName,
		OutputSize:   f.OutputSize,

		InputWidth:   f.OriginalWidth,
		InputHeight:  f.OriginalHeight,
		OutputWidth:  f.OutputWidth,
		OutputHeight: f.OutputHeight,

		Cropped:         f.Cropped(),
		MetadataRemoved: f.MetadataRemoved(),

		AnalysisType:    f.AnalysisType,
		HasTransparency: f.HasTransparency,
		Orientation:     f.Orientation,
		AspectLabel:     f.AspectLabel,
		MetadataTags:    f.MetadataTags,
		KeepMetadata:    f.KeepMetadata,

		RecommendedPresetLabel: f.RecommendedPresetLabel,
		RecommendedFormats:     f.RecommendedFormats,
		RecommendedQuality:     f.RecommendedQuality,
		RecommendedCropMode:    f.RecommendedCropMode,
		RecommendedCropReason:  f.RecommendedCropReason,

		AppliedPresetLabel: f.AppliedPresetLabel,
		AppliedFormat:      f.AppliedFormat,
		AppliedQuality:     f.AppliedQuality,
		AppliedRename:      f.OutputName,
		Outputs:            f.Outputs,
		TransparencyAction: f.TransparencyAction,

		Status:       f.Status,
		ErrorMessage: f.Error,
		Note:         f.ProcessNotes,
	}
	if f.OutputSize > 0 && f.OriginalSize > 0 {
		reduction := round2((1 - float64(f.OutputSize)/float64(f.OriginalSize)) * 100)
		row.ReductionPercent = &reduction
	}
	if f.OutputWidth > 0 && f.OutputHeight > 0 {
		row.FinalAspect = analyzer.ClosestAspectLabel(f.OutputWidth, f.OutputHeight)
	}
	if f.Cropped() {
		row.ResizeMode = "cover"
	} else if f.OutputName != "" {
		row.ResizeMode = "contain"
	}
	if f.KeepMetadata {
		row.MetadataAction = "Kept"
	} else {
		row.MetadataAction = "Removed"
	}
	return row
}

// Data is everything the text and CSV reports need.
type Data struct {
	JobID          int64
	PresetID       string
	PresetLabel    string
	GeneratedAt    time.Time
	Status         string
	TotalFiles     int
	ProcessedFiles int
	FinishedAt     *time.Time
	Rows           []Row
}

// Columns lists the report header in table order.
func Columns() []string {
	return []string{
		"original_name",
		"original_dims",
		"original_size",
		"final_dims",
		"final_size",
		"savings%",
		"mode",
		"cropped",
		"metadata_removed",
		"type",
		"transparency",
		"orientation",
		"aspect",
		"final_aspect",
		"metadata",
		"metadata_action",
		"suggested_preset",
		"suggested_formats",
		"suggested_quality",
		"suggested_crop",
		"crop_reason",
		"final_preset",
		"final_format",
		"final_quality",
		"rename",
		"generated_outputs",
		"final_metadata",
		"final_transparency",
		"status",
		"error",
	}
}

// Values renders the row's cells in the same order as Columns.
func (r *Row) Values() []string {
	reduction := "-"
	if r.ReductionPercent != nil {
		reduction = fmt.Sprintf("%v%%", *r.ReductionPercent)
	}
	errCell := r.ErrorMessage
	if errCell == "" {
		errCell = r.Note
	}
	return []string{
		orDash(r.OriginalName),
		formatDims(r.InputWidth, r.InputHeight),
		FormatBytes(r.OriginalSize),
		formatDims(r.OutputWidth, r.OutputHeight),
		FormatBytes(r.OutputSize),
		reduction,
		translateMode(r.ResizeMode),
		yesNo(r.Cropped),
		yesNo(r.MetadataRemoved),
		translateType(r.AnalysisType),
		yesNo(r.HasTransparency),
		orDash(r.Orientation),
		orDash(r.AspectLabel),
		orDash(r.FinalAspect),
		orDash(strings.Join(r.MetadataTags, ", ")),
		orDash(r.MetadataAction),
		orDash(r.RecommendedPresetLabel),
		orDash(strings.Join(r.RecommendedFormats, ", ")),
		formatQuality(r.RecommendedQuality),
		translateMode(r.RecommendedCropMode),
		orDash(r.RecommendedCropReason),
		orDash(r.AppliedPresetLabel),
		orDash(r.AppliedFormat),
		formatAppliedQuality(r.AppliedQuality),
		orDash(r.AppliedRename),
		formatOutputs(r.Outputs),
		orDash(r.MetadataAction),
		orDash(r.TransparencyAction),
		StatusLabel(r.Status),
		orDash(errCell),
	}
}

// TotalSavings sums bytes saved across all rows, floored at zero.
func (d *Data) TotalSavings() int64 {
	var original, output int64
	for _, row := range d.Rows {
		original += row.OriginalSize
		output += row.OutputSize
	}
	if original == 0 || output >= original {
		return 0
	}
	return original - output
}

// AverageReduction averages the per-file reduction percentages;
// returns nil when no row has one.
func (d *Data) AverageReduction() *float64 {
	var sum float64
	var n int
	for _, row := range d.Rows {
		if row.ReductionPercent != nil {
			sum += *row.ReductionPercent
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := round2(sum / float64(n))
	return &avg
}

// FormatBytes renders a size as B / KB / MB.
func FormatBytes(size int64) string {
	if size <= 0 {
		return "-"
	}
	if size < 1024 {
		return fmt.Sprintf("%d B", size)
	}
	if size < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	}
	return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
}

// StatusLabel maps internal statuses to report wording.
func StatusLabel(status string) string {
	switch status {
	case "":
		return "-"
	case database.StatusPending:
		return "Pending"
	case database.StatusProcessing:
		return "In progress"
	case database.StatusPaused:
		return "Paused"
	case database.StatusCanceled:
		return "Canceled"
	case database.StatusDone:
		return "Completed"
	case database.StatusError:
		return "Failed"
	default:
		return status
	}
}

func formatDims(width, height int) string {
	if width <= 0 || height <= 0 {
		return "-"
	}
	return fmt.Sprintf("%dx%d", width, height)
}

func yesNo(value bool) string {
	if value {
		return "Yes"
	}
	return "No"
}

func translateMode(mode string) string {
	switch mode {
	case "":
		return "-"
	case "cover":
		return "crop"
	case "contain":
		return "fit"
	default:
		return mode
	}
}

func translateType(analysisType string) string {
	switch analysisType {
	case "":
		return "-"
	case "photo":
		return "Photo"
	case "ui":
		return "UI"
	default:
		return analysisType
	}
}

func formatQuality(quality map[string]int) string {
	if len(quality) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(quality))
	for key := range quality {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", key, quality[key]))
	}
	return strings.Join(parts, ", ")
}

func formatAppliedQuality(quality int) string {
	if quality <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", quality)
}

func formatOutputs(outputs []database.OutputInfo) string {
	if len(outputs) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(outputs))
	for _, out := range outputs {
		label := strings.TrimSpace(out.Format + " " + out.Scale)
		if dims := formatDims(out.Width, out.Height); dims != "-" {
			label = strings.TrimSpace(label + " " + dims)
		}
		if size := FormatBytes(out.Size); size != "-" {
			label = strings.TrimSpace(label + " " + size)
		}
		if out.Name != "" {
			label = fmt.Sprintf("%s [%s]", label, out.Name)
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, "; ")
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func round2(v float64) float64 {
	return float64(int64(v*100+sign(v)*0.5)) / 100
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
