package database

import "time"

// Job statuses
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusPaused     = "PAUSED"
	StatusCanceled   = "CANCELED"
	StatusDone       = "DONE"
	StatusError      = "ERROR"
)

// File statuses
const (
	FileStatusPending    = "PENDING"
	FileStatusProcessing = "PROCESSING"
	FileStatusDone       = "DONE"
	FileStatusError      = "ERROR"
)

// Job is one batch of uploaded files processed together.
type Job struct {
	ID             int64      `json:"id"`
	Status         string     `json:"status"`
	Preset         string     `json:"preset"`
	Progress       int        `json:"progress"`
	TotalFiles     int        `json:"total_files"`
	ProcessedFiles int        `json:"processed_files"`
	Error          string     `json:"error,omitempty"`
	ZipKey         string     `json:"-"`
	ZipName        string     `json:"zip_name,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Active reports whether the job is still claimable or running.
func (j *Job) Active() bool {
	return j.Status == StatusPending || j.Status == StatusProcessing
}

// OutputInfo describes one rendered variant of a file.
type OutputInfo struct {
	Name   string `json:"name"`
	Format string `json:"format"`
	Scale  string `json:"scale"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Size   int64  `json:"size"`
	Key    string `json:"key,omitempty"`
}

// JobFile is one uploaded source image within a job, carrying its
// analysis, recommendation, per-file overrides, and render results.
// Override pointers distinguish "unset" from an explicit false.
type JobFile struct {
	ID     int64  `json:"id"`
	JobID  int64  `json:"job_id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	OriginalName string `json:"original_name"`
	OriginalKey  string `json:"-"`
	OriginalSize int64  `json:"original_size"`

	// analysis
	OriginalWidth   int      `json:"original_width"`
	OriginalHeight  int      `json:"original_height"`
	Orientation     string   `json:"orientation"`
	AspectLabel     string   `json:"aspect_label"`
	HasTransparency bool     `json:"has_transparency"`
	AnalysisType    string   `json:"analysis_type"`
	MetadataTags    []string `json:"metadata_tags,omitempty"`

	// recommendation
	RecommendedPresetID    string         `json:"recommended_preset_id"`
	RecommendedPresetLabel string         `json:"recommended_preset_label"`
	RecommendedFormats     []string       `json:"recommended_formats,omitempty"`
	RecommendedQuality     map[string]int `json:"recommended_quality,omitempty"`
	RecommendedCropMode    string         `json:"recommended_crop_mode"`
	RecommendedCropReason  string         `json:"recommended_crop_reason"`
	RecommendedNotes       string         `json:"recommended_notes"`

	// per-file overrides
	SelectedPresetID  string   `json:"selected_preset_id"`
	OutputFormat      string   `json:"output_format"`
	OutputFormats     []string `json:"output_formats,omitempty"`
	QualityWebP       int      `json:"quality_webp"`
	QualityJPG        int      `json:"quality_jpg"`
	KeepTransparency  bool     `json:"keep_transparency"`
	KeepMetadata      bool     `json:"keep_metadata"`
	Generate2x        bool     `json:"generate_2x"`
	GenerateSharpened bool     `json:"generate_sharpened"`

	CropEnabled bool    `json:"crop_enabled"`
	CropX       float64 `json:"crop_x"`
	CropY       float64 `json:"crop_y"`
	CropWidth   float64 `json:"crop_width"`
	CropHeight  float64 `json:"crop_height"`

	RenamePattern           string  `json:"rename_pattern"`
	NormalizeLowercase      *bool   `json:"normalize_lowercase,omitempty"`
	NormalizeRemoveAccents  *bool   `json:"normalize_remove_accents,omitempty"`
	NormalizeReplaceSpaces  string  `json:"normalize_replace_spaces"`
	NormalizeCollapseDashes *bool   `json:"normalize_collapse_dashes,omitempty"`

	// render results
	AppliedPresetID    string       `json:"applied_preset_id"`
	AppliedPresetLabel string       `json:"applied_preset_label"`
	AppliedFormat      string       `json:"applied_format"`
	AppliedQuality     int          `json:"applied_quality"`
	OutputName         string       `json:"output_name"`
	OutputKey          string       `json:"-"`
	OutputSize         int64        `json:"output_size"`
	OutputWidth        int          `json:"output_width"`
	OutputHeight       int          `json:"output_height"`
	Outputs            []OutputInfo `json:"outputs,omitempty"`
	TransparencyAction string       `json:"transparency_action"`
	ProcessNotes       string       `json:"process_notes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cropped reports whether the rendered output discarded source pixels,
// either via manual crop or a cover fit.
func (f *JobFile) Cropped() bool {
	if f.CropEnabled {
		return true
	}
	if f.OutputWidth <= 0 || f.OutputHeight <= 0 || f.OriginalWidth <= 0 || f.OriginalHeight <= 0 {
		return false
	}
	srcAspect := float64(f.OriginalWidth) / float64(f.OriginalHeight)
	outAspect := float64(f.OutputWidth) / float64(f.OutputHeight)
	diff := srcAspect - outAspect
	if diff < 0 {
		diff = -diff
	}
	return diff > 0.01
}

// MetadataRemoved reports whether the source carried metadata that the
// output dropped.
func (f *JobFile) MetadataRemoved() bool {
	return len(f.MetadataTags) > 0 && !f.KeepMetadata
}

// AppSettings is the singleton runtime-tunable configuration row. The
// policy flags seed each uploaded file's keep_metadata and
// keep_transparency defaults at submission.
type AppSettings struct {
	ID                      int64     `json:"id"`
	WorkerConcurrency       int       `json:"worker_concurrency"`
	DefaultKeepMetadata     bool      `json:"default_keep_metadata"`
	DefaultKeepTransparency bool      `json:"default_keep_transparency"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// ClampConcurrency bounds the configured concurrency to [1, 10].
func (s *AppSettings) ClampConcurrency() int {
	c := s.WorkerConcurrency
	if c < 1 {
		return 1
	}
	if c > 10 {
		return 10
	}
	return c
}

// CustomPreset is a team-created preset stored in the database. It
// shadows a base catalog entry with the same id.
type CustomPreset struct {
	ID                string    `json:"id"`
	Label             string    `json:"label"`
	Category          string    `json:"category"`
	Width             int       `json:"width"`
	Height            int       `json:"height"`
	Aspect            string    `json:"aspect"`
	TypeHint          string    `json:"type_hint"`
	RecommendedFormat string    `json:"recommended_format"`
	CreatedAt         time.Time `json:"created_at"`
}
