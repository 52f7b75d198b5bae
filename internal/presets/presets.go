package presets

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"image-optimizer/internal/logging"
	"image-optimizer/internal/naming"
)

// Preset source values
const (
	SourceBase   = "base"
	SourceCustom = "custom"
)

// Preset is one catalog entry: target geometry plus format and quality
// hints. Base entries come from the JSON catalog, custom entries from
// the database; custom shadows base by id.
type Preset struct {
	ID                string `json:"id"`
	Label             string `json:"label"`
	Category          string `json:"category,omitempty"`
	Width             int    `json:"width"`
	Height            int    `json:"height"`
	Aspect            string `json:"aspect,omitempty"`
	TypeHint          string `json:"typeHint,omitempty"`
	Density           string `json:"density,omitempty"`
	RecommendedFormat string `json:"recommendedFormat,omitempty"`
	Source            string `json:"source,omitempty"`

	// nested crop block from the catalog file
	Crop struct {
		Mode string `json:"mode,omitempty"`
	} `json:"crop,omitempty"`
	ResizeMode string `json:"resizeMode,omitempty"`
	CropMode   string `json:"cropMode,omitempty"`
}

// TargetAspect returns width/height, or 0 when the preset has no fixed
// dimensions.
func (p *Preset) TargetAspect() float64 {
	if p == nil || p.Width <= 0 || p.Height <= 0 {
		return 0
	}
	return float64(p.Width) / float64(p.Height)
}

// NamingConfig is the catalog's naming block.
type NamingConfig struct {
	Pattern   string `json:"pattern"`
	Normalize struct {
		Lowercase         *bool  `json:"lowercase"`
		RemoveAccents     *bool  `json:"removeAccents"`
		ReplaceSpacesWith string `json:"replaceSpacesWith"`
		CollapseDashes    *bool  `json:"collapseDashes"`
	} `json:"normalize"`
}

// Options converts the normalize block into naming options, falling
// back to the defaults for unset fields.
func (n *NamingConfig) Options() naming.Options {
	opts := naming.DefaultOptions()
	if n.Normalize.Lowercase != nil {
		opts.Lowercase = *n.Normalize.Lowercase
	}
	if n.Normalize.RemoveAccents != nil {
		opts.RemoveAccents = *n.Normalize.RemoveAccents
	}
	if n.Normalize.ReplaceSpacesWith != "" {
		opts.ReplaceSpaces = n.Normalize.ReplaceSpacesWith
	}
	if n.Normalize.CollapseDashes != nil {
		opts.CollapseDashes = *n.Normalize.CollapseDashes
	}
	return opts
}

// Defaults is the catalog's defaults block: fallback format, quality
// tables keyed by content type, crop mode, and resize policy.
type Defaults struct {
	Output struct {
		RecommendedFormat string `json:"recommendedFormat"`
	} `json:"output"`
	Quality map[string]map[string]int `json:"quality"`
	Crop    struct {
		Mode string `json:"mode"`
	} `json:"crop"`
	Resize struct {
		NoUpscale bool `json:"noUpscale"`
		Density   struct {
			ScaleFactor float64 `json:"scaleFactor"`
		} `json:"density"`
	} `json:"resize"`
}

// QualityFor looks up the default quality for a (content type, format)
// pair, returning fallback when the table has no entry.
func (d *Defaults) QualityFor(typeHint, format string, fallback int) int {
	if table, ok := d.Quality[typeHint]; ok {
		if q, ok := table[format]; ok {
			return q
		}
	}
	return fallback
}

// DensityScale returns the sharpened-variant scale factor, defaulting
// to 1.33 like the catalog ships.
func (d *Defaults) DensityScale() float64 {
	if d.Resize.Density.ScaleFactor > 0 {
		return d.Resize.Density.ScaleFactor
	}
	return 1.33
}

// Data is the parsed base catalog file.
type Data struct {
	Version  int          `json:"version"`
	Naming   NamingConfig `json:"naming"`
	Defaults Defaults     `json:"defaults"`
	Presets  []Preset     `json:"presets"`
}

// CustomSource supplies team-created presets stored outside the base
// catalog file. Implemented by the database package.
type CustomSource interface {
	GetCustomPreset(id string) (*Preset, error)
	ListCustomPresets() ([]Preset, error)
}

// Catalog merges the base JSON catalog with the custom overlay. The
// base file is cached and re-read when its mtime changes.
type Catalog struct {
	path   string
	custom CustomSource

	mu     sync.Mutex
	cached *Data
	mtime  time.Time
}

// NewCatalog creates a catalog backed by the JSON file at path. custom
// may be nil when no overlay source exists (tests, tooling).
func NewCatalog(path string, custom CustomSource) *Catalog {
	return &Catalog{path: path, custom: custom}
}

// Load returns the parsed base catalog, re-reading the file only when
// its mtime changed since the last load.
func (c *Catalog) Load() (*Data, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, err := os.Stat(c.path)
	if err != nil {
		return nil, fmt.Errorf("preset catalog not found at %s: %w", c.path, err)
	}
	if c.cached != nil && info.ModTime().Equal(c.mtime) {
		return c.cached, nil
	}

	raw, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset catalog: %w", err)
	}
	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse preset catalog: %w", err)
	}
	for i := range data.Presets {
		if data.Presets[i].Category == "" {
			data.Presets[i].Category = InferCategory(data.Presets[i].ID)
		}
		data.Presets[i].Source = SourceBase
	}

	logging.Debug("Preset catalog loaded: %d base presets (mtime %s)", len(data.Presets), info.ModTime())
	c.cached = &data
	c.mtime = info.ModTime()
	return c.cached, nil
}

// Get finds a preset by id; custom entries shadow base entries.
func (c *Catalog) Get(id string) (*Preset, error) {
	if id == "" {
		return nil, nil
	}
	if c.custom != nil {
		custom, err := c.custom.GetCustomPreset(id)
		if err != nil {
			return nil, err
		}
		if custom != nil {
			return custom, nil
		}
	}
	data, err := c.Load()
	if err != nil {
		return nil, err
	}
	for i := range data.Presets {
		if data.Presets[i].ID == id {
			preset := data.Presets[i]
			return &preset, nil
		}
	}
	return nil, nil
}

// categoryOrder fixes the presentation order of the merged listing.
var categoryOrder = []string{"web", "social", "ecommerce"}

// List merges base and custom presets into one listing ordered by
// category (web, social, ecommerce, then anything else).
func (c *Catalog) List() ([]Preset, error) {
	data, err := c.Load()
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]Preset)
	for _, preset := range data.Presets {
		grouped[preset.Category] = append(grouped[preset.Category], preset)
	}
	if c.custom != nil {
		customs, err := c.custom.ListCustomPresets()
		if err != nil {
			return nil, err
		}
		for _, preset := range customs {
			category := preset.Category
			if category == "" {
				category = "ecommerce"
			}
			grouped[category] = append(grouped[category], preset)
		}
	}

	var ordered []Preset
	for _, category := range categoryOrder {
		ordered = append(ordered, grouped[category]...)
		delete(grouped, category)
	}
	for _, rest := range grouped {
		ordered = append(ordered, rest...)
	}
	return ordered, nil
}

var (
	webPrefixes    = []string{"hero-", "content-", "thumb-", "portrait-", "story", "square", "panorama", "logo-"}
	socialPrefixes = []string{"ig-", "fb-", "x-", "thr-", "li-", "tt-", "yt-", "pin-", "sc-"}
)

// InferCategory buckets a preset id by its conventional prefix.
func InferCategory(presetID string) string {
	for _, prefix := range webPrefixes {
		if strings.HasPrefix(presetID, prefix) {
			return "web"
		}
	}
	for _, prefix := range socialPrefixes {
		if strings.HasPrefix(presetID, prefix) {
			return "social"
		}
	}
	return "ecommerce"
}
