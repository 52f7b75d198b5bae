package presets

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const testCatalog = `{
  "version": 1,
  "naming": {
    "pattern": "{name-normalized}.{ext}",
    "normalize": {"lowercase": true, "removeAccents": true, "replaceSpacesWith": "-", "collapseDashes": true}
  },
  "defaults": {
    "output": {"recommendedFormat": "webp"},
    "quality": {"photo": {"webp": 80, "jpg": 82}, "ui": {"webp": 90, "png": 0}},
    "crop": {"mode": "cover"},
    "resize": {"noUpscale": true, "density": {"scaleFactor": 1.33}}
  },
  "presets": [
    {"id": "hero-1920", "label": "Hero", "width": 1920, "height": 1080, "typeHint": "photo"},
    {"id": "ig-square-1080", "label": "IG Square", "width": 1080, "height": 1080, "typeHint": "photo"},
    {"id": "product-800", "label": "Product", "width": 800, "height": 800, "typeHint": "photo"}
  ]
}`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image-presets.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}
	return path
}

func TestInferCategory(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"hero-1920", "web"},
		{"thumb-400", "web"},
		{"square-1080", "web"},
		{"ig-story-1080", "social"},
		{"yt-thumb-1280", "social"},
		{"pin-1000", "social"},
		{"product-800", "ecommerce"},
		{"banner-home", "ecommerce"},
	}
	for _, tt := range tests {
		if got := InferCategory(tt.id); got != tt.want {
			t.Errorf("InferCategory(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestCatalogLoad(t *testing.T) {
	path := writeCatalog(t, testCatalog)
	catalog := NewCatalog(path, nil)

	data, err := catalog.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(data.Presets) != 3 {
		t.Fatalf("expected 3 presets, got %d", len(data.Presets))
	}
	// categories get inferred on load
	if data.Presets[0].Category != "web" {
		t.Errorf("hero-1920 category = %q, want web", data.Presets[0].Category)
	}
	if data.Presets[1].Category != "social" {
		t.Errorf("ig-square-1080 category = %q, want social", data.Presets[1].Category)
	}
	if data.Presets[0].Source != SourceBase {
		t.Errorf("source = %q, want %q", data.Presets[0].Source, SourceBase)
	}
}

func TestCatalogCacheByMtime(t *testing.T) {
	path := writeCatalog(t, testCatalog)
	catalog := NewCatalog(path, nil)

	first, err := catalog.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	second, err := catalog.Load()
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if first != second {
		t.Error("expected cached pointer on unchanged mtime")
	}

	// touch with a different mtime forces a re-read
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("failed to touch catalog: %v", err)
	}
	third, err := catalog.Load()
	if err != nil {
		t.Fatalf("third Load failed: %v", err)
	}
	if third == second {
		t.Error("expected re-read after mtime change")
	}
}

func TestCatalogGet(t *testing.T) {
	path := writeCatalog(t, testCatalog)
	catalog := NewCatalog(path, nil)

	preset, err := catalog.Get("hero-1920")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if preset == nil || preset.Width != 1920 {
		t.Fatalf("unexpected preset: %+v", preset)
	}

	missing, err := catalog.Get("no-such")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown id, got %+v", missing)
	}
}

type fakeCustomSource struct {
	presets []Preset
}

func (f *fakeCustomSource) GetCustomPreset(id string) (*Preset, error) {
	for i := range f.presets {
		if f.presets[i].ID == id {
			preset := f.presets[i]
			return &preset, nil
		}
	}
	return nil, nil
}

func (f *fakeCustomSource) ListCustomPresets() ([]Preset, error) {
	return f.presets, nil
}

func TestCustomShadowsBase(t *testing.T) {
	path := writeCatalog(t, testCatalog)
	custom := &fakeCustomSource{presets: []Preset{
		{ID: "hero-1920", Label: "Override", Width: 2560, Height: 1440, Category: "web", Source: SourceCustom},
		{ID: "team-special", Label: "Special", Width: 640, Height: 640, Category: "ecommerce", Source: SourceCustom},
	}}
	catalog := NewCatalog(path, custom)

	preset, err := catalog.Get("hero-1920")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if preset.Width != 2560 || preset.Source != SourceCustom {
		t.Errorf("custom preset did not shadow base: %+v", preset)
	}

	list, err := catalog.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 5 {
		t.Fatalf("expected 5 merged presets, got %d", len(list))
	}
	// web comes before social comes before ecommerce
	var order []string
	for _, p := range list {
		order = append(order, p.Category)
	}
	seenSocial, seenEcom := false, false
	for _, c := range order {
		switch c {
		case "social":
			seenSocial = true
		case "ecommerce":
			seenEcom = true
		case "web":
			if seenSocial || seenEcom {
				t.Fatalf("category order broken: %v", order)
			}
		}
	}
}

func TestDefaultsQualityFor(t *testing.T) {
	path := writeCatalog(t, testCatalog)
	catalog := NewCatalog(path, nil)
	data, err := catalog.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if q := data.Defaults.QualityFor("photo", "webp", 75); q != 80 {
		t.Errorf("photo/webp quality = %d, want 80", q)
	}
	if q := data.Defaults.QualityFor("ui", "png", 75); q != 0 {
		t.Errorf("ui/png quality = %d, want 0", q)
	}
	if q := data.Defaults.QualityFor("photo", "avif", 60); q != 60 {
		t.Errorf("missing entry fallback = %d, want 60", q)
	}
	if s := data.Defaults.DensityScale(); s != 1.33 {
		t.Errorf("density scale = %v, want 1.33", s)
	}
}

func TestTargetAspect(t *testing.T) {
	p := &Preset{Width: 1920, Height: 1080}
	if got := p.TargetAspect(); got < 1.77 || got > 1.78 {
		t.Errorf("TargetAspect = %v", got)
	}
	var nilPreset *Preset
	if got := nilPreset.TargetAspect(); got != 0 {
		t.Errorf("nil TargetAspect = %v, want 0", got)
	}
}
