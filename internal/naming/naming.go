package naming

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultPattern is used when neither the file override nor the catalog
// defines a rename pattern.
const DefaultPattern = "{name-normalized}.{ext}"

// Options controls filename normalization. The zero value disables
// everything; use DefaultOptions for the catalog defaults.
type Options struct {
	Lowercase     bool
	RemoveAccents bool
	ReplaceSpaces string
	CollapseDashes bool
}

// DefaultOptions matches the catalog's default normalization block.
func DefaultOptions() Options {
	return Options{
		Lowercase:      true,
		RemoveAccents:  true,
		ReplaceSpaces:  "-",
		CollapseDashes: true,
	}
}

var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize applies the configured normalization steps to a name stem.
// It is idempotent: Normalize(Normalize(s)) == Normalize(s) for any
// fixed set of options.
func Normalize(value string, opts Options) string {
	text := value
	if opts.RemoveAccents {
		if stripped, _, err := transform.String(accentStripper, text); err == nil {
			text = stripped
		}
	}
	if opts.Lowercase {
		text = strings.ToLower(text)
	}
	if opts.ReplaceSpaces != "" {
		text = strings.ReplaceAll(text, " ", opts.ReplaceSpaces)
	}
	if opts.CollapseDashes {
		for strings.Contains(text, "--") {
			text = strings.ReplaceAll(text, "--", "-")
		}
	}
	trim := opts.ReplaceSpaces
	if trim == "" {
		trim = "-"
	}
	return strings.Trim(text, trim)
}

// BuildName expands a rename pattern for a single output file.
// Recognized placeholders: {preset}, {ext}, {name-normalized}, {name}.
func BuildName(originalName, format, presetID, pattern string, opts Options) string {
	if pattern == "" {
		pattern = DefaultPattern
	}
	base := stem(originalName)
	normalized := Normalize(base, opts)

	out := strings.ReplaceAll(pattern, "{preset}", presetID)
	out = strings.ReplaceAll(out, "{ext}", format)
	out = strings.ReplaceAll(out, "{name-normalized}", normalized)
	out = strings.ReplaceAll(out, "{name}", base)
	return out
}

// BuildBaseName returns an extensionless base used by the multi-scale
// naming convention ("{base}.{ext}" and "{base}__2x.{ext}").
func BuildBaseName(originalName, presetID string, opts Options) string {
	normalized := Normalize(stem(originalName), opts)
	if presetID == "" {
		return normalized
	}
	return normalized + "__" + presetID
}

// UniqueSet tracks the output names already used within one job so that
// archive entries never collide. It is owned by the orchestrator for the
// duration of a single job and is not safe for concurrent use.
type UniqueSet struct {
	used map[string]struct{}
}

// NewUniqueSet seeds a set with names that are already taken.
func NewUniqueSet(taken ...string) *UniqueSet {
	s := &UniqueSet{used: make(map[string]struct{}, len(taken))}
	for _, name := range taken {
		if name != "" {
			s.used[name] = struct{}{}
		}
	}
	return s
}

// Ensure returns name if free, otherwise the first "-2", "-3", ...
// suffixed variant that is, and marks the result as used.
func (s *UniqueSet) Ensure(name string) string {
	if _, taken := s.used[name]; !taken {
		s.used[name] = struct{}{}
		return name
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for counter := 2; ; counter++ {
		candidate := fmt.Sprintf("%s-%d%s", base, counter, ext)
		if _, taken := s.used[candidate]; !taken {
			s.used[candidate] = struct{}{}
			return candidate
		}
	}
}

// Contains reports whether a name has been claimed.
func (s *UniqueSet) Contains(name string) bool {
	_, taken := s.used[name]
	return taken
}

func stem(name string) string {
	return strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
}
