package descriptor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
)

// FileName is the descriptor's location inside an extracted package.
const FileName = "metadata.toml"

// Descriptor formats. Format 1 plugins must export an entry point; format 2
// plugins may omit it.
const (
	FormatV1 = 1
	FormatV2 = 2
)

// Threading models a plugin may declare.
const (
	ThreadingShared = "shared"
	ThreadingSingle = "single"
)

// Descriptor is the validated [metadata] table of a plugin package
type Descriptor struct {
	Name        string `toml:"name" json:"name" yaml:"name"`
	Version     string `toml:"version" json:"version" yaml:"version"`
	ObjFile     string `toml:"objfile" json:"objfile" yaml:"objfile"`
	Description string `toml:"description,omitempty" json:"description,omitempty" yaml:"description,omitempty"`
	EntryPoint  string `toml:"entrypoint,omitempty" json:"entrypoint,omitempty" yaml:"entrypoint,omitempty"`
	Destructor  string `toml:"destructor,omitempty" json:"destructor,omitempty" yaml:"destructor,omitempty"`
	Format      int    `toml:"format" json:"format" yaml:"format"`
	Threading   string `toml:"threading" json:"threading" yaml:"threading"`
}

// EntryPointOr returns the declared entry point, or def when none is declared.
func (d *Descriptor) EntryPointOr(def string) string {
	if d.EntryPoint != "" {
		return d.EntryPoint
	}
	return def
}

// DestructorOr returns the declared destructor, or def when none is declared.
func (d *Descriptor) DestructorOr(def string) string {
	if d.Destructor != "" {
		return d.Destructor
	}
	return def
}

// RequiresEntryPoint reports whether a missing entry point fails the load.
func (d *Descriptor) RequiresEntryPoint() bool {
	return d.Format != FormatV2
}

// SingleThreaded reports whether every native call must run on one OS thread.
func (d *Descriptor) SingleThreaded() bool {
	return d.Threading == ThreadingSingle
}

// document mirrors the file layout. Pointer fields tell a missing key apart
// from an empty one.
type document struct {
	Metadata *struct {
		Name        *string `toml:"name"`
		Version     *string `toml:"version"`
		ObjFile     *string `toml:"objfile"`
		Description *string `toml:"description"`
		EntryPoint  *string `toml:"entrypoint"`
		Destructor  *string `toml:"destructor"`
		Format      *int    `toml:"format"`
		Threading   *string `toml:"threading"`
	} `toml:"metadata"`
}

// Load reads and validates the descriptor at path
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &Error{Path: path, Err: fmt.Errorf("%w: %w", ErrNotFound, err)}
		}
		return nil, &Error{Path: path, Err: fmt.Errorf("%w: %w", ErrUnreadable, err)}
	}

	return parse(path, data)
}

// LoadFromDir loads the descriptor of an extracted package
func LoadFromDir(dir string) (*Descriptor, error) {
	return Load(filepath.Join(dir, FileName))
}

// Parse decodes and validates a descriptor document
func Parse(data []byte) (*Descriptor, error) {
	return parse("", data)
}

func parse(path string, data []byte) (*Descriptor, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Path: path, Err: fmt.Errorf("%w: %w", ErrMalformed, err)}
	}

	if doc.Metadata == nil {
		return nil, &Error{Path: path, Problems: []ValidationError{{
			Field:   "metadata",
			Message: "[metadata] table is required",
			Kind:    ErrMissingField,
		}}}
	}

	m := doc.Metadata
	d := &Descriptor{
		Name:        deref(m.Name),
		Version:     deref(m.Version),
		ObjFile:     deref(m.ObjFile),
		Description: deref(m.Description),
		EntryPoint:  deref(m.EntryPoint),
		Destructor:  deref(m.Destructor),
		Format:      FormatV1,
		Threading:   ThreadingShared,
	}
	if m.Format != nil {
		d.Format = *m.Format
	}
	if m.Threading != nil {
		d.Threading = *m.Threading
	}

	var problems []ValidationError
	missing := make(map[string]bool)
	for _, f := range []struct {
		field string
		value *string
	}{
		{"name", m.Name},
		{"version", m.Version},
		{"objfile", m.ObjFile},
	} {
		if f.value == nil {
			missing[f.field] = true
			problems = append(problems, ValidationError{
				Field:   f.field,
				Message: "field is required",
				Kind:    ErrMissingField,
			})
		}
	}

	// Optional overrides, when present, must name something.
	if m.EntryPoint != nil && *m.EntryPoint == "" {
		problems = append(problems, ValidationError{Field: "entrypoint", Message: "must not be empty", Kind: ErrEmptyField})
	}
	if m.Destructor != nil && *m.Destructor == "" {
		problems = append(problems, ValidationError{Field: "destructor", Message: "must not be empty", Kind: ErrEmptyField})
	}

	for _, p := range Validate(d) {
		if !missing[p.Field] {
			problems = append(problems, p)
		}
	}

	if len(problems) > 0 {
		return nil, &Error{Path: path, Problems: problems}
	}

	return d, nil
}

// Validate checks a descriptor and returns every problem found
func Validate(d *Descriptor) []ValidationError {
	var errs []ValidationError

	// Required fields
	required := []struct {
		field string
		value string
	}{
		{"name", d.Name},
		{"version", d.Version},
		{"objfile", d.ObjFile},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, ValidationError{
				Field:   r.field,
				Message: "must not be empty",
				Kind:    ErrEmptyField,
			})
		}
	}

	if d.Name != "" {
		switch {
		case hasSpace(d.Name):
			errs = append(errs, invalid("name", "must not contain whitespace: %q", d.Name))
		case strings.ContainsAny(d.Name, "/\\\x00") || d.Name == "." || d.Name == "..":
			errs = append(errs, invalid("name", "must be a single path-safe token: %q", d.Name))
		}
	}

	if d.Version != "" && hasSpace(d.Version) {
		errs = append(errs, invalid("version", "must not contain whitespace: %q", d.Version))
	}

	if d.ObjFile != "" {
		native := filepath.FromSlash(d.ObjFile)
		if strings.ContainsRune(d.ObjFile, 0) || filepath.IsAbs(native) || !filepath.IsLocal(native) {
			errs = append(errs, invalid("objfile", "must be a relative path inside the package: %q", d.ObjFile))
		}
	}

	if d.Format != FormatV1 && d.Format != FormatV2 {
		errs = append(errs, invalid("format", "unsupported format %d (expected %d or %d)", d.Format, FormatV1, FormatV2))
	}

	if d.Threading != ThreadingShared && d.Threading != ThreadingSingle {
		errs = append(errs, invalid("threading", "must be %q or %q, got %q", ThreadingShared, ThreadingSingle, d.Threading))
	}

	symbols := []struct {
		field string
		value string
	}{
		{"entrypoint", d.EntryPoint},
		{"destructor", d.Destructor},
	}
	for _, sym := range symbols {
		if sym.value != "" && (hasSpace(sym.value) || strings.ContainsRune(sym.value, 0)) {
			errs = append(errs, invalid(sym.field, "not a valid symbol name: %q", sym.value))
		}
	}

	return errs
}

func invalid(field, format string, args ...any) ValidationError {
	return ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Kind:    ErrInvalidField,
	}
}

func hasSpace(s string) bool {
	return strings.IndexFunc(s, unicode.IsSpace) >= 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
