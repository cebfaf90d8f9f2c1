// Package gradescale loads grade scales and brand mappings from YAML.
package gradescale

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gymstats/gymstats-hub/internal/domain/grade"
)

//go:embed scales.yaml
var defaultFile []byte

// File is the YAML layout.
type File struct {
	Scales map[string][]string `yaml:"scales"`
	Brands map[string]string   `yaml:"brands"`
}

// Parse decodes a scale file. Unknown fields are rejected so that typos do
// not silently drop a scale.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("gradescale: decode: %w", err)
	}
	return &f, nil
}

// Defaults returns the embedded scale file.
func Defaults() *File {
	f, err := Parse(defaultFile)
	if err != nil {
		panic(err)
	}
	return f
}

// Merge overlays other on f: a scale or brand in other replaces the one with
// the same key.
func (f *File) Merge(other *File) *File {
	out := &File{
		Scales: make(map[string][]string, len(f.Scales)+len(other.Scales)),
		Brands: make(map[string]string, len(f.Brands)+len(other.Brands)),
	}
	for k, v := range f.Scales {
		out.Scales[strings.ToLower(k)] = v
	}
	for k, v := range other.Scales {
		out.Scales[strings.ToLower(k)] = v
	}
	for k, v := range f.Brands {
		out.Brands[k] = v
	}
	for k, v := range other.Brands {
		out.Brands[k] = v
	}
	return out
}

// Registry builds a grade registry from the file.
func (f *File) Registry() (*grade.Registry, error) {
	return grade.NewRegistry(f.Scales, f.Brands)
}

// Load returns the registry of the embedded defaults, overlaid with the file
// at path when path is not empty.
func Load(path string) (*grade.Registry, error) {
	f := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("gradescale: read %s: %w", path, err)
		}
		override, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		f = f.Merge(override)
	}
	return f.Registry()
}
