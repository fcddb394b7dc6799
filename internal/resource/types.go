package resource

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	sharedErrors "github.com/khanhnv2901/cspgen/internal/shared/errors"
)

// Type is the category a discovered sub-resource belongs to. The set is closed;
// every Type maps to exactly one CSP fetch directive.
type Type uint8

const (
	Scripts Type = iota
	Stylesheets
	Images
	Fonts
	Media
	Object
	Frame
	Worker
)

// typeSpec ties a Type to its textual name and CSP directive.
type typeSpec struct {
	name      string
	directive string
}

var typeSpecs = [...]typeSpec{
	Scripts:     {name: "scripts", directive: "script-src"},
	Stylesheets: {name: "stylesheets", directive: "style-src"},
	Images:      {name: "images", directive: "img-src"},
	Fonts:       {name: "fonts", directive: "font-src"},
	Media:       {name: "media", directive: "media-src"},
	Object:      {name: "object", directive: "object-src"},
	Frame:       {name: "frame", directive: "frame-src"},
	Worker:      {name: "worker", directive: "worker-src"},
}

// AllTypes returns every Type in canonical policy order.
func AllTypes() []Type {
	return []Type{Scripts, Stylesheets, Images, Fonts, Media, Object, Frame, Worker}
}

// Valid reports whether t is one of the known resource types.
func (t Type) Valid() bool {
	return int(t) < len(typeSpecs)
}

func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
	return typeSpecs[t].name
}

// Directive returns the CSP directive that governs this resource type.
func (t Type) Directive() string {
	if !t.Valid() {
		return ""
	}
	return typeSpecs[t].directive
}

// ParseType converts a textual type name ("scripts", "fonts", ...) into a Type.
func ParseType(name string) (Type, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i, spec := range typeSpecs {
		if spec.name == key {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", sharedErrors.ErrUnknownType, name)
}

// ParseTypes converts a list of names, rejecting the first unknown one.
func ParseTypes(names []string) ([]Type, error) {
	types := make([]Type, 0, len(names))
	for _, name := range names {
		t, err := ParseType(name)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", sharedErrors.ErrUnknownType, uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(text []byte) error {
	parsed, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Reference is one sub-resource found in an HTML file.
type Reference struct {
	Type   Type   `json:"type"`
	Source string `json:"src"`
	Local  bool   `json:"is_local"`
	File   string `json:"full_path"`
}

// Collection groups references by type. Lists are kept in discovery order until
// Sort is called.
type Collection map[Type][]Reference

// NewCollection returns a collection with an empty list for every type.
func NewCollection() Collection {
	c := make(Collection, len(typeSpecs))
	for _, t := range AllTypes() {
		c[t] = []Reference{}
	}
	return c
}

// Add appends refs to the list matching each reference's type.
func (c Collection) Add(refs ...Reference) {
	for _, ref := range refs {
		c[ref.Type] = append(c[ref.Type], ref)
	}
}

// Refs returns the references of type t.
func (c Collection) Refs(t Type) []Reference {
	return c[t]
}

// Len returns the total number of references across all types.
func (c Collection) Len() int {
	total := 0
	for _, refs := range c {
		total += len(refs)
	}
	return total
}

// Sort orders every list by the directory of the containing file. The sort is
// stable, so references from the same directory keep their discovery order.
func (c Collection) Sort() {
	for t, refs := range c {
		sort.SliceStable(refs, func(i, j int) bool {
			return filepath.Dir(refs[i].File) < filepath.Dir(refs[j].File)
		})
		c[t] = refs
	}
}
