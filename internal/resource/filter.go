package resource

import (
	"fmt"
	"strings"
)

// Locality restricts a listing to local or external references.
type Locality string

const (
	LocalityAll      Locality = "all"
	LocalityLocal    Locality = "local"
	LocalityExternal Locality = "external"
)

// ParseLocality accepts all, local or external. Empty means all.
func ParseLocality(value string) (Locality, error) {
	switch l := Locality(strings.ToLower(strings.TrimSpace(value))); l {
	case "":
		return LocalityAll, nil
	case LocalityAll, LocalityLocal, LocalityExternal:
		return l, nil
	}
	return LocalityAll, fmt.Errorf("invalid locality %q (must be all, local, or external)", value)
}

// Filter narrows a collection for display. The zero value keeps everything.
type Filter struct {
	Types  []Type
	Only   Locality
	Search string
}

// Apply returns a new collection holding only the matching references. Types
// excluded by the filter are absent from the result.
func (f Filter) Apply(c Collection) Collection {
	out := make(Collection)
	needle := strings.ToLower(f.Search)

	for _, t := range AllTypes() {
		if !f.includesType(t) {
			continue
		}
		refs := c[t]
		kept := make([]Reference, 0, len(refs))
		for _, ref := range refs {
			if f.matches(ref, needle) {
				kept = append(kept, ref)
			}
		}
		out[t] = kept
	}
	return out
}

func (f Filter) includesType(t Type) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, want := range f.Types {
		if want == t {
			return true
		}
	}
	return false
}

func (f Filter) matches(ref Reference, needle string) bool {
	switch f.Only {
	case LocalityLocal:
		if !ref.Local {
			return false
		}
	case LocalityExternal:
		if ref.Local {
			return false
		}
	}
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(ref.Source), needle) ||
		strings.Contains(strings.ToLower(ref.File), needle)
}
