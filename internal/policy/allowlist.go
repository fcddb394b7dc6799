package policy

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/khanhnv2901/cspgen/internal/resource"
	sharedErrors "github.com/khanhnv2901/cspgen/internal/shared/errors"
)

//go:embed allowlist.schema.json
var allowListSchema string

// LoadAllowList reads an allow-list file mapping type names to approved
// sources. YAML (.yaml, .yml) and JSON (.json) are supported; JSON documents
// are validated against the embedded schema first.
func LoadAllowList(fs afero.Fs, path string) (AllowList, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read allow-list: %w", err)
	}

	raw := map[string][]string{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, invalidAllowList(err)
		}
	case ".json":
		if err := validateAllowListJSON(data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, invalidAllowList(err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported file extension %q", sharedErrors.ErrInvalidAllowList, ext)
	}

	return FromMap(raw)
}

func validateAllowListJSON(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(allowListSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return invalidAllowList(err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		msgs = append(msgs, field+": "+desc.Description())
	}
	return fmt.Errorf("%w: %s", sharedErrors.ErrInvalidAllowList, strings.Join(msgs, "; "))
}

func invalidAllowList(err error) error {
	return fmt.Errorf("%w: %w", sharedErrors.ErrInvalidAllowList, err)
}

// Selection picks which references are pre-approved before operator review.
type Selection string

const (
	SelectLocal    Selection = "local"
	SelectExternal Selection = "external"
	SelectAll      Selection = "all"
	SelectNone     Selection = "none"
)

// ParseSelection accepts local, external, all or none. Empty means local.
func ParseSelection(value string) (Selection, error) {
	switch s := Selection(strings.ToLower(strings.TrimSpace(value))); s {
	case "":
		return SelectLocal, nil
	case SelectLocal, SelectExternal, SelectAll, SelectNone:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q (must be local, external, all, or none)", sharedErrors.ErrUnknownSelection, value)
}

// AllowFrom builds an allow-list in which every type is reviewed and the
// references matching sel are approved.
func AllowFrom(c resource.Collection, sel Selection) AllowList {
	allow := make(AllowList, len(resource.AllTypes()))
	for _, t := range resource.AllTypes() {
		allow.Allow(t)
		for _, ref := range c[t] {
			if sel.includes(ref) {
				allow.Allow(t, ref.Source)
			}
		}
	}
	return allow
}

func (s Selection) includes(ref resource.Reference) bool {
	switch s {
	case SelectAll:
		return true
	case SelectLocal:
		return ref.Local
	case SelectExternal:
		return !ref.Local
	}
	return false
}
