// Package policy turns an operator-approved subset of scan results into a
// Content-Security-Policy and packages it for a web server.
package policy

import (
	"sort"
	"strings"
	"unicode"

	"github.com/khanhnv2901/cspgen/internal/resource"
)

// DefaultReportURI is where browsers are told to send violation reports.
const DefaultReportURI = "/csp-violation-report-endpoint/"

const selfSource = "'self'"

// AllowList records which sources the operator approved, per type. A type key
// that is present with an empty set means the type was reviewed and nothing
// was approved.
type AllowList map[resource.Type]map[string]struct{}

// Allow marks sources as approved for t, creating the type entry if needed.
func (a AllowList) Allow(t resource.Type, sources ...string) {
	set, ok := a[t]
	if !ok {
		set = make(map[string]struct{}, len(sources))
		a[t] = set
	}
	for _, src := range sources {
		set[src] = struct{}{}
	}
}

// Reviewed reports whether t has an entry, even an empty one.
func (a AllowList) Reviewed(t resource.Type) bool {
	_, ok := a[t]
	return ok
}

// Contains reports whether src is approved for t.
func (a AllowList) Contains(t resource.Type, src string) bool {
	_, ok := a[t][src]
	return ok
}

// Sources returns the approved sources of t in lexical order.
func (a AllowList) Sources(t resource.Type) []string {
	out := make([]string, 0, len(a[t]))
	for src := range a[t] {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}

// ToMap converts the allow-list to its serialized form keyed by type name.
func (a AllowList) ToMap() map[string][]string {
	out := make(map[string][]string, len(a))
	for t := range a {
		out[t.String()] = a.Sources(t)
	}
	return out
}

// FromMap builds an allow-list from type names to approved sources.
func FromMap(m map[string][]string) (AllowList, error) {
	allow := make(AllowList, len(m))
	for name, sources := range m {
		t, err := resource.ParseType(name)
		if err != nil {
			return nil, invalidAllowList(err)
		}
		allow.Allow(t, sources...)
	}
	return allow, nil
}

// RejectedSource is an approved source dropped by strict source checking.
type RejectedSource struct {
	Type   resource.Type `json:"type"`
	Source string        `json:"src"`
	Reason string        `json:"reason"`
}

// Policy is an ordered list of directive lines, each terminated by ';'.
type Policy struct {
	Lines    []string         `json:"lines"`
	Rejected []RejectedSource `json:"rejected,omitempty"`
}

// String renders one directive per line, each followed by a newline.
func (p Policy) String() string {
	var b strings.Builder
	for _, line := range p.Lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Header renders the policy on a single line, as sent in an HTTP header.
func (p Policy) Header() string {
	return strings.Join(p.Lines, " ")
}

// Without returns a copy of p minus the named directives.
func (p Policy) Without(directives ...string) Policy {
	out := Policy{Rejected: p.Rejected}
	for _, line := range p.Lines {
		name := directiveName(line)
		drop := false
		for _, d := range directives {
			if name == d {
				drop = true
				break
			}
		}
		if !drop {
			out.Lines = append(out.Lines, line)
		}
	}
	return out
}

type buildOptions struct {
	reportURI     string
	strictSources bool
}

// Option customizes Build.
type Option func(*buildOptions)

// WithReportURI replaces the report-uri trailer. An empty uri keeps the default.
func WithReportURI(uri string) Option {
	return func(o *buildOptions) {
		if uri != "" {
			o.reportURI = uri
		}
	}
}

// WithStrictSources drops approved sources that could break out of a directive
// or the quoted server-config string and records them in Policy.Rejected.
func WithStrictSources() Option {
	return func(o *buildOptions) {
		o.strictSources = true
	}
}

// Build emits default-src, then one directive per reviewed type with at least
// one approved reference, then the fixed trailer. References are matched by
// their raw source string; duplicates and scan order are preserved.
func Build(c resource.Collection, allow AllowList, opts ...Option) Policy {
	o := buildOptions{reportURI: DefaultReportURI}
	for _, opt := range opts {
		opt(&o)
	}

	p := Policy{Lines: []string{"default-src " + selfSource + ";"}}

	for _, t := range resource.AllTypes() {
		if !allow.Reviewed(t) {
			continue
		}
		var sources []string
		for _, ref := range c[t] {
			if !allow.Contains(t, ref.Source) {
				continue
			}
			if o.strictSources {
				if reason := unsafeSourceReason(ref.Source); reason != "" {
					p.Rejected = append(p.Rejected, RejectedSource{Type: t, Source: ref.Source, Reason: reason})
					continue
				}
			}
			sources = append(sources, ref.Source)
		}
		if len(sources) == 0 {
			continue
		}
		p.Lines = append(p.Lines, t.Directive()+" "+selfSource+" "+strings.Join(sources, " ")+";")
	}

	p.Lines = append(p.Lines,
		"frame-ancestors "+selfSource+";",
		"upgrade-insecure-requests;",
		"report-uri "+o.reportURI+";",
	)
	return p
}

func unsafeSourceReason(src string) string {
	if src == "" {
		return "empty source"
	}
	for _, r := range src {
		switch {
		case unicode.IsSpace(r):
			return "contains whitespace"
		case unicode.IsControl(r):
			return "contains control character"
		case r == ';' || r == ',':
			return "contains directive separator"
		case r == '"' || r == '\'':
			return "contains quote"
		}
	}
	return ""
}

func directiveName(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimSuffix(fields[0], ";")
}
