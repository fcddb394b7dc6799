package policy

import (
	"fmt"
	"html"
	"strings"

	sharedErrors "github.com/khanhnv2901/cspgen/internal/shared/errors"
)

// Dialect selects the server configuration format a policy is wrapped in.
type Dialect string

const (
	DialectApache Dialect = "apache"
	DialectNginx  Dialect = "nginx"
	DialectMeta   Dialect = "meta"
)

// Dialects lists the supported dialects, default first.
func Dialects() []Dialect {
	return []Dialect{DialectApache, DialectNginx, DialectMeta}
}

// ParseDialect accepts a dialect name. Empty means apache.
func ParseDialect(value string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(value))); d {
	case "":
		return DialectApache, nil
	case DialectApache, DialectNginx, DialectMeta:
		return d, nil
	}
	return "", fmt.Errorf("%w: %q (must be apache, nginx, or meta)", sharedErrors.ErrUnknownDialect, value)
}

// Snippet is a ready-to-save server configuration fragment.
type Snippet struct {
	Dialect  Dialect `json:"dialect"`
	Filename string  `json:"filename"`
	Content  string  `json:"content"`
}

// Wrap packages p as a server configuration snippet.
//
// The apache form embeds the multi-line policy text verbatim inside the quoted
// header value. Meta tags ignore frame-ancestors and report-uri, so those are
// left out there.
func Wrap(p Policy, d Dialect) (Snippet, error) {
	if len(p.Lines) == 0 {
		return Snippet{}, sharedErrors.ErrEmptyPolicy
	}

	switch d {
	case DialectApache, "":
		return Snippet{
			Dialect:  DialectApache,
			Filename: ".htaccess",
			Content:  "# Enable mod_headers\nHeader always set Content-Security-Policy \"" + p.String() + "\"\n",
		}, nil
	case DialectNginx:
		return Snippet{
			Dialect:  DialectNginx,
			Filename: "csp.conf",
			Content:  fmt.Sprintf("add_header Content-Security-Policy \"%s\" always;\n", p.Header()),
		}, nil
	case DialectMeta:
		meta := p.Without("frame-ancestors", "report-uri")
		return Snippet{
			Dialect:  DialectMeta,
			Filename: "csp-meta.html",
			Content:  formatMetaTag(meta.Header()) + "\n",
		}, nil
	}
	return Snippet{}, fmt.Errorf("%w: %q", sharedErrors.ErrUnknownDialect, string(d))
}

func formatMetaTag(header string) string {
	return fmt.Sprintf(`<meta http-equiv="Content-Security-Policy" content="%s">`, html.EscapeString(header))
}
