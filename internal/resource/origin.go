package resource

import (
	"fmt"
	"net/url"
	"strings"
)

// MalformedPolicy decides how URLs that fail to parse are classified.
type MalformedPolicy int

const (
	// MalformedExternal treats unparseable URLs as cross-origin so they never
	// loosen a policy by accident.
	MalformedExternal MalformedPolicy = iota
	// MalformedLocal treats unparseable URLs as same-origin.
	MalformedLocal
)

func (p MalformedPolicy) String() string {
	if p == MalformedLocal {
		return "local"
	}
	return "external"
}

// ParseMalformedPolicy accepts "external" (default when empty) or "local".
func ParseMalformedPolicy(value string) (MalformedPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "external":
		return MalformedExternal, nil
	case "local":
		return MalformedLocal, nil
	}
	return MalformedExternal, fmt.Errorf("invalid malformed-url policy %q (must be external or local)", value)
}

// Classifier decides whether a resource URL is served from the current site.
type Classifier struct {
	// Host is the site's host as it appears in URLs, including any port.
	Host      string
	Malformed MalformedPolicy
}

// Classify reports whether raw is local. URLs without a host component are
// local; URLs with a host are local only when it equals c.Host exactly. A parse
// failure returns a *URLParseError together with the Malformed policy decision.
func (c Classifier) Classify(raw string) (bool, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return c.Malformed == MalformedLocal, &URLParseError{URL: raw, Cause: err}
	}
	if u.Host == "" {
		return true, nil
	}
	return u.Host == c.Host, nil
}
