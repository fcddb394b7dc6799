package resource

import (
	"fmt"

	sharedErrors "github.com/khanhnv2901/cspgen/internal/shared/errors"
)

// InputError reports a scan root that cannot be scanned at all.
type InputError struct {
	Root string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("scan root %s: %v", e.Root, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// ParseError reports an HTML file that contributed no references because it
// could not be read or parsed.
type ParseError struct {
	Path  string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Cause)
}

func (e *ParseError) Unwrap() []error {
	return []error{sharedErrors.ErrParseFailed, e.Cause}
}

// URLParseError reports a resource URL that net/url rejected. The classifier
// still returns a locality decision alongside it.
type URLParseError struct {
	URL   string
	Cause error
}

func (e *URLParseError) Error() string {
	return fmt.Sprintf("classify %q: %v", e.URL, e.Cause)
}

func (e *URLParseError) Unwrap() []error {
	return []error{sharedErrors.ErrMalformedURL, e.Cause}
}

// ErrorKind tags per-entry failures recorded during a scan.
type ErrorKind string

const (
	KindParse     ErrorKind = "parse"
	KindTraversal ErrorKind = "traversal"
)

// FileError is a per-entry failure that was skipped without aborting the scan.
type FileError struct {
	Path string    `json:"path"`
	Kind ErrorKind `json:"kind"`
	Err  string    `json:"error"`
}
