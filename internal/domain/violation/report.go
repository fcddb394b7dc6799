package violation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	sharedErrors "github.com/khanhnv2901/cspgen/internal/shared/errors"
)

// MaxReportBytes caps the size of a violation report body.
const MaxReportBytes = 64 << 10

// Report is a Content-Security-Policy violation report as sent by browsers to
// the report-uri.
type Report struct {
	DocumentURI        string `json:"document-uri"`
	Referrer           string `json:"referrer,omitempty"`
	BlockedURI         string `json:"blocked-uri"`
	ViolatedDirective  string `json:"violated-directive"`
	EffectiveDirective string `json:"effective-directive,omitempty"`
	OriginalPolicy     string `json:"original-policy,omitempty"`
	Disposition        string `json:"disposition,omitempty"`
	SourceFile         string `json:"source-file,omitempty"`
	LineNumber         int    `json:"line-number,omitempty"`
	StatusCode         int    `json:"status-code,omitempty"`
}

// envelope is the application/csp-report wire format.
type envelope struct {
	Body *Report `json:"csp-report"`
}

// Record is a stored report with the time and client it was received from.
type Record struct {
	ReceivedAt time.Time `json:"received_at"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Report     Report    `json:"csp-report"`
}

// Directive returns the effective directive, falling back to the violated one.
func (r Report) Directive() string {
	if r.EffectiveDirective != "" {
		return r.EffectiveDirective
	}
	fields := strings.Fields(r.ViolatedDirective)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Decode reads one {"csp-report": {...}} body. Bodies over MaxReportBytes, bodies
// without a csp-report member and reports missing both the document and
// violated directive are rejected with ErrInvalidReport.
func Decode(r io.Reader) (Report, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxReportBytes+1))
	if err != nil {
		return Report{}, fmt.Errorf("%w: %v", sharedErrors.ErrInvalidReport, err)
	}
	if len(data) > MaxReportBytes {
		return Report{}, fmt.Errorf("%w: body exceeds %d bytes", sharedErrors.ErrInvalidReport, MaxReportBytes)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Report{}, fmt.Errorf("%w: %v", sharedErrors.ErrInvalidReport, err)
	}
	if env.Body == nil {
		return Report{}, fmt.Errorf("%w: missing csp-report", sharedErrors.ErrInvalidReport)
	}
	if env.Body.DocumentURI == "" && env.Body.ViolatedDirective == "" {
		return Report{}, fmt.Errorf("%w: empty report", sharedErrors.ErrInvalidReport)
	}
	return *env.Body, nil
}
