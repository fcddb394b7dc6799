package resource

import (
	"errors"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	googleFontsHost  = "fonts.googleapis.com"
	workerMarker     = "Worker"
	workerSource     = "self"
	inlineScriptMIME = "text/javascript"
)

// elementRule maps an element/attribute pair to the resource type it yields.
type elementRule struct {
	tag  string
	attr string
	rel  string // required exact rel value, empty means no condition
	typ  Type
}

var elementRules = []elementRule{
	{tag: "script", attr: "src", typ: Scripts},
	{tag: "link", attr: "href", rel: "stylesheet", typ: Stylesheets},
	{tag: "img", attr: "src", typ: Images},
	{tag: "source", attr: "src", typ: Media},
	{tag: "object", attr: "data", typ: Object},
	{tag: "iframe", attr: "src", typ: Frame},
}

// Extraction is the outcome of extracting one document.
type Extraction struct {
	References []Reference
	// Ambiguous holds URLs the classifier could not parse.
	Ambiguous []*URLParseError
}

// Extractor pulls sub-resource references out of HTML documents.
type Extractor struct {
	Classifier Classifier
}

// Extract parses doc tolerantly and returns every reference it carries. A
// document that cannot be read or parsed yields a *ParseError and no references.
func (e *Extractor) Extract(doc io.Reader, filePath string) (Extraction, error) {
	parsed, err := goquery.NewDocumentFromReader(doc)
	if err != nil {
		return Extraction{}, &ParseError{Path: filePath, Cause: err}
	}

	var out Extraction
	emit := func(t Type, src string) {
		local, err := e.Classifier.Classify(src)
		var parseErr *URLParseError
		if errors.As(err, &parseErr) {
			out.Ambiguous = append(out.Ambiguous, parseErr)
		}
		out.References = append(out.References, Reference{
			Type:   t,
			Source: src,
			Local:  local,
			File:   filePath,
		})
	}

	for _, rule := range elementRules {
		parsed.Find(rule.tag).Each(func(_ int, s *goquery.Selection) {
			if rule.rel != "" {
				rel, ok := s.Attr("rel")
				if !ok || rel != rule.rel {
					return
				}
			}
			if src, ok := s.Attr(rule.attr); ok {
				emit(rule.typ, src)
			}
		})
	}

	// Google Fonts links count as fonts in addition to any stylesheet entry.
	parsed.Find("link").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && strings.Contains(href, googleFontsHost) {
			emit(Fonts, href)
		}
	})

	// Best effort: inline scripts that mention Worker allow same-origin workers.
	// The worker script location itself is not resolved.
	parsed.Find("script").Each(func(_ int, s *goquery.Selection) {
		typ, ok := s.Attr("type")
		if !ok || typ != inlineScriptMIME {
			return
		}
		if strings.Contains(s.Text(), workerMarker) {
			out.References = append(out.References, Reference{
				Type:   Worker,
				Source: workerSource,
				Local:  true,
				File:   filePath,
			})
		}
	})

	return out, nil
}
