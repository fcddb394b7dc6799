package resource

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	sharedErrors "github.com/khanhnv2901/cspgen/internal/shared/errors"
)

func extractString(t *testing.T, html string) Extraction {
	t.Helper()
	e := &Extractor{Classifier: Classifier{Host: "mysite.com"}}
	out, err := e.Extract(strings.NewReader(html), "/site/index.html")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	return out
}

func refsOfType(refs []Reference, typ Type) []Reference {
	var out []Reference
	for _, r := range refs {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}

func TestExtractElementTable(t *testing.T) {
	html := `<!DOCTYPE html>
<html><head>
<script src="/app.js"></script>
<link rel="stylesheet" href="/style.css">
</head><body>
<img src="https://cdn.example.com/logo.png">
<video><source src="/clip.mp4"></video>
<object data="/movie.swf"></object>
<iframe src="https://player.example.com/embed"></iframe>
</body></html>`

	out := extractString(t, html)

	tests := []struct {
		typ   Type
		src   string
		local bool
	}{
		{Scripts, "/app.js", true},
		{Stylesheets, "/style.css", true},
		{Images, "https://cdn.example.com/logo.png", false},
		{Media, "/clip.mp4", true},
		{Object, "/movie.swf", true},
		{Frame, "https://player.example.com/embed", false},
	}

	if len(out.References) != len(tests) {
		t.Fatalf("expected %d references, got %d: %+v", len(tests), len(out.References), out.References)
	}

	for _, tt := range tests {
		refs := refsOfType(out.References, tt.typ)
		if len(refs) != 1 {
			t.Fatalf("expected one %s reference, got %d", tt.typ, len(refs))
		}
		ref := refs[0]
		if ref.Source != tt.src {
			t.Errorf("%s: expected src %q, got %q", tt.typ, tt.src, ref.Source)
		}
		if ref.Local != tt.local {
			t.Errorf("%s: expected local=%v, got %v", tt.typ, tt.local, ref.Local)
		}
		if ref.File != "/site/index.html" {
			t.Errorf("%s: expected file path to be carried, got %q", tt.typ, ref.File)
		}
	}
}

func TestExtractGoogleFontsStylesheetYieldsTwoReferences(t *testing.T) {
	out := extractString(t, `<link rel="stylesheet" href="fonts.googleapis.com/css">`)

	if len(out.References) != 2 {
		t.Fatalf("expected 2 references, got %d: %+v", len(out.References), out.References)
	}
	styles := refsOfType(out.References, Stylesheets)
	fonts := refsOfType(out.References, Fonts)
	if len(styles) != 1 || len(fonts) != 1 {
		t.Fatalf("expected one stylesheet and one font, got %d and %d", len(styles), len(fonts))
	}
	if styles[0].Source != fonts[0].Source {
		t.Errorf("expected identical sources, got %q and %q", styles[0].Source, fonts[0].Source)
	}
}

func TestExtractGoogleFontsWithoutStylesheetRel(t *testing.T) {
	out := extractString(t, `<link rel="preconnect" href="https://fonts.googleapis.com">`)

	if len(refsOfType(out.References, Stylesheets)) != 0 {
		t.Error("preconnect link must not be a stylesheet")
	}
	fonts := refsOfType(out.References, Fonts)
	if len(fonts) != 1 {
		t.Fatalf("expected one font reference, got %d", len(fonts))
	}
	if fonts[0].Local {
		t.Error("expected Google Fonts host to be external")
	}
}

func TestExtractLinkRelMustBeExactlyStylesheet(t *testing.T) {
	html := `<link rel="icon" href="x.ico">
<link href="/norel.css">
<link rel="Stylesheet" href="/case.css">
<link rel="stylesheet preload" href="/multi.css">`

	out := extractString(t, html)
	if got := refsOfType(out.References, Stylesheets); len(got) != 0 {
		t.Fatalf("expected no stylesheet references, got %+v", got)
	}
}

func TestExtractInlineWorkerScript(t *testing.T) {
	out := extractString(t, `<script type="text/javascript">new Worker('w.js')</script>`)

	workers := refsOfType(out.References, Worker)
	if len(workers) != 1 {
		t.Fatalf("expected one worker reference, got %d", len(workers))
	}
	if workers[0].Source != "self" {
		t.Errorf("expected sentinel source self, got %q", workers[0].Source)
	}
	if !workers[0].Local {
		t.Error("expected worker reference to be local")
	}
	if len(out.References) != 1 {
		t.Errorf("expected no other references, got %+v", out.References)
	}
}

func TestExtractWorkerHeuristicRequiresTypeAttribute(t *testing.T) {
	html := `<script>new Worker('a.js')</script>
<script type="module">new Worker('b.js')</script>
<script type="text/javascript">console.log('no workers here')</script>`

	out := extractString(t, html)
	if got := refsOfType(out.References, Worker); len(got) != 0 {
		t.Fatalf("expected no worker references, got %+v", got)
	}
}

func TestExtractEmptyAttributeStillCounts(t *testing.T) {
	out := extractString(t, `<img src=""><img alt="no src">`)

	images := refsOfType(out.References, Images)
	if len(images) != 1 {
		t.Fatalf("expected one image reference for the empty src, got %d", len(images))
	}
	if !images[0].Local {
		t.Error("empty src has no host and should be local")
	}
}

func TestExtractToleratesMalformedMarkup(t *testing.T) {
	html := `<html><body><div><p>unclosed <script src="/a.js"></script><img src="/b.png"<div></body>`

	out := extractString(t, html)
	if len(refsOfType(out.References, Scripts)) != 1 {
		t.Errorf("expected script to be recovered from malformed markup, got %+v", out.References)
	}
}

func TestExtractRecordsAmbiguousURLs(t *testing.T) {
	out := extractString(t, `<script src="http://[::1"></script>`)

	if len(out.Ambiguous) != 1 {
		t.Fatalf("expected one ambiguous URL, got %d", len(out.Ambiguous))
	}
	scripts := refsOfType(out.References, Scripts)
	if len(scripts) != 1 || scripts[0].Local {
		t.Fatalf("expected one external script reference, got %+v", scripts)
	}
}

func TestExtractReaderFailureIsParseError(t *testing.T) {
	e := &Extractor{}
	out, err := e.Extract(iotest.ErrReader(errors.New("disk gone")), "/broken.html")
	if err == nil {
		t.Fatal("expected error from failing reader")
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if !errors.Is(err, sharedErrors.ErrParseFailed) {
		t.Error("expected error to wrap ErrParseFailed")
	}
	if len(out.References) != 0 {
		t.Errorf("expected no references, got %d", len(out.References))
	}
}
