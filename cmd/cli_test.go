package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanhnv2901/cspgen/internal/domain/snapshot"
	"github.com/khanhnv2901/cspgen/internal/policy"
	"github.com/khanhnv2901/cspgen/internal/resource"
	consts "github.com/khanhnv2901/cspgen/internal/shared/constants"
)

// localApacheSnippet is the .htaccess for indexHTML with only local sources approved.
const localApacheSnippet = "# Enable mod_headers\n" +
	"Header always set Content-Security-Policy \"default-src 'self';\n" +
	"script-src 'self' /app.js;\n" +
	"frame-ancestors 'self';\n" +
	"upgrade-insecure-requests;\n" +
	"report-uri /csp-violation-report-endpoint/;\n" +
	"\"\n"

func TestScanCommandListsResources(t *testing.T) {
	root := writeSite(t, map[string]string{"index.html": indexHTML})

	stdout, _, err := runCLI(t, "scan", root, "--host", "mysite.com")
	require.NoError(t, err)

	assert.Contains(t, stdout, "scripts (script-src, 1)")
	assert.Contains(t, stdout, "/app.js")
	assert.Contains(t, stdout, "images (img-src, 1)")
	assert.Contains(t, stdout, "https://cdn.example.com/logo.png")
	assert.Contains(t, stdout, "2 reference(s) in 1 of 1 HTML file(s)")
	assert.NotContains(t, stdout, "Saved scan")
}

func TestScanCommandFilters(t *testing.T) {
	root := writeSite(t, map[string]string{"index.html": indexHTML})

	stdout, _, err := runCLI(t, "scan", root, "--only", "external")
	require.NoError(t, err)
	assert.NotContains(t, stdout, "/app.js")
	assert.Contains(t, stdout, "https://cdn.example.com/logo.png")

	stdout, _, err = runCLI(t, "scan", root, "--type", "scripts")
	require.NoError(t, err)
	assert.Contains(t, stdout, "/app.js")
	assert.NotContains(t, stdout, "logo.png")

	_, _, err = runCLI(t, "scan", root, "--type", "applets")
	assert.Error(t, err)
}

func TestStoredScanLifecycle(t *testing.T) {
	root := writeSite(t, map[string]string{"index.html": indexHTML})

	stdout, _, err := runCLI(t, "scan", root, "--json", "--save", "--host", "mysite.com")
	require.NoError(t, err)

	var scanned scanOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &scanned))
	require.True(t, snapshot.ValidID(scanned.ID), "expected a stored scan ID, got %q", scanned.ID)
	assert.Equal(t, "mysite.com", scanned.Host)
	assert.Equal(t, 2, scanned.Stats.References)

	stdout, _, err = runCLI(t, "scans", "list", "--json")
	require.NoError(t, err)
	var summaries []snapshot.Summary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summaries))
	require.Len(t, summaries, 1)
	assert.Equal(t, scanned.ID, summaries[0].ID)
	assert.Equal(t, 2, summaries[0].References)

	stdout, _, err = runCLI(t, "generate", "--scan-id", scanned.ID, "--dialect", "nginx")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, `add_header Content-Security-Policy "default-src 'self'; script-src 'self' /app.js;`), stdout)
	assert.True(t, strings.HasSuffix(stdout, "\" always;\n"), stdout)

	stdout, _, err = runCLI(t, "scans", "delete", scanned.ID)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Deleted scan "+scanned.ID)

	_, _, err = runCLI(t, "generate", "--scan-id", scanned.ID)
	var notFound *ScanNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, scanned.ID, notFound.ID)

	stdout, _, err = runCLI(t, "scans", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No stored scans")
}

func TestGenerateApacheSnippet(t *testing.T) {
	root := writeSite(t, map[string]string{"index.html": indexHTML})

	stdout, _, err := runCLI(t, "generate", root, "--host", "mysite.com")
	require.NoError(t, err)

	assert.Equal(t, localApacheSnippet, stdout)
}

func TestGenerateWritesToDirectory(t *testing.T) {
	root := writeSite(t, map[string]string{"index.html": indexHTML})
	outDir := t.TempDir()

	stdout, stderr, err := runCLI(t, "generate", root, "--dialect", "nginx", "--output", outDir)
	require.NoError(t, err)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Wrote nginx snippet")

	data, err := os.ReadFile(filepath.Join(outDir, "csp.conf"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "add_header Content-Security-Policy "))
}

func TestGenerateWithAllowFile(t *testing.T) {
	root := writeSite(t, map[string]string{"index.html": indexHTML})
	allowFile := filepath.Join(t.TempDir(), "allow.yaml")
	require.NoError(t, os.WriteFile(allowFile, []byte("images:\n  - https://cdn.example.com/logo.png\n"), consts.DefaultFilePerm))

	stdout, _, err := runCLI(t, "generate", root, "--allow-file", allowFile, "--dialect", "nginx")
	require.NoError(t, err)
	assert.Contains(t, stdout, "https://cdn.example.com/logo.png")
	assert.NotContains(t, stdout, "/app.js")
}

func TestGenerateJSONIncludesLint(t *testing.T) {
	root := writeSite(t, map[string]string{"index.html": indexHTML})

	stdout, _, err := runCLI(t, "generate", root, "--json", "--dialect", "meta")
	require.NoError(t, err)

	var out struct {
		Policy  string `json:"policy"`
		Snippet struct {
			Dialect  string `json:"dialect"`
			Filename string `json:"filename"`
			Content  string `json:"content"`
		} `json:"snippet"`
		Lint struct {
			Grade string `json:"grade"`
		} `json:"lint"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "meta", out.Snippet.Dialect)
	assert.Equal(t, "csp-meta.html", out.Snippet.Filename)
	assert.Contains(t, out.Snippet.Content, `<meta http-equiv="Content-Security-Policy"`)
	assert.NotContains(t, out.Snippet.Content, "report-uri")
	assert.NotEmpty(t, out.Lint.Grade)
	assert.Contains(t, out.Policy, "script-src 'self' /app.js;")
}

func TestGenerateRequiresSource(t *testing.T) {
	root := writeSite(t, map[string]string{"index.html": indexHTML})

	_, _, err := runCLI(t, "generate")
	var srcErr *SourceArgumentError
	require.ErrorAs(t, err, &srcErr)
	assert.False(t, srcErr.Both)

	_, _, err = runCLI(t, "generate", root, "--scan-id", "2b0c3a4e-8d5f-4c1a-9e7b-1f2a3b4c5d6e")
	require.ErrorAs(t, err, &srcErr)
	assert.True(t, srcErr.Both)

	_, _, err = runCLI(t, "generate", "--scan-id", "../etc/passwd")
	assert.Error(t, err)
}

func TestGenerateRejectsUnknownDialect(t *testing.T) {
	root := writeSite(t, map[string]string{"index.html": indexHTML})

	_, _, err := runCLI(t, "generate", root, "--dialect", "iis")
	assert.Error(t, err)
}

func TestSelectCommandWritesSnippetAndAllowList(t *testing.T) {
	root := writeSite(t, map[string]string{"index.html": indexHTML})
	workdir := t.TempDir()
	t.Chdir(workdir)

	// Enter confirms the preselected local sources.
	_, stderr, err := runCLIWithInput(t, strings.NewReader("\r"),
		"select", root, "--host", "mysite.com", "--save-allow", "allow.yaml")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Saved allow-list to allow.yaml")

	snippet, err := os.ReadFile(filepath.Join(workdir, ".htaccess"))
	require.NoError(t, err)
	assert.Equal(t, localApacheSnippet, string(snippet))

	allow, err := policy.LoadAllowList(afero.NewOsFs(), filepath.Join(workdir, "allow.yaml"))
	require.NoError(t, err)
	assert.True(t, allow.Contains(resource.Scripts, "/app.js"))
	assert.False(t, allow.Contains(resource.Images, "https://cdn.example.com/logo.png"))
	assert.True(t, allow.Reviewed(resource.Images))

	// The saved allow-list reproduces the same policy through generate.
	stdout, _, err := runCLI(t, "generate", root, "--host", "mysite.com", "--allow-file", filepath.Join(workdir, "allow.yaml"))
	require.NoError(t, err)
	assert.Equal(t, localApacheSnippet, stdout)
}

func TestSelectCommandCancelWritesNothing(t *testing.T) {
	root := writeSite(t, map[string]string{"index.html": indexHTML})
	workdir := t.TempDir()
	t.Chdir(workdir)

	_, stderr, err := runCLIWithInput(t, strings.NewReader("q"), "select", root, "--save-allow", "allow.yaml")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Selection cancelled")

	entries, err := os.ReadDir(workdir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSelectCommandRejectsEmptyScan(t *testing.T) {
	root := writeSite(t, map[string]string{"index.html": "<p>no resources</p>"})

	_, _, err := runCLIWithInput(t, strings.NewReader("\r"), "select", root)
	assert.ErrorContains(t, err, "no resources found")
}

func TestLintCommand(t *testing.T) {
	stdout, _, err := runCLI(t, "lint", "default-src *; script-src 'unsafe-inline'")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Grade:")

	snippet := filepath.Join(t.TempDir(), "csp.conf")
	require.NoError(t, os.WriteFile(snippet,
		[]byte("add_header Content-Security-Policy \"default-src 'self'; object-src 'none'\" always;\n"), consts.DefaultFilePerm))

	stdout, _, err = runCLI(t, "lint", "--file", snippet, "--json")
	require.NoError(t, err)
	var analysis struct {
		Grade      string              `json:"grade"`
		Directives map[string][]string `json:"directives"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &analysis))
	assert.Equal(t, []string{"'self'"}, analysis.Directives["default-src"])
	assert.Equal(t, []string{"'none'"}, analysis.Directives["object-src"])

	_, _, err = runCLI(t, "lint")
	assert.Error(t, err)
}

func TestReportCommandFormats(t *testing.T) {
	root := writeSite(t, map[string]string{"index.html": indexHTML})

	stdout, _, err := runCLI(t, "report", root)
	require.NoError(t, err)
	assert.Contains(t, stdout, "# CSP Resource Report")
	assert.Contains(t, stdout, "## scripts (`script-src`)")
	assert.Contains(t, stdout, "| external | `https://cdn.example.com/logo.png` |")

	stdout, _, err = runCLI(t, "report", root, "--format", "json")
	require.NoError(t, err)
	var data ReportData
	require.NoError(t, json.Unmarshal([]byte(stdout), &data))
	assert.Equal(t, 2, data.Stats.References)
	assert.Contains(t, data.Policy, "/app.js")

	_, _, err = runCLI(t, "report", root, "--format", "pdf")
	assert.Error(t, err, "pdf without --output should fail")

	outDir := t.TempDir()
	_, _, err = runCLI(t, "report", root, "--format", "pdf", "--output", outDir)
	require.NoError(t, err)
	pdf, err := os.ReadFile(filepath.Join(outDir, "csp-report.pdf"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdf), "%PDF"))

	_, _, err = runCLI(t, "report", root, "--format", "html")
	assert.Error(t, err)
}

func TestViolationsListEmpty(t *testing.T) {
	stdout, _, err := runCLI(t, "violations", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No violation reports received.")

	_, _, err = runCLI(t, "violations", "list", "--limit", "0")
	assert.Error(t, err)
}

func TestConfigFileSetsDefaults(t *testing.T) {
	root := writeSite(t, map[string]string{"index.html": indexHTML})
	cfg := filepath.Join(t.TempDir(), "cspgen.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("policy:\n  dialect: meta\n"), consts.DefaultFilePerm))

	stdout, _, err := runCLI(t, "generate", root, "--config", cfg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, `<meta http-equiv="Content-Security-Policy"`), stdout)

	stdout, _, err = runCLI(t, "generate", root, "--config", cfg, "--dialect", "nginx")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "add_header"), stdout)
}

func TestConfigFileMissing(t *testing.T) {
	_, _, err := runCLI(t, "version", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "cspgen version "+Version+"\n", stdout)

	stdout, _, err = runCLI(t, "version", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Go Version:")

	stdout, _, err = runCLI(t, "version", "--json")
	require.NoError(t, err)
	var info buildInfo
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.Platform)
}
