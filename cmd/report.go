package cmd

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/spf13/cobra"

	cspapp "github.com/khanhnv2901/cspgen/internal/application/csp"
	"github.com/khanhnv2901/cspgen/internal/domain/snapshot"
	"github.com/khanhnv2901/cspgen/internal/policy"
	"github.com/khanhnv2901/cspgen/internal/resource"
)

const markdownTemplatePath = "templates/report.md"

//go:embed templates/report.md
var reportTemplateFS embed.FS

var (
	markdownTemplateFuncs = template.FuncMap{
		"origin": originLabel,
		"mdcode": escapeMarkdownCell,
	}

	markdownReportTemplate = template.Must(
		template.New("report.md").Funcs(markdownTemplateFuncs).ParseFS(reportTemplateFS, markdownTemplatePath),
	)
)

var reportCmd = &cobra.Command{
	Use:   "report [dir]",
	Short: "Write a resource inventory report (markdown, JSON or PDF)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		format = strings.ToLower(format)
		if format != "json" && format != "md" && format != "pdf" {
			return fmt.Errorf("invalid format: %s (must be json, md, or pdf)", format)
		}

		snap, err := loadSnapshot(cmd, appCtx, args)
		if err != nil {
			return err
		}

		gen, err := appCtx.Services.CSPService.Generate(snap.Collection(), cspapp.GenerateRequest{Selection: policy.SelectLocal})
		if err != nil {
			return err
		}
		scanID, _ := cmd.Flags().GetString("scan-id")
		data := buildReportData(snap, gen, scanID != "")

		var content []byte
		switch format {
		case "json":
			content, err = generateJSONReport(data)
		case "md":
			content, err = generateMarkdownReport(data)
		case "pdf":
			content, err = generatePDFReportBytes(data)
		}
		if err != nil {
			return fmt.Errorf("failed to generate %s report: %w", format, err)
		}

		if output == "" {
			if format == "pdf" {
				return fmt.Errorf("--output is required for pdf reports")
			}
			_, err = cmd.OutOrStdout().Write(content)
			return err
		}

		path, err := resolveOutputPath(appCtx.Fs, output, "csp-report."+format)
		if err != nil {
			return err
		}
		if err := writeOutputFile(appCtx.Fs, path, content); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Report written to %s\n", colorSuccess("✓"), path)
		return nil
	},
}

// ReportData is the format-independent content of a report.
type ReportData struct {
	ScanID      string               `json:"scan_id,omitempty"`
	Root        string               `json:"root"`
	Host        string               `json:"host,omitempty"`
	ScannedAt   string               `json:"scanned_at"`
	GeneratedAt string               `json:"generated_at"`
	Stats       resource.Stats       `json:"stats"`
	Sections    []ReportSection      `json:"sections"`
	Policy      string               `json:"suggested_policy"`
	Lint        policy.Analysis      `json:"lint"`
	Errors      []resource.FileError `json:"errors,omitempty"`
}

// ReportSection lists the references of one resource type.
type ReportSection struct {
	Type      string               `json:"type"`
	Directive string               `json:"directive"`
	Local     int                  `json:"local"`
	External  int                  `json:"external"`
	Refs      []resource.Reference `json:"references"`
}

func buildReportData(snap *snapshot.Snapshot, gen *cspapp.Generated, stored bool) ReportData {
	c := snap.Collection()
	sections := make([]ReportSection, 0, len(resource.AllTypes()))
	for _, t := range resource.AllTypes() {
		section := ReportSection{
			Type:      t.String(),
			Directive: t.Directive(),
			Refs:      append([]resource.Reference{}, c.Refs(t)...),
		}
		for _, ref := range section.Refs {
			if ref.Local {
				section.Local++
			} else {
				section.External++
			}
		}
		sections = append(sections, section)
	}

	data := ReportData{
		Root:        snap.Root(),
		Host:        snap.Host(),
		ScannedAt:   snap.CreatedAt().Format(time.RFC3339),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Stats:       snap.Stats(),
		Sections:    sections,
		Policy:      gen.Text,
		Lint:        gen.Lint,
		Errors:      snap.Stats().Errors,
	}
	if stored {
		data.ScanID = snap.ID()
	}
	return data
}

func generateJSONReport(data ReportData) ([]byte, error) {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(content, '\n'), nil
}

func generateMarkdownReport(data ReportData) ([]byte, error) {
	var buf bytes.Buffer
	if err := markdownReportTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func generatePDFReportBytes(data ReportData) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	// Title
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "CSP Resource Report", "", 1, "C", false, 0, "")
	pdf.Ln(5)

	// Metadata
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, tr("Directory: "+data.Root), "", 1, "", false, 0, "")
	if data.Host != "" {
		pdf.CellFormat(0, 6, tr("Host: "+data.Host), "", 1, "", false, 0, "")
	}
	if data.ScanID != "" {
		pdf.CellFormat(0, 6, "Scan ID: "+data.ScanID, "", 1, "", false, 0, "")
	}
	pdf.CellFormat(0, 6, "Scanned: "+data.ScannedAt, "", 1, "", false, 0, "")
	pdf.CellFormat(0, 6, "Generated: "+data.GeneratedAt, "", 1, "", false, 0, "")
	pdf.Ln(5)

	// Summary
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Summary", "", 1, "", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("HTML files: %d | Parsed: %d | Skipped: %d | References: %d",
		data.Stats.HTMLFiles, data.Stats.FilesParsed, data.Stats.Skipped(), data.Stats.References), "", 1, "", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(50, 6, "Type", "1", 0, "", true, 0, "")
	pdf.CellFormat(50, 6, "Directive", "1", 0, "", true, 0, "")
	pdf.CellFormat(30, 6, "Local", "1", 0, "R", true, 0, "")
	pdf.CellFormat(30, 6, "External", "1", 1, "R", true, 0, "")
	pdf.SetFont("Arial", "", 9)
	for _, s := range data.Sections {
		pdf.CellFormat(50, 6, s.Type, "1", 0, "", false, 0, "")
		pdf.CellFormat(50, 6, s.Directive, "1", 0, "", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", s.Local), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", s.External), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(5)

	// Suggested policy
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, fmt.Sprintf("Suggested policy (grade %s, %d/%d)", data.Lint.Grade, data.Lint.Score, data.Lint.MaxScore), "", 1, "", false, 0, "")
	pdf.SetFont("Courier", "", 8)
	pdf.MultiCell(0, 4, tr(data.Policy), "", "", false)
	pdf.SetFont("Arial", "I", 8)
	for _, issue := range data.Lint.Issues {
		pdf.MultiCell(0, 4, tr("  - "+issue), "", "", false)
	}
	pdf.Ln(5)

	// References
	for _, s := range data.Sections {
		if len(s.Refs) == 0 {
			continue
		}
		if pdf.GetY() > 250 {
			pdf.AddPage()
		}
		pdf.SetFont("Arial", "B", 11)
		pdf.SetFillColor(240, 240, 240)
		pdf.CellFormat(0, 7, fmt.Sprintf("%s (%s)", s.Type, s.Directive), "", 1, "", true, 0, "")
		pdf.Ln(1)

		pdf.SetFont("Arial", "", 8)
		for _, ref := range s.Refs {
			if pdf.GetY() > 270 {
				pdf.AddPage()
			}
			pdf.MultiCell(0, 4, tr(fmt.Sprintf("[%s] %s  (%s)", originLabel(ref.Local), ref.Source, ref.File)), "", "", false)
		}
		pdf.Ln(3)
	}

	if len(data.Errors) > 0 {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 7, "Skipped entries", "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 8)
		for _, fe := range data.Errors {
			pdf.MultiCell(0, 4, tr(fmt.Sprintf("%s %s: %s", fe.Kind, fe.Path, fe.Err)), "", "", false)
		}
	}

	// Generate PDF bytes
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}

	return buf.Bytes(), nil
}

func originLabel(local bool) string {
	if local {
		return "local"
	}
	return "external"
}

// escapeMarkdownCell keeps a value inside one table cell and code span.
func escapeMarkdownCell(s string) string {
	return strings.NewReplacer("|", `\|`, "`", "'", "\n", " ", "\r", " ").Replace(s)
}

func init() {
	addSourceFlags(reportCmd)
	reportCmd.Flags().String("format", "md", "report format: md, json or pdf")
	reportCmd.Flags().StringP("output", "O", "", "write the report to this file (required for pdf)")
}
