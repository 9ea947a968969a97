package reportadapter

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	_ "embed"

	"github.com/jgivc/giblets/internal/entity"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/frontmatter"

	texttemplate "text/template"
)

const (
	defaultTitle = "Giblets"
)

var (
	//go:embed templates/report.md
	defaultReportContent []byte

	//go:embed templates/page.html
	defaultPageContent []byte
)

type FileReader interface {
	Read(path string) ([]byte, error)
}

type Frontmatter struct {
	Title string `yaml:"title"`
}

type PageContext struct {
	Title       string
	Failed      bool
	ContentHTML template.HTML
}

type ReportContext struct {
	RunID       string
	Environment string
	StartedAt   string
	FileCount   int
	CacheHits   int
	Packages    []PackageRow
	Errors      []string
}

type PackageRow struct {
	Name    string
	Repo    string
	Version string
	Kind    entity.Kind
	Files   int
}

type reportAdapter struct {
	md     goldmark.Markdown
	report *texttemplate.Template
	page   *template.Template
	log    *slog.Logger
}

// NewReportAdapter builds the renderer. templateFileName, when set, replaces the
// embedded markdown report template and is read through reader.
func NewReportAdapter(reader FileReader, templateFileName string, log *slog.Logger) (*reportAdapter, error) {
	content := defaultReportContent
	if templateFileName != "" {
		data, err := reader.Read(templateFileName)
		if err != nil {
			return nil, fmt.Errorf("cannot read report template: %w", err)
		}
		content = data
	}

	report, err := texttemplate.New("report").Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("cannot parse report template: %w", err)
	}

	page, err := template.New("page").Parse(string(defaultPageContent))
	if err != nil {
		return nil, fmt.Errorf("cannot parse page template: %w", err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			&frontmatter.Extender{},
		),
		goldmark.WithRendererOptions(
			html.WithXHTML(),
		),
	)

	return &reportAdapter{
		md:     md,
		report: report,
		page:   page,
		log:    log.With(slog.String("item", "ReportAdapter")),
	}, nil
}

// Render returns the HTML page describing a run.
func (a *reportAdapter) Render(report *entity.Report) ([]byte, error) {
	var mdBuf bytes.Buffer
	if err := a.report.Execute(&mdBuf, newReportContext(report)); err != nil {
		return nil, fmt.Errorf("cannot execute report template: %w", err)
	}

	pc := parser.NewContext()

	var buf bytes.Buffer
	if err := a.md.Convert(mdBuf.Bytes(), &buf, parser.WithContext(pc)); err != nil {
		return nil, fmt.Errorf("cannot convert markdown: %w", err)
	}

	fm := Frontmatter{Title: defaultTitle}
	if data := frontmatter.Get(pc); data != nil {
		if err := data.Decode(&fm); err != nil {
			return nil, fmt.Errorf("cannot decode frontmatter: %w", err)
		}
	}

	var page bytes.Buffer
	if err := a.page.Execute(&page, &PageContext{
		Title:       fm.Title,
		Failed:      report.Failed(),
		ContentHTML: template.HTML(buf.String()),
	}); err != nil {
		return nil, fmt.Errorf("cannot build page: %w", err)
	}

	a.log.Debug("Render report", slog.String("run_id", report.RunID), slog.Int("size", page.Len()))

	return page.Bytes(), nil
}

func newReportContext(report *entity.Report) *ReportContext {
	counts := make(map[string]int)
	for _, f := range report.Files {
		counts[f.Package]++
	}

	rc := &ReportContext{
		RunID:       report.RunID,
		Environment: report.Environment,
		FileCount:   len(report.Files),
		CacheHits:   report.CacheHits(),
		Packages:    make([]PackageRow, 0, len(report.Packages)),
	}

	if !report.StartedAt.IsZero() {
		rc.StartedAt = report.StartedAt.UTC().Format(time.RFC3339)
	}

	for _, d := range report.Packages {
		rc.Packages = append(rc.Packages, PackageRow{
			Name:    d.Name,
			Repo:    d.FullRepo(),
			Version: d.Version,
			Kind:    d.Kind,
			Files:   counts[d.Name],
		})
	}

	for _, err := range report.Errors {
		rc.Errors = append(rc.Errors, err.Error())
	}

	return rc
}
