package reportadapter

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jgivc/giblets/internal/common"
	"github.com/jgivc/giblets/internal/entity"
	"github.com/jgivc/giblets/internal/storage/filestore"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func testReport() *entity.Report {
	return &entity.Report{
		RunID:       "0b7e6c9e-run",
		Environment: "development",
		StartedAt:   time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC),
		Packages: []*entity.Descriptor{
			{Name: "widget", Owner: "acme", Repo: "widget", Version: "v1", Kind: entity.KindHub},
			{Name: "grid", Owner: "acme", Repo: "grid", Version: "2.1.0", Kind: entity.KindComponent},
		},
		Files: []entity.FileResult{
			{Package: "widget", Source: "index.js", Target: "index.js", Cached: true},
			{Package: "grid", Source: "grid.js", Target: "index.js"},
			{Package: "grid", Source: "grid.css", Target: "grid.css"},
		},
	}
}

func TestRenderDefault(t *testing.T) {
	a, err := NewReportAdapter(nil, "", testLogger())
	require.NoError(t, err)

	page, err := a.Render(testReport())
	require.NoError(t, err)

	content := string(page)
	require.Contains(t, content, "<title>Giblets</title>")
	require.Contains(t, content, "<h1>Giblets</h1>")
	require.Contains(t, content, "<table>")
	require.Contains(t, content, "<td>acme/grid</td>")
	require.Contains(t, content, "<td>2.1.0</td>")
	require.Contains(t, content, "3 files materialized, 1 from cache.")
	require.Contains(t, content, "2026-10-18T09:30:00Z")
	require.NotContains(t, content, "Failures")
	require.NotContains(t, content, "title: Giblets")
}

func TestRenderFailures(t *testing.T) {
	a, err := NewReportAdapter(nil, "", testLogger())
	require.NoError(t, err)

	report := testReport()
	report.Errors = append(report.Errors, common.NewTaskError("acme/bad", "", common.OpResolve, common.ErrInvalidVersion))

	page, err := a.Render(report)
	require.NoError(t, err)

	content := string(page)
	require.Contains(t, content, `class="failed"`)
	require.Contains(t, content, "Failures")
	require.Contains(t, content, "resolve acme/bad: unsupported version string")
}

func TestRenderCustomTemplate(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tpl/report.md", []byte(`---
title: Vendor report
---
Packages: {{ len .Packages }}
`), 0o644))

	a, err := NewReportAdapter(filestore.NewFileStoreWithFS(fs, testLogger()), "/tpl/report.md", testLogger())
	require.NoError(t, err)

	page, err := a.Render(testReport())
	require.NoError(t, err)
	require.Contains(t, string(page), "<title>Vendor report</title>")
	require.Contains(t, string(page), "<p>Packages: 2</p>")
}

func TestNewReportAdapterErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/tpl/broken.md", []byte(`{{ .Missing `), 0o644))
	store := filestore.NewFileStoreWithFS(fs, testLogger())

	_, err := NewReportAdapter(store, "/tpl/missing.md", testLogger())
	require.True(t, errors.Is(err, common.ErrFileNotFound))

	_, err = NewReportAdapter(store, "/tpl/broken.md", testLogger())
	require.Error(t, err)
}
