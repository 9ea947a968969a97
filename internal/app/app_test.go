package app

import (
	"bytes"
	"testing"

	"github.com/jgivc/giblets/internal/entity"
	"github.com/stretchr/testify/require"
)

func TestPrintSummary(t *testing.T) {
	report := &entity.Report{
		Packages: []*entity.Descriptor{
			{
				Name: "widget", Owner: "acme", Repo: "widget", Version: "v1", OutputBase: "/out",
				Scripts: []entity.FileRef{{Source: "index.js"}},
				Styles:  []entity.FileRef{{Source: "widget.css"}},
			},
			{
				Name: "data-grid", Owner: "acme", Repo: "grid", Version: "1.0.0", OutputBase: "/out",
				Files: []entity.FileRef{{Source: "LICENSE"}},
			},
		},
		Files: []entity.FileResult{
			{Package: "widget", Target: "index.js", Cached: true},
			{Package: "widget", Target: "widget.css"},
			{Package: "data-grid", Target: "LICENSE"},
		},
	}

	var buf bytes.Buffer
	printSummary(&buf, report)

	require.Equal(t, "1. acme/widget@v1 -> /out/widget, files: 2\n"+
		"2. acme/grid@1.0.0 -> /out/data-grid, files: 1\n"+
		"Done. files: 3, cached: 1\n", buf.String())
}
