package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/jgivc/giblets/internal/adapter/moduleadapter"
	"github.com/jgivc/giblets/internal/adapter/reportadapter"
	"github.com/jgivc/giblets/internal/common"
	"github.com/jgivc/giblets/internal/entity"
	"github.com/jgivc/giblets/internal/repository/cache"
	"github.com/jgivc/giblets/internal/service/component"
	"github.com/jgivc/giblets/internal/service/hub"
	"github.com/jgivc/giblets/internal/service/materialize"
	"github.com/jgivc/giblets/internal/storage/filestore"
	"github.com/jgivc/giblets/internal/transport/rawhttp"
	"github.com/jgivc/giblets/internal/worker"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	cacheDir  = "/cache"
	outputDir = "/out"
)

const gridScript = `var $ = require('jquery');
module.exports = function grid() { return $; };`

var remoteFiles = map[string]string{
	"/acme/widget/v1/giblet.json":     `{"scripts": ["index.js"]}`,
	"/acme/widget/v1/index.js":        `window.widget = 1;`,
	"/acme/lib/2.0/giblet.json":       `{"type": "cjs", "scripts": ["lib.js"]}`,
	"/acme/lib/2.0/lib.js":            `var a = require('a'); module.exports = a;`,
	"/acme/grid/1.0.0/component.json": `{"name": "grid", "main": "grid.js", "scripts": ["grid.js"], "styles": ["grid.css"], "images": ["img/sort.png"]}`,
	"/acme/grid/1.0.0/grid.js":        gridScript,
	"/acme/grid/1.0.0/grid.css":       `.grid {}`,
	"/acme/grid/1.0.0/img/sort.png":   "PNG",
}

type rawServer struct {
	*httptest.Server

	mu   sync.Mutex
	hits map[string]int
}

func newRawServer(t *testing.T) *rawServer {
	t.Helper()

	s := &rawServer{hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		s.mu.Unlock()

		content, ok := remoteFiles[r.URL.Path]
		if !ok {
			http.NotFound(w, r)

			return
		}
		_, _ = io.WriteString(w, content)
	}))
	t.Cleanup(s.Close)

	return s
}

func (s *rawServer) total(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for p, c := range s.hits {
		if strings.HasPrefix(p, prefix) {
			n += c
		}
	}

	return n
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Save(ctx context.Context, report *entity.Report) error {
	args := m.Called(ctx, report)

	return args.Error(0)
}

type testEnv struct {
	fs     afero.Fs
	store  FileStore
	server *rawServer
	log    *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fs := afero.NewMemMapFs()
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))

	return &testEnv{
		fs:     fs,
		store:  filestore.NewFileStoreWithFS(fs, log),
		server: newRawServer(t),
		log:    log,
	}
}

func (e *testEnv) pipeline(opts ...Option) *pipelineService {
	client := rawhttp.NewClient(e.log, rawhttp.WithBaseURL(e.server.URL), rawhttp.WithHTTPClient(e.server.Client()))
	repo := cache.NewCacheRepository(e.store, client, cacheDir, e.log)
	pool := worker.NewPool(4, e.log)
	files := materialize.NewMaterializeService(repo, pool, e.log)

	return NewPipelineService(
		e.store,
		hub.NewHubService(repo, files, pool, e.log),
		component.NewComponentService(repo, files, pool, e.log),
		e.log,
		opts...,
	)
}

func (e *testEnv) read(t *testing.T, path string) string {
	t.Helper()

	data, err := afero.ReadFile(e.fs, path)
	require.NoError(t, err)

	return string(data)
}

func (e *testEnv) writeManifest(t *testing.T, content string) {
	t.Helper()

	require.NoError(t, afero.WriteFile(e.fs, "/project/giblets.json", []byte(content), 0o644))
}

func TestRunGiblet(t *testing.T) {
	env := newTestEnv(t)
	env.writeManifest(t, `{"development": {"giblethub": ["acme/widget@v1"]}}`)

	report, err := env.pipeline().Run(context.Background(), RunConfig{
		RunID:        "run-1",
		Adapt:        true,
		OutputDir:    outputDir,
		ManifestPath: "/project/giblets.json",
	})
	require.NoError(t, err)

	require.Equal(t, "run-1", report.RunID)
	require.Equal(t, entity.DefaultEnvironment, report.Environment)
	require.Len(t, report.Packages, 1)
	require.Equal(t, "widget", report.Packages[0].Name)
	require.Len(t, report.Files, 1)

	// No module format: the script is copied unchanged.
	require.Equal(t, remoteFiles["/acme/widget/v1/index.js"], env.read(t, "/out/widget/index.js"))
	require.Equal(t, remoteFiles["/acme/widget/v1/index.js"], env.read(t, "/cache/widget/v1/index.js"))
	require.Equal(t, remoteFiles["/acme/widget/v1/giblet.json"], env.read(t, "/cache/widget/v1/giblet.json"))
}

func TestRunComponent(t *testing.T) {
	env := newTestEnv(t)

	report, err := env.pipeline().Run(context.Background(), RunConfig{
		OutputDir: outputDir,
		ManifestInline: entity.Manifest{
			"development": {Component: map[string]entity.ComponentVersion{"acme/grid": {Version: "1.0.0"}}},
		},
	})
	require.NoError(t, err)
	require.Len(t, report.Files, 3)

	expected, err := moduleadapter.Adapt(entity.FormatCJS, []byte(gridScript))
	require.NoError(t, err)

	got := env.read(t, "/out/grid/index.js")
	require.Equal(t, string(expected), got)
	require.Contains(t, got, "import $ from 'jquery';")
	require.True(t, strings.HasSuffix(got, "\nexport default module.exports;"))

	// The cache keeps the raw bytes under the destination name.
	require.Equal(t, gridScript, env.read(t, "/cache/grid/1.0.0/index.js"))
	require.Equal(t, ".grid {}", env.read(t, "/out/grid/grid.css"))
	require.Equal(t, "PNG", env.read(t, "/out/grid/img/sort.png"))

	ok, err := afero.Exists(env.fs, "/out/grid/grid.js")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunAdaptFlag(t *testing.T) {
	tests := []struct {
		name     string
		entry    string
		adapt    bool
		expected func(t *testing.T) string
	}{
		{
			name:  "adapted by run default",
			entry: "acme/lib@2.0",
			adapt: true,
			expected: func(t *testing.T) string {
				data, err := moduleadapter.Adapt(entity.FormatCJS, []byte(remoteFiles["/acme/lib/2.0/lib.js"]))
				require.NoError(t, err)

				return string(data)
			},
		},
		{
			name:  "disabled by entry marker",
			entry: "&acme/lib@2.0",
			adapt: true,
			expected: func(t *testing.T) string {
				return remoteFiles["/acme/lib/2.0/lib.js"]
			},
		},
		{
			name:  "disabled by run default",
			entry: "acme/lib@2.0",
			adapt: false,
			expected: func(t *testing.T) string {
				return remoteFiles["/acme/lib/2.0/lib.js"]
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			_, err := env.pipeline().Run(context.Background(), RunConfig{
				Adapt:     tt.adapt,
				OutputDir: outputDir,
				ManifestInline: entity.Manifest{
					"development": {Giblethub: []entity.RawEntry{{Short: tt.entry}}},
				},
			})
			require.NoError(t, err)
			require.Equal(t, tt.expected(t), env.read(t, "/out/lib/lib.js"))
		})
	}
}

func TestRunInvalidComponentVersion(t *testing.T) {
	env := newTestEnv(t)
	ledger := new(MockLedger)

	report, err := env.pipeline(WithLedger(ledger)).Run(context.Background(), RunConfig{
		OutputDir: outputDir,
		ManifestInline: entity.Manifest{
			"development": {Component: map[string]entity.ComponentVersion{
				"acme/bad":  {Version: "^1.0.0"},
				"acme/grid": {Version: "1.0.0"},
			}},
		},
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, common.ErrRunFailed))
	require.True(t, errors.Is(err, common.ErrInvalidVersion))

	var te *common.TaskError
	require.True(t, errors.As(err, &te))
	require.Equal(t, "acme/bad", te.Package)

	// The invalid pair never reaches the network, its sibling completes.
	require.Zero(t, env.server.total("/acme/bad"))
	require.Len(t, report.Packages, 1)
	require.Equal(t, string(must(moduleadapter.Adapt(entity.FormatCJS, []byte(gridScript)))), env.read(t, "/out/grid/index.js"))

	ledger.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestRunNonStringComponentVersion(t *testing.T) {
	env := newTestEnv(t)
	env.writeManifest(t, `{"development": {
		"giblethub": ["acme/widget@v1"],
		"component": {"acme/bad": null, "acme/worse": 1, "acme/grid": "1.0.0"}
	}}`)

	report, err := env.pipeline().Run(context.Background(), RunConfig{
		OutputDir:    outputDir,
		ManifestPath: "/project/giblets.json",
	})
	require.ErrorIs(t, err, common.ErrRunFailed)
	require.ErrorIs(t, err, common.ErrInvalidVersion)
	require.NotErrorIs(t, err, common.ErrInvalidManifest)

	require.Len(t, report.Errors, 2)
	for _, e := range report.Errors {
		var te *common.TaskError
		require.True(t, errors.As(e, &te))
		require.Contains(t, []string{"acme/bad", "acme/worse"}, te.Package)
	}

	// Both siblings complete.
	require.Len(t, report.Packages, 2)
	require.Equal(t, remoteFiles["/acme/widget/v1/index.js"], env.read(t, "/out/widget/index.js"))
	require.Equal(t, ".grid {}", env.read(t, "/out/grid/grid.css"))
	require.Zero(t, env.server.total("/acme/bad"))
	require.Zero(t, env.server.total("/acme/worse"))
}

func TestRunMissingFile(t *testing.T) {
	env := newTestEnv(t)

	report, err := env.pipeline().Run(context.Background(), RunConfig{
		OutputDir: outputDir,
		ManifestInline: entity.Manifest{
			"development": {Giblethub: []entity.RawEntry{
				{Spec: &entity.GibletSpec{Repo: "acme/widget", Version: "v1", Scripts: []entity.FileRef{{Source: "index.js"}, {Source: "missing.js"}}}},
			}},
		},
	})
	require.True(t, errors.Is(err, common.ErrUnexpectedStatus))
	require.Len(t, report.Files, 1)
	require.Len(t, report.Errors, 1)

	ok, err := afero.Exists(env.fs, "/cache/widget/v1/missing.js")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunCached(t *testing.T) {
	env := newTestEnv(t)
	env.writeManifest(t, `{"development": {"giblethub": ["acme/widget@v1"], "component": {"acme/grid": "1.0.0"}}}`)

	p := env.pipeline()
	cfg := RunConfig{OutputDir: outputDir, ManifestPath: "/project/giblets.json"}

	_, err := p.Run(context.Background(), cfg)
	require.NoError(t, err)
	fetched := env.server.total("/")

	report, err := p.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, fetched, env.server.total("/"))
	require.Equal(t, len(report.Files), report.CacheHits())
}

func TestRunLedgerAndReport(t *testing.T) {
	env := newTestEnv(t)
	ledger := new(MockLedger)
	ledger.On("Save", mock.Anything, mock.AnythingOfType("*entity.Report")).Return(nil).Once()

	reporter, err := reportadapter.NewReportAdapter(nil, "", env.log)
	require.NoError(t, err)

	_, err = env.pipeline(WithLedger(ledger), WithReporter(reporter, "/out/giblets.html")).Run(context.Background(), RunConfig{
		RunID:     "run-2",
		OutputDir: outputDir,
		ManifestInline: entity.Manifest{
			"development": {Giblethub: []entity.RawEntry{{Short: "acme/widget@v1"}}},
		},
	})
	require.NoError(t, err)

	ledger.AssertExpectations(t)
	require.Contains(t, env.read(t, "/out/giblets.html"), "run-2")
}

func TestRunLedgerError(t *testing.T) {
	env := newTestEnv(t)
	ledger := new(MockLedger)
	ledger.On("Save", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

	_, err := env.pipeline(WithLedger(ledger)).Run(context.Background(), RunConfig{
		OutputDir:      outputDir,
		ManifestInline: entity.Manifest{},
	})
	require.ErrorContains(t, err, "connection refused")
}

func TestRunEnvironment(t *testing.T) {
	env := newTestEnv(t)
	env.writeManifest(t, `{"production": {"giblethub": ["acme/widget@v1"]}}`)

	report, err := env.pipeline().Run(context.Background(), RunConfig{
		OutputDir:    outputDir,
		ManifestPath: "/project/giblets.json",
	})
	require.NoError(t, err)
	require.Empty(t, report.Files)
	require.Zero(t, env.server.total("/"))

	report, err = env.pipeline().Run(context.Background(), RunConfig{
		Environment:  "production",
		OutputDir:    outputDir,
		ManifestPath: "/project/giblets.json",
	})
	require.NoError(t, err)
	require.Equal(t, "production", report.Environment)
	require.Len(t, report.Files, 1)
}

func TestRunManifestErrors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.pipeline().Run(context.Background(), RunConfig{ManifestPath: "/project/giblets.json"})
	require.True(t, errors.Is(err, common.ErrFileNotFound))

	env.writeManifest(t, `{"development": `)

	_, err = env.pipeline().Run(context.Background(), RunConfig{ManifestPath: "/project/giblets.json"})
	require.True(t, errors.Is(err, common.ErrInvalidManifest))
}

func must(data []byte, err error) []byte {
	if err != nil {
		panic(err)
	}

	return data
}
