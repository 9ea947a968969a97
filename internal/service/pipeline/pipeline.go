package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/jgivc/giblets/internal/adapter/manifestadapter"
	"github.com/jgivc/giblets/internal/common"
	"github.com/jgivc/giblets/internal/entity"
	"github.com/jgivc/giblets/internal/service/component"
	"github.com/jgivc/giblets/internal/service/hub"
)

const (
	serviceName = "pipeline"
)

type FileStore interface {
	Read(path string) ([]byte, error)
	Write(path string, data []byte) error
}

type HubProcessor interface {
	Process(ctx context.Context, entries []entity.RawEntry, opts hub.Options) *entity.Report
}

type ComponentProcessor interface {
	Process(ctx context.Context, components map[string]entity.ComponentVersion, opts component.Options) *entity.Report
}

type Ledger interface {
	Save(ctx context.Context, report *entity.Report) error
}

type Reporter interface {
	Render(report *entity.Report) ([]byte, error)
}

// RunConfig is the per-run input of the orchestrator.
type RunConfig struct {
	RunID          string
	Environment    string
	Adapt          bool
	OutputDir      string
	ManifestPath   string
	ManifestInline entity.Manifest // Used instead of ManifestPath when set
}

type Option func(*pipelineService)

// WithLedger records every successful run.
func WithLedger(ledger Ledger) Option {
	return func(s *pipelineService) {
		s.ledger = ledger
	}
}

// WithReporter renders a report of every run to reportPath.
func WithReporter(reporter Reporter, reportPath string) Option {
	return func(s *pipelineService) {
		s.reporter = reporter
		s.reportPath = reportPath
	}
}

type pipelineService struct {
	store      FileStore
	hubs       HubProcessor
	components ComponentProcessor
	ledger     Ledger
	reporter   Reporter
	reportPath string
	log        *slog.Logger
}

func NewPipelineService(store FileStore, hubs HubProcessor, components ComponentProcessor, log *slog.Logger, opts ...Option) *pipelineService {
	s := &pipelineService{
		store:      store,
		hubs:       hubs,
		components: components,
		log:        log.With(slog.String("service", serviceName)),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run materializes the dependencies of cfg.Environment. Giblethub entries and
// components are processed concurrently; the returned report is complete even when
// the error is not nil.
func (s *pipelineService) Run(ctx context.Context, cfg RunConfig) (*entity.Report, error) {
	env := cfg.Environment
	if env == "" {
		env = entity.DefaultEnvironment
	}

	log := s.log.With(slog.String("run_id", cfg.RunID), slog.String("environment", env))

	report := &entity.Report{
		RunID:       cfg.RunID,
		Environment: env,
		StartedAt:   time.Now(),
	}

	manifest := cfg.ManifestInline
	if manifest == nil {
		m, err := manifestadapter.LoadManifest(s.store, cfg.ManifestPath)
		if err != nil {
			return report, err
		}
		manifest = m
	}

	set := manifestadapter.DependencySet(manifest, env)
	log.Info("Start", slog.Int("giblets", len(set.Giblethub)), slog.Int("components", len(set.Component)))

	var (
		wg                    sync.WaitGroup
		hubReport, compReport *entity.Report
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		hubReport = s.hubs.Process(ctx, set.Giblethub, hub.Options{OutputBase: cfg.OutputDir, Adapt: cfg.Adapt})
	}()
	go func() {
		defer wg.Done()
		compReport = s.components.Process(ctx, set.Component, component.Options{OutputBase: cfg.OutputDir})
	}()
	wg.Wait()

	report.Merge(hubReport)
	report.Merge(compReport)

	if s.reporter != nil {
		if err := s.writeReport(report); err != nil {
			log.Error("Cannot write report", slog.Any("error", err))
		}
	}

	if report.Failed() {
		log.Error("Run failed", slog.Int("files", len(report.Files)), slog.Int("failed", len(report.Errors)))

		return report, fmt.Errorf("%w: %w", common.ErrRunFailed, report.Err())
	}

	if s.ledger != nil {
		if err := s.ledger.Save(ctx, report); err != nil {
			return report, fmt.Errorf("cannot save ledger: %w", err)
		}
	}

	log.Info("Done", slog.Int("packages", len(report.Packages)), slog.Int("files", len(report.Files)),
		slog.Int("cached", report.CacheHits()), slog.Duration("took", time.Since(report.StartedAt)))

	return report, nil
}

func (s *pipelineService) writeReport(report *entity.Report) error {
	page, err := s.reporter.Render(report)
	if err != nil {
		return err
	}

	return s.store.Write(filepath.Clean(s.reportPath), page)
}
