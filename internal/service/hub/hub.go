package hub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jgivc/giblets/internal/adapter/manifestadapter"
	"github.com/jgivc/giblets/internal/common"
	"github.com/jgivc/giblets/internal/entity"
	"github.com/jgivc/giblets/internal/repository/cache"
	"github.com/jgivc/giblets/internal/worker"
)

const (
	serviceName = "hub"
)

type Fetcher interface {
	Fetch(ctx context.Context, req cache.Request) (*cache.Response, error)
}

type Materializer interface {
	Materialize(ctx context.Context, descriptors []*entity.Descriptor) ([]entity.FileResult, []error)
}

type Runner interface {
	Run(ctx context.Context, tasks []worker.Task) []worker.Result
}

type Options struct {
	OutputBase string
	Adapt      bool
}

type hubService struct {
	fetcher Fetcher
	files   Materializer
	pool    Runner
	log     *slog.Logger
}

func NewHubService(fetcher Fetcher, files Materializer, pool Runner, log *slog.Logger) *hubService {
	return &hubService{
		fetcher: fetcher,
		files:   files,
		pool:    pool,
		log:     log.With(slog.String("service", serviceName)),
	}
}

// Process resolves every giblethub entry, fetching its giblet.json when the entry
// declares no files, then materializes the files of every resolved package.
// A failing entry is reported without stopping the others.
func (s *hubService) Process(ctx context.Context, entries []entity.RawEntry, opts Options) *entity.Report {
	defaults := manifestadapter.RunDefaults{Adapt: opts.Adapt, OutputBase: opts.OutputBase}
	report := &entity.Report{}

	descriptors := make([]*entity.Descriptor, len(entries))
	tasks := make([]worker.Task, len(entries))
	for i, entry := range entries {
		i, entry := i, entry
		tasks[i] = worker.Task{
			Name: entry.String(),
			Run: func(ctx context.Context) error {
				d, err := s.resolve(ctx, entry, defaults)
				if err != nil {
					return err
				}
				descriptors[i] = d

				return nil
			},
		}
	}

	for i, res := range s.pool.Run(ctx, tasks) {
		if res.Err != nil {
			s.log.Error("Cannot resolve giblet", slog.String("entry", res.Name), slog.Any("error", res.Err))
			report.Errors = append(report.Errors, common.NewTaskError(res.Name, "", common.OpResolve, res.Err))

			continue
		}

		report.Packages = append(report.Packages, descriptors[i])
	}

	s.log.Info("Resolved giblets", slog.Int("count", len(report.Packages)), slog.Int("failed", len(report.Errors)))

	files, errs := s.files.Materialize(ctx, report.Packages)
	report.Files = files
	report.Errors = append(report.Errors, errs...)

	return report
}

func (s *hubService) resolve(ctx context.Context, entry entity.RawEntry, defaults manifestadapter.RunDefaults) (*entity.Descriptor, error) {
	d, partial, err := manifestadapter.Normalize(entry, defaults)
	if err != nil {
		return nil, err
	}

	if d != nil {
		return d, nil
	}

	// Locate giblet.json with what the entry already knows.
	located, err := manifestadapter.Finalize(partial, defaults)
	if err != nil {
		return nil, err
	}

	resp, err := s.fetcher.Fetch(ctx, cache.Request{Descriptor: located, Source: entity.GibletFileName})
	if err != nil {
		return nil, fmt.Errorf("cannot get %s: %w", entity.GibletFileName, err)
	}

	remote, err := manifestadapter.DecodeGibletFile(resp.Data)
	if err != nil {
		return nil, err
	}

	return manifestadapter.Finalize(manifestadapter.Merge(partial, remote), defaults)
}
