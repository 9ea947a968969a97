package component

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jgivc/giblets/internal/adapter/manifestadapter"
	"github.com/jgivc/giblets/internal/common"
	"github.com/jgivc/giblets/internal/entity"
	"github.com/jgivc/giblets/internal/repository/cache"
	"github.com/jgivc/giblets/internal/worker"
)

const (
	serviceName = "component"
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
}

type componentService struct {
	fetcher Fetcher
	files   Materializer
	pool    Runner
	log     *slog.Logger
}

func NewComponentService(fetcher Fetcher, files Materializer, pool Runner, log *slog.Logger) *componentService {
	return &componentService{
		fetcher: fetcher,
		files:   files,
		pool:    pool,
		log:     log.With(slog.String("service", serviceName)),
	}
}

// Process resolves every "owner/repo": "version" pair through its component.json and
// materializes the resulting packages. Components are always adapted as CommonJS.
func (s *componentService) Process(ctx context.Context, components map[string]entity.ComponentVersion, opts Options) *entity.Report {
	defaults := manifestadapter.RunDefaults{Adapt: true, OutputBase: opts.OutputBase}
	report := &entity.Report{}

	repos := make([]string, 0, len(components))
	for repo := range components {
		repos = append(repos, repo)
	}
	sort.Strings(repos)

	descriptors := make([]*entity.Descriptor, len(repos))
	tasks := make([]worker.Task, len(repos))
	for i, repo := range repos {
		i, repo := i, repo
		version := components[repo]
		tasks[i] = worker.Task{
			Name: repo,
			Run: func(ctx context.Context) error {
				d, err := s.resolve(ctx, repo, version, defaults)
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
			s.log.Error("Cannot resolve component", slog.String("component", res.Name), slog.Any("error", res.Err))
			report.Errors = append(report.Errors, common.NewTaskError(res.Name, "", common.OpResolve, res.Err))

			continue
		}

		report.Packages = append(report.Packages, descriptors[i])
	}

	s.log.Info("Resolved components", slog.Int("count", len(report.Packages)), slog.Int("failed", len(report.Errors)))

	files, errs := s.files.Materialize(ctx, report.Packages)
	report.Files = files
	report.Errors = append(report.Errors, errs...)

	return report
}

func (s *componentService) resolve(ctx context.Context, repo string, version entity.ComponentVersion, defaults manifestadapter.RunDefaults) (*entity.Descriptor, error) {
	d, err := manifestadapter.NewComponentDescriptor(repo, version, defaults)
	if err != nil {
		return nil, err
	}

	resp, err := s.fetcher.Fetch(ctx, cache.Request{Descriptor: d, Source: entity.ComponentFileName})
	if err != nil {
		return nil, fmt.Errorf("cannot get %s: %w", entity.ComponentFileName, err)
	}

	cf, err := manifestadapter.DecodeComponentFile(resp.Data)
	if err != nil {
		return nil, err
	}

	return manifestadapter.MergeComponent(d, cf)
}
