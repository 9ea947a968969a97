package materialize

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jgivc/giblets/internal/adapter/moduleadapter"
	"github.com/jgivc/giblets/internal/common"
	"github.com/jgivc/giblets/internal/entity"
	"github.com/jgivc/giblets/internal/repository/cache"
	"github.com/jgivc/giblets/internal/worker"
)

const (
	serviceName = "materialize"
)

type Fetcher interface {
	Fetch(ctx context.Context, req cache.Request) (*cache.Response, error)
}

type Runner interface {
	Run(ctx context.Context, tasks []worker.Task) []worker.Result
}

type materializeService struct {
	fetcher Fetcher
	pool    Runner
	log     *slog.Logger
}

func NewMaterializeService(fetcher Fetcher, pool Runner, log *slog.Logger) *materializeService {
	return &materializeService{
		fetcher: fetcher,
		pool:    pool,
		log:     log.With(slog.String("service", serviceName)),
	}
}

// Materialize fetches every file of every descriptor concurrently and writes it to
// OutputBase/name/target. Scripts are adapted when the descriptor asks for it.
func (m *materializeService) Materialize(ctx context.Context, descriptors []*entity.Descriptor) ([]entity.FileResult, []error) {
	type item struct {
		d     *entity.Descriptor
		ref   entity.FileRef
		adapt bool
	}

	var items []item
	for _, d := range descriptors {
		for _, set := range d.FileSets() {
			adapt := set.Category == entity.CategoryScripts && d.Adapt && d.Format != entity.FormatNone
			for _, ref := range set.Refs {
				items = append(items, item{d: d, ref: ref, adapt: adapt})
			}
		}
	}

	// Tasks fill their own slot, so the slice must not grow once tasks exist.
	results := make([]entity.FileResult, len(items))
	tasks := make([]worker.Task, len(items))
	for i, it := range items {
		results[i] = entity.FileResult{
			Package: it.d.Name,
			Version: it.d.Version,
			Source:  it.ref.Source,
			Target:  it.ref.Dest(),
			Output:  OutputPath(it.d, it.ref.Dest()),
		}
		tasks[i] = m.fileTask(it.d, it.ref, it.adapt, &results[i])
	}

	var errs []error
	files := make([]entity.FileResult, 0, len(results))
	for i, res := range m.pool.Run(ctx, tasks) {
		if res.Err != nil {
			errs = append(errs, common.NewTaskError(results[i].Package, results[i].Target, common.OpFetch, res.Err))

			continue
		}

		files = append(files, results[i])
	}

	return files, errs
}

func (m *materializeService) fileTask(d *entity.Descriptor, ref entity.FileRef, adapt bool, result *entity.FileResult) worker.Task {
	req := cache.Request{
		Descriptor: d,
		Source:     ref.Source,
		Target:     ref.Dest(),
		Output:     result.Output,
	}

	if adapt {
		format := d.Format
		req.Transform = func(data []byte) ([]byte, error) {
			return moduleadapter.Adapt(format, data)
		}
	}

	return worker.Task{
		Name: fmt.Sprintf("%s/%s", d.Name, ref.Dest()),
		Run: func(ctx context.Context) error {
			resp, err := m.fetcher.Fetch(ctx, req)
			if err != nil {
				m.log.Error("Cannot materialize file", slog.String("package", d.Name), slog.String("file", ref.Dest()), slog.Any("error", err))

				return err
			}

			result.Size = len(resp.Data)
			result.Cached = resp.Cached

			return nil
		},
	}
}

// OutputPath returns OutputBase/name/target.
func OutputPath(d *entity.Descriptor, target string) string {
	return filepath.Join(d.OutputBase, d.Name, filepath.FromSlash(target))
}
