package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jgivc/giblets/internal/common"
	"github.com/jgivc/giblets/internal/entity"
)

type FileStore interface {
	Read(path string) ([]byte, error)
	Write(path string, data []byte) error
}

type Transport interface {
	Fetch(ctx context.Context, remotePath string) ([]byte, error)
}

// Request describes one file of a package to fetch.
type Request struct {
	Descriptor *entity.Descriptor
	Source     string                       // Path below the descriptor's SubPath
	Target     string                       // Cache and output name, Source when empty
	Output     string                       // When set, the result is also written here
	Transform  func([]byte) ([]byte, error) // Applied to the bytes written to Output
}

type Response struct {
	Data      []byte // Content written to Output, the cached bytes without one
	Cached    bool   // Served from the local cache
	CachePath string
}

type cacheRepository struct {
	store     FileStore
	transport Transport
	cacheDir  string
	log       *slog.Logger
}

func NewCacheRepository(store FileStore, transport Transport, cacheDir string, log *slog.Logger) *cacheRepository {
	return &cacheRepository{
		store:     store,
		transport: transport,
		cacheDir:  cacheDir,
		log:       log.With(slog.String("item", "CacheRepository")),
	}
}

// Path returns the cache location of a package file: cacheDir/name/version/target.
func (r *cacheRepository) Path(d *entity.Descriptor, target string) string {
	return filepath.Join(r.cacheDir, d.Name, d.Version, filepath.FromSlash(target))
}

// Fetch returns the file from the cache, or downloads and caches it on a miss.
// A cached file is never revalidated.
func (r *cacheRepository) Fetch(ctx context.Context, req Request) (*Response, error) {
	d := req.Descriptor
	target := req.Target
	if target == "" {
		target = req.Source
	}

	resp := &Response{CachePath: r.Path(d, target)}
	log := r.log.With(slog.String("package", d.Name), slog.String("file", target))

	data, err := r.store.Read(resp.CachePath)
	switch {
	case err == nil:
		resp.Cached = true
		log.Debug("Cache hit", slog.String("path", resp.CachePath))
	case errors.Is(err, common.ErrFileNotFound):
		remotePath := d.RemotePath(req.Source)

		data, err = r.transport.Fetch(ctx, remotePath)
		if err != nil {
			return nil, fmt.Errorf("cannot fetch %s: %w", remotePath, err)
		}

		if err := r.store.Write(resp.CachePath, data); err != nil {
			return nil, fmt.Errorf("cannot cache %s: %w", remotePath, err)
		}

		log.Info("retrieved " + remotePath)
	default:
		return nil, fmt.Errorf("cannot read cache: %w", err)
	}

	if req.Transform != nil {
		if data, err = req.Transform(data); err != nil {
			return nil, fmt.Errorf("cannot transform %s: %w", target, err)
		}
	}

	if req.Output != "" {
		if err := r.store.Write(req.Output, data); err != nil {
			return nil, err
		}
	}

	resp.Data = data

	return resp, nil
}
