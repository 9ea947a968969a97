package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jgivc/giblets/internal/entity"
	"github.com/jgivc/giblets/internal/util"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v2"
)

const (
	KeyPrefix          = "giblets"
	KeyVersion1        = "v1"
	KeyVersion2        = "v2"
	KeyActiveVersion   = "av"  // STRING.
	KeyRunInfo         = "ri"  // HASH. run_info:ver field: value
	KeyPackageMap      = "pm"  // HASH. package_map:ver name: owner/repo@version
	KeyPackageFilesMap = "pfm" // HASH. package_files_map:ver:name file_id: source\toutput
	KeyFetchStats      = "fs"  // HASH. name: network fetch counter. Survives version switches.

	FieldRunID       = "run_id"
	FieldEnvironment = "environment"
	FieldStartedAt   = "started_at"

	KeyEmpty     = ""
	KeySeparator = ":"
	fileSep      = "\t"

	ScanCount = 1000
)

var (
	ClearableKeys = []string{KeyRunInfo, KeyPackageMap, KeyPackageFilesMap}
)

type ledgerRepository struct {
	ver atomic.Value
	cl  *redis.Client
	log *slog.Logger
}

func NewLedgerRepository(cl *redis.Client, log *slog.Logger) (*ledgerRepository, error) {
	repo := &ledgerRepository{
		cl:  cl,
		log: log.With(slog.String("item", "LedgerRepository")),
	}

	ver, _, err := repo.getVersions(context.Background())
	if err != nil {
		return nil, fmt.Errorf("cannot get active version: %w", err)
	}

	repo.ver.Store(ver)

	return repo, nil
}

// Save writes the packages of a run into the standby version and makes it active.
func (r *ledgerRepository) Save(ctx context.Context, report *entity.Report) error {
	verActive, verStandby, err := r.getVersions(ctx)
	if err != nil {
		r.log.Error("Cannot get standby data version")

		return fmt.Errorf("cannot get active version: %w", err)
	}
	r.log.Info("Save run", slog.String("run_id", report.RunID), slog.String("active_version", verActive), slog.String("standby_version", verStandby))

	if err := r.clearOldData(ctx, verStandby); err != nil {
		r.log.Error("Cannot clear old data", slog.String("version", verStandby), slog.Any("error", err))

		return fmt.Errorf("cannot clear old data: %w", err)
	}

	if err := r.saveNewData(ctx, verStandby, report); err != nil {
		r.log.Error("Cannot save new data", slog.String("version", verStandby), slog.Any("error", err))

		return fmt.Errorf("cannot save new data: %w", err)
	}

	if _, err := r.cl.Set(ctx, getKey(KeyActiveVersion), verStandby, 0).Result(); err != nil {
		r.log.Error("Cannot switch to new version", slog.String("version", verStandby), slog.Any("error", err))

		return fmt.Errorf("cannot switch to new version: %w", err)
	}

	r.ver.Store(verStandby)

	return nil
}

func (r *ledgerRepository) saveNewData(ctx context.Context, ver string, report *entity.Report) error {
	pipe := r.cl.Pipeline()

	pipe.HSet(ctx, getKey(KeyRunInfo, ver),
		FieldRunID, report.RunID,
		FieldEnvironment, report.Environment,
		FieldStartedAt, report.StartedAt.UTC().Format(time.RFC3339),
	)

	for _, d := range report.Packages {
		pipe.HSet(ctx, getKey(KeyPackageMap, ver), d.Name, d.FullRepo()+"@"+d.Version)
	}

	for _, f := range report.Files {
		id := f.Package + "/" + f.Target
		pipe.HSet(ctx, getKey(KeyPackageFilesMap, ver, f.Package), util.GetIDFromString(&id), f.Source+fileSep+f.Output)

		if !f.Cached {
			pipe.HIncrBy(ctx, getKey(KeyFetchStats), f.Package, 1)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cannot exec pipe: %w", err)
	}

	return nil
}

func (r *ledgerRepository) clearOldData(ctx context.Context, ver string) error {
	log := r.log.With(slog.String("op", "clearOldData"), slog.String("version", ver))

	for _, key := range ClearableKeys {
		pattern := getKey(key, ver, "*")

		var (
			cursor       uint64
			deletedCount int64
		)

		for {
			keys, nextCursor, err := r.cl.Scan(ctx, cursor, pattern, ScanCount).Result()
			if err != nil {
				return fmt.Errorf("error scanning keys: %w", err)
			}

			if len(keys) > 0 {
				count, err := r.cl.Del(ctx, keys...).Result()
				if err != nil {
					return fmt.Errorf("error deleting keys: %w", err)
				}
				deletedCount += count
			}

			cursor = nextCursor
			if cursor == 0 {
				break
			}
		}

		if _, err := r.cl.Del(ctx, getKey(key, ver)).Result(); err != nil {
			return fmt.Errorf("error deleting keys: %w", err)
		}

		log.Debug("Clear keys", slog.String("pattern", pattern), slog.Int64("key_count", deletedCount))
	}

	return nil
}

/*
getVersions return active and standby versions
*/
func (r *ledgerRepository) getVersions(ctx context.Context) (string, string, error) {
	ver, err := r.cl.Get(ctx, getKey(KeyActiveVersion)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return KeyEmpty, KeyEmpty, fmt.Errorf("cannot get active version: %w", err)
	}

	if active, standby, ok := versionPair(ver); ok {
		return active, standby, nil
	}

	r.log.Info("Active version key is not found. Try to set new one", slog.String("version", KeyVersion1))

	if _, err = r.cl.Set(ctx, getKey(KeyActiveVersion), KeyVersion1, 0).Result(); err != nil {
		return KeyEmpty, KeyEmpty, fmt.Errorf("cannot set version key: %w", err)
	}

	return KeyVersion1, KeyVersion2, nil
}

func (r *ledgerRepository) getActiveVersion() string {
	return r.ver.Load().(string)
}

// Run returns the run recorded in the active version.
func (r *ledgerRepository) Run(ctx context.Context) (*entity.LedgerRun, error) {
	ver := r.getActiveVersion()

	info, err := r.cl.HGetAll(ctx, getKey(KeyRunInfo, ver)).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get run info: %w", err)
	}

	packages, err := r.cl.HGetAll(ctx, getKey(KeyPackageMap, ver)).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get package map: %w", err)
	}

	stats, err := r.cl.HGetAll(ctx, getKey(KeyFetchStats)).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot get fetch stats: %w", err)
	}

	run := &entity.LedgerRun{
		RunID:       info[FieldRunID],
		Environment: info[FieldEnvironment],
		StartedAt:   info[FieldStartedAt],
		Packages:    make([]entity.LedgerPackage, 0, len(packages)),
	}

	for name, ref := range packages {
		files, err := r.cl.HGetAll(ctx, getKey(KeyPackageFilesMap, ver, name)).Result()
		if err != nil {
			return nil, fmt.Errorf("cannot get package %s files: %w", name, err)
		}

		pkg := parsePackage(name, ref, files)
		if v, ok := stats[name]; ok {
			if pkg.Fetches, err = strconv.ParseInt(v, 10, 64); err != nil {
				r.log.Error("Cannot convert counter value", slog.String("package", name), slog.Any("error", err))
			}
		}

		run.Packages = append(run.Packages, pkg)
	}

	sort.Slice(run.Packages, func(i, j int) bool { return run.Packages[i].Name < run.Packages[j].Name })

	return run, nil
}

// Dump writes the active run as YAML.
func (r *ledgerRepository) Dump(ctx context.Context, w io.Writer) error {
	run, err := r.Run(ctx)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(run)
	if err != nil {
		return fmt.Errorf("cannot marshal ledger: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("cannot write ledger: %w", err)
	}

	return nil
}

func versionPair(ver string) (string, string, bool) {
	switch ver {
	case KeyVersion1:
		return KeyVersion1, KeyVersion2, true
	case KeyVersion2:
		return KeyVersion2, KeyVersion1, true
	}

	return KeyEmpty, KeyEmpty, false
}

// parsePackage builds a package from its "owner/repo@version" reference and file map.
func parsePackage(name, ref string, files map[string]string) entity.LedgerPackage {
	repo, version, _ := strings.Cut(ref, "@")
	pkg := entity.LedgerPackage{
		Name:    name,
		Repo:    repo,
		Version: version,
		Files:   make([]entity.LedgerFile, 0, len(files)),
	}

	for id, value := range files {
		source, output, _ := strings.Cut(value, fileSep)
		pkg.Files = append(pkg.Files, entity.LedgerFile{ID: id, Source: source, Output: output})
	}

	sort.Slice(pkg.Files, func(i, j int) bool { return pkg.Files[i].Output < pkg.Files[j].Output })

	return pkg
}

func getKey(keys ...string) string {
	return strings.Join(append([]string{KeyPrefix}, keys...), KeySeparator)
}
