package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jgivc/giblets/internal/adapter/reportadapter"
	"github.com/jgivc/giblets/internal/config"
	"github.com/jgivc/giblets/internal/entity"
	"github.com/jgivc/giblets/internal/repository/cache"
	"github.com/jgivc/giblets/internal/repository/ledger"
	"github.com/jgivc/giblets/internal/service/component"
	"github.com/jgivc/giblets/internal/service/hub"
	"github.com/jgivc/giblets/internal/service/materialize"
	"github.com/jgivc/giblets/internal/service/pipeline"
	"github.com/jgivc/giblets/internal/storage/filestore"
	"github.com/jgivc/giblets/internal/transport/rawhttp"
	"github.com/jgivc/giblets/internal/worker"
	"github.com/redis/go-redis/v9"
)

const (
	dumpToStdout = "-"
)

var ErrNoLedger = errors.New("ledger is not configured")

// Overrides are command line values taking precedence over the config file.
type Overrides struct {
	ManifestPath string
	OutputDir    string
	Environment  string
	NoAdapt      bool
}

type App struct {
	cfgPath string
	cfg     *config.Config
	log     *slog.Logger
}

func New(cfgPath string) *App {
	return &App{
		cfgPath: cfgPath,
	}
}

func (a *App) init() error {
	if a.cfg != nil {
		return nil
	}

	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	lo := &slog.HandlerOptions{}
	switch a.cfg.LogLevel {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		panic("unknown log level")
	}
	a.log = slog.New(slog.NewTextHandler(os.Stderr, lo))

	return nil
}

// Run materializes the manifest once. The error wraps common.ErrRunFailed when any
// package or file failed.
func (a *App) Run(ctx context.Context, ov Overrides) error {
	if err := a.init(); err != nil {
		return err
	}

	cfg := a.cfg
	runCfg := pipeline.RunConfig{
		RunID:        uuid.NewString(),
		Environment:  cfg.EnvironmentName(),
		Adapt:        cfg.AdaptDefault(),
		OutputDir:    cfg.OutputDir,
		ManifestPath: cfg.ManifestFileName,
	}

	if ov.ManifestPath != "" {
		runCfg.ManifestPath = ov.ManifestPath
	}

	if ov.OutputDir != "" {
		runCfg.OutputDir = ov.OutputDir
	}

	if ov.Environment != "" {
		runCfg.Environment = ov.Environment
	}

	if ov.NoAdapt {
		runCfg.Adapt = false
	}

	log := a.log.With(slog.String("run_id", runCfg.RunID))

	store := filestore.NewFileStore(log)
	client := rawhttp.NewClient(log,
		rawhttp.WithBaseURL(cfg.Fetch.RawBaseURL),
		rawhttp.WithTimeout(cfg.Fetch.Timeout),
		rawhttp.WithUserAgent(cfg.Fetch.UserAgent),
		rawhttp.WithToken(cfg.Fetch.Token),
	)
	repo := cache.NewCacheRepository(store, client, cfg.CacheDir, log)
	pool := worker.NewPool(cfg.Workers, log)
	files := materialize.NewMaterializeService(repo, pool, log)

	var opts []pipeline.Option

	if cfg.RedisURL != "" {
		rdb, err := a.redisClient(ctx)
		if err != nil {
			return err
		}
		defer rdb.Close()

		lrepo, err := ledger.NewLedgerRepository(rdb, log)
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithLedger(lrepo))
	}

	if cfg.Report.Enabled {
		reporter, err := reportadapter.NewReportAdapter(store, cfg.Report.TemplateFileName, log)
		if err != nil {
			return err
		}

		reportPath := cfg.Report.FileName
		if !filepath.IsAbs(reportPath) {
			reportPath = filepath.Join(runCfg.OutputDir, reportPath)
		}
		opts = append(opts, pipeline.WithReporter(reporter, reportPath))
	}

	p := pipeline.NewPipelineService(
		store,
		hub.NewHubService(repo, files, pool, log),
		component.NewComponentService(repo, files, pool, log),
		log,
		opts...,
	)

	report, err := p.Run(ctx, runCfg)
	if err != nil {
		return err
	}

	printSummary(os.Stdout, report)

	return nil
}

// DumpLedger writes the last recorded run as YAML to fileName, "-" for stdout.
func (a *App) DumpLedger(ctx context.Context, fileName string) error {
	if err := a.init(); err != nil {
		return err
	}

	if a.cfg.RedisURL == "" {
		return ErrNoLedger
	}

	rdb, err := a.redisClient(ctx)
	if err != nil {
		return err
	}
	defer rdb.Close()

	lrepo, err := ledger.NewLedgerRepository(rdb, a.log)
	if err != nil {
		return err
	}

	if fileName == dumpToStdout {
		return lrepo.Dump(ctx, os.Stdout)
	}

	f, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("cannot create dump file: %w", err)
	}
	defer f.Close()

	if err := lrepo.Dump(ctx, f); err != nil {
		return err
	}

	a.log.Info("Ledger dumped", slog.String("file", fileName))

	return nil
}

func (a *App) redisClient(ctx context.Context) (*redis.Client, error) {
	opt, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("cannot parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()

		return nil, fmt.Errorf("cannot connect to redis: %w", err)
	}

	return rdb, nil
}

func printSummary(w io.Writer, report *entity.Report) {
	for i, d := range report.Packages {
		fmt.Fprintf(w, "%d. %s@%s -> %s, files: %d\n", i+1, d.FullRepo(), d.Version, filepath.Join(d.OutputBase, d.Name), d.FileCount())
	}

	fmt.Fprintf(w, "Done. files: %d, cached: %d\n", len(report.Files), report.CacheHits())
}
