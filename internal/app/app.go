// Package app initializes and holds the services of one archiver run,
// acting as a dependency injection container.
package app

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/moruklabs/dev-archive/internal/config"
	"github.com/moruklabs/dev-archive/internal/fetcher"
	"github.com/moruklabs/dev-archive/internal/logging"
	"github.com/moruklabs/dev-archive/internal/metrics"
	"github.com/moruklabs/dev-archive/internal/notify"
	"github.com/moruklabs/dev-archive/internal/pipeline"
	"github.com/moruklabs/dev-archive/internal/report"
	"github.com/moruklabs/dev-archive/internal/transform"
)

// App wires the run's collaborators. It is built once at startup with
// the run's as-of instant, so every component sees the same time.
type App struct {
	Config   config.Config
	Logger   *zap.Logger
	Fs       afero.Fs
	Pipeline *pipeline.Pipeline
	Reporter *report.Reporter
	Metrics  *metrics.Server
}

// New loads secrets and configuration and constructs every service.
// A configuration error here is the run's only fatal failure mode.
func New(cfgPath string, asOf time.Time) (*App, error) {
	config.LoadSecrets()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	metrics.Init()

	// The listener is best-effort: a busy port must not stop the run.
	var metricsSrv *metrics.Server
	if cfg.Metrics.ListenAddr != "" {
		metricsSrv, err = metrics.NewServer(cfg.Metrics.ListenAddr)
		if err != nil {
			logger.Warn("metrics listener unavailable",
				zap.String("addr", cfg.Metrics.ListenAddr),
				zap.Error(err),
			)
		} else {
			logger.Info("serving metrics", zap.String("addr", metricsSrv.Addr()))
		}
	}

	fs := afero.NewOsFs()

	fetch := fetcher.New(fetcher.Config{
		AllowedDomains: cfg.Fetch.AllowedDomains,
		UserAgent:      cfg.Fetch.UserAgent,
		Timeout:        cfg.FetchTimeout(),
		MaxAttempts:    cfg.Fetch.MaxAttempts,
		BackoffBase:    cfg.Fetch.BackoffBase,
	}, nil, logger)

	var rewrite pipeline.Transform
	if cfg.Pipeline.TransformRSS {
		rewrite = transform.NewRSS(cfg.Archive.PublicBaseURL, asOf)
	}

	delayMin, delayMax := cfg.DelayRange()
	pipe := pipeline.New(pipeline.Config{
		Root:        cfg.Archive.Root,
		Concurrency: cfg.Pipeline.Concurrency,
		DelayMin:    delayMin,
		DelayMax:    delayMax,
	}, fs, fetch, rewrite, logger)

	notifier := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Fs:       fs,
		Pipeline: pipe,
		Reporter: report.New(notifier, logger),
		Metrics:  metricsSrv,
	}, nil
}

// Close stops the metrics listener and flushes buffered log output.
func (a *App) Close() {
	if a.Metrics != nil {
		_ = a.Metrics.Close()
	}
	_ = a.Logger.Sync()
}
