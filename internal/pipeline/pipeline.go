// Package pipeline orchestrates the archival run: skip detection, path
// guarding, fetching, optional transformation, and atomic persistence,
// partitioned into per-tag groups processed concurrently.
package pipeline

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/moruklabs/dev-archive/internal/archive"
	"github.com/moruklabs/dev-archive/internal/fetcher"
	"github.com/moruklabs/dev-archive/internal/metrics"
)

// defaultGroup collects entries that carry no tag.
const defaultGroup = "default"

// Fetcher retrieves one URL, or fails after exhausting its attempts.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Transform optionally rewrites fetched content before persistence. It
// must return either the rewritten content or an error; on error the
// pipeline persists the raw bytes instead of dropping the artifact.
type Transform interface {
	Apply(content []byte) ([]byte, error)
}

// Config controls pipeline behavior.
type Config struct {
	Root        string
	Concurrency int
	// DelayMin/DelayMax bound the randomized pause between consecutive
	// fetches inside one group.
	DelayMin time.Duration
	DelayMax time.Duration
}

// Pipeline executes the archival run over an expanded entry set.
type Pipeline struct {
	cfg       Config
	sink      *Sink
	fetcher   Fetcher
	transform Transform
	pause     fetcher.PauseController
	delay     func() time.Duration
	logger    *zap.Logger
}

// New builds a Pipeline. transform may be nil to persist raw content.
func New(cfg Config, fs afero.Fs, fetch Fetcher, transform Transform, logger *zap.Logger) *Pipeline {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		cfg:       cfg,
		sink:      NewSink(fs, cfg.Root),
		fetcher:   fetch,
		transform: transform,
		pause:     fetcher.TimerPause{},
		logger:    logger,
	}
	p.delay = func() time.Duration {
		if cfg.DelayMax <= cfg.DelayMin {
			return cfg.DelayMin
		}
		return cfg.DelayMin + rand.N(cfg.DelayMax-cfg.DelayMin)
	}
	return p
}

// SetPause replaces the inter-fetch pause controller. Tests use this to
// observe pacing without sleeping.
func (p *Pipeline) SetPause(pause fetcher.PauseController) {
	if pause != nil {
		p.pause = pause
	}
}

// Run processes the entry set and returns every failure accumulated
// across all groups. Per-entry failures never abort the run.
func (p *Pipeline) Run(ctx context.Context, entries []archive.Entry) []archive.FailureRecord {
	p.prepareDirectories(entries)

	groups := groupByTag(entries)
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	// One task per group on a bounded worker set. Each group returns its
	// own failure slice; nothing is mutated across goroutines.
	sem := make(chan struct{}, p.cfg.Concurrency)
	results := make(chan []archive.FailureRecord, len(names))
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string, items []archive.Entry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- p.processGroup(ctx, name, items)
		}(name, groups[name])
	}
	wg.Wait()
	close(results)

	var failures []archive.FailureRecord
	for groupFailures := range results {
		failures = append(failures, groupFailures...)
	}
	return failures
}

// prepareDirectories pre-creates every entry's parent directory up
// front, decoupled from whether the entry is later skipped. Entries that
// fail the path guard are excluded here (their directories would land
// outside the root); the failure itself is recorded during processing.
func (p *Pipeline) prepareDirectories(entries []archive.Entry) {
	for _, entry := range entries {
		target := p.sink.Path(entry.Destination)
		if !archive.WithinRoot(p.cfg.Root, target) {
			continue
		}
		if err := p.sink.EnsureParent(target); err != nil {
			p.logger.Warn("pre-create directory failed",
				zap.String("path", target),
				zap.Error(err),
			)
		}
	}
}

// processGroup handles one group's entries strictly sequentially, with a
// randomized delay between consecutive fetches. The delay is not applied
// before the group's first fetch nor after skipped entries.
func (p *Pipeline) processGroup(ctx context.Context, name string, entries []archive.Entry) []archive.FailureRecord {
	logger := p.logger.With(zap.String("group", name))
	var failures []archive.FailureRecord
	fetched := false

	for _, entry := range entries {
		target := p.sink.Path(entry.Destination)

		if p.sink.HasArtifact(target) {
			logger.Info("skipping entry, artifact exists and is non-empty",
				zap.String("url", entry.URL),
				zap.String("path", target),
			)
			metrics.ObserveEntry(string(archive.EntrySkipped))
			continue
		}

		if !archive.WithinRoot(p.cfg.Root, target) {
			logger.Error("unsafe destination path",
				zap.String("url", entry.URL),
				zap.String("path", target),
			)
			failures = append(failures, archive.FailureRecord{
				Identifier: entry.URL,
				Location:   target,
				Kind:       archive.FailureUnsafePath,
			})
			metrics.ObserveEntry(string(archive.EntryFailed))
			continue
		}

		if fetched {
			p.pause.Pause(ctx, p.delay())
		}
		fetched = true

		failure, saved := p.processEntry(ctx, logger, entry, target)
		if failure != nil {
			failures = append(failures, *failure)
		}
		// A transform failure still persists the raw artifact, so an
		// entry can be saved and carry a failure record at once.
		if saved {
			metrics.ObserveEntry(string(archive.EntrySaved))
		} else {
			metrics.ObserveEntry(string(archive.EntryFailed))
		}
	}
	return failures
}

// processEntry fetches, optionally transforms, and persists one entry.
// A transform failure falls back to the raw fetched bytes: a fetched
// artifact is never dropped.
func (p *Pipeline) processEntry(ctx context.Context, logger *zap.Logger, entry archive.Entry, target string) (*archive.FailureRecord, bool) {
	logger.Info("processing entry",
		zap.String("url", entry.URL),
		zap.String("path", target),
	)

	content, err := p.fetcher.Fetch(ctx, entry.URL)
	if err != nil {
		kind := archive.FailureFetchFailed
		if errors.Is(err, fetcher.ErrUnauthorizedDomain) {
			kind = archive.FailureUnauthorizedDomain
		}
		logger.Error("fetch failed",
			zap.String("url", entry.URL),
			zap.Error(err),
		)
		return &archive.FailureRecord{
			Identifier: entry.URL,
			Location:   target,
			Kind:       kind,
			Detail:     err.Error(),
		}, false
	}

	var transformFailure *archive.FailureRecord
	if p.transform != nil {
		rewritten, terr := p.transform.Apply(content)
		if terr != nil {
			logger.Error("transform failed, persisting raw content",
				zap.String("url", entry.URL),
				zap.Error(terr),
			)
			transformFailure = &archive.FailureRecord{
				Identifier: entry.URL,
				Location:   target,
				Kind:       archive.FailureTransformError,
				Detail:     terr.Error(),
			}
		} else {
			content = rewritten
		}
	}

	if err := p.sink.Save(target, content); err != nil {
		logger.Error("persist failed",
			zap.String("url", entry.URL),
			zap.String("path", target),
			zap.Error(err),
		)
		return &archive.FailureRecord{
			Identifier: entry.URL,
			Location:   target,
			Kind:       archive.FailurePersistError,
			Detail:     err.Error(),
		}, false
	}

	logger.Info("saved entry",
		zap.String("url", entry.URL),
		zap.String("path", target),
	)
	return transformFailure, true
}

func groupByTag(entries []archive.Entry) map[string][]archive.Entry {
	groups := make(map[string][]archive.Entry)
	for _, entry := range entries {
		name := entry.Tag
		if name == "" {
			name = defaultGroup
		}
		groups[name] = append(groups[name], entry)
	}
	return groups
}
