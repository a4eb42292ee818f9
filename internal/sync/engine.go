package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"

	"github.com/dl-alexandre/memora/internal/logging"
	"github.com/dl-alexandre/memora/internal/metrics"
	"github.com/dl-alexandre/memora/internal/sync/exclude"
	"github.com/dl-alexandre/memora/internal/sync/index"
	"github.com/dl-alexandre/memora/internal/sync/scanner"
	"github.com/dl-alexandre/memora/internal/types"
	"github.com/dl-alexandre/memora/internal/utils"
)

// Index is the part of the local index the engine needs
type Index interface {
	Has(ctx context.Context, path string) (bool, error)
	RecordTick(ctx context.Context, state index.RootState) error
}

// Pipeline mirrors a single entry to the metadata service
type Pipeline interface {
	RegisterDirectory(ctx context.Context, entry scanner.Entry) (*types.SyncRecord, error)
	UploadFile(ctx context.Context, entry scanner.Entry) (*types.SyncRecord, error)
}

type Options struct {
	// Root must be an absolute, listable directory
	Root     string
	Interval time.Duration
	// Workers caps concurrent file uploads
	Workers int
	Matcher *exclude.Matcher
	Clock   clockwork.Clock
	Logger  logging.Logger
	Metrics *metrics.Metrics
	// AfterTick, when set, is called by Run after every tick
	AfterTick func(Summary, error)
}

// Summary counts what one tick did
type Summary struct {
	Directories int           `json:"directories"`
	Uploads     int           `json:"uploads"`
	Skipped     int           `json:"skipped"`
	Failed      int           `json:"failed"`
	Duration    time.Duration `json:"duration"`
}

// Engine drives scan ticks over one root
type Engine struct {
	root      string
	interval  time.Duration
	index     Index
	pipeline  Pipeline
	walker    *scanner.Walker
	matcher   *exclude.Matcher
	workers   *semaphore.Weighted
	clock     clockwork.Clock
	logger    logging.Logger
	metrics   *metrics.Metrics
	afterTick func(Summary, error)
}

func NewEngine(idx Index, pipeline Pipeline, opts Options) (*Engine, error) {
	if err := EnsureOptions(&opts); err != nil {
		return nil, err
	}
	if idx == nil || pipeline == nil {
		return nil, errors.New("engine requires an index and a pipeline")
	}
	return &Engine{
		root:      opts.Root,
		interval:  opts.Interval,
		index:     idx,
		pipeline:  pipeline,
		walker:    &scanner.Walker{Matcher: opts.Matcher, Logger: opts.Logger},
		matcher:   opts.Matcher,
		workers:   semaphore.NewWeighted(int64(opts.Workers)),
		clock:     opts.Clock,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		afterTick: opts.AfterTick,
	}, nil
}

// EnsureOptions fills defaults and rejects unusable values
func EnsureOptions(opts *Options) error {
	if opts == nil {
		return errors.New("options are nil")
	}
	if opts.Root == "" {
		return errors.New("options missing root")
	}
	if opts.Interval == 0 {
		opts.Interval = utils.DefaultScanInterval
	}
	if opts.Interval < 0 {
		return fmt.Errorf("interval must be positive, got %s", opts.Interval)
	}
	if opts.Workers == 0 {
		opts.Workers = utils.DefaultWorkers
	}
	if opts.Workers < 0 {
		return fmt.Errorf("workers must be positive, got %d", opts.Workers)
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNoOpLogger()
	}
	return nil
}

// Tick walks the root once. Directories are registered inline; files are
// uploaded concurrently under the worker budget. Every upload started by the
// tick has finished by the time Tick returns. The returned error is a walk
// error or a cancellation; per-path failures only show up in the summary.
func (e *Engine) Tick(ctx context.Context) (Summary, error) {
	start := e.clock.Now()
	ctx = logging.ContextWithTraceID(ctx, uuid.NewString())
	logger := e.logger.WithContext(ctx)

	var (
		wg      gosync.WaitGroup
		mu      gosync.Mutex
		summary Summary
	)
	count := func(field *int) {
		mu.Lock()
		*field++
		mu.Unlock()
	}

	logger.Debug("Tick started", logging.F("root", e.root))

	walkErr := func() error {
		for entry, err := range e.walker.Walk(ctx, e.root) {
			if err != nil {
				return err
			}

			found, err := e.index.Has(ctx, entry.Path)
			if err != nil {
				logger.Error("Index lookup failed",
					logging.F("path", entry.Path),
					logging.F("error", err),
				)
				count(&summary.Failed)
				continue
			}
			if found {
				logger.Debug("Already synced", logging.F("path", entry.Path))
				e.metrics.Skipped()
				count(&summary.Skipped)
				continue
			}

			if entry.IsDir() {
				_, err := e.pipeline.RegisterDirectory(ctx, entry)
				e.metrics.PipelineResult(entry.Kind.String(), err)
				if err != nil {
					count(&summary.Failed)
				} else {
					count(&summary.Directories)
				}
				continue
			}

			if err := e.workers.Acquire(ctx, 1); err != nil {
				return err
			}
			e.metrics.UploadStarted()
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer e.workers.Release(1)
				defer e.metrics.UploadFinished()

				_, err := e.pipeline.UploadFile(ctx, entry)
				e.metrics.PipelineResult(entry.Kind.String(), err)
				if err != nil {
					count(&summary.Failed)
				} else {
					count(&summary.Uploads)
				}
			}()
		}
		return nil
	}()

	wg.Wait()
	summary.Duration = e.clock.Since(start)
	e.metrics.ObserveTick(summary.Duration, walkErr)

	fields := []logging.Field{
		logging.F("root", e.root),
		logging.F("directories", summary.Directories),
		logging.F("uploads", summary.Uploads),
		logging.F("skipped", summary.Skipped),
		logging.F("failed", summary.Failed),
		logging.F("duration", summary.Duration.String()),
	}
	if walkErr != nil {
		logger.Error("Tick aborted", append(fields, logging.F("error", walkErr))...)
	} else {
		logger.Info("Tick complete", fields...)
	}

	state := index.RootState{
		Root:            e.root,
		ExcludePatterns: e.matcher.Patterns(),
		LastTickAt:      start,
		Directories:     summary.Directories,
		Uploads:         summary.Uploads,
		Failed:          summary.Failed,
	}
	if walkErr != nil {
		state.LastTickError = walkErr.Error()
	}
	if err := e.index.RecordTick(context.WithoutCancel(ctx), state); err != nil {
		logger.Warn("Failed to record tick", logging.F("error", err))
	}

	return summary, walkErr
}

// Run ticks immediately and then once per interval until ctx is done. Ticks
// never overlap; a tick that outlasts the interval delays the next one. Walk
// errors are logged and do not stop the loop.
func (e *Engine) Run(ctx context.Context) error {
	ticker := e.clock.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("Sync agent started",
		logging.F("root", e.root),
		logging.F("interval", e.interval.String()),
	)

	for {
		summary, err := e.Tick(ctx)
		if e.afterTick != nil {
			e.afterTick(summary, err)
		}
		if ctx.Err() != nil {
			e.logger.Info("Sync agent stopped", logging.F("root", e.root))
			return nil
		}

		select {
		case <-ctx.Done():
			e.logger.Info("Sync agent stopped", logging.F("root", e.root))
			return nil
		case <-ticker.Chan():
		}
	}
}
