// internal/engine/task_engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/morphkit/internal/bus"
	"github.com/xkilldash9x/morphkit/internal/config"
	"github.com/xkilldash9x/morphkit/internal/dom"
	"github.com/xkilldash9x/morphkit/internal/lazyframe"
	"github.com/xkilldash9x/morphkit/internal/registry"
)

// Job is one page to boot, settle and capture.
type Job struct {
	ID     string
	Source string
	Markup string
	// Reveal reports every watched element as visible once the page starts.
	Reveal bool
	// Streams are applied in order after the first settle.
	Streams []string
	// Bridge holds JSON bridge instructions applied after the streams.
	Bridge []byte
}

// Result is the captured state of a rendered page.
type Result struct {
	JobID        string
	Source       string
	Timestamp    time.Time
	Duration     time.Duration
	HTML         string
	Instances    []registry.EntrySnapshot
	LoadedFrames []string
	// Errors collects non-fatal stream and bridge failures.
	Errors []string
}

// Worker renders a single job.
type Worker interface {
	RenderPage(ctx context.Context, job Job) (*Result, error)
}

// Sink receives finished results.
type Sink interface {
	Persist(ctx context.Context, result *Result) error
}

// PageWorker renders jobs on fresh pages that share one fragment fetcher.
type PageWorker struct {
	cfg     config.Interface
	logger  *zap.Logger
	fetcher lazyframe.Fetcher
}

// NewPageWorker builds a worker. A nil fetcher gives every page its own.
func NewPageWorker(cfg config.Interface, logger *zap.Logger, fetcher lazyframe.Fetcher) *PageWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageWorker{cfg: cfg, logger: logger, fetcher: fetcher}
}

// RenderPage implements Worker. Stream and bridge failures are recorded on
// the result; a page that cannot boot is an error.
func (w *PageWorker) RenderPage(ctx context.Context, job Job) (*Result, error) {
	started := time.Now()
	doc, err := dom.ParseString(job.Markup)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", job.Source, err)
	}

	logger := w.logger.With(zap.String("job_id", job.ID))
	var opts []Option
	if w.fetcher != nil {
		opts = append(opts, WithFetcher(w.fetcher))
	}
	opts = append(opts, WithBaseContext(ctx))
	page, err := NewPage(w.cfg, doc, logger, opts...)
	if err != nil {
		return nil, err
	}
	defer page.Stop()

	result := &Result{JobID: job.ID, Source: job.Source}
	var mu sync.Mutex
	unsubscribe := page.Bus().Subscribe(bus.Topic{Source: bus.AnySource, Name: lazyframe.EventLoaded}, func(msg bus.Message) {
		mu.Lock()
		result.LoadedFrames = append(result.LoadedFrames, msg.Topic.Source)
		mu.Unlock()
	})
	defer unsubscribe()

	if err := page.Start(ctx); err != nil {
		return nil, err
	}
	if job.Reveal {
		if _, err := page.RevealAll(ctx); err != nil {
			return nil, err
		}
	}

	settle := w.cfg.Engine().SettleTime
	if err := page.Settle(ctx, settle); err != nil {
		return nil, fmt.Errorf("page did not settle: %w", err)
	}

	for i, body := range job.Streams {
		if err := page.ProcessStream(ctx, body); err != nil {
			logger.Warn("Stream applied with errors.", zap.Int("stream", i), zap.Error(err))
			result.Errors = append(result.Errors, err.Error())
		}
	}
	if len(job.Bridge) > 0 {
		if err := page.ExecuteBridge(ctx, job.Bridge); err != nil {
			logger.Warn("Bridge instructions applied with errors.", zap.Error(err))
			result.Errors = append(result.Errors, err.Error())
		}
	}
	if len(job.Streams) > 0 || len(job.Bridge) > 0 {
		if err := page.Settle(ctx, settle); err != nil {
			return nil, fmt.Errorf("page did not settle: %w", err)
		}
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return nil, err
	}
	result.HTML = html
	result.Instances = page.Registry().Snapshot()
	mu.Lock()
	sort.Strings(result.LoadedFrames)
	mu.Unlock()
	result.Timestamp = time.Now().UTC()
	result.Duration = time.Since(started)
	return result, nil
}

// TaskEngine renders jobs from a channel on a pool of workers. Pages are
// independent, so each job gets its own loop and document.
type TaskEngine struct {
	cfg    config.Interface
	logger *zap.Logger
	sink   Sink
	worker Worker
	wg     sync.WaitGroup

	stateLock sync.Mutex
	isRunning bool
}

// NewTaskEngine validates its dependencies and returns a stopped engine.
func NewTaskEngine(cfg config.Interface, logger *zap.Logger, sink Sink, worker Worker) (*TaskEngine, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if sink == nil {
		return nil, errors.New("sink cannot be nil")
	}
	if worker == nil {
		return nil, errors.New("worker cannot be nil")
	}
	return &TaskEngine{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "task_engine")),
		sink:   sink,
		worker: worker,
	}, nil
}

// Start launches the worker pool consuming jobs until the channel closes or
// ctx is cancelled.
func (e *TaskEngine) Start(ctx context.Context, jobs <-chan Job) {
	e.stateLock.Lock()
	if e.isRunning {
		e.stateLock.Unlock()
		e.logger.Warn("TaskEngine.Start called, but engine is already running.")
		return
	}
	e.isRunning = true
	e.stateLock.Unlock()

	concurrency := e.cfg.Engine().WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	e.logger.Info("Starting render worker pool", zap.Int("concurrency", concurrency))

	for i := 0; i < concurrency; i++ {
		e.wg.Add(1)
		go e.runWorker(ctx, i+1, jobs)
	}
}

// Stop waits for every worker to exit.
func (e *TaskEngine) Stop() {
	e.wg.Wait()
	e.stateLock.Lock()
	e.isRunning = false
	e.stateLock.Unlock()
	e.logger.Info("Task engine stopped.")
}

func (e *TaskEngine) runWorker(ctx context.Context, workerID int, jobs <-chan Job) {
	defer e.wg.Done()
	logger := e.logger.With(zap.Int("worker_id", workerID))
	logger.Debug("Worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Context cancelled, worker shutting down.", zap.Error(ctx.Err()))
			return
		case job, ok := <-jobs:
			if !ok {
				logger.Debug("Job queue drained, worker shutting down.")
				return
			}
			e.process(ctx, job, logger)
		}
	}
}

func (e *TaskEngine) process(ctx context.Context, job Job, logger *zap.Logger) {
	logger = logger.With(zap.String("job_id", job.ID), zap.String("source", job.Source))
	if ctx.Err() != nil {
		logger.Warn("Context cancelled before job started", zap.Error(ctx.Err()))
		return
	}

	timeout := e.cfg.Engine().PageTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := e.worker.RenderPage(jobCtx, job)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			logger.Warn("Page render timed out", zap.Duration("timeout", timeout), zap.Error(err))
		case errors.Is(err, context.Canceled):
			logger.Warn("Page render was cancelled", zap.Error(err))
		default:
			logger.Error("Page render failed", zap.Error(err))
		}
		return
	}

	// Persist even when the parent context is shutting down.
	persistCtx, persistCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer persistCancel()
	if err := e.sink.Persist(persistCtx, result); err != nil {
		logger.Error("Failed to persist render result", zap.Error(err))
		return
	}
	logger.Info("Page rendered",
		zap.Int("instances", len(result.Instances)),
		zap.Int("frames_loaded", len(result.LoadedFrames)),
		zap.Duration("duration", result.Duration))
}
