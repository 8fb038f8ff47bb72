package batch

import (
	"context"
	"sync"
	"time"

	"github.com/otherjamesbrown/voxreel/pkg/logging"
)

// DefaultConcurrency is the default number of concurrent workers.
const DefaultConcurrency = 4

// ProcessorConfig configures the batch processor.
type ProcessorConfig struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int

	// Name identifies the batch in logs.
	Name string
}

// Handler processes one file.
type Handler[T any] func(ctx context.Context, path string) (T, error)

// Result is the outcome for one file. Results are returned in input order.
// Skipped marks files never started because the context was cancelled.
type Result[T any] struct {
	Path    string
	Value   T
	Err     error
	Skipped bool
}

// ProcessResult summarizes a batch run.
type ProcessResult[T any] struct {
	Results        []Result[T]
	TotalFiles     int
	SucceededCount int
	SkippedCount   int
	FailedCount    int
	StartedAt      time.Time
	CompletedAt    time.Time
	Cancelled      bool
}

// Processor runs a handler over files on a worker pool.
type Processor[T any] struct {
	cfg     ProcessorConfig
	handle  Handler[T]
	logger  logging.Logger
	onStart func(*Progress)

	progress *Progress
	mu       sync.Mutex
}

// NewProcessor creates a new batch processor.
func NewProcessor[T any](cfg ProcessorConfig, handle Handler[T], logger logging.Logger) *Processor[T] {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Processor[T]{
		cfg:    cfg,
		handle: handle,
		logger: logger.With(logging.F("batch", cfg.Name)),
	}
}

// OnStart registers a hook that receives the progress tracker before work
// begins, typically to attach an update callback.
func (p *Processor[T]) OnStart(fn func(*Progress)) {
	p.onStart = fn
}

// Process runs the handler over files. Files not started before ctx is
// cancelled are recorded as skipped with the context error.
func (p *Processor[T]) Process(ctx context.Context, files []string) *ProcessResult[T] {
	p.progress = NewProgress(len(files))
	if p.onStart != nil {
		p.onStart(p.progress)
	}
	p.progress.start()

	result := &ProcessResult[T]{
		Results:    make([]Result[T], len(files)),
		TotalFiles: len(files),
		StartedAt:  time.Now(),
	}

	if p.cfg.Concurrency == 1 {
		p.processSequential(ctx, files, result)
	} else {
		p.processParallel(ctx, files, result)
	}

	result.CompletedAt = time.Now()
	if ctx.Err() != nil {
		result.Cancelled = true
		p.progress.end(StateCancelled)
	} else if result.FailedCount > 0 {
		p.progress.end(StateFailed)
	} else {
		p.progress.end(StateCompleted)
	}

	p.logger.Debug("Batch finished",
		logging.F("total", result.TotalFiles),
		logging.F("succeeded", result.SucceededCount),
		logging.F("skipped", result.SkippedCount),
		logging.F("failed", result.FailedCount),
		logging.F("elapsed", result.CompletedAt.Sub(result.StartedAt)))

	return result
}

// Progress returns the current progress tracker.
func (p *Processor[T]) Progress() *Progress {
	return p.progress
}

// processSequential processes files one at a time.
func (p *Processor[T]) processSequential(ctx context.Context, files []string, result *ProcessResult[T]) {
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			p.recordOutcome(i, Result[T]{Path: file, Err: err, Skipped: true}, result)
			continue
		}
		p.progress.begin(file)
		p.recordOutcome(i, p.processFile(ctx, file), result)
	}
}

type indexedFile struct {
	index int
	path  string
}

type indexedResult[T any] struct {
	index  int
	result Result[T]
}

// processParallel processes files using a worker pool.
func (p *Processor[T]) processParallel(ctx context.Context, files []string, result *ProcessResult[T]) {
	filesCh := make(chan indexedFile, len(files))
	resultsCh := make(chan indexedResult[T], len(files))

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range filesCh {
				if err := ctx.Err(); err != nil {
					resultsCh <- indexedResult[T]{index: f.index, result: Result[T]{Path: f.path, Err: err, Skipped: true}}
					continue
				}
				p.progress.begin(f.path)
				resultsCh <- indexedResult[T]{index: f.index, result: p.processFile(ctx, f.path)}
			}
		}()
	}

	for i, file := range files {
		filesCh <- indexedFile{index: i, path: file}
	}
	close(filesCh)

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	for r := range resultsCh {
		p.recordOutcome(r.index, r.result, result)
	}
}

// processFile runs the handler for a single file.
func (p *Processor[T]) processFile(ctx context.Context, path string) Result[T] {
	v, err := p.handle(ctx, path)
	if err != nil {
		return Result[T]{Path: path, Err: err}
	}
	return Result[T]{Path: path, Value: v}
}

// recordOutcome updates progress and result based on the processing outcome.
func (p *Processor[T]) recordOutcome(i int, r Result[T], result *ProcessResult[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result.Results[i] = r
	switch {
	case r.Skipped:
		result.SkippedCount++
	case r.Err != nil:
		result.FailedCount++
	default:
		result.SucceededCount++
	}
	p.progress.finish(r.Skipped, r.Err != nil)
}
