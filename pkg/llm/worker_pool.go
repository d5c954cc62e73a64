package llm

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkerPoolConfig bounds concurrent LLM calls. Candidate fan-out and
// ingestion embedding batches share one pool so a bulk embed cannot starve
// interactive generation.
type WorkerPoolConfig struct {
	MaxConcurrent int
}

// DefaultWorkerPoolConfig returns the default concurrency bound.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{MaxConcurrent: 8}
}

// WorkerPool executes batches of LLM calls with bounded parallelism.
type WorkerPool struct {
	config WorkerPoolConfig
	logger *zap.Logger
}

// NewWorkerPool creates a WorkerPool.
func NewWorkerPool(config WorkerPoolConfig, logger *zap.Logger) *WorkerPool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 8
	}
	return &WorkerPool{
		config: config,
		logger: logger.Named("llm-worker-pool"),
	}
}

// WorkItem is one LLM call in a batch: a candidate generation or one
// schema text to embed.
type WorkItem[T any] struct {
	ID      string
	Execute func(ctx context.Context) (T, error)
}

// WorkResult pairs a WorkItem's outcome with its ID.
type WorkResult[T any] struct {
	ID     string
	Result T
	Err    error
}

// Process runs every item through a fixed set of workers and returns all
// results in completion order. Individual failures don't stop the batch;
// items not yet started when ctx ends complete with ctx.Err().
func Process[T any](
	ctx context.Context,
	pool *WorkerPool,
	items []WorkItem[T],
	onProgress func(completed, total int),
) []WorkResult[T] {
	if len(items) == 0 {
		return nil
	}

	workers := pool.config.MaxConcurrent
	if workers > len(items) {
		workers = len(items)
	}

	jobs := make(chan WorkItem[T])
	resultsChan := make(chan WorkResult[T], len(items))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				if err := ctx.Err(); err != nil {
					var zero T
					resultsChan <- WorkResult[T]{ID: item.ID, Result: zero, Err: err}
					continue
				}
				result, err := item.Execute(ctx)
				resultsChan <- WorkResult[T]{ID: item.ID, Result: result, Err: err}
			}
		}()
	}

	go func() {
		for _, item := range items {
			jobs <- item
		}
		close(jobs)
		wg.Wait()
		close(resultsChan)
	}()

	results := make([]WorkResult[T], 0, len(items))
	completed := 0
	for result := range resultsChan {
		results = append(results, result)
		completed++
		if onProgress != nil {
			onProgress(completed, len(items))
		}
	}
	return results
}
