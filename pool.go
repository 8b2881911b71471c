package scimd

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// Worker sizing constants.
const (
	// MinWorkers ensures at least one chapter is processed at a time.
	MinWorkers = 1

	// MaxWorkers caps concurrent chapters; each may spawn latex processes.
	MaxWorkers = 8

	// cpuDivisor leaves headroom for renderer child processes.
	cpuDivisor = 2
)

// ResolveWorkers determines the number of concurrent chapters.
// Priority: explicit workers > GOMAXPROCS-based calculation.
func ResolveWorkers(workers int) int {
	if workers > 0 {
		return workers
	}

	// Auto-calculate based on GOMAXPROCS (adjusted by automaxprocs for containers)
	n := runtime.GOMAXPROCS(0) / cpuDivisor

	if n < MinWorkers {
		return MinWorkers
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}

// forEach runs fn over docs with at most workers calls in flight and
// returns the results in document order. On failure it reports the error
// of the lowest failing document index, exactly as a sequential run would:
// documents after a failure are canceled or never started, documents before
// it run to completion. The index is -1 when ctx itself was canceled.
// A panic in fn becomes an error of the document that raised it.
func forEach[T any](ctx context.Context, workers int, docs []*Document, fn func(context.Context, int, *Document) (T, error)) ([]T, int, error) {
	results := make([]T, len(docs))

	if workers <= 1 {
		for i, d := range docs {
			if err := ctx.Err(); err != nil {
				return nil, -1, err
			}
			r, err := safeCall(ctx, i, d, fn)
			if err != nil {
				return nil, i, err
			}
			results[i] = r
		}
		return results, -1, nil
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		errs    = make([]error, len(docs))
		cancels = make([]context.CancelFunc, len(docs))
		failed  = len(docs) // lowest failing index so far
		sem     = make(chan struct{}, workers)
	)

	for i, d := range docs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		mu.Lock()
		if i > failed {
			mu.Unlock()
			<-sem
			break
		}
		docCtx, cancel := context.WithCancel(ctx)
		cancels[i] = cancel
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			defer cancel()

			r, err := safeCall(docCtx, i, d, fn)
			if err == nil {
				results[i] = r
				return
			}
			mu.Lock()
			defer mu.Unlock()
			errs[i] = err
			if i < failed {
				failed = i
				for j := i + 1; j < len(cancels); j++ {
					if cancels[j] != nil {
						cancels[j]()
					}
				}
			}
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, -1, ctxErr
		}
		return nil, i, err
	}
	if err := ctx.Err(); err != nil {
		return nil, -1, err
	}
	return results, -1, nil
}

// safeCall runs fn and turns a panic into an error.
func safeCall[T any](ctx context.Context, i int, d *Document, fn func(context.Context, int, *Document) (T, error)) (r T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("internal error: %v", p)
		}
	}()
	return fn(ctx, i, d)
}
