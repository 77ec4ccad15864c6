package crawler

import (
	"context"
	"sync"
)

// ItemResult tallies a batch of per-item operations. FailureKinds counts
// failures by error kind so a run summary can tell rate limiting apart from
// plain breakage.
type ItemResult struct {
	Processed    int
	Succeeded    int
	Failed       int
	FailureKinds map[string]int
}

func (r *ItemResult) record(err error) {
	if err == nil {
		r.Succeeded++
		return
	}
	r.Failed++
	kind := KindOf(err)
	if kind == "" {
		kind = ErrorKindUnknown
	}
	if r.FailureKinds == nil {
		r.FailureKinds = make(map[string]int, 1)
	}
	r.FailureKinds[string(kind)]++
}

// ForEachLimit runs fn over items with at most limit invocations in flight.
// Cancellation stops dispatch of further items; in-flight ones finish and are
// counted. Individual failures never abort the batch.
func ForEachLimit[T any](ctx context.Context, items []T, limit int, fn func(context.Context, T) error) ItemResult {
	if ctx == nil {
		ctx = context.Background()
	}
	var out ItemResult

	if limit <= 1 {
		for _, it := range items {
			if ctx.Err() != nil {
				return out
			}
			out.Processed++
			out.record(fn(ctx, it))
		}
		return out
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	sem := make(chan struct{}, limit)
dispatch:
	for _, it := range items {
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}
		out.Processed++
		wg.Add(1)
		go func(it T) {
			defer wg.Done()
			err := fn(ctx, it)
			mu.Lock()
			out.record(err)
			mu.Unlock()
			<-sem
		}(it)
	}
	wg.Wait()
	return out
}
