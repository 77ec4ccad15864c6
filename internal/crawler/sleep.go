package crawler

import (
	"context"
	"math/rand"
	"time"
)

// Sleep pauses for d unless ctx is canceled first. It returns false on
// cancellation so crawl loops can bail out between pages.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	if ctx == nil {
		time.Sleep(d)
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// SleepJitter pauses for a uniformly random duration in [lo, hi]. The jitter
// keeps page requests from forming a fixed cadence the feed API could flag.
func SleepJitter(ctx context.Context, lo, hi time.Duration) bool {
	if lo < 0 {
		lo = 0
	}
	if hi < lo {
		hi = lo
	}
	d := lo
	if span := hi - lo; span > 0 {
		d += time.Duration(rand.Int63n(int64(span) + 1))
	}
	return Sleep(ctx, d)
}
