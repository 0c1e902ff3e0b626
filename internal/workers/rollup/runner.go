// Package rollup runs background workers that rebuild organization
// projections after assessment changes, so reads usually hit a warm cache.
package rollup

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xbeat/certicredia-sub001/internal/aggregate"
)

// Recomputer rebuilds the projections of one organization.
type Recomputer interface {
	Recompute(ctx context.Context, orgID string) (aggregate.Entry, error)
}

// Run starts concurrency workers fed from queue. Bursts of changes for the same
// organization are coalesced while a rebuild for it is pending. Run returns a
// function that blocks until all workers have exited after ctx is cancelled.
func Run(ctx context.Context, r Recomputer, queue <-chan string, concurrency int, log logrus.FieldLogger) (wait func()) {
	var wg sync.WaitGroup
	if concurrency < 1 {
		return wg.Wait
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	jobs := make(chan string, concurrency)
	var (
		mu      sync.Mutex
		pending = map[string]bool{}
	)

	// dispatcher loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(jobs)
		for {
			select {
			case <-ctx.Done():
				return
			case orgID := <-queue:
				mu.Lock()
				if pending[orgID] {
					mu.Unlock()
					continue
				}
				pending[orgID] = true
				mu.Unlock()
				select {
				case jobs <- orgID:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			wlog := log.WithField("worker", idx)
			for orgID := range jobs {
				mu.Lock()
				delete(pending, orgID)
				mu.Unlock()

				start := time.Now()
				if _, err := r.Recompute(ctx, orgID); err != nil {
					wlog.WithError(err).WithField("org_id", orgID).Warn("projection rebuild failed")
					continue
				}
				wlog.WithFields(logrus.Fields{
					"org_id":   orgID,
					"duration": time.Since(start),
				}).Debug("projection rebuilt")
			}
		}(i)
	}
	return wg.Wait
}
