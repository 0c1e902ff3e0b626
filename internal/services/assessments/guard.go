package assessments

import (
	"context"
	"sync"

	"github.com/xbeat/certicredia-sub001/internal/domain"
)

// writeGuard hands out one write-in-progress token per assessment key. Holders
// of different keys never wait on each other.
type writeGuard struct {
	mu     sync.Mutex
	tokens map[domain.AssessmentKey]chan struct{}
}

func newWriteGuard() *writeGuard {
	return &writeGuard{tokens: map[domain.AssessmentKey]chan struct{}{}}
}

// acquire blocks until the key is free or ctx is done. The returned release
// must be called exactly once.
func (g *writeGuard) acquire(ctx context.Context, key domain.AssessmentKey) (func(), error) {
	for {
		g.mu.Lock()
		held, busy := g.tokens[key]
		if !busy {
			token := make(chan struct{})
			g.tokens[key] = token
			g.mu.Unlock()
			return func() {
				g.mu.Lock()
				delete(g.tokens, key)
				g.mu.Unlock()
				close(token)
			}, nil
		}
		g.mu.Unlock()

		select {
		case <-held:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// inProgress reports whether a write currently holds the key.
func (g *writeGuard) inProgress(key domain.AssessmentKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.tokens[key]
	return busy
}
