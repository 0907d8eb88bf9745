package pacer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ArticlePipeline/internal/ports"
)

// Dependency names used by the stages.
const (
	DependencyResolver  = "resolver"
	DependencyInference = "inference"
)

// Pacer hands out one token-bucket limiter (burst 1) per dependency, so two
// calls to the same dependency never start closer than its interval. The
// first call after construction is not delayed.
type Pacer struct {
	mu        sync.Mutex
	intervals map[string]time.Duration
	limiters  map[string]*rate.Limiter
}

var _ ports.Pacer = (*Pacer)(nil)

// New builds a pacer; dependencies missing from intervals are not paced.
func New(intervals map[string]time.Duration) *Pacer {
	copied := make(map[string]time.Duration, len(intervals))
	for k, v := range intervals {
		copied[k] = v
	}
	return &Pacer{
		intervals: copied,
		limiters:  map[string]*rate.Limiter{},
	}
}

// Wait blocks until a call to dependency may start or ctx is done.
func (p *Pacer) Wait(ctx context.Context, dependency string) error {
	limiter := p.limiter(dependency)
	if limiter == nil {
		return ctx.Err()
	}
	return limiter.Wait(ctx)
}

func (p *Pacer) limiter(dependency string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.limiters[dependency]; ok {
		return l
	}

	interval := p.intervals[dependency]
	if interval <= 0 {
		return nil
	}

	l := rate.NewLimiter(rate.Every(interval), 1)
	p.limiters[dependency] = l
	return l
}
