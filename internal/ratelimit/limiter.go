// Package ratelimit serializes outbound calls to a provider at a fixed rate.
package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter queues operations and starts them in submission order, each no
// sooner than 1/rate after the previous start. Operations run concurrently
// once started, so a slow call never holds up the queue beyond its slot.
type Limiter struct {
	name    string
	limiter *rate.Limiter

	mu       sync.Mutex
	queue    []*job
	draining bool
}

type job struct {
	ctx context.Context
	run func(ctx context.Context)
}

// New creates a limiter for the named provider allowing perSecond starts per
// second. A non-positive rate defaults to 1.
func New(name string, perSecond float64) *Limiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Limiter{
		name:    name,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Name returns the provider this limiter guards.
func (l *Limiter) Name() string {
	return l.name
}

// Interval returns the minimum spacing between two starts.
func (l *Limiter) Interval() time.Duration {
	return time.Duration(float64(time.Second) / float64(l.limiter.Limit()))
}

// Len returns the number of operations waiting for their slot.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// DoVal submits fn to the limiter's queue and waits for its outcome. If ctx
// ends before fn's turn, DoVal returns ctx.Err() and fn is never started.
// Each caller receives only its own result; a failing or panicking fn does
// not affect operations queued behind it.
func DoVal[T any](ctx context.Context, l *Limiter, fn func(ctx context.Context) (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	l.enqueue(&job{
		ctx: ctx,
		run: func(runCtx context.Context) {
			var r result
			defer func() {
				if p := recover(); p != nil {
					r.err = eris.Errorf("ratelimit: %s: operation panicked: %v", l.name, p)
				}
				done <- r
			}()
			r.val, r.err = fn(runCtx)
		},
	})

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (l *Limiter) enqueue(j *job) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, j)
	if !l.draining {
		l.draining = true
		go l.drain()
	}
}

// drain releases queued jobs one slot at a time and exits once the queue is
// empty; the next enqueue starts a new drainer.
func (l *Limiter) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.draining = false
			l.mu.Unlock()
			return
		}
		j := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		if err := l.limiter.Wait(j.ctx); err != nil {
			// Caller gave up before its slot; DoVal already returned.
			zap.L().Debug("ratelimit: dropped abandoned operation",
				zap.String("provider", l.name),
				zap.Error(err),
			)
			continue
		}
		go j.run(j.ctx)
	}
}

// Set holds one Limiter per provider.
type Set struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	rates    map[string]float64
	fallback float64
}

// NewSet creates a registry of per-provider limiters. rates maps provider
// name to starts per second; unknown providers get fallback.
func NewSet(rates map[string]float64, fallback float64) *Set {
	r := make(map[string]float64, len(rates))
	for k, v := range rates {
		r[k] = v
	}
	return &Set{
		limiters: make(map[string]*Limiter),
		rates:    r,
		fallback: fallback,
	}
}

// Get returns the limiter for provider, creating it on first use.
func (s *Set) Get(provider string) *Limiter {
	s.mu.RLock()
	l, ok := s.limiters[provider]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok = s.limiters[provider]; ok {
		return l
	}
	perSecond, ok := s.rates[provider]
	if !ok {
		perSecond = s.fallback
	}
	l = New(provider, perSecond)
	s.limiters[provider] = l
	return l
}

// All returns every limiter created so far, ordered by provider name.
func (s *Set) All() []*Limiter {
	s.mu.RLock()
	out := make([]*Limiter, 0, len(s.limiters))
	for _, l := range s.limiters {
		out = append(out, l)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
