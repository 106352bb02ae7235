// Package cache provides a TTL store with LRU eviction and request coalescing.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrMiss signals that a key is absent or expired.
var ErrMiss = eris.New("cache: miss")

// Source describes where GetOrFetch found its value.
type Source string

const (
	SourceMemory    Source = "memory"
	SourceBacking   Source = "backing"
	SourceFetch     Source = "fetch"
	SourceCoalesced Source = "coalesced"
)

// Cached reports whether the value came from a cache tier rather than a
// fetch made on behalf of this caller.
func (s Source) Cached() bool {
	return s == SourceMemory || s == SourceBacking
}

// Backing is an optional persistent second tier. Load returns ErrMiss for
// absent or expired keys.
type Backing interface {
	Load(ctx context.Context, key string) (data []byte, expiresAt time.Time, err error)
	Save(ctx context.Context, key string, data []byte, expiresAt time.Time) error
}

// Options configures a Store.
type Options struct {
	// Capacity bounds the number of in-memory entries. Default: 1000.
	Capacity int
	// Backing is consulted on in-memory misses and written through on fetch.
	Backing Backing
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Stats are cumulative counters for observability. Entries is the current
// in-memory size, expired entries included until touched or evicted.
type Stats struct {
	Hits      int64
	Misses    int64
	Coalesced int64
	Evictions int64
	Entries   int
}

type entry[V any] struct {
	value     V
	createdAt time.Time
	expiresAt time.Time
}

// Store is a keyed TTL cache. Entries expire at an absolute time and the
// least recently accessed entry is evicted once Capacity is exceeded. An
// entry is valid while now <= expiresAt, in memory and in the backing tier.
type Store[V any] struct {
	mu  sync.Mutex
	lru *simplelru.LRU[string, *entry[V]]

	group   singleflight.Group
	backing Backing
	now     func() time.Time

	hits, misses, coalesced, evictions atomic.Int64
}

// New creates an empty Store.
func New[V any](opts Options) *Store[V] {
	if opts.Capacity <= 0 {
		opts.Capacity = 1000
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	// NewLRU only fails for a non-positive size.
	lru, _ := simplelru.NewLRU[string, *entry[V]](opts.Capacity, nil)
	return &Store[V]{
		lru:     lru,
		backing: opts.Backing,
		now:     opts.Now,
	}
}

// Get returns the value for key if present and not expired. A hit marks the
// entry as most recently used.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero V
	e, ok := s.lru.Get(key)
	if !ok {
		return zero, false
	}
	if expired(s.now(), e.expiresAt) {
		s.lru.Remove(key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key until now+ttl, overwriting any previous entry.
func (s *Store[V]) Set(key string, value V, ttl time.Duration) {
	now := s.now()
	s.set(key, value, now, now.Add(ttl))
}

func (s *Store[V]) set(key string, value V, createdAt, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lru.Add(key, &entry[V]{value: value, createdAt: createdAt, expiresAt: expiresAt}) {
		s.evictions.Add(1)
	}
}

// Stats returns a snapshot of the cumulative counters.
func (s *Store[V]) Stats() Stats {
	s.mu.Lock()
	n := s.lru.Len()
	s.mu.Unlock()
	return Stats{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Coalesced: s.coalesced.Load(),
		Evictions: s.evictions.Load(),
		Entries:   n,
	}
}

func expired(now, expiresAt time.Time) bool {
	return now.After(expiresAt)
}

type flight[V any] struct {
	value  V
	source Source
}

// GetOrFetch returns the cached value for key or calls fetch to produce it.
// Concurrent callers for the same key share one in-flight fetch. A
// successful fetch is stored for ttl; a failed fetch stores nothing and the
// next caller retries.
//
// fetch runs on a context detached from ctx: a caller that gives up receives
// ctx.Err(), while the fetch completes and populates the cache for others.
func (s *Store[V]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch func(ctx context.Context) (V, error)) (V, Source, error) {
	var zero V
	if v, ok := s.Get(key); ok {
		s.hits.Add(1)
		return v, SourceMemory, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		// A flight for this key may have finished between Get and DoChan.
		if v, ok := s.Get(key); ok {
			return flight[V]{value: v, source: SourceMemory}, nil
		}
		if v, ok := s.loadBacking(fetchCtx, key); ok {
			return flight[V]{value: v, source: SourceBacking}, nil
		}

		v, err := fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		s.Set(key, v, ttl)
		s.saveBacking(fetchCtx, key, v, ttl)
		return flight[V]{value: v, source: SourceFetch}, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, SourceFetch, res.Err
		}
		f := res.Val.(flight[V])
		switch {
		case f.source.Cached():
			s.hits.Add(1)
		case res.Shared:
			s.coalesced.Add(1)
			f.source = SourceCoalesced
		default:
			s.misses.Add(1)
		}
		return f.value, f.source, nil
	case <-ctx.Done():
		return zero, SourceFetch, ctx.Err()
	}
}

func (s *Store[V]) loadBacking(ctx context.Context, key string) (V, bool) {
	var zero V
	if s.backing == nil {
		return zero, false
	}
	data, expiresAt, err := s.backing.Load(ctx, key)
	if err != nil {
		if !eris.Is(err, ErrMiss) {
			zap.L().Warn("cache: backing load failed", zap.String("key", key), zap.Error(err))
		}
		return zero, false
	}
	if expired(s.now(), expiresAt) {
		return zero, false
	}
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		zap.L().Warn("cache: backing value undecodable", zap.String("key", key), zap.Error(err))
		return zero, false
	}

	s.set(key, v, s.now(), expiresAt)
	return v, true
}

func (s *Store[V]) saveBacking(ctx context.Context, key string, v V, ttl time.Duration) {
	if s.backing == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		zap.L().Warn("cache: value not serializable", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.backing.Save(ctx, key, data, s.now().Add(ttl)); err != nil {
		zap.L().Warn("cache: backing save failed", zap.String("key", key), zap.Error(err))
	}
}
