package main

import (
	"context"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/health-intel/internal/cache"
	"github.com/sells-group/health-intel/internal/config"
	"github.com/sells-group/health-intel/internal/gateway"
	"github.com/sells-group/health-intel/internal/intel"
	"github.com/sells-group/health-intel/internal/metrics"
	"github.com/sells-group/health-intel/internal/ratelimit"
	"github.com/sells-group/health-intel/internal/resilience"
	"github.com/sells-group/health-intel/internal/store"
	"github.com/sells-group/health-intel/pkg/provider"
)

// engineEnv holds the orchestrator and the shared infrastructure behind it.
type engineEnv struct {
	Orchestrator *intel.Orchestrator
	Registry     *gateway.Registry
	Cache        *cache.Store[gateway.Response]
	Limiters     *ratelimit.Set
	Breakers     *resilience.Breakers

	backing store.Backing
}

// Close releases the persistent cache backing, if any.
func (e *engineEnv) Close() {
	if e.backing != nil {
		_ = e.backing.Close()
	}
}

// transportFunc builds the transport for one enabled provider. It returns
// nil to leave the provider unregistered.
type transportFunc func(name string, p config.ProviderConfig) gateway.Transport

// httpTransport talks to providers with a configured base_url.
func httpTransport(name string, p config.ProviderConfig) gateway.Transport {
	if p.BaseURL == "" {
		zap.L().Debug("provider has no base_url, not registered", zap.String("provider", name))
		return nil
	}
	return provider.NewHTTP(name, p.BaseURL, p.APIKey)
}

// initEngine wires the cache, limiters, breakers and one gateway per enabled
// provider into an orchestrator. Callers should defer env.Close().
func initEngine(ctx context.Context, c *config.Config, newTransport transportFunc) (*engineEnv, error) {
	if c == nil {
		return nil, eris.New("engine: nil config")
	}

	backing, err := store.Open(ctx, c.Cache)
	if err != nil {
		return nil, eris.Wrap(err, "engine: open cache backing")
	}

	opts := cache.Options{Capacity: c.Cache.Capacity}
	if backing != nil {
		opts.Backing = backing
	}
	responses := cache.New[gateway.Response](opts)

	rates := make(map[string]float64, len(c.Providers))
	for name, p := range c.Providers {
		rates[name] = p.RatePerSec
	}
	limiters := ratelimit.NewSet(rates, 1)
	breakers := resilience.NewBreakers(resilience.CircuitFromConfig(c.Circuit))
	retry := resilience.RetryFromConfig(c.Retry)

	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	reg := gateway.NewRegistry()
	for _, name := range names {
		p := c.Providers[name]
		if !p.Enabled {
			continue
		}
		tr := newTransport(name, p)
		if tr == nil {
			continue
		}
		ttl := p.CacheTTL()
		if ttl <= 0 {
			ttl = c.Cache.DefaultTTL()
		}
		lim := limiters.Get(name)
		zap.L().Debug("provider registered",
			zap.String("provider", name),
			zap.Duration("min_interval", lim.Interval()),
			zap.Duration("cache_ttl", ttl),
		)
		reg.Register(name, gateway.NewClient(name, tr,
			gateway.WithCache(responses),
			gateway.WithLimiter(lim),
			gateway.WithBreaker(breakers.Get(name)),
			gateway.WithRetry(retry),
			gateway.WithTimeout(p.Timeout()),
			gateway.WithTTL(ttl),
		))
	}
	zap.L().Info("engine initialized",
		zap.Strings("providers", reg.Names()),
		zap.String("cache_backing", c.Cache.Backing),
	)

	orch := intel.New(reg,
		intel.WithIndustryKeywords(c.Scoring.IndustryKeywords),
		intel.WithNewsWindowDays(c.Scoring.NewsWindowDays),
	)

	return &engineEnv{
		Orchestrator: orch,
		Registry:     reg,
		Cache:        responses,
		Limiters:     limiters,
		Breakers:     breakers,
		backing:      backing,
	}, nil
}

// registerMetrics attaches the engine collectors to reg.
func registerMetrics(reg prometheus.Registerer, env *engineEnv) error {
	if err := metrics.Register(reg); err != nil {
		return eris.Wrap(err, "register metrics")
	}
	for _, c := range []prometheus.Collector{
		metrics.NewCacheCollector(env.Cache.Stats),
		metrics.NewLimiterCollector(env.Limiters.All),
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return eris.Wrap(err, "register engine metrics")
			}
		}
	}
	return nil
}
