package intel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/health-intel/internal/config"
	"github.com/sells-group/health-intel/internal/gateway"
	"github.com/sells-group/health-intel/internal/model"
	"github.com/sells-group/health-intel/internal/ratelimit"
	"github.com/sells-group/health-intel/internal/resilience"
	"github.com/sells-group/health-intel/pkg/provider"
)

var now = time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func fastGateway(name string, tr gateway.Transport) *gateway.Client {
	return gateway.NewClient(name, tr,
		gateway.WithLimiter(ratelimit.New(name, 1000)),
		gateway.WithRetry(resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     2 * time.Millisecond,
		}),
		gateway.WithTimeout(time.Second),
		gateway.WithNow(clock),
	)
}

func engine(transports map[string]gateway.Transport, opts ...Option) *Orchestrator {
	reg := gateway.NewRegistry()
	for name, tr := range transports {
		reg.Register(name, fastGateway(name, tr))
	}
	return New(reg, append([]Option{WithNow(clock)}, opts...)...)
}

func acme() model.Customer {
	return model.Customer{
		ID:           "cust-1",
		Name:         "Acme",
		Domain:       "https://www.acme.com",
		Tier:         model.TierEnterprise,
		LastActivity: now,
	}
}

func positiveNews(n int) map[string]any {
	items := make([]any, n)
	for i := range items {
		items[i] = map[string]any{
			"title":        "Acme posts record growth",
			"body":         "Another strong quarter for Acme",
			"published_at": now.Add(-time.Duration(i+1) * time.Hour).Format(time.RFC3339),
		}
	}
	return map[string]any{"articles": items}
}

func healthyTransports() (whois, website, news *provider.Scripted) {
	whois = provider.NewScripted().Respond("lookup", map[string]any{
		"created": now.AddDate(-10, 0, 0).Format("2006-01-02"),
		"status":  "active",
	})
	website = provider.NewScripted().Respond("status", map[string]any{
		"status_code": float64(200),
		"certificate": map[string]any{"valid": true},
	})
	news = provider.NewScripted().Respond("search", positiveNews(12))
	return whois, website, news
}

func TestAssess_AllProvidersHealthy(t *testing.T) {
	whois, website, news := healthyTransports()
	o := engine(map[string]gateway.Transport{
		config.ProviderWhois:   whois,
		config.ProviderWebsite: website,
		config.ProviderNews:    news,
	})

	snap, err := o.Assess(context.Background(), acme())
	require.NoError(t, err)

	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, model.StateComplete, snap.State)
	assert.False(t, snap.Degraded())
	assert.Equal(t, 100, snap.Health.Overall)
	assert.Equal(t, model.ConfidenceHigh, snap.Health.Confidence)
	assert.Equal(t, model.TrendImproving, snap.Health.Trend)
	assert.Equal(t, now, snap.AssembledAt)
	assert.Len(t, snap.Records, 12)
	assert.Nil(t, snap.Context)

	require.Len(t, snap.Providers, 3)
	for name, st := range snap.Providers {
		assert.Equal(t, model.FetchSuccess, st.Status, name)
	}
}

func TestAssess_NewsFailureDegradesOneLevel(t *testing.T) {
	whois, website, _ := healthyTransports()
	news := provider.NewScripted().Fail("search", &provider.StatusError{Provider: "news", StatusCode: 503, Body: "down"})

	o := engine(map[string]gateway.Transport{
		config.ProviderWhois:   whois,
		config.ProviderWebsite: website,
		config.ProviderNews:    news,
	})

	snap, err := o.Assess(context.Background(), acme())
	require.NoError(t, err)

	assert.Equal(t, 3, news.Calls("search"))
	assert.Equal(t, model.StateCompleteDegraded, snap.State)

	st := snap.Providers[config.ProviderNews]
	assert.Equal(t, model.FetchFailed, st.Status)
	assert.Equal(t, string(gateway.KindProviderUnavailable), st.ErrorKind)

	market := snap.Health.Factors[model.FactorMarketPresence]
	assert.True(t, market.Defaulted)
	assert.InDelta(t, 50, market.Score, 1e-9)
	assert.Equal(t, model.ConfidenceMedium, snap.Health.Confidence)
	assert.Equal(t, 88, snap.Health.Overall)
	assert.Empty(t, snap.Records)
}

func TestAssess_PermanentFailureIsNotRetried(t *testing.T) {
	whois, website, news := healthyTransports()
	whois.Fail("lookup", &provider.StatusError{Provider: "whois", StatusCode: 404})

	o := engine(map[string]gateway.Transport{
		config.ProviderWhois:   whois,
		config.ProviderWebsite: website,
		config.ProviderNews:    news,
	})
	snap, err := o.Assess(context.Background(), acme())
	require.NoError(t, err)

	assert.Equal(t, 1, whois.Calls("lookup"))
	assert.Equal(t, string(gateway.KindNotFound), snap.Providers[config.ProviderWhois].ErrorKind)
	assert.True(t, snap.Health.Factors[model.FactorDomainStability].Defaulted)
}

func TestAssess_MalformedNewsIsSkipped(t *testing.T) {
	whois, website, _ := healthyTransports()
	news := provider.NewScripted().Respond("search", map[string]any{"unexpected": true})

	o := engine(map[string]gateway.Transport{
		config.ProviderWhois:   whois,
		config.ProviderWebsite: website,
		config.ProviderNews:    news,
	})
	snap, err := o.Assess(context.Background(), acme())
	require.NoError(t, err)

	st := snap.Providers[config.ProviderNews]
	assert.Equal(t, model.FetchDegraded, st.Status)
	assert.Equal(t, string(gateway.KindClassificationSkipped), st.ErrorKind)
	assert.True(t, snap.Health.Factors[model.FactorMarketPresence].Defaulted)
	assert.Equal(t, model.StateCompleteDegraded, snap.State)
}

func TestAssess_ArticlesWithoutTextAreCountedButSkipped(t *testing.T) {
	whois, website, _ := healthyTransports()
	news := provider.NewScripted().Respond("search", map[string]any{
		"articles": []any{
			map[string]any{"title": "Acme wins award", "published_at": now.Format(time.RFC3339)},
			map[string]any{"title": ""},
			map[string]any{"title": "Old news", "published_at": now.AddDate(0, -6, 0).Format(time.RFC3339)},
		},
	})

	o := engine(map[string]gateway.Transport{
		config.ProviderWhois:   whois,
		config.ProviderWebsite: website,
		config.ProviderNews:    news,
	})
	snap, err := o.Assess(context.Background(), acme())
	require.NoError(t, err)

	require.Len(t, snap.Records, 1)
	assert.Equal(t, "Acme wins award", snap.Records[0].Title)
	assert.Equal(t, model.FetchSuccess, snap.Providers[config.ProviderNews].Status)
	assert.Contains(t, snap.Providers[config.ProviderNews].Note, "1 article")
	assert.Equal(t, 2, snap.Health.Factors[model.FactorMarketPresence].Details["article_count"])
}

func TestAssess_ContextProviders(t *testing.T) {
	whois, website, news := healthyTransports()
	loc := provider.NewScripted().Respond("geocode", map[string]any{"latitude": 39.74, "longitude": -104.99})
	tz := provider.NewScripted().Respond("lookup", map[string]any{"timezone": "America/Denver"})
	hol := provider.NewScripted().Respond("list", map[string]any{
		"items": []any{
			map[string]any{"date": "2026-12-25", "name": "Christmas Day"},
			map[string]any{"date": "2026-01-01", "name": "New Year's Day"},
			map[string]any{"date": "2026-07-04", "name": "Independence Day"},
		},
	})

	o := engine(map[string]gateway.Transport{
		config.ProviderWhois:    whois,
		config.ProviderWebsite:  website,
		config.ProviderNews:     news,
		config.ProviderLocation: loc,
		config.ProviderTimezone: tz,
		config.ProviderHolidays: hol,
	})
	c := acme()
	c.Location = "Denver, CO"
	c.Country = "US"

	snap, err := o.Assess(context.Background(), c)
	require.NoError(t, err)

	require.NotNil(t, snap.Context)
	assert.InDelta(t, 39.74, snap.Context.Latitude, 1e-9)
	assert.Equal(t, "America/Denver", snap.Context.Timezone)
	require.Len(t, snap.Context.UpcomingHolidays, 2)
	assert.Equal(t, "Independence Day", snap.Context.UpcomingHolidays[0].Name)
	assert.Equal(t, model.StateComplete, snap.State)
	assert.Len(t, snap.Providers, 6)
}

func TestAssess_ContextFailureKeepsConfidence(t *testing.T) {
	whois, website, news := healthyTransports()
	tz := provider.NewScripted().Fail("lookup", &provider.StatusError{Provider: "timezone", StatusCode: 400})

	o := engine(map[string]gateway.Transport{
		config.ProviderWhois:    whois,
		config.ProviderWebsite:  website,
		config.ProviderNews:     news,
		config.ProviderTimezone: tz,
	})
	c := acme()
	c.Location = "Denver, CO"

	snap, err := o.Assess(context.Background(), c)
	require.NoError(t, err)

	assert.Equal(t, model.StateCompleteDegraded, snap.State)
	assert.Equal(t, model.ConfidenceHigh, snap.Health.Confidence)
	assert.Equal(t, model.FetchFailed, snap.Providers[config.ProviderTimezone].Status)
	assert.Nil(t, snap.Context)
}

func TestAssess_InvalidCustomer(t *testing.T) {
	o := engine(nil)
	_, err := o.Assess(context.Background(), model.Customer{Name: "No Domain"})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrInvalidCustomer))
}

func TestAssess_NoProvidersStillReturnsSnapshot(t *testing.T) {
	snap, err := engine(nil).Assess(context.Background(), acme())
	require.NoError(t, err)
	assert.Equal(t, model.StateComplete, snap.State)
	assert.Equal(t, model.ConfidenceLow, snap.Health.Confidence)
	assert.Equal(t, 63, snap.Health.Overall)
	assert.Len(t, snap.Health.Factors, 4)
	assert.Empty(t, snap.Providers)
}

func TestAssess_RepeatServedFromCache(t *testing.T) {
	whois, website, news := healthyTransports()
	o := engine(map[string]gateway.Transport{
		config.ProviderWhois:   whois,
		config.ProviderWebsite: website,
		config.ProviderNews:    news,
	})

	first, err := o.Assess(context.Background(), acme())
	require.NoError(t, err)
	second, err := o.Assess(context.Background(), acme())
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Health, second.Health)
	assert.True(t, second.Providers[config.ProviderWhois].Cached)
	assert.Equal(t, 1, whois.Calls("lookup"))
	assert.Equal(t, 1, website.Calls("status"))
	assert.Equal(t, 1, news.Calls("search"))
}

func TestAssess_ConcurrentCallsShareFetches(t *testing.T) {
	whois, website, news := healthyTransports()
	o := engine(map[string]gateway.Transport{
		config.ProviderWhois:   whois,
		config.ProviderWebsite: website,
		config.ProviderNews:    news,
	})

	var wg sync.WaitGroup
	snaps := make([]*model.IntelligenceSnapshot, 4)
	for i := range snaps {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := o.Assess(context.Background(), acme())
			assert.NoError(t, err)
			snaps[i] = snap
		}()
	}
	wg.Wait()

	for _, s := range snaps {
		require.NotNil(t, s)
		assert.Equal(t, 100, s.Health.Overall)
	}
	assert.Equal(t, 1, whois.Calls("lookup"))
	assert.Equal(t, 1, news.Calls("search"))
}

func TestStart_AbortDiscardsResultButFetchCompletes(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	slow := provider.Func(func(ctx context.Context, _ string, _ map[string]string) (map[string]any, error) {
		started <- struct{}{}
		<-release
		return map[string]any{"created": "2010-01-01", "status": "active"}, nil
	})

	gw := fastGateway(config.ProviderWhois, slow)
	reg := gateway.NewRegistry()
	reg.Register(config.ProviderWhois, gw)
	o := New(reg, WithNow(clock))

	a, err := o.Start(context.Background(), acme())
	require.NoError(t, err)
	<-started
	assert.Equal(t, model.StateFetching, a.State())

	a.Abort()
	a.Abort()
	_, err = a.Wait(context.Background())
	assert.True(t, eris.Is(err, ErrAborted))

	close(release)
	require.Eventually(t, func() bool {
		resp, err := gw.Call(context.Background(), "lookup", map[string]string{"domain": "acme.com"})
		return err == nil && resp.Cached
	}, time.Second, 5*time.Millisecond)
}

func TestStart_StateReachesTerminal(t *testing.T) {
	whois, _, _ := healthyTransports()
	o := engine(map[string]gateway.Transport{config.ProviderWhois: whois})

	a, err := o.Start(context.Background(), acme())
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID())

	snap, err := a.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a.ID(), snap.ID)
	assert.True(t, a.State().Terminal())
	<-a.Done()

	a.Abort()
	again, err := a.Wait(context.Background())
	require.NoError(t, err)
	assert.Same(t, snap, again)
}

func TestWait_ContextEnds(t *testing.T) {
	block := provider.Func(func(ctx context.Context, _ string, _ map[string]string) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	o := engine(map[string]gateway.Transport{config.ProviderWhois: block})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := o.Assess(ctx, acme())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
