package main

import (
	"time"

	"github.com/sells-group/health-intel/internal/config"
	"github.com/sells-group/health-intel/internal/gateway"
	"github.com/sells-group/health-intel/pkg/provider"
)

// demoTransport serves canned provider payloads so the engine can be tried
// without upstream accounts.
func demoTransport(now func() time.Time) transportFunc {
	return func(name string, _ config.ProviderConfig) gateway.Transport {
		t := now()
		switch name {
		case config.ProviderWhois:
			return provider.NewScripted().Respond("lookup", map[string]any{
				"created": t.AddDate(-6, 0, 0).Format("2006-01-02"),
				"status":  "active",
			})
		case config.ProviderWebsite:
			return provider.NewScripted().Respond("status", map[string]any{
				"status_code": 200,
				"certificate": map[string]any{"valid": true},
			})
		case config.ProviderNews:
			return provider.NewScripted().Respond("search", map[string]any{
				"articles": []any{
					map[string]any{
						"title":        "Customer announces expansion into new markets",
						"body":         "The company reported strong growth and a new partnership.",
						"published_at": t.Add(-6 * time.Hour).Format(time.RFC3339),
					},
					map[string]any{
						"title":        "Industry roundup",
						"body":         "Analysts expect steady demand this quarter.",
						"published_at": t.AddDate(0, 0, -3).Format(time.RFC3339),
					},
				},
			})
		case config.ProviderLocation:
			return provider.NewScripted().Respond("geocode", map[string]any{
				"latitude":  40.7128,
				"longitude": -74.006,
			})
		case config.ProviderTimezone:
			return provider.NewScripted().Respond("lookup", map[string]any{
				"timezone": "America/New_York",
			})
		case config.ProviderHolidays:
			return provider.NewScripted().Respond("list", map[string]any{
				"holidays": []any{
					map[string]any{"date": t.AddDate(0, 0, 10).Format("2006-01-02"), "name": "Founders Day"},
				},
			})
		}
		return nil
	}
}
