// Package health computes a customer's weighted health score from
// normalized provider data.
package health

import (
	"math"
	"time"

	"github.com/sells-group/health-intel/internal/model"
)

const (
	factorWeight  = 0.25
	neutralScore  = 50.0
	sentimentStep = 20.0
	dayHours      = 24.0
	yearDays      = 365.25
)

var tierFactors = map[model.Tier]float64{
	model.TierEnterprise: 1.2,
	model.TierGrowth:     1.0,
	model.TierStartup:    0.8,
}

// DomainData is registration data from the whois provider.
type DomainData struct {
	Created time.Time
	Active  bool
}

// WebsiteData is the website provider's availability and certificate check.
type WebsiteData struct {
	StatusCode  int
	CertPresent bool
	CertValid   bool
}

// NewsData is the classified output of the news provider.
type NewsData struct {
	ArticleCount int
	Records      []model.TextRecord
}

// ProviderData is everything the calculator scores. A nil field means the
// provider failed or returned nothing usable.
type ProviderData struct {
	Domain  *DomainData
	Website *WebsiteData
	News    *NewsData
}

// Compute scores c at now. It is pure: the same inputs always give the same
// HealthScore, and every factor is always populated.
func Compute(c model.Customer, data ProviderData, now time.Time) model.HealthScore {
	factors := map[model.Factor]model.FactorScore{
		model.FactorDomainStability: domainStability(data.Domain, now),
		model.FactorWebsiteHealth:   websiteHealth(data.Website),
		model.FactorMarketPresence:  marketPresence(data.News),
		model.FactorEngagement:      engagement(c, now),
	}

	var sum float64
	confidence := model.ConfidenceHigh
	for _, f := range model.Factors {
		fs := factors[f]
		sum += fs.Weighted()
		if fs.Defaulted || fs.Details["partial"] == true {
			confidence = confidence.Downgrade()
		}
	}
	overall := int(math.Round(sum))

	var records []model.TextRecord
	if data.News != nil {
		records = data.News.Records
	}

	return model.HealthScore{
		Overall:    overall,
		Trend:      trend(overall, model.NetSentiment(records), daysSince(c.LastActivity, now)),
		Factors:    factors,
		Confidence: confidence,
		ComputedAt: now,
	}
}

// Calculator is a Compute bound to a clock.
type Calculator struct {
	now func() time.Time
}

// NewCalculator creates a Calculator. A nil now uses time.Now.
func NewCalculator(now func() time.Time) *Calculator {
	if now == nil {
		now = time.Now
	}
	return &Calculator{now: now}
}

// Compute scores c at the calculator's current time.
func (k *Calculator) Compute(c model.Customer, data ProviderData) model.HealthScore {
	return Compute(c, data, k.now())
}

func defaulted(reason string) model.FactorScore {
	return model.FactorScore{
		Score:     neutralScore,
		Weight:    factorWeight,
		Defaulted: true,
		Details:   map[string]any{"reason": reason},
	}
}

func domainStability(d *DomainData, now time.Time) model.FactorScore {
	if d == nil {
		return defaulted("domain data unavailable")
	}
	if !d.Active {
		return model.FactorScore{
			Score:   0,
			Weight:  factorWeight,
			Details: map[string]any{"active": false},
		}
	}
	if d.Created.IsZero() {
		return defaulted("registration date unknown")
	}

	years := now.Sub(d.Created).Hours() / dayHours / yearDays
	var score float64
	switch {
	case years < 1:
		score = 20
	case years < 3:
		score = 50
	case years < 5:
		score = 80
	default:
		score = 100
	}
	return model.FactorScore{
		Score:  score,
		Weight: factorWeight,
		Details: map[string]any{
			"active":    true,
			"age_years": math.Round(years*10) / 10,
		},
	}
}

func websiteHealth(w *WebsiteData) model.FactorScore {
	if w == nil {
		return defaulted("website data unavailable")
	}

	availability := 0.0
	if w.StatusCode == 200 {
		availability = 100
	}

	var cert float64
	certState := "absent"
	switch {
	case w.CertPresent && w.CertValid:
		cert, certState = 100, "valid"
	case w.CertPresent:
		cert, certState = 50, "invalid"
	}

	details := map[string]any{
		"status_code":  w.StatusCode,
		"availability": availability,
		"certificate":  certState,
	}
	if !w.CertPresent {
		details["partial"] = true
	}
	return model.FactorScore{
		Score:   (availability + cert) / 2,
		Weight:  factorWeight,
		Details: details,
	}
}

func marketPresence(n *NewsData) model.FactorScore {
	if n == nil {
		return defaulted("news data unavailable")
	}

	var score float64
	switch {
	case n.ArticleCount <= 0:
		score = 10
	case n.ArticleCount <= 3:
		score = 40
	case n.ArticleCount < 10:
		score = 80
	default:
		score = 100
	}

	net := model.NetSentiment(n.Records)
	switch {
	case net > 0:
		score += sentimentStep
	case net < 0:
		score -= sentimentStep
	}

	return model.FactorScore{
		Score:  clamp(score),
		Weight: factorWeight,
		Details: map[string]any{
			"article_count": n.ArticleCount,
			"net_sentiment": net,
		},
	}
}

func engagement(c model.Customer, now time.Time) model.FactorScore {
	if c.LastActivity.IsZero() {
		return defaulted("no recorded activity")
	}

	days := daysSince(c.LastActivity, now)
	var base float64
	switch {
	case days < 7:
		base = 100
	case days <= 30:
		base = 70
	case days <= 90:
		base = 40
	default:
		base = 10
	}

	tf, ok := tierFactors[c.Tier]
	if !ok {
		tf = 1.0
	}
	return model.FactorScore{
		Score:  clamp(base * tf),
		Weight: factorWeight,
		Details: map[string]any{
			"days_since_activity": days,
			"tier":                string(c.Tier),
			"tier_factor":         tf,
		},
	}
}

// trend applies the improving and declining rules independently; when both
// or neither hold the trend is stable.
func trend(overall, netSentiment, days int) model.Trend {
	improving := overall > 80 || netSentiment > 0
	declining := overall < 50 || netSentiment < 0 || days > 90
	switch {
	case improving && !declining:
		return model.TrendImproving
	case declining && !improving:
		return model.TrendDeclining
	default:
		return model.TrendStable
	}
}

// daysSince returns whole days from t to now, or -1 when t is unknown.
func daysSince(t, now time.Time) int {
	if t.IsZero() {
		return -1
	}
	d := now.Sub(t)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / dayHours)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
