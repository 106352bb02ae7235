package model

import "time"

// Trend is the direction a customer's health is moving.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Confidence describes how much of the scoring input was live data.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Downgrade returns the next lower confidence level. Low stays low.
func (c Confidence) Downgrade() Confidence {
	switch c {
	case ConfidenceHigh:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Factor names the four weighted inputs of a health score.
type Factor string

const (
	FactorDomainStability Factor = "domain_stability"
	FactorWebsiteHealth   Factor = "website_health"
	FactorMarketPresence  Factor = "market_presence"
	FactorEngagement      Factor = "engagement_level"
)

// Factors lists every factor in scoring order.
var Factors = []Factor{
	FactorDomainStability,
	FactorWebsiteHealth,
	FactorMarketPresence,
	FactorEngagement,
}

// FactorScore is one factor's contribution to the overall score.
type FactorScore struct {
	Score     float64        `json:"score"`
	Weight    float64        `json:"weight"`
	Defaulted bool           `json:"defaulted"`
	Details   map[string]any `json:"details"`
}

// Weighted returns the factor's share of the overall score.
func (f FactorScore) Weighted() float64 {
	return f.Score * f.Weight
}

// HealthScore is the result of one assessment. It is never mutated after
// creation.
type HealthScore struct {
	Overall    int                    `json:"overall"`
	Trend      Trend                  `json:"trend"`
	Factors    map[Factor]FactorScore `json:"factors"`
	Confidence Confidence             `json:"confidence"`
	ComputedAt time.Time              `json:"computed_at"`
}
