package model

import "time"

// AssessmentState is a step of the per-assessment state machine.
type AssessmentState string

const (
	StatePending          AssessmentState = "pending"
	StateFetching         AssessmentState = "fetching"
	StateClassifying      AssessmentState = "classifying"
	StateScoring          AssessmentState = "scoring"
	StateComplete         AssessmentState = "complete"
	StateCompleteDegraded AssessmentState = "complete_degraded"
)

// Terminal reports whether no further transitions follow.
func (s AssessmentState) Terminal() bool {
	return s == StateComplete || s == StateCompleteDegraded
}

// FetchStatus is the outcome of one provider call within an assessment.
type FetchStatus string

const (
	FetchSuccess  FetchStatus = "success"
	FetchDegraded FetchStatus = "degraded"
	FetchFailed   FetchStatus = "failed"
)

// ProviderRequest identifies one upstream call.
type ProviderRequest struct {
	Provider  string            `json:"provider"`
	Operation string            `json:"operation"`
	Params    map[string]string `json:"params"`
}

// ProviderStatus records how a provider call fared.
type ProviderStatus struct {
	Provider  string      `json:"provider"`
	Operation string      `json:"operation"`
	Status    FetchStatus `json:"status"`
	Cached    bool        `json:"cached,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Error     string      `json:"error,omitempty"`
	Note      string      `json:"note,omitempty"`
}

// Holiday is a public holiday in the customer's country.
type Holiday struct {
	Date time.Time `json:"date"`
	Name string    `json:"name"`
}

// LocationContext holds supplementary, non-scored facts about where the
// customer operates.
type LocationContext struct {
	Latitude         float64   `json:"latitude,omitempty"`
	Longitude        float64   `json:"longitude,omitempty"`
	Timezone         string    `json:"timezone,omitempty"`
	UpcomingHolidays []Holiday `json:"upcoming_holidays,omitempty"`
}

// IntelligenceSnapshot is the engine's only externally visible output.
type IntelligenceSnapshot struct {
	ID          string                    `json:"id"`
	Customer    Customer                  `json:"customer"`
	Health      HealthScore               `json:"health"`
	Records     []TextRecord              `json:"records"`
	Providers   map[string]ProviderStatus `json:"providers"`
	Context     *LocationContext          `json:"context,omitempty"`
	State       AssessmentState           `json:"state"`
	AssembledAt time.Time                 `json:"assembled_at"`
}

// Degraded reports whether any provider call failed.
func (s *IntelligenceSnapshot) Degraded() bool {
	return s.State == StateCompleteDegraded
}
