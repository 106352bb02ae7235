package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/health-intel/internal/config"
	"github.com/sells-group/health-intel/internal/gateway"
	"github.com/sells-group/health-intel/internal/intel"
	"github.com/sells-group/health-intel/internal/model"
	"github.com/sells-group/health-intel/internal/resilience"
	"github.com/sells-group/health-intel/pkg/provider"
)

type mockAssessor struct {
	mock.Mock
}

func (m *mockAssessor) Assess(ctx context.Context, c model.Customer) (*model.IntelligenceSnapshot, error) {
	args := m.Called(ctx, c)
	snap, _ := args.Get(0).(*model.IntelligenceSnapshot)
	return snap, args.Error(1)
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/assess", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv := New(&mockAssessor{})
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHealthz_CircuitStates(t *testing.T) {
	breakers := resilience.NewBreakers(resilience.CircuitBreakerConfig{FailureThreshold: 1})
	breakers.Get("whois")
	news := breakers.Get("news")

	srv := New(&mockAssessor{}, WithCircuitStates(breakers.States))
	get := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		srv.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		return w
	}

	w := get()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","circuits":{"news":"closed","whois":"closed"}}`, w.Body.String())

	_, _ = resilience.ExecuteVal(context.Background(), news, func(context.Context) (int, error) {
		return 0, gateway.NewError("news", "search", gateway.KindProviderUnavailable, "down")
	})

	w = get()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"degraded","circuits":{"news":"open","whois":"closed"}}`, w.Body.String())
}

func TestAssess_OK(t *testing.T) {
	a := &mockAssessor{}
	a.On("Assess", mock.Anything, mock.MatchedBy(func(c model.Customer) bool {
		return c.Name == "Acme" && c.Domain == "acme.com"
	})).Return(&model.IntelligenceSnapshot{
		ID:     "snap-1",
		State:  model.StateComplete,
		Health: model.HealthScore{Overall: 91, Confidence: model.ConfidenceHigh},
	}, nil)

	w := post(t, New(a).Routes(), `{"name":"Acme","domain":"acme.com","tier":"growth"}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var got model.IntelligenceSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "snap-1", got.ID)
	assert.Equal(t, 91, got.Health.Overall)
	a.AssertExpectations(t)
}

func TestAssess_BadBody(t *testing.T) {
	a := &mockAssessor{}
	w := post(t, New(a).Routes(), `{not json`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
	a.AssertNotCalled(t, "Assess", mock.Anything, mock.Anything)
}

func TestAssess_ErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid customer", eris.Wrap(model.ErrInvalidCustomer, "domain is required"), http.StatusBadRequest},
		{"aborted", intel.ErrAborted, http.StatusServiceUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable},
		{"internal", eris.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &mockAssessor{}
			a.On("Assess", mock.Anything, mock.Anything).Return(nil, tt.err)

			w := post(t, New(a).Routes(), `{"name":"Acme"}`)
			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestMetricsMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("health_intel_up 1\n"))
	})

	w := httptest.NewRecorder()
	New(&mockAssessor{}, WithMetricsHandler(metrics)).Routes().
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "health_intel_up")

	w = httptest.NewRecorder()
	New(&mockAssessor{}).Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := New(&mockAssessor{}, WithCORSOrigins([]string{"https://app.example.com"}))

	req := httptest.NewRequest(http.MethodOptions, "/assess", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)

	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAssess_EndToEnd(t *testing.T) {
	reg := gateway.NewRegistry()
	reg.Register(config.ProviderWhois, gateway.NewClient(config.ProviderWhois,
		provider.NewScripted().Respond("lookup", map[string]any{"created": "2010-01-01", "status": "active"})))
	o := intel.New(reg)

	w := post(t, New(o).Routes(), `{"name":"Acme","domain":"acme.com","tier":"enterprise"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var got model.IntelligenceSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, model.StateComplete, got.State)
	assert.Equal(t, model.ConfidenceLow, got.Health.Confidence)
	assert.Contains(t, got.Providers, config.ProviderWhois)

	w = post(t, New(o).Routes(), `{"name":"Acme"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
