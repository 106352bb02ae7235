// Package intel assembles intelligence snapshots: it fans out to the provider
// gateways, classifies news, scores health and reports per-provider status.
package intel

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/health-intel/internal/classify"
	"github.com/sells-group/health-intel/internal/config"
	"github.com/sells-group/health-intel/internal/gateway"
	"github.com/sells-group/health-intel/internal/health"
	"github.com/sells-group/health-intel/internal/metrics"
	"github.com/sells-group/health-intel/internal/model"
)

// ErrAborted is returned by Wait for an assessment its caller abandoned.
var ErrAborted = eris.New("intel: assessment aborted")

const (
	defaultNewsWindowDays = 30
	maxHolidays           = 5
)

// Orchestrator runs assessments against a fixed set of gateways.
type Orchestrator struct {
	registry   *gateway.Registry
	classifier *classify.Classifier
	calculator *health.Calculator
	keywords   []string
	newsWindow int
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClassifier replaces the default classifier.
func WithClassifier(c *classify.Classifier) Option {
	return func(o *Orchestrator) { o.classifier = c }
}

// WithCalculator replaces the default calculator.
func WithCalculator(c *health.Calculator) Option {
	return func(o *Orchestrator) { o.calculator = c }
}

// WithIndustryKeywords adds keywords that raise article relevance.
func WithIndustryKeywords(kw []string) Option {
	return func(o *Orchestrator) { o.keywords = kw }
}

// WithNewsWindowDays limits scored articles to the last n days.
func WithNewsWindowDays(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.newsWindow = n
		}
	}
}

// WithNow sets the clock shared by classification, scoring and snapshots.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator over registry.
func New(registry *gateway.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:   registry,
		newsWindow: defaultNewsWindowDays,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.classifier == nil {
		o.classifier = classify.New(classify.WithNow(o.now))
	}
	if o.calculator == nil {
		o.calculator = health.NewCalculator(o.now)
	}
	return o
}

// Assess runs one assessment to completion. Provider failures never surface
// here; only an invalid customer or ctx ending does.
func (o *Orchestrator) Assess(ctx context.Context, c model.Customer) (*model.IntelligenceSnapshot, error) {
	a, err := o.Start(ctx, c)
	if err != nil {
		return nil, err
	}
	snap, err := a.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		a.Abort()
	}
	return snap, err
}

// Start validates c and begins an assessment in the background.
func (o *Orchestrator) Start(ctx context.Context, c model.Customer) (*Assessment, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	a := newAssessment(uuid.NewString(), c, cancel)
	go o.run(runCtx, a)
	return a, nil
}

type fetchResult struct {
	req  model.ProviderRequest
	resp *gateway.Response
	err  error
}

func (o *Orchestrator) run(ctx context.Context, a *Assessment) {
	defer a.cancel()
	start := o.now()
	log := zap.L().With(
		zap.String("component", "orchestrator"),
		zap.String("assessment_id", a.id),
		zap.String("customer", a.customer.Name),
	)

	a.setState(model.StateFetching)
	results := o.fetch(ctx, a.customer)
	if a.aborted() {
		metrics.ObserveAssessment(o.now().Sub(start), metrics.OutcomeAborted)
		log.Debug("assessment aborted during fetch")
		return
	}

	a.setState(model.StateClassifying)
	snap := &model.IntelligenceSnapshot{
		ID:        a.id,
		Customer:  a.customer,
		Providers: make(map[string]model.ProviderStatus, len(results)),
	}
	data := o.collect(results, a.customer, snap, log)

	a.setState(model.StateScoring)
	snap.Health = o.calculator.Compute(a.customer, data)
	snap.AssembledAt = o.now()

	snap.State = model.StateComplete
	outcome := metrics.OutcomeSuccess
	for _, st := range snap.Providers {
		if st.Status != model.FetchSuccess {
			snap.State = model.StateCompleteDegraded
			outcome = metrics.OutcomeDegraded
			break
		}
	}

	if !a.finish(snap) {
		metrics.ObserveAssessment(o.now().Sub(start), metrics.OutcomeAborted)
		return
	}
	metrics.ObserveAssessment(o.now().Sub(start), outcome)
	log.Info("assessment complete",
		zap.Int("overall", snap.Health.Overall),
		zap.String("confidence", string(snap.Health.Confidence)),
		zap.String("trend", string(snap.Health.Trend)),
		zap.String("state", string(snap.State)),
	)
}

// plan lists one request per registered provider that the customer has
// enough attributes to query.
func (o *Orchestrator) plan(c model.Customer) []model.ProviderRequest {
	host := c.Host()
	year := strconv.Itoa(o.now().Year())
	candidates := []model.ProviderRequest{
		{Provider: config.ProviderWhois, Operation: "lookup", Params: map[string]string{"domain": host}},
		{Provider: config.ProviderWebsite, Operation: "status", Params: map[string]string{"url": c.WebsiteURL()}},
		{Provider: config.ProviderNews, Operation: "search", Params: map[string]string{
			"query": c.Name,
			"days":  strconv.Itoa(o.newsWindow),
		}},
	}
	if c.Location != "" {
		candidates = append(candidates,
			model.ProviderRequest{Provider: config.ProviderLocation, Operation: "geocode", Params: map[string]string{"name": c.Location}},
			model.ProviderRequest{Provider: config.ProviderTimezone, Operation: "lookup", Params: map[string]string{"place": c.Location}},
		)
	}
	if c.Country != "" {
		candidates = append(candidates, model.ProviderRequest{
			Provider:  config.ProviderHolidays,
			Operation: "list",
			Params:    map[string]string{"country": c.Country, "year": year},
		})
	}

	reqs := make([]model.ProviderRequest, 0, len(candidates))
	for _, r := range candidates {
		if _, ok := o.registry.Get(r.Provider); ok {
			reqs = append(reqs, r)
		}
	}
	return reqs
}

// fetch calls every planned provider in parallel and waits for all of them
// to settle. Failures are carried in the results, never returned.
func (o *Orchestrator) fetch(ctx context.Context, c model.Customer) []fetchResult {
	reqs := o.plan(c)
	results := make([]fetchResult, len(reqs))

	var g errgroup.Group
	for i, req := range reqs {
		g.Go(func() error {
			gw, _ := o.registry.Get(req.Provider)
			resp, err := gw.Call(ctx, req.Operation, req.Params)
			results[i] = fetchResult{req: req, resp: resp, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// collect turns fetch results into scoring input, filling snapshot records,
// context and provider statuses.
func (o *Orchestrator) collect(results []fetchResult, c model.Customer, snap *model.IntelligenceSnapshot, log *zap.Logger) health.ProviderData {
	var data health.ProviderData
	var lc model.LocationContext
	var haveContext bool
	now := o.now()

	for _, r := range results {
		st := model.ProviderStatus{
			Provider:  r.req.Provider,
			Operation: r.req.Operation,
			Status:    model.FetchSuccess,
		}
		if r.err != nil {
			ge := gateway.Normalize(r.req.Provider, r.req.Operation, r.err)
			st.Status = model.FetchFailed
			st.ErrorKind = string(ge.Kind)
			st.Error = ge.Message
			snap.Providers[r.req.Provider] = st
			log.Warn("provider failed",
				zap.String("provider", r.req.Provider),
				zap.String("kind", string(ge.Kind)),
				zap.Error(r.err),
			)
			continue
		}
		st.Cached = r.resp.Cached

		var err error
		switch r.req.Provider {
		case config.ProviderWhois:
			data.Domain, err = domainData(r.resp.Data)
		case config.ProviderWebsite:
			data.Website, err = websiteData(r.resp.Data)
		case config.ProviderNews:
			data.News, err = o.news(r.resp.Data, c, now, &st, log)
			if data.News != nil {
				snap.Records = data.News.Records
			}
		case config.ProviderLocation:
			lc.Latitude, lc.Longitude, err = location(r.resp.Data)
			haveContext = haveContext || err == nil
		case config.ProviderTimezone:
			lc.Timezone, err = timezone(r.resp.Data)
			haveContext = haveContext || err == nil
		case config.ProviderHolidays:
			lc.UpcomingHolidays, err = upcomingHolidays(r.resp.Data, now, maxHolidays)
			haveContext = haveContext || err == nil
		}
		if err != nil {
			st.Status = model.FetchDegraded
			st.Note = err.Error()
			if r.req.Provider == config.ProviderNews {
				st.ErrorKind = string(gateway.KindClassificationSkipped)
			}
			log.Debug("provider payload unusable",
				zap.String("provider", r.req.Provider),
				zap.Error(err),
			)
		}
		snap.Providers[r.req.Provider] = st
	}

	if haveContext {
		snap.Context = &lc
	}
	return data
}

// news classifies the news payload. Articles without text are skipped and
// noted on the provider status.
func (o *Orchestrator) news(payload map[string]any, c model.Customer, now time.Time, st *model.ProviderStatus, log *zap.Logger) (*health.NewsData, error) {
	since := now.AddDate(0, 0, -o.newsWindow)
	arts, err := articles(payload, since)
	if err != nil {
		return nil, err
	}

	records, skipped := o.classifier.ClassifyAll(arts, classify.SubjectFor(c, o.keywords))
	if skipped > 0 {
		st.Note = strconv.Itoa(skipped) + " article(s) skipped: no text"
		log.Debug("classification skipped",
			zap.String("kind", string(gateway.KindClassificationSkipped)),
			zap.Int("skipped", skipped),
		)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].Relevance > records[j].Relevance })
	return &health.NewsData{ArticleCount: len(arts), Records: records}, nil
}

// Assessment is a handle on one in-flight assessment.
type Assessment struct {
	id       string
	customer model.Customer
	cancel   context.CancelFunc
	done     chan struct{}

	mu        sync.Mutex
	state     model.AssessmentState
	abandoned bool
	snapshot  *model.IntelligenceSnapshot
}

func newAssessment(id string, c model.Customer, cancel context.CancelFunc) *Assessment {
	return &Assessment{
		id:       id,
		customer: c,
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    model.StatePending,
	}
}

// ID returns the snapshot ID the assessment will produce.
func (a *Assessment) ID() string { return a.id }

// State returns the current state.
func (a *Assessment) State() model.AssessmentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Abort discards the assessment's result. Provider fetches already in flight
// keep running and still populate the cache.
func (a *Assessment) Abort() {
	a.mu.Lock()
	if a.abandoned || a.state.Terminal() {
		a.mu.Unlock()
		return
	}
	a.abandoned = true
	a.mu.Unlock()
	a.cancel()
	close(a.done)
}

// Done is closed once the assessment completes or is aborted.
func (a *Assessment) Done() <-chan struct{} { return a.done }

// Wait blocks until the snapshot is ready, the assessment is aborted, or
// ctx ends.
func (a *Assessment) Wait(ctx context.Context) (*model.IntelligenceSnapshot, error) {
	select {
	case <-a.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.abandoned {
		return nil, ErrAborted
	}
	return a.snapshot, nil
}

func (a *Assessment) aborted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.abandoned
}

func (a *Assessment) setState(s model.AssessmentState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.abandoned {
		return
	}
	zap.L().Debug("assessment state change",
		zap.String("assessment_id", a.id),
		zap.String("from", string(a.state)),
		zap.String("to", string(s)),
	)
	a.state = s
}

// finish publishes snap unless the assessment was aborted first.
func (a *Assessment) finish(snap *model.IntelligenceSnapshot) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.abandoned {
		return false
	}
	a.state = snap.State
	a.snapshot = snap
	close(a.done)
	return true
}
