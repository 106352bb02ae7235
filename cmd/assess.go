package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/health-intel/internal/intel"
	"github.com/sells-group/health-intel/internal/model"
)

var (
	assessFile         string
	assessName         string
	assessDomain       string
	assessTier         string
	assessIndustry     string
	assessLocation     string
	assessCountry      string
	assessLastActivity string
	assessConcurrency  int
	assessDemo         bool
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Assess customer health and print snapshots as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var customers []model.Customer
		if assessFile != "" {
			cs, err := loadCustomers(assessFile)
			if err != nil {
				return err
			}
			customers = cs
		} else {
			c, err := customerFromFlags()
			if err != nil {
				return err
			}
			customers = []model.Customer{c}
		}

		transport := httpTransport
		if assessDemo {
			transport = demoTransport(time.Now)
		}
		env, err := initEngine(ctx, cfg, transport)
		if err != nil {
			return err
		}
		defer env.Close()

		return assessAll(ctx, env.Orchestrator, customers, assessConcurrency, cmd.OutOrStdout())
	},
}

// loadCustomers reads a YAML list of customers, either top-level or under a
// "customers" key.
func loadCustomers(path string) ([]model.Customer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read customers file %s", path)
	}

	var list []model.Customer
	if err := yaml.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var doc struct {
		Customers []model.Customer `yaml:"customers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "parse customers file %s", path)
	}
	return doc.Customers, nil
}

func customerFromFlags() (model.Customer, error) {
	c := model.Customer{
		Name:     assessName,
		Domain:   assessDomain,
		Tier:     model.Tier(assessTier),
		Industry: assessIndustry,
		Location: assessLocation,
		Country:  assessCountry,
	}
	if assessLastActivity != "" {
		t, err := parseActivity(assessLastActivity)
		if err != nil {
			return model.Customer{}, err
		}
		c.LastActivity = t
	}
	return c, nil
}

func parseActivity(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("invalid --last-activity %q (want RFC3339 or YYYY-MM-DD)", s)
}

// assessAll assesses customers with bounded concurrency and writes the
// snapshots, in input order, as a JSON array. Customers that fail are logged
// and omitted; the returned error reports how many failed.
func assessAll(ctx context.Context, o *intel.Orchestrator, customers []model.Customer, concurrency int, out io.Writer) error {
	if concurrency <= 0 {
		concurrency = 4
	}
	snaps := make([]*model.IntelligenceSnapshot, len(customers))
	errs := make([]error, len(customers))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, c := range customers {
		g.Go(func() error {
			snaps[i], errs[i] = o.Assess(gCtx, c)
			return nil
		})
	}
	_ = g.Wait()

	results := make([]*model.IntelligenceSnapshot, 0, len(customers))
	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			zap.L().Error("assessment failed",
				zap.String("customer", customers[i].Name),
				zap.String("domain", customers[i].Domain),
				zap.Error(err),
			)
			continue
		}
		results = append(results, snaps[i])
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return eris.Wrap(err, "write snapshots")
	}
	if failed > 0 {
		return eris.Errorf("%d of %d assessments failed", failed, len(customers))
	}
	return nil
}

func init() {
	f := assessCmd.Flags()
	f.StringVar(&assessFile, "file", "", "YAML file of customers")
	f.StringVar(&assessName, "name", "", "customer name")
	f.StringVar(&assessDomain, "domain", "", "customer domain")
	f.StringVar(&assessTier, "tier", "", "customer tier (enterprise, growth, startup)")
	f.StringVar(&assessIndustry, "industry", "", "customer industry")
	f.StringVar(&assessLocation, "location", "", "customer location for context lookups")
	f.StringVar(&assessCountry, "country", "", "ISO country code for holiday lookups")
	f.StringVar(&assessLastActivity, "last-activity", "", "last activity (RFC3339 or YYYY-MM-DD)")
	f.IntVar(&assessConcurrency, "concurrency", 4, "customers assessed in parallel")
	f.BoolVar(&assessDemo, "demo", false, "use canned provider responses")
	rootCmd.AddCommand(assessCmd)
}
