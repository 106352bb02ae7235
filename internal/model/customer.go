// Package model defines the records that flow through the intelligence engine.
package model

import (
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Tier is the commercial tier of a customer.
type Tier string

const (
	TierEnterprise Tier = "enterprise"
	TierGrowth     Tier = "growth"
	TierStartup    Tier = "startup"
)

// ErrInvalidCustomer is returned when a customer record cannot be assessed.
var ErrInvalidCustomer = eris.New("invalid customer record")

// Customer is the read-only input record supplied by the customer data store.
type Customer struct {
	ID           string    `json:"id,omitempty" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Domain       string    `json:"domain" yaml:"domain"`
	Location     string    `json:"location,omitempty" yaml:"location"`
	Country      string    `json:"country,omitempty" yaml:"country"`
	Industry     string    `json:"industry,omitempty" yaml:"industry"`
	Tier         Tier      `json:"tier" yaml:"tier"`
	LastActivity time.Time `json:"last_activity" yaml:"last_activity"`
}

// Validate reports contract violations. These are the only errors the
// engine surfaces to the caller of an assessment.
func (c Customer) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return eris.Wrap(ErrInvalidCustomer, "name is required")
	}
	if strings.TrimSpace(c.Domain) == "" {
		return eris.Wrap(ErrInvalidCustomer, "domain is required")
	}
	host := c.Host()
	if host == "" || strings.ContainsAny(host, " /") || !strings.Contains(host, ".") {
		return eris.Wrapf(ErrInvalidCustomer, "malformed domain %q", c.Domain)
	}
	switch c.Tier {
	case "", TierEnterprise, TierGrowth, TierStartup:
	default:
		return eris.Wrapf(ErrInvalidCustomer, "unknown tier %q", c.Tier)
	}
	return nil
}

// Host returns the bare lowercase hostname of the customer's domain,
// accepting either "acme.com" or "https://www.acme.com/about".
func (c Customer) Host() string {
	d := strings.TrimSpace(strings.ToLower(c.Domain))
	if d == "" {
		return ""
	}
	if !strings.Contains(d, "://") {
		d = "https://" + d
	}
	u, err := url.Parse(d)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// WebsiteURL returns the https URL checked for website health.
func (c Customer) WebsiteURL() string {
	return "https://" + c.Host()
}
