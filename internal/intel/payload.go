package intel

import (
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rotisserie/eris"

	"github.com/sells-group/health-intel/internal/health"
	"github.com/sells-group/health-intel/internal/model"
)

// errUnusable marks a successful response whose payload carries nothing the
// engine can score.
var errUnusable = eris.New("intel: payload has no usable fields")

var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"}

var inactiveDomainStatuses = map[string]bool{
	"expired":          true,
	"inactive":         true,
	"suspended":        true,
	"hold":             true,
	"serverhold":       true,
	"clienthold":       true,
	"redemptionperiod": true,
	"pendingdelete":    true,
}

type whoisPayload struct {
	Created string `mapstructure:"created"`
	Status  string `mapstructure:"status"`
}

type websitePayload struct {
	StatusCode  int                 `mapstructure:"status_code"`
	Certificate *certificatePayload `mapstructure:"certificate"`
}

type certificatePayload struct {
	Valid bool `mapstructure:"valid"`
}

type articlePayload struct {
	Title       string `mapstructure:"title"`
	Body        string `mapstructure:"body"`
	Description string `mapstructure:"description"`
	URL         string `mapstructure:"url"`
	Source      string `mapstructure:"source"`
	PublishedAt string `mapstructure:"published_at"`
}

type newsPayload struct {
	Articles []articlePayload `mapstructure:"articles"`
}

type locationPayload struct {
	Latitude  float64 `mapstructure:"latitude"`
	Longitude float64 `mapstructure:"longitude"`
}

type timezonePayload struct {
	Timezone string `mapstructure:"timezone"`
}

type holidayPayload struct {
	Date string `mapstructure:"date"`
	Name string `mapstructure:"name"`
}

type holidaysPayload struct {
	Holidays []holidayPayload `mapstructure:"holidays"`
	Items    []holidayPayload `mapstructure:"items"`
}

func decode(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return eris.Wrap(err, "intel: build decoder")
	}
	if err := dec.Decode(data); err != nil {
		return eris.Wrap(err, "intel: decode payload")
	}
	return nil
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func domainData(data map[string]any) (*health.DomainData, error) {
	var p whoisPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	created, ok := parseTime(p.Created)
	status := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(p.Status), " ", ""))
	if !ok && status == "" {
		return nil, errUnusable
	}
	return &health.DomainData{
		Created: created,
		Active:  !inactiveDomainStatuses[status],
	}, nil
}

func websiteData(data map[string]any) (*health.WebsiteData, error) {
	var p websitePayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	if p.StatusCode == 0 {
		return nil, errUnusable
	}
	w := &health.WebsiteData{StatusCode: p.StatusCode}
	if p.Certificate != nil {
		w.CertPresent = true
		w.CertValid = p.Certificate.Valid
	}
	return w, nil
}

// articles decodes the news payload, dropping items published before since.
// Undated items are kept.
func articles(data map[string]any, since time.Time) ([]model.Article, error) {
	if _, ok := data["articles"]; !ok {
		return nil, errUnusable
	}
	var p newsPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	out := make([]model.Article, 0, len(p.Articles))
	for _, a := range p.Articles {
		published, _ := parseTime(a.PublishedAt)
		if !published.IsZero() && published.Before(since) {
			continue
		}
		body := a.Body
		if body == "" {
			body = a.Description
		}
		out = append(out, model.Article{
			Title:       a.Title,
			Body:        body,
			URL:         a.URL,
			Source:      a.Source,
			PublishedAt: published,
		})
	}
	return out, nil
}

func location(data map[string]any) (lat, lon float64, err error) {
	var p locationPayload
	if err := decode(data, &p); err != nil {
		return 0, 0, err
	}
	if p.Latitude == 0 && p.Longitude == 0 {
		return 0, 0, errUnusable
	}
	return p.Latitude, p.Longitude, nil
}

func timezone(data map[string]any) (string, error) {
	var p timezonePayload
	if err := decode(data, &p); err != nil {
		return "", err
	}
	if p.Timezone == "" {
		return "", errUnusable
	}
	return p.Timezone, nil
}

// upcomingHolidays returns at most limit holidays on or after the day of
// now, earliest first.
func upcomingHolidays(data map[string]any, now time.Time, limit int) ([]model.Holiday, error) {
	var p holidaysPayload
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	all := append(p.Holidays, p.Items...)
	if len(all) == 0 {
		return nil, errUnusable
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var out []model.Holiday
	for _, h := range all {
		d, ok := parseTime(h.Date)
		if !ok || d.Before(today) {
			continue
		}
		out = append(out, model.Holiday{Date: d, Name: h.Name})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
