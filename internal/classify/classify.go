// Package classify tags news-like text with sentiment, event types and a
// relevance score for a customer. Classification is keyword driven and pure:
// the same input and clock always give the same result.
package classify

import (
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"

	"github.com/sells-group/health-intel/internal/model"
)

// ErrNoText is returned for articles with neither title nor body.
var ErrNoText = eris.New("classify: article has no text")

// Relevance weights.
const (
	relevanceBase       = 0.5
	bonusNameInTitle    = 0.3
	bonusNameInBody     = 0.2
	bonusIndustry       = 0.2
	bonusLastDay        = 0.1
	bonusLastWeek       = 0.1
	bonusHighImportance = 0.2
)

// Subject is what relevance is measured against.
type Subject struct {
	Name             string
	IndustryKeywords []string
}

// SubjectFor builds a Subject from a customer, adding its industry to the
// configured keywords.
func SubjectFor(c model.Customer, keywords []string) Subject {
	kw := make([]string, 0, len(keywords)+1)
	kw = append(kw, keywords...)
	if c.Industry != "" {
		kw = append(kw, c.Industry)
	}
	return Subject{Name: c.Name, IndustryKeywords: kw}
}

// Classifier classifies articles relative to a clock.
type Classifier struct {
	now func() time.Time
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithNow sets the clock used for recency bonuses.
func WithNow(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// New creates a Classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify derives sentiment, event tags and relevance for one article.
func (c *Classifier) Classify(a model.Article, s Subject) (model.TextRecord, error) {
	return ClassifyAt(a, s, c.now())
}

// ClassifyAll classifies every article that has text, preserving input
// order. Articles without text are reported through skipped.
func (c *Classifier) ClassifyAll(articles []model.Article, s Subject) (records []model.TextRecord, skipped int) {
	now := c.now()
	records = make([]model.TextRecord, 0, len(articles))
	for _, a := range articles {
		rec, err := ClassifyAt(a, s, now)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}

// ClassifyAt is Classify with an explicit reference time.
func ClassifyAt(a model.Article, s Subject, now time.Time) (model.TextRecord, error) {
	if strings.TrimSpace(a.Title) == "" && strings.TrimSpace(a.Body) == "" {
		return model.TextRecord{}, ErrNoText
	}
	text := a.Title + "\n" + a.Body
	tags := EventTags(text)
	return model.TextRecord{
		Article:   a,
		Sentiment: Sentiment(text),
		Events:    tags,
		Relevance: Relevance(a, tags, s, now),
	}, nil
}

// Sentiment counts positive and negative keywords. The larger count wins;
// a tie is neutral.
func Sentiment(text string) model.Sentiment {
	var pos, neg int
	for _, w := range words(text) {
		switch {
		case positiveWords[w]:
			pos++
		case negativeWords[w]:
			neg++
		}
	}
	switch {
	case pos > neg:
		return model.SentimentPositive
	case neg > pos:
		return model.SentimentNegative
	default:
		return model.SentimentNeutral
	}
}

// EventTags returns every event category whose pattern matches text, in
// canonical category order.
func EventTags(text string) []model.EventTag {
	var tags []model.EventTag
	for _, p := range eventPatterns {
		if p.re.MatchString(text) {
			tags = append(tags, p.tag)
		}
	}
	return tags
}

// Relevance scores how strongly an article concerns the subject, in [0,1].
func Relevance(a model.Article, tags []model.EventTag, s Subject, now time.Time) float64 {
	score := relevanceBase

	title, body := fold(a.Title), fold(a.Body)
	if name := fold(strings.TrimSpace(s.Name)); name != "" {
		if strings.Contains(title, name) {
			score += bonusNameInTitle
		}
		if strings.Contains(body, name) {
			score += bonusNameInBody
		}
	}

	for _, kw := range s.IndustryKeywords {
		kw = fold(strings.TrimSpace(kw))
		if kw != "" && (strings.Contains(title, kw) || strings.Contains(body, kw)) {
			score += bonusIndustry
			break
		}
	}

	if !a.PublishedAt.IsZero() {
		age := now.Sub(a.PublishedAt)
		if age < 24*time.Hour {
			score += bonusLastDay
		}
		if age < 7*24*time.Hour {
			score += bonusLastWeek
		}
	}

	for _, t := range tags {
		if highImportance[t] {
			score += bonusHighImportance
			break
		}
	}

	return clamp(score)
}

func clamp(v float64) float64 {
	v = math.Round(v*100) / 100
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// fold applies Unicode case folding. A Caser is stateful, so each call gets
// its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

func words(text string) []string {
	return strings.FieldsFunc(fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
