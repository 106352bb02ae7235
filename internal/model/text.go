package model

import "time"

// Sentiment is the polarity of a text record.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// EventTag categorizes what a text record reports on.
type EventTag string

const (
	EventFunding          EventTag = "funding"
	EventAcquisition      EventTag = "acquisition"
	EventLaunch           EventTag = "launch"
	EventHiring           EventTag = "hiring"
	EventLayoffs          EventTag = "layoffs"
	EventLegal            EventTag = "legal"
	EventPartnership      EventTag = "partnership"
	EventExpansion        EventTag = "expansion"
	EventFinancialResults EventTag = "financial_results"
)

// Article is a raw news-like item returned by a text-bearing provider.
type Article struct {
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	URL         string    `json:"url,omitempty"`
	Source      string    `json:"source,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// TextRecord is an article plus its derived classification.
type TextRecord struct {
	Article
	Sentiment Sentiment  `json:"sentiment"`
	Events    []EventTag `json:"events"`
	Relevance float64    `json:"relevance"`
}

// NetSentiment returns positives minus negatives across records.
func NetSentiment(records []TextRecord) int {
	net := 0
	for _, r := range records {
		switch r.Sentiment {
		case SentimentPositive:
			net++
		case SentimentNegative:
			net--
		}
	}
	return net
}
