package classify

import (
	"regexp"

	"github.com/sells-group/health-intel/internal/model"
)

var positiveWords = toSet(
	"growth", "grow", "grows", "growing", "record", "profit", "profits", "profitable",
	"expand", "expands", "expansion", "launch", "launches", "award", "awarded",
	"win", "wins", "won", "success", "successful", "strong", "surge", "surges",
	"gain", "gains", "innovative", "innovation", "beat", "beats", "raise", "raised",
	"funding", "milestone", "soar", "soars", "upgrade", "upgraded", "positive",
	"exceeds", "outperform", "outperforms", "boost", "boosts", "partnership",
)

var negativeWords = toSet(
	"loss", "losses", "lawsuit", "sued", "decline", "declines", "declining",
	"layoff", "layoffs", "cut", "cuts", "bankrupt", "bankruptcy", "fraud",
	"breach", "fined", "penalty", "downgrade", "downgraded", "drop", "drops",
	"fall", "falls", "weak", "weaker", "miss", "misses", "missed",
	"investigation", "recall", "negative", "warning", "struggle", "struggles",
	"shutdown", "resigns", "resigned", "scandal", "default", "delay", "delays",
)

type eventPattern struct {
	tag model.EventTag
	re  *regexp.Regexp
}

// eventPatterns are evaluated in this order.
var eventPatterns = []eventPattern{
	{model.EventFunding, regexp.MustCompile(`(?i)\b(rais(e|es|ed|ing)\s+\$?[\d.]+|funding|series [a-f]\b|seed round|venture capital|investment round)`)},
	{model.EventAcquisition, regexp.MustCompile(`(?i)\b(acquir(e|es|ed|ing)|acquisition|merger|merg(e|es|ed|ing) with|buyout|takeover)\b`)},
	{model.EventLaunch, regexp.MustCompile(`(?i)\b(launch(es|ed|ing)?|unveil(s|ed|ing)?|introduc(es|ed|ing)|rolls? out|debut(s|ed)?)\b`)},
	{model.EventHiring, regexp.MustCompile(`(?i)\b(hiring|hires|hired|recruit(s|ed|ing)?|appoint(s|ed|ment)?|job openings|new (ceo|cfo|cto|coo))\b`)},
	{model.EventLayoffs, regexp.MustCompile(`(?i)\b(layoffs?|laid off|lay(s)? off|job cuts|workforce reduction|downsiz(e|es|ed|ing))\b`)},
	{model.EventLegal, regexp.MustCompile(`(?i)\b(lawsuit|sue[sd]?|suing|litigation|court|settlement|regulators?|indict(ed|ment)|fined)\b`)},
	{model.EventPartnership, regexp.MustCompile(`(?i)\b(partner(s|ed|ing|ship|ships)?|alliance|collaborat(e|es|ed|ion)|joint venture|teams? up)\b`)},
	{model.EventExpansion, regexp.MustCompile(`(?i)\b(expan(d|ds|ded|ding|sion)|new (office|offices|market|markets|location|headquarters)|opens? (a |an |its )?(new )?(office|store|facility|plant))\b`)},
	{model.EventFinancialResults, regexp.MustCompile(`(?i)\b(earnings|revenue|quarterly results|q[1-4] results|fiscal (year|quarter)|net income|guidance)\b`)},
}

var highImportance = map[model.EventTag]bool{
	model.EventFunding:     true,
	model.EventAcquisition: true,
	model.EventLayoffs:     true,
}

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
