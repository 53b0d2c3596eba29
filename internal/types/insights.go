package types

import (
	"sort"
	"time"
)

// Metric names used in Insights.Metrics.
const (
	MetricMatchRate      = "match_rate"
	MetricResponseRate   = "response_rate"
	MetricInterviewRate  = "interview_rate"
	MetricApplications   = "applications"
	MetricMatchThreshold = "match_threshold"
	MetricThresholdDelta = "threshold_delta"
)

// Insights is an immutable snapshot of what the learning step derived from past outcomes.
type Insights struct {
	Metrics        map[string]float64 `json:"metrics,omitempty"`
	KeywordWeights map[string]float64 `json:"keyword_weights,omitempty"`
	ComputedAt     time.Time          `json:"computed_at,omitempty"`
}

// Threshold returns the learned match threshold, or def when none was learned.
func (in Insights) Threshold(def float64) float64 {
	if v, ok := in.Metrics[MetricMatchThreshold]; ok && v > 0 && v <= 1 {
		return v
	}
	return def
}

// KeywordWeight returns the learned weight for a keyword (1.0 when unknown).
func (in Insights) KeywordWeight(keyword string) float64 {
	if w, ok := in.KeywordWeights[keyword]; ok {
		return w
	}
	return 1.0
}

// TopKeywords returns up to n keywords whose weight is above 1.0, heaviest first.
func (in Insights) TopKeywords(n int) []string {
	var out []string
	for kw, w := range in.KeywordWeights {
		if w > 1.0 {
			out = append(out, kw)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		wi, wj := in.KeywordWeights[out[i]], in.KeywordWeights[out[j]]
		if wi != wj {
			return wi > wj
		}
		return out[i] < out[j]
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
