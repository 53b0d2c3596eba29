package learning

import (
	"math"
	"strings"
	"time"

	"github.com/jonathan/job-agent/internal/types"
)

// Params tunes how insights are derived.
type Params struct {
	ThresholdStep float64
	MinThreshold  float64
	MaxThreshold  float64
	// LowMatchRate and HighMatchRate bound the acceptable share of scraped jobs that match.
	LowMatchRate  float64
	HighMatchRate float64
	MinWeight     float64
	MaxWeight     float64
}

// DefaultParams returns the standard tuning.
func DefaultParams() Params {
	return Params{
		ThresholdStep: 0.05,
		MinThreshold:  0.50,
		MaxThreshold:  0.95,
		LowMatchRate:  0.10,
		HighMatchRate: 0.80,
		MinWeight:     0.5,
		MaxWeight:     2.0,
	}
}

// RunStats summarizes the run that is about to learn.
type RunStats struct {
	Scraped int
	Matched int
	// Threshold is the match threshold that was active during the run.
	Threshold float64
}

// Recompute derives fresh insights from a snapshot and the finished run.
// It is pure: same inputs, same output.
func Recompute(snap Snapshot, run RunStats, params Params, now time.Time) types.Insights {
	metrics := make(map[string]float64)

	matchRate := 0.0
	if run.Scraped > 0 {
		matchRate = float64(run.Matched) / float64(run.Scraped)
	}
	metrics[types.MetricMatchRate] = round(matchRate, 4)

	positive, interviews := classify(snap)
	apps := len(snap.Applications)
	metrics[types.MetricApplications] = float64(apps)
	if apps > 0 {
		metrics[types.MetricResponseRate] = round(float64(countTrue(positive))/float64(apps), 4)
		metrics[types.MetricInterviewRate] = round(float64(countTrue(interviews))/float64(apps), 4)
	} else {
		metrics[types.MetricResponseRate] = 0
		metrics[types.MetricInterviewRate] = 0
	}

	threshold := run.Threshold
	if run.Scraped > 0 {
		switch {
		case matchRate < params.LowMatchRate:
			threshold = math.Max(params.MinThreshold, threshold-params.ThresholdStep)
		case matchRate > params.HighMatchRate:
			threshold = math.Min(params.MaxThreshold, threshold+params.ThresholdStep)
		}
	}
	threshold = round(threshold, 2)
	metrics[types.MetricMatchThreshold] = threshold
	metrics[types.MetricThresholdDelta] = round(threshold-run.Threshold, 2)

	return types.Insights{
		Metrics:        metrics,
		KeywordWeights: keywordWeights(snap, positive, params),
		ComputedAt:     now,
	}
}

// classify maps application ID to whether any positive / interview-level outcome was observed.
func classify(snap Snapshot) (positive, interviews map[string]bool) {
	positive = make(map[string]bool)
	interviews = make(map[string]bool)
	for _, out := range snap.Outcomes {
		if out.Outcome.Positive() {
			positive[out.ApplicationID] = true
		}
		if out.Outcome == OutcomeInterview || out.Outcome == OutcomeOffer {
			interviews[out.ApplicationID] = true
		}
	}
	return positive, interviews
}

// keywordWeights compares each keyword's smoothed response rate with the overall one.
func keywordWeights(snap Snapshot, positive map[string]bool, params Params) map[string]float64 {
	if len(snap.Applications) == 0 {
		return nil
	}

	total := len(snap.Applications)
	totalPositive := 0
	for _, app := range snap.Applications {
		if positive[app.ApplicationID] {
			totalPositive++
		}
	}
	baseline := (float64(totalPositive) + 1) / (float64(total) + 2)

	type tally struct{ apps, positive int }
	tallies := make(map[string]*tally)
	for _, app := range snap.Applications {
		seen := make(map[string]bool)
		for _, kw := range app.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" || seen[kw] {
				continue
			}
			seen[kw] = true
			t := tallies[kw]
			if t == nil {
				t = &tally{}
				tallies[kw] = t
			}
			t.apps++
			if positive[app.ApplicationID] {
				t.positive++
			}
		}
	}

	weights := make(map[string]float64, len(tallies))
	for kw, t := range tallies {
		rate := (float64(t.positive) + 1) / (float64(t.apps) + 2)
		w := rate / baseline
		w = math.Max(params.MinWeight, math.Min(params.MaxWeight, w))
		weights[kw] = round(w, 3)
	}
	return weights
}

func countTrue(m map[string]bool) int {
	n := 0
	for _, v := range m {
		if v {
			n++
		}
	}
	return n
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
