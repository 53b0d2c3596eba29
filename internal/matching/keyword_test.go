package matching

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-agent/internal/types"
)

func goJob() types.JobPosting {
	return types.JobPosting{
		Source:      "board",
		ExternalID:  "1",
		Title:       "Senior Go Engineer",
		Description: "Build backend services with Postgres",
		Location:    "Remote - US",
		JobType:     "full-time",
		SalaryMax:   150000,
	}
}

func goPrefs() types.Preferences {
	return types.Preferences{
		Keywords:  []string{"go", "backend"},
		Skills:    []string{"postgres", "kafka"},
		Location:  "Remote",
		JobType:   "full-time",
		SalaryMin: 120000,
	}
}

func TestKeywordScorer_Score(t *testing.T) {
	scorer := &KeywordScorer{}

	score, err := scorer.Score(context.Background(), goJob(), goPrefs(), types.Insights{})
	require.NoError(t, err)
	assert.InDelta(t, 0.91, score.Value, 1e-9)
	assert.Contains(t, score.Rationale, "go, backend, postgres")
}

func TestKeywordScorer_UsesLearnedWeights(t *testing.T) {
	insights := types.Insights{KeywordWeights: map[string]float64{"kafka": 2.0}}

	score, err := (&KeywordScorer{}).Score(context.Background(), goJob(), goPrefs(), insights)
	require.NoError(t, err)
	assert.InDelta(t, 0.86, score.Value, 1e-9)
}

func TestKeywordScorer_ExcludedKeyword(t *testing.T) {
	job := goJob()
	job.Description += ". Active security clearance required."

	score, err := (&KeywordScorer{Excluded: []string{"Clearance"}}).Score(context.Background(), job, goPrefs(), types.Insights{})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score.Value)
	assert.Contains(t, score.Rationale, "clearance")
}

func TestSalaryScore(t *testing.T) {
	tests := []struct {
		name   string
		jobMin int
		jobMax int
		floor  int
		want   float64
	}{
		{name: "no floor", jobMax: 10, want: 1},
		{name: "unknown salary", floor: 100000, want: 0.5},
		{name: "meets floor", jobMax: 100000, floor: 100000, want: 1},
		{name: "within 80 percent", jobMin: 85000, floor: 100000, want: 0.7},
		{name: "within 60 percent", jobMax: 65000, floor: 100000, want: 0.4},
		{name: "far below", jobMax: 50000, floor: 100000, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, salaryScore(tt.jobMin, tt.jobMax, tt.floor))
		})
	}
}

func TestTitleAndLocationScore(t *testing.T) {
	assert.Equal(t, 1.0, titleScore("Staff Backend Engineer", []string{"backend"}))
	assert.Equal(t, 0.5, titleScore("Data Engineer", []string{"platform engineer"}))
	assert.Equal(t, 0.0, titleScore("", []string{"go"}))

	assert.Equal(t, 1.0, locationScore("Berlin, Germany", "berlin"))
	assert.Equal(t, 0.3, locationScore("Austin, TX", "Remote"))
	assert.Equal(t, 0.5, locationScore("", "Remote"))
	assert.Equal(t, 1.0, locationScore("Austin, TX", ""))
}
