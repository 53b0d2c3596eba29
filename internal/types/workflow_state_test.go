package types

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func posting(source, id string) JobPosting {
	return JobPosting{Source: source, ExternalID: id, Title: "Engineer " + id, Company: "Acme"}
}

func TestJobPosting_Key(t *testing.T) {
	assert.Equal(t, "board:123", posting("board", "123").Key())
	assert.NotEqual(t, posting("board", "1").Key(), posting("search", "1").Key(), "same id on different sources are distinct jobs")
	assert.Equal(t, "lever:9", MatchedJob{Job: posting("lever", "9")}.Key())
}

func TestWorkflowStatus_Terminal(t *testing.T) {
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusWaitingApproval.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestNewWorkflowState(t *testing.T) {
	now := time.Now()
	s := NewWorkflowState("user-1", Preferences{Keywords: []string{"go"}}, "resume", Insights{}, now)

	assert.NotEqual(t, uuid.Nil, s.WorkflowID)
	assert.Equal(t, StatusRunning, s.Status)
	assert.NotNil(t, s.ScrapedJobs)
	assert.NotNil(t, s.Decisions)
	assert.Equal(t, now, s.CreatedAt)
	assert.NoError(t, s.CheckInvariants())
}

func TestWorkflowState_Lookups(t *testing.T) {
	s := NewWorkflowState("user-1", Preferences{}, "", Insights{}, time.Now())
	s.ScrapedJobs = []JobPosting{posting("board", "1"), posting("board", "2"), posting("board", "3")}
	s.Evaluations = []Evaluation{{JobKey: "board:2", Score: 0.4}}
	s.ProcessedJobs = []JobOutcome{{JobKey: "board:1", Result: JobResultRejected}}
	s.ResolvedTokens = []string{"tok-1"}

	job, ok := s.ScrapedJob("board:3")
	require.True(t, ok)
	assert.Equal(t, "3", job.ExternalID)
	_, ok = s.ScrapedJob("board:9")
	assert.False(t, ok)

	assert.True(t, s.Evaluated("board:2"))
	unevaluated := s.Unevaluated()
	require.Len(t, unevaluated, 2)
	assert.Equal(t, "board:1", unevaluated[0].Key())
	assert.Equal(t, "board:3", unevaluated[1].Key())

	assert.True(t, s.Processed("board:1"))
	assert.False(t, s.Processed("board:2"))
	assert.True(t, s.TokenResolved("tok-1"))
	assert.False(t, s.TokenResolved("tok-2"))
}

func TestWorkflowState_CheckInvariants(t *testing.T) {
	sent := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		mutate  func(s *WorkflowState)
		wantErr string
	}{
		{name: "valid", mutate: func(*WorkflowState) {}},
		{
			name:    "duplicate scraped job",
			mutate:  func(s *WorkflowState) { s.ScrapedJobs = append(s.ScrapedJobs, posting("board", "1")) },
			wantErr: "duplicate scraped job",
		},
		{
			name:    "matched job not scraped",
			mutate:  func(s *WorkflowState) { s.MatchedJobs = append(s.MatchedJobs, MatchedJob{Job: posting("board", "9"), Score: 0.5}) },
			wantErr: "not in scraped jobs",
		},
		{
			name:    "score out of range",
			mutate:  func(s *WorkflowState) { s.MatchedJobs[0].Score = 1.2 },
			wantErr: "outside [0,1]",
		},
		{
			name: "matches out of order",
			mutate: func(s *WorkflowState) {
				s.MatchedJobs[0], s.MatchedJobs[1] = s.MatchedJobs[1], s.MatchedJobs[0]
			},
			wantErr: "descending score",
		},
		{
			name:    "document without current job",
			mutate:  func(s *WorkflowState) { s.CurrentJob = nil },
			wantErr: "current job must be set",
		},
		{
			name:    "current job without document",
			mutate: func(s *WorkflowState) {
				s.TailoredDocument, s.ApprovalRecord = nil, nil
			},
			wantErr: "current job must be set",
		},
		{
			name:    "expiry not 24h after send",
			mutate:  func(s *WorkflowState) { s.ApprovalRecord.ExpiresAt = sent.Add(48 * time.Hour) },
			wantErr: "expiry",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewWorkflowState("user-1", Preferences{}, "", Insights{}, sent)
			s.ScrapedJobs = []JobPosting{posting("board", "1"), posting("board", "2")}
			s.MatchedJobs = []MatchedJob{
				{Job: posting("board", "2"), Score: 0.9},
				{Job: posting("board", "1"), Score: 0.75},
			}
			current := s.MatchedJobs[0]
			s.CurrentJob = &current
			s.TailoredDocument = &TailoredDocument{Content: "tailored"}
			s.ApprovalRecord = &ApprovalRecord{Status: ApprovalPending, Token: "t", SentAt: sent, ExpiresAt: sent.Add(ApprovalWindow)}

			tt.mutate(s)
			err := s.CheckInvariants()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWorkflowState_ClearCurrentJob(t *testing.T) {
	s := NewWorkflowState("user-1", Preferences{}, "", Insights{}, time.Now())
	m := MatchedJob{Job: posting("board", "1")}
	s.CurrentJob = &m
	s.TailoredDocument = &TailoredDocument{}
	s.ApprovalRecord = &ApprovalRecord{}

	s.ClearCurrentJob()
	assert.Nil(t, s.CurrentJob)
	assert.Nil(t, s.TailoredDocument)
	assert.Nil(t, s.ApprovalRecord)
}

func TestWorkflowState_CloneIsDeep(t *testing.T) {
	s := NewWorkflowState("user-1", Preferences{Keywords: []string{"go"}}, "", Insights{}, time.Now())
	s.ScrapedJobs = []JobPosting{posting("board", "1")}
	s.AddDecision("scrape", "scraped", "1 job", time.Now())
	s.AddError("match", "timeout", true, time.Now())

	clone, err := s.Clone()
	require.NoError(t, err)
	assert.Equal(t, s.WorkflowID, clone.WorkflowID)
	require.Len(t, clone.Errors, 1)
	assert.True(t, clone.Errors[0].Transient)

	clone.ScrapedJobs[0].Title = "changed"
	clone.Preferences.Keywords[0] = "rust"
	assert.Equal(t, "Engineer 1", s.ScrapedJobs[0].Title)
	assert.Equal(t, "go", s.Preferences.Keywords[0])
}

func TestPreferences_Validate(t *testing.T) {
	tests := []struct {
		name    string
		prefs   Preferences
		wantErr bool
	}{
		{name: "keywords only", prefs: Preferences{Keywords: []string{"go"}}},
		{name: "full", prefs: Preferences{Keywords: []string{"go"}, Location: "Remote", JobType: "contract", SalaryMin: 90000}},
		{name: "no keywords", prefs: Preferences{}, wantErr: true},
		{name: "blank keyword", prefs: Preferences{Keywords: []string{""}}, wantErr: true},
		{name: "unknown job type", prefs: Preferences{Keywords: []string{"go"}, JobType: "gig"}, wantErr: true},
		{name: "negative salary", prefs: Preferences{Keywords: []string{"go"}, SalaryMin: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.prefs.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInsights_KeywordWeights(t *testing.T) {
	in := Insights{KeywordWeights: map[string]float64{"go": 1.5, "java": 0.6, "k8s": 1.5, "sql": 1.2}}

	assert.Equal(t, 1.5, in.KeywordWeight("go"))
	assert.Equal(t, 1.0, in.KeywordWeight("cobol"))
	assert.Equal(t, []string{"go", "k8s", "sql"}, in.TopKeywords(0))
	assert.Equal(t, []string{"go", "k8s"}, in.TopKeywords(2))
	assert.Empty(t, Insights{}.TopKeywords(3))
}
