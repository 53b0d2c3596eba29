package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/job-agent/internal/learning"
	"github.com/jonathan/job-agent/internal/providers"
	"github.com/jonathan/job-agent/internal/types"
)

// agentFunc performs one stage against the state. It records its own decisions
// and error entries; a non-nil return marks the invocation as failed.
type agentFunc func(ctx context.Context, s *types.WorkflowState, step Step) error

// AgentDefinition describes a stage and the capability it calls.
type AgentDefinition struct {
	Name     AgentName
	Provider string
}

// AgentRegistry lists the stages in their nominal order.
var AgentRegistry = []AgentDefinition{
	{Name: AgentScrape, Provider: "scraper"},
	{Name: AgentMatch, Provider: "scorer"},
	{Name: AgentTailor, Provider: "tailor"},
	{Name: AgentApprove, Provider: "notifier"},
	{Name: AgentApply, Provider: "submitter"},
	{Name: AgentLearn, Provider: "learning store"},
}

func (e *Engine) agentFuncs() map[AgentName]agentFunc {
	return map[AgentName]agentFunc{
		AgentScrape:  e.scrape,
		AgentMatch:   e.match,
		AgentTailor:  e.tailor,
		AgentApprove: e.approve,
		AgentApply:   e.apply,
		AgentLearn:   e.learn,
	}
}

func (e *Engine) scrape(ctx context.Context, s *types.WorkflowState, _ Step) error {
	sources := e.providers.Sources
	if len(sources) == 0 {
		err := errors.New("no job sources configured")
		s.AddError(string(AgentScrape), err.Error(), false, e.now())
		return err
	}

	prefs := s.Preferences
	results := make([][]types.JobPosting, len(sources))
	failures := make([]error, len(sources))

	// Source errors stay in their slot and never cancel the group.
	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			jobs, err := providers.Call(ctx, e.policy.Provider, func(ctx context.Context) ([]types.JobPosting, error) {
				return src.Scrape(ctx, prefs)
			}, nil)
			results[i], failures[i] = jobs, err
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	now := e.now()
	seen := make(map[string]bool, len(s.ScrapedJobs))
	for _, j := range s.ScrapedJobs {
		seen[j.Key()] = true
	}

	failed, added, dropped := 0, 0, 0
	for i, src := range sources {
		if failures[i] != nil {
			failed++
			s.AddError(string(AgentScrape), fmt.Sprintf("source %s: %v", src.Name(), failures[i]), false, now)
			continue
		}
		for _, job := range results[i] {
			if job.Source == "" {
				job.Source = src.Name()
			}
			if job.ExternalID == "" || seen[job.Key()] {
				dropped++
				continue
			}
			seen[job.Key()] = true
			if job.ScrapedAt.IsZero() {
				job.ScrapedAt = now
			}
			job.Seq = len(s.ScrapedJobs)
			s.ScrapedJobs = append(s.ScrapedJobs, job)
			added++
		}
	}

	if failed == len(sources) {
		return fmt.Errorf("all %d job sources failed", failed)
	}

	s.ScrapeCompleted = true
	s.AddDecision(string(AgentScrape), fmt.Sprintf("scraped_%d_jobs", added),
		fmt.Sprintf("%d of %d sources succeeded, %d duplicates dropped", len(sources)-failed, len(sources), dropped), now)
	return nil
}

func (e *Engine) match(ctx context.Context, s *types.WorkflowState, _ Step) error {
	threshold := s.LearningInsights.Threshold(e.policy.MatchThreshold)
	pending := s.Unevaluated()

	scored, matched := 0, 0
	for _, job := range pending {
		score, err := providers.Call(ctx, e.policy.Provider, func(ctx context.Context) (*providers.Score, error) {
			return e.providers.Scorer.Score(ctx, job, s.Preferences, s.LearningInsights)
		}, nil)
		if err == nil && (score == nil || score.Value < 0 || score.Value > 1) {
			err = &providers.ProviderError{Provider: "scorer", Message: "score outside [0,1]"}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.AddError(string(AgentMatch), fmt.Sprintf("score %s: %v", job.Key(), err), false, e.now())
			s.Evaluations = append(s.Evaluations, types.Evaluation{JobKey: job.Key(), Rationale: err.Error(), Skipped: true})
			continue
		}

		scored++
		ok := score.Value >= threshold
		s.Evaluations = append(s.Evaluations, types.Evaluation{
			JobKey:    job.Key(),
			Score:     score.Value,
			Rationale: score.Rationale,
			Matched:   ok,
		})
		if ok {
			matched++
			s.MatchedJobs = append(s.MatchedJobs, types.MatchedJob{Job: job, Score: score.Value, Rationale: score.Rationale})
		}
	}

	sort.SliceStable(s.MatchedJobs, func(i, j int) bool {
		a, b := s.MatchedJobs[i], s.MatchedJobs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Job.Seq < b.Job.Seq
	})

	if scored == 0 && len(pending) > 0 {
		return fmt.Errorf("none of %d jobs could be scored", len(pending))
	}

	s.AddDecision(string(AgentMatch), fmt.Sprintf("matched_%d_of_%d_jobs", matched, len(pending)),
		fmt.Sprintf("threshold %.2f", threshold), e.now())
	return nil
}

func (e *Engine) tailor(ctx context.Context, s *types.WorkflowState, step Step) error {
	var target *types.MatchedJob
	for i := range s.MatchedJobs {
		if s.MatchedJobs[i].Key() == step.JobKey {
			target = &s.MatchedJobs[i]
			break
		}
	}
	if target == nil {
		err := fmt.Errorf("job %s is not a matched job", step.JobKey)
		s.AddError(string(AgentTailor), err.Error(), false, e.now())
		return err
	}

	req := providers.TailorRequest{
		Resume:   s.BaseResume,
		Job:      target.Job,
		Emphasis: s.LearningInsights.TopKeywords(5),
	}
	doc, err := providers.Call(ctx, e.policy.Provider, func(ctx context.Context) (*types.TailoredDocument, error) {
		return e.providers.Tailor.Tailor(ctx, req)
	}, nil)
	if err == nil && (doc == nil || len(doc.ChangeLog) == 0) {
		err = &providers.TailorError{Message: "tailored document has no change log"}
	}

	now := e.now()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.AddError(string(AgentTailor), fmt.Sprintf("tailor %s: %v", step.JobKey, err), false, now)
		s.ProcessedJobs = append(s.ProcessedJobs, types.JobOutcome{
			JobKey:   step.JobKey,
			Result:   types.JobResultTailorFailed,
			Score:    target.Score,
			Feedback: err.Error(),
			At:       now,
		})
		s.AddDecision(string(AgentTailor), "skipped_"+step.JobKey, "tailoring failed", now)
		return err
	}

	current := *target
	s.CurrentJob = &current
	s.TailoredDocument = doc
	s.AddDecision(string(AgentTailor), "tailored_"+step.JobKey, fmt.Sprintf("%d edits", len(doc.ChangeLog)), now)
	return nil
}

func (e *Engine) approve(ctx context.Context, s *types.WorkflowState, step Step) error {
	sentAt := e.now()
	expiresAt := sentAt.Add(types.ApprovalWindow)

	req := providers.NotifyRequest{
		WorkflowID: s.WorkflowID,
		Job:        s.CurrentJob.Job,
		Document:   *s.TailoredDocument,
		Score:      s.CurrentJob.Score,
		Rationale:  s.CurrentJob.Rationale,
		SentAt:     sentAt,
		ExpiresAt:  expiresAt,
	}
	handle, err := providers.Call(ctx, e.policy.Provider, func(ctx context.Context) (*providers.ApprovalHandle, error) {
		return e.providers.Notifier.Notify(ctx, req)
	}, nil)
	if err == nil && (handle == nil || handle.Token == "") {
		err = &providers.ProviderError{Provider: "notifier", Message: "no approval token returned"}
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.AddError(string(AgentApprove), fmt.Sprintf("notify %s: %v", step.JobKey, err), false, e.now())
		return err
	}

	s.ApprovalRecord = &types.ApprovalRecord{
		Status:    types.ApprovalPending,
		Token:     handle.Token,
		SentAt:    sentAt,
		ExpiresAt: expiresAt,
	}
	s.Status = types.StatusWaitingApproval
	s.AddDecision(string(AgentApprove), "approval_requested_"+step.JobKey,
		"expires "+expiresAt.Format("2006-01-02T15:04:05Z07:00"), sentAt)
	return nil
}

func (e *Engine) apply(ctx context.Context, s *types.WorkflowState, step Step) error {
	job := s.CurrentJob.Job
	doc := *s.TailoredDocument

	p := e.policy.Provider
	p.Attempts = e.policy.SubmitAttempts
	receipt, err := providers.Call(ctx, p, func(ctx context.Context) (*types.Receipt, error) {
		return e.providers.Submitter.Submit(ctx, job, doc)
	}, func(attempt int, err error, last bool) {
		if !last {
			s.AddError(string(AgentApply), fmt.Sprintf("submit %s attempt %d: %v", step.JobKey, attempt, err), true, e.now())
		}
	})
	if err == nil && receipt == nil {
		err = &providers.SubmissionError{Message: "submitter returned no receipt", Permanent: true}
	}

	now := e.now()
	outcome := types.JobOutcome{
		JobKey:   step.JobKey,
		Score:    s.CurrentJob.Score,
		Feedback: s.ApprovalRecord.Feedback,
		At:       now,
	}

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.AddError(string(AgentApply), fmt.Sprintf("submit %s: %v", step.JobKey, err), false, now)
		outcome.Result = types.JobResultSubmitFailed
		s.ProcessedJobs = append(s.ProcessedJobs, outcome)
		s.ClearCurrentJob()
		s.AddDecision(string(AgentApply), "submit_failed_"+step.JobKey, "attempts exhausted", now)
		return err
	}

	if receipt.ApplicationID == "" {
		receipt.ApplicationID = uuid.NewString()
	}
	if receipt.SubmittedAt.IsZero() {
		receipt.SubmittedAt = now
	}
	outcome.Result = types.JobResultApplied
	outcome.Receipt = receipt
	s.ProcessedJobs = append(s.ProcessedJobs, outcome)
	s.ClearCurrentJob()
	s.AddDecision(string(AgentApply), "applied_"+step.JobKey, "application "+receipt.ApplicationID, now)

	// Register now so outcomes can arrive before learn runs. Learn retries on failure.
	if err := e.learning.RecordApplication(ctx, applicationRecord(s, outcome)); err != nil {
		s.AddError(string(AgentApply), fmt.Sprintf("record application %s: %v", receipt.ApplicationID, err), true, now)
	}
	return nil
}

func (e *Engine) learn(ctx context.Context, s *types.WorkflowState, _ Step) error {
	fail := func(err error) error {
		s.AddError(string(AgentLearn), err.Error(), false, e.now())
		return err
	}

	for _, p := range s.ProcessedJobs {
		if p.Result != types.JobResultApplied || p.Receipt == nil {
			continue
		}
		rec := applicationRecord(s, p)
		if err := e.learning.RecordApplication(ctx, rec); err != nil {
			return fail(fmt.Errorf("record application %s: %w", rec.ApplicationID, err))
		}
	}

	snap, err := e.learning.Snapshot(ctx, s.UserID)
	if err != nil {
		return fail(fmt.Errorf("learning snapshot: %w", err))
	}

	run := learning.RunStats{
		Scraped:   len(s.ScrapedJobs),
		Matched:   len(s.MatchedJobs),
		Threshold: s.LearningInsights.Threshold(e.policy.MatchThreshold),
	}
	now := e.now()
	insights := learning.Recompute(*snap, run, e.policy.Learning, now)
	if err := e.learning.SaveInsights(ctx, s.UserID, insights); err != nil {
		return fail(fmt.Errorf("save insights: %w", err))
	}

	s.LearningInsights = insights
	s.Learned = true
	s.AddDecision(string(AgentLearn), "learned", fmt.Sprintf("match_rate=%.2f next_threshold=%.2f",
		insights.Metrics[types.MetricMatchRate], insights.Metrics[types.MetricMatchThreshold]), now)
	return nil
}

func applicationRecord(s *types.WorkflowState, p types.JobOutcome) learning.ApplicationRecord {
	job, _ := s.ScrapedJob(p.JobKey)
	return learning.ApplicationRecord{
		ApplicationID: p.Receipt.ApplicationID,
		UserID:        s.UserID,
		WorkflowID:    s.WorkflowID.String(),
		JobKey:        p.JobKey,
		Score:         p.Score,
		Keywords:      applicationKeywords(s.Preferences, job),
		SubmittedAt:   p.Receipt.SubmittedAt,
	}
}

// applicationKeywords returns the preference keywords and skills that appear in the posting.
func applicationKeywords(prefs types.Preferences, job types.JobPosting) []string {
	text := strings.ToLower(job.Title + " " + job.Description)
	seen := make(map[string]bool)
	var out []string
	for _, kw := range append(append([]string{}, prefs.Keywords...), prefs.Skills...) {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] || !strings.Contains(text, kw) {
			continue
		}
		seen[kw] = true
		out = append(out, kw)
	}
	return out
}
