package workflow

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-agent/internal/learning"
	"github.com/jonathan/job-agent/internal/providers"
	"github.com/jonathan/job-agent/internal/types"
)

type mockSource struct {
	name       string
	ScrapeFunc func(ctx context.Context, prefs types.Preferences) ([]types.JobPosting, error)

	mu    sync.Mutex
	calls int
}

func (m *mockSource) Name() string { return m.name }

func (m *mockSource) Scrape(ctx context.Context, prefs types.Preferences) ([]types.JobPosting, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.ScrapeFunc(ctx, prefs)
}

func (m *mockSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockScorer struct {
	ScoreFunc func(ctx context.Context, job types.JobPosting, prefs types.Preferences, insights types.Insights) (*providers.Score, error)
	calls     int
}

func (m *mockScorer) Score(ctx context.Context, job types.JobPosting, prefs types.Preferences, insights types.Insights) (*providers.Score, error) {
	m.calls++
	return m.ScoreFunc(ctx, job, prefs, insights)
}

type mockTailor struct {
	TailorFunc func(ctx context.Context, req providers.TailorRequest) (*types.TailoredDocument, error)
	requests   []providers.TailorRequest
}

func (m *mockTailor) Tailor(ctx context.Context, req providers.TailorRequest) (*types.TailoredDocument, error) {
	m.requests = append(m.requests, req)
	return m.TailorFunc(ctx, req)
}

type mockNotifier struct {
	requests []providers.NotifyRequest
}

func (m *mockNotifier) Notify(_ context.Context, req providers.NotifyRequest) (*providers.ApprovalHandle, error) {
	m.requests = append(m.requests, req)
	return &providers.ApprovalHandle{
		Token:     fmt.Sprintf("token-%d", len(m.requests)),
		ExpiresAt: req.ExpiresAt,
	}, nil
}

func (m *mockNotifier) lastToken() string {
	return fmt.Sprintf("token-%d", len(m.requests))
}

type mockSubmitter struct {
	SubmitFunc func(ctx context.Context, job types.JobPosting, doc types.TailoredDocument) (*types.Receipt, error)

	mu    sync.Mutex
	calls int
}

func (m *mockSubmitter) Submit(ctx context.Context, job types.JobPosting, doc types.TailoredDocument) (*types.Receipt, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.mu.Unlock()
	if m.SubmitFunc == nil {
		return &types.Receipt{ApplicationID: fmt.Sprintf("app-%d", n), Reference: job.Key()}, nil
	}
	return m.SubmitFunc(ctx, job, doc)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fixture wires an engine with mocks and an in-memory store.
type fixture struct {
	engine    *Engine
	store     *MemoryStore
	learning  *learning.MemoryStore
	clock     *fakeClock
	source    *mockSource
	scorer    *mockScorer
	tailor    *mockTailor
	notifier  *mockNotifier
	submitter *mockSubmitter
}

func job(id, title string) types.JobPosting {
	return types.JobPosting{Source: "board", ExternalID: id, Title: title, Company: "Acme", Description: title + " using Go and Postgres"}
}

// scoresByID makes a scorer returning fixed scores keyed by external id.
func scoresByID(scores map[string]float64) func(context.Context, types.JobPosting, types.Preferences, types.Insights) (*providers.Score, error) {
	return func(_ context.Context, job types.JobPosting, _ types.Preferences, _ types.Insights) (*providers.Score, error) {
		return &providers.Score{Value: scores[job.ExternalID], Rationale: "fit " + job.ExternalID}, nil
	}
}

func newFixture(t *testing.T, jobs []types.JobPosting, scores map[string]float64) *fixture {
	t.Helper()

	f := &fixture{
		store:    NewMemoryStore(),
		learning: learning.NewMemoryStore(),
		clock:    newFakeClock(),
		source: &mockSource{name: "board", ScrapeFunc: func(context.Context, types.Preferences) ([]types.JobPosting, error) {
			return jobs, nil
		}},
		scorer: &mockScorer{ScoreFunc: scoresByID(scores)},
		tailor: &mockTailor{TailorFunc: func(_ context.Context, req providers.TailorRequest) (*types.TailoredDocument, error) {
			return &types.TailoredDocument{
				Content:   req.Resume + "\n-- for " + req.Job.Title,
				ChangeLog: []string{"reordered experience for " + req.Job.Title},
			}, nil
		}},
		notifier:  &mockNotifier{},
		submitter: &mockSubmitter{},
	}
	f.engine = f.newEngine(t, testPolicy())
	return f
}

func (f *fixture) newEngine(t *testing.T, policy Policy) *Engine {
	t.Helper()
	engine, err := New(f.store, f.learning, providers.Set{
		Sources:   []providers.Scraper{f.source},
		Scorer:    f.scorer,
		Tailor:    f.tailor,
		Notifier:  f.notifier,
		Submitter: f.submitter,
	}, Options{
		Policy: policy,
		Now:    f.clock.Now,
		Logger: log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)
	return engine
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.Provider = providers.Policy{Attempts: 3, Timeout: time.Second, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	return p
}

func testPrefs() types.Preferences {
	return types.Preferences{
		Keywords: []string{"go", "backend"},
		Location: "Remote",
		JobType:  "full-time",
		Skills:   []string{"postgres"},
	}
}

func (f *fixture) start(t *testing.T) *types.WorkflowState {
	t.Helper()
	id, err := f.engine.Start(context.Background(), StartInput{
		UserID:      "user-1",
		Preferences: testPrefs(),
		BaseResume:  "Jane Doe\nBackend engineer, Go, Postgres",
	})
	require.NoError(t, err)
	return f.load(t, id)
}

func (f *fixture) load(t *testing.T, id uuid.UUID) *types.WorkflowState {
	t.Helper()
	state, err := f.store.Load(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, state.CheckInvariants())
	return state
}

func hasDecision(s *types.WorkflowState, action string) bool {
	for _, d := range s.Decisions {
		if d.Action == action {
			return true
		}
	}
	return false
}
