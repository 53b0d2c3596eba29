package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-agent/internal/approval"
	"github.com/jonathan/job-agent/internal/learning"
	"github.com/jonathan/job-agent/internal/observability"
	"github.com/jonathan/job-agent/internal/server/ratelimit"
	"github.com/jonathan/job-agent/internal/types"
	"github.com/jonathan/job-agent/internal/workflow"
)

// mockEngine implements Engine with overridable functions.
type mockEngine struct {
	mu        sync.Mutex
	runs      []uuid.UUID
	triggers  []workflow.Trigger
	CreateFn  func(ctx context.Context, in workflow.StartInput) (*types.WorkflowState, error)
	RunFn     func(ctx context.Context, id uuid.UUID) (*types.WorkflowState, error)
	ResolveFn func(ctx context.Context, id uuid.UUID, trig workflow.Trigger) (*types.WorkflowState, bool, error)
	StatusFn  func(ctx context.Context, id uuid.UUID) (*types.WorkflowState, error)
}

func (m *mockEngine) Create(ctx context.Context, in workflow.StartInput) (*types.WorkflowState, error) {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, in)
	}
	return types.NewWorkflowState(in.UserID, in.Preferences, in.BaseResume, types.Insights{}, time.Now()), nil
}

func (m *mockEngine) Run(ctx context.Context, id uuid.UUID) (*types.WorkflowState, error) {
	m.mu.Lock()
	m.runs = append(m.runs, id)
	m.mu.Unlock()
	if m.RunFn != nil {
		return m.RunFn(ctx, id)
	}
	state := types.NewWorkflowState("user-1", types.Preferences{}, "", types.Insights{}, time.Now())
	state.WorkflowID = id
	state.Status = types.StatusWaitingApproval
	return state, nil
}

func (m *mockEngine) Resolve(ctx context.Context, id uuid.UUID, trig workflow.Trigger) (*types.WorkflowState, bool, error) {
	m.mu.Lock()
	m.triggers = append(m.triggers, trig)
	m.mu.Unlock()
	if m.ResolveFn != nil {
		return m.ResolveFn(ctx, id, trig)
	}
	state := types.NewWorkflowState("user-1", types.Preferences{}, "", types.Insights{}, time.Now())
	state.WorkflowID = id
	return state, true, nil
}

func (m *mockEngine) Status(ctx context.Context, id uuid.UUID) (*types.WorkflowState, error) {
	if m.StatusFn != nil {
		return m.StatusFn(ctx, id)
	}
	return nil, workflow.ErrNotFound
}

func (m *mockEngine) runIDs() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.runs...)
}

type testServer struct {
	srv      *Server
	engine   *mockEngine
	issuer   *approval.Issuer
	outcomes *learning.MemoryStore
}

func newTestServer(t *testing.T, mutate func(*Options)) *testServer {
	t.Helper()
	issuer, err := approval.NewIssuer("server-test-secret")
	require.NoError(t, err)

	ts := &testServer{engine: &mockEngine{}, issuer: issuer, outcomes: learning.NewMemoryStore()}
	opts := Options{
		Engine:           ts.engine,
		Issuer:           issuer,
		Outcomes:         ts.outcomes,
		DefaultThreshold: 0.7,
	}
	if mutate != nil {
		mutate(&opts)
	}
	ts.srv, err = New(opts)
	require.NoError(t, err)
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	return w
}

const startBody = `{"user_id":"user-1","base_resume":"Go developer","preferences":{"keywords":["go"]}}`

func TestNew_RequiresDependencies(t *testing.T) {
	issuer, err := approval.NewIssuer("secret")
	require.NoError(t, err)

	_, err = New(Options{Issuer: issuer, Outcomes: learning.NewMemoryStore()})
	assert.Error(t, err)
	_, err = New(Options{Engine: &mockEngine{}, Outcomes: learning.NewMemoryStore()})
	assert.Error(t, err)
	_, err = New(Options{Engine: &mockEngine{}, Issuer: issuer})
	assert.Error(t, err)
}

func TestHandleHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		ts := newTestServer(t, nil)
		w := ts.do(t, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"ok"`)
	})

	t.Run("dependency down", func(t *testing.T) {
		ts := newTestServer(t, func(o *Options) {
			o.Health = func(context.Context) error { return errors.New("db unreachable") }
		})
		w := ts.do(t, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestHandleStartWorkflow_RunsInBackground(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/workflows", startBody, nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	var sum observability.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, "user-1", sum.UserID)
	assert.Equal(t, types.StatusRunning, sum.Status)
	assert.Equal(t, "/workflows/"+sum.WorkflowID, w.Header().Get("Location"))

	ts.srv.Close()
	runs := ts.engine.runIDs()
	require.Len(t, runs, 1)
	assert.Equal(t, sum.WorkflowID, runs[0].String())
}

func TestHandleStartWorkflow_Wait(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/workflows", `{"user_id":"user-1","base_resume":"r","preferences":{"keywords":["go"]},"wait":true}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var sum observability.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, types.StatusWaitingApproval, sum.Status)
	assert.Len(t, ts.engine.runIDs(), 1)
}

func TestHandleStartWorkflow_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		createErr  error
		wantStatus int
	}{
		{name: "malformed JSON", body: `{"user_id":`, wantStatus: http.StatusBadRequest},
		{name: "missing user", body: `{"base_resume":"r","preferences":{"keywords":["go"]}}`, wantStatus: http.StatusBadRequest},
		{name: "missing keywords", body: `{"user_id":"u","base_resume":"r","preferences":{}}`, wantStatus: http.StatusBadRequest},
		{name: "bad job type", body: `{"user_id":"u","base_resume":"r","preferences":{"keywords":["go"],"job_type":"gig"}}`, wantStatus: http.StatusBadRequest},
		{name: "engine validation", body: startBody, createErr: &workflow.ValidationError{Message: "invalid preferences"}, wantStatus: http.StatusBadRequest},
		{name: "engine failure", body: startBody, createErr: errors.New("db down"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			if tt.createErr != nil {
				ts.engine.CreateFn = func(context.Context, workflow.StartInput) (*types.WorkflowState, error) {
					return nil, tt.createErr
				}
			}

			w := ts.do(t, http.MethodPost, "/workflows", tt.body, nil)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.NotContains(t, w.Body.String(), "db down", "internal errors are not echoed")

			ts.srv.Close()
			assert.Empty(t, ts.engine.runIDs())
		})
	}
}

func TestHandleGetWorkflow(t *testing.T) {
	ts := newTestServer(t, nil)
	state := types.NewWorkflowState("user-1", types.Preferences{Keywords: []string{"go"}}, "", types.Insights{}, time.Now())
	state.Status = types.StatusWaitingApproval
	state.ApprovalRecord = &types.ApprovalRecord{Status: types.ApprovalPending, Token: "very-secret-token"}
	ts.engine.StatusFn = func(_ context.Context, id uuid.UUID) (*types.WorkflowState, error) {
		if id == state.WorkflowID {
			return state, nil
		}
		return nil, workflow.ErrNotFound
	}

	w := ts.do(t, http.MethodGet, "/workflows/"+state.WorkflowID.String(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"waiting_approval"`)
	assert.NotContains(t, w.Body.String(), "very-secret-token")

	w = ts.do(t, http.MethodGet, "/workflows/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodGet, "/workflows/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleResumeWorkflow(t *testing.T) {
	ts := newTestServer(t, nil)
	id := uuid.New()

	w := ts.do(t, http.MethodPost, "/workflows/"+id.String()+"/resume", "", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	ts.engine.ResolveFn = func(_ context.Context, id uuid.UUID, _ workflow.Trigger) (*types.WorkflowState, bool, error) {
		state := types.NewWorkflowState("user-1", types.Preferences{}, "", types.Insights{}, time.Now())
		state.WorkflowID = id
		state.Status = types.StatusCompleted
		return state, false, nil
	}
	w = ts.do(t, http.MethodPost, "/workflows/"+id.String()+"/resume", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	ts.srv.Close()
	assert.Len(t, ts.engine.runIDs(), 1, "only a ready workflow is advanced")
	require.Len(t, ts.engine.triggers, 2)
	assert.Equal(t, workflow.TriggerContinue, ts.engine.triggers[0].Kind)
}

func TestHandleApproval(t *testing.T) {
	ts := newTestServer(t, nil)
	workflowID := uuid.New()
	now := time.Now()
	token, err := ts.issuer.Issue(workflowID, "board:42", now, now.Add(24*time.Hour))
	require.NoError(t, err)

	w := ts.do(t, http.MethodGet, "/approve/"+token+"?action=approve", "", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp ApprovalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, workflowID.String(), resp.WorkflowID)
	assert.Equal(t, "board:42", resp.JobKey)
	assert.Equal(t, workflow.DecisionApproved, resp.Decision)
	assert.True(t, resp.Applied)

	ts.srv.Close()
	require.Len(t, ts.engine.triggers, 1)
	trig := ts.engine.triggers[0]
	assert.Equal(t, workflow.TriggerApproval, trig.Kind)
	assert.Equal(t, token, trig.Token)
	assert.Equal(t, []uuid.UUID{workflowID}, ts.engine.runIDs())
}

func TestHandleApproval_RejectWithFeedback(t *testing.T) {
	ts := newTestServer(t, nil)
	now := time.Now()
	token, err := ts.issuer.Issue(uuid.New(), "lever:7", now, now.Add(24*time.Hour))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/approve/"+token+"?action=reject", strings.NewReader("feedback=too+far"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, ts.engine.triggers, 1)
	assert.Equal(t, workflow.DecisionRejected, ts.engine.triggers[0].Decision)
	assert.Equal(t, "too far", ts.engine.triggers[0].Feedback)
}

func TestHandleApproval_AlreadyResolved(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.engine.ResolveFn = func(_ context.Context, id uuid.UUID, _ workflow.Trigger) (*types.WorkflowState, bool, error) {
		state := types.NewWorkflowState("user-1", types.Preferences{}, "", types.Insights{}, time.Now())
		state.WorkflowID = id
		state.Status = types.StatusCompleted
		return state, false, nil
	}
	now := time.Now()
	token, err := ts.issuer.Issue(uuid.New(), "board:1", now, now.Add(24*time.Hour))
	require.NoError(t, err)

	w := ts.do(t, http.MethodGet, "/approve/"+token+"?action=approve", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ApprovalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Applied)
	assert.Equal(t, types.StatusCompleted, resp.Status)

	ts.srv.Close()
	assert.Empty(t, ts.engine.runIDs())
}

func TestHandleApproval_Rejects(t *testing.T) {
	issuer, err := approval.NewIssuer("server-test-secret")
	require.NoError(t, err)
	foreign, err := approval.NewIssuer("some-other-secret")
	require.NoError(t, err)

	now := time.Now()
	good, err := issuer.Issue(uuid.New(), "board:1", now, now.Add(time.Hour))
	require.NoError(t, err)
	forged, err := foreign.Issue(uuid.New(), "board:1", now, now.Add(time.Hour))
	require.NoError(t, err)

	tests := []struct {
		name       string
		target     string
		resolveErr error
		wantStatus int
	}{
		{name: "garbage token", target: "/approve/garbage?action=approve", wantStatus: http.StatusBadRequest},
		{name: "forged token", target: "/approve/" + forged + "?action=approve", wantStatus: http.StatusBadRequest},
		{name: "missing action", target: "/approve/" + good, wantStatus: http.StatusBadRequest},
		{name: "unknown action", target: "/approve/" + good + "?action=maybe", wantStatus: http.StatusBadRequest},
		{
			name:       "expired",
			target:     "/approve/" + good + "?action=approve",
			resolveErr: &workflow.ValidationError{Message: "approval token expired"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown workflow",
			target:     "/approve/" + good + "?action=approve",
			resolveErr: workflow.ErrNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "concurrent update",
			target:     "/approve/" + good + "?action=reject",
			resolveErr: workflow.ErrConflict,
			wantStatus: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, func(o *Options) { o.Issuer = issuer })
			if tt.resolveErr != nil {
				ts.engine.ResolveFn = func(context.Context, uuid.UUID, workflow.Trigger) (*types.WorkflowState, bool, error) {
					return nil, false, tt.resolveErr
				}
			}

			w := ts.do(t, http.MethodGet, tt.target, "", nil)
			assert.Equal(t, tt.wantStatus, w.Code)

			ts.srv.Close()
			assert.Empty(t, ts.engine.runIDs())
		})
	}
}

func TestHandleRecordOutcome(t *testing.T) {
	ts := newTestServer(t, nil)
	ctx := context.Background()
	require.NoError(t, ts.outcomes.RecordApplication(ctx, learning.ApplicationRecord{ApplicationID: "app-1", UserID: "user-1"}))

	w := ts.do(t, http.MethodPost, "/outcomes", `{"application_id":"app-1","outcome":"interview","observed_at":"2026-03-01T10:00:00Z"}`, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	snap, err := ts.outcomes.Snapshot(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, snap.Outcomes, 1)
	assert.Equal(t, learning.OutcomeInterview, snap.Outcomes[0].Outcome)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), snap.Outcomes[0].ObservedAt)
}

func TestHandleRecordOutcome_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{name: "unknown outcome", body: `{"application_id":"app-1","outcome":"ghosted"}`, wantStatus: http.StatusBadRequest},
		{name: "missing application", body: `{"outcome":"offer"}`, wantStatus: http.StatusBadRequest},
		{name: "not JSON", body: `outcome=offer`, wantStatus: http.StatusBadRequest},
		{name: "unknown application", body: `{"application_id":"nope","outcome":"offer"}`, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			w := ts.do(t, http.MethodPost, "/outcomes", tt.body, nil)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestOperatorToken(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.APIToken = "operator-token" })

	w := ts.do(t, http.MethodPost, "/workflows", startBody, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/workflows", startBody, map[string]string{"Authorization": "Bearer operator-token"})
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = ts.do(t, http.MethodPost, "/outcomes", `{"application_id":"a","outcome":"offer"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// approval links carry their own signed token
	now := time.Now()
	token, err := ts.issuer.Issue(uuid.New(), "board:1", now, now.Add(time.Hour))
	require.NoError(t, err)
	w = ts.do(t, http.MethodGet, "/approve/"+token+"?action=approve", "", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := ratelimit.DefaultConfig()
	cfg.CleanupInterval = 0
	cfg.Rules = []ratelimit.Rule{{Path: "/approve/", Method: http.MethodGet, Limit: 1, Window: time.Minute, Burst: 1}}
	ts := newTestServer(t, func(o *Options) { o.Limiter = ratelimit.NewLimiter(cfg) })

	now := time.Now()
	first, err := ts.issuer.Issue(uuid.New(), "board:1", now, now.Add(time.Hour))
	require.NoError(t, err)
	second, err := ts.issuer.Issue(uuid.New(), "board:2", now, now.Add(time.Hour))
	require.NoError(t, err)

	w := ts.do(t, http.MethodGet, "/approve/"+first+"?action=approve", "", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	// a different token shares the same bucket
	w = ts.do(t, http.MethodGet, "/approve/"+second+"?action=approve", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")

	w = ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, http.MethodOptions, "/workflows", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
