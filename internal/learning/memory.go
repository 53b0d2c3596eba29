package learning

import (
	"context"
	"sync"
	"time"

	"github.com/jonathan/job-agent/internal/types"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu           sync.RWMutex
	applications []ApplicationRecord
	outcomes     []OutcomeRecord
	insights     map[string]types.Insights
	now          func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		insights: make(map[string]types.Insights),
		now:      time.Now,
	}
}

// RecordApplication appends an application; re-recording the same ID is a no-op.
func (m *MemoryStore) RecordApplication(_ context.Context, rec ApplicationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.applications {
		if existing.ApplicationID == rec.ApplicationID {
			return nil
		}
	}
	rec.Keywords = append([]string(nil), rec.Keywords...)
	m.applications = append(m.applications, rec)
	return nil
}

// RecordOutcome appends an outcome for a known application.
func (m *MemoryStore) RecordOutcome(_ context.Context, applicationID string, outcome Outcome, observedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	known := false
	for _, app := range m.applications {
		if app.ApplicationID == applicationID {
			known = true
			break
		}
	}
	if !known {
		return ErrUnknownApplication
	}
	m.outcomes = append(m.outcomes, OutcomeRecord{
		ApplicationID: applicationID,
		Outcome:       outcome,
		ObservedAt:    observedAt,
	})
	return nil
}

// Snapshot copies the user's applications and their outcomes.
func (m *MemoryStore) Snapshot(_ context.Context, userID string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &Snapshot{UserID: userID, TakenAt: m.now()}
	ids := make(map[string]bool)
	for _, app := range m.applications {
		if app.UserID != userID {
			continue
		}
		app.Keywords = append([]string(nil), app.Keywords...)
		snap.Applications = append(snap.Applications, app)
		ids[app.ApplicationID] = true
	}
	for _, out := range m.outcomes {
		if ids[out.ApplicationID] {
			snap.Outcomes = append(snap.Outcomes, out)
		}
	}
	return snap, nil
}

// SaveInsights replaces the user's latest insights.
func (m *MemoryStore) SaveInsights(_ context.Context, userID string, insights types.Insights) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insights[userID] = copyInsights(insights)
	return nil
}

// LatestInsights returns a copy of the user's latest insights.
func (m *MemoryStore) LatestInsights(_ context.Context, userID string) (types.Insights, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyInsights(m.insights[userID]), nil
}

func copyInsights(in types.Insights) types.Insights {
	out := types.Insights{ComputedAt: in.ComputedAt}
	if in.Metrics != nil {
		out.Metrics = make(map[string]float64, len(in.Metrics))
		for k, v := range in.Metrics {
			out.Metrics[k] = v
		}
	}
	if in.KeywordWeights != nil {
		out.KeywordWeights = make(map[string]float64, len(in.KeywordWeights))
		for k, v := range in.KeywordWeights {
			out.KeywordWeights[k] = v
		}
	}
	return out
}
