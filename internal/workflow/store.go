package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/job-agent/internal/types"
)

// Store persists workflow state keyed by workflow id.
//
// Save is a compare-and-swap on Version: it succeeds only if the stored
// version equals state.Version, and then increments state.Version.
//
// Lock claims the right to run agents for a workflow. It fails with ErrBusy
// while another runner holds the claim; the returned func releases it.
type Store interface {
	Create(ctx context.Context, state *types.WorkflowState) error
	Load(ctx context.Context, id uuid.UUID) (*types.WorkflowState, error)
	Save(ctx context.Context, state *types.WorkflowState) error
	Lock(ctx context.Context, id uuid.UUID) (func(), error)
	// ListExpiredApprovals returns workflows waiting on an approval whose expiry is before now.
	ListExpiredApprovals(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

// MemoryStore is an in-process Store. States are kept serialized so callers
// never share memory with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	states  map[uuid.UUID]storedState
	running map[uuid.UUID]bool
}

type storedState struct {
	data      []byte
	version   int64
	waiting   bool
	expiresAt time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:  make(map[uuid.UUID]storedState),
		running: make(map[uuid.UUID]bool),
	}
}

// Create inserts a new workflow.
func (m *MemoryStore) Create(_ context.Context, state *types.WorkflowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[state.WorkflowID]; ok {
		return fmt.Errorf("workflow %s already exists", state.WorkflowID)
	}
	state.Version = 1
	entry, err := encodeState(state)
	if err != nil {
		state.Version = 0
		return err
	}
	m.states[state.WorkflowID] = entry
	return nil
}

// Load returns a private copy of the stored state.
func (m *MemoryStore) Load(_ context.Context, id uuid.UUID) (*types.WorkflowState, error) {
	m.mu.RLock()
	entry, ok := m.states[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var state types.WorkflowState
	if err := json.Unmarshal(entry.data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode workflow %s: %w", id, err)
	}
	return &state, nil
}

// Save stores the state if nobody else saved since it was loaded.
func (m *MemoryStore) Save(_ context.Context, state *types.WorkflowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.states[state.WorkflowID]
	if !ok {
		return ErrNotFound
	}
	if current.version != state.Version {
		return ErrConflict
	}

	state.Version++
	entry, err := encodeState(state)
	if err != nil {
		state.Version--
		return err
	}
	m.states[state.WorkflowID] = entry
	return nil
}

// Lock claims a workflow for one runner within this process.
func (m *MemoryStore) Lock(_ context.Context, id uuid.UUID) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[id]; !ok {
		return nil, ErrNotFound
	}
	if m.running[id] {
		return nil, ErrBusy
	}
	m.running[id] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.running, id)
			m.mu.Unlock()
		})
	}, nil
}

// ListExpiredApprovals returns waiting workflows whose approval expired, oldest first.
func (m *MemoryStore) ListExpiredApprovals(_ context.Context, now time.Time) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type candidate struct {
		id        uuid.UUID
		expiresAt time.Time
	}
	var found []candidate
	for id, entry := range m.states {
		if entry.waiting && now.After(entry.expiresAt) {
			found = append(found, candidate{id: id, expiresAt: entry.expiresAt})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].expiresAt.Before(found[j].expiresAt)
	})

	ids := make([]uuid.UUID, len(found))
	for i, c := range found {
		ids[i] = c.id
	}
	return ids, nil
}

func encodeState(state *types.WorkflowState) (storedState, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return storedState{}, fmt.Errorf("failed to encode workflow %s: %w", state.WorkflowID, err)
	}
	entry := storedState{data: data, version: state.Version}
	if rec := state.ApprovalRecord; state.Status == types.StatusWaitingApproval && rec != nil && rec.Status == types.ApprovalPending {
		entry.waiting = true
		entry.expiresAt = rec.ExpiresAt
	}
	return entry, nil
}
