package db

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/job-agent/internal/types"
	"github.com/jonathan/job-agent/internal/workflow"
)

// WorkflowStore implements workflow.Store on the workflows table.
type WorkflowStore struct {
	pool *pgxpool.Pool
}

var _ workflow.Store = (*WorkflowStore)(nil)

// Create inserts a new workflow at version 1.
func (s *WorkflowStore) Create(ctx context.Context, state *types.WorkflowState) error {
	state.Version = 1
	data, err := json.Marshal(state)
	if err != nil {
		state.Version = 0
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO workflows (id, user_id, status, version, state, approval_expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		state.WorkflowID, state.UserID, string(state.Status), state.Version, data,
		approvalExpiry(state), state.CreatedAt, state.UpdatedAt,
	)
	if err != nil {
		state.Version = 0
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

// Load retrieves a workflow by ID.
func (s *WorkflowStore) Load(ctx context.Context, id uuid.UUID) (*types.WorkflowState, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT state FROM workflows WHERE id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, workflow.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}

	var state types.WorkflowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", id, err)
	}
	return &state, nil
}

// Save writes the state if the stored version still equals state.Version.
func (s *WorkflowStore) Save(ctx context.Context, state *types.WorkflowState) error {
	expected := state.Version
	state.Version++
	data, err := json.Marshal(state)
	if err != nil {
		state.Version = expected
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE workflows
		 SET status = $1, version = $2, state = $3, approval_expires_at = $4, updated_at = $5
		 WHERE id = $6 AND version = $7`,
		string(state.Status), state.Version, data, approvalExpiry(state), state.UpdatedAt,
		state.WorkflowID, expected,
	)
	if err != nil {
		state.Version = expected
		return fmt.Errorf("failed to save workflow: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	state.Version = expected
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM workflows WHERE id = $1)`, state.WorkflowID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check workflow: %w", err)
	}
	if !exists {
		return workflow.ErrNotFound
	}
	return workflow.ErrConflict
}

// Lock takes a session-level advisory lock on the workflow id. The lock is
// held by a dedicated pool connection, so it is released by Postgres if this
// process dies mid-run.
func (s *WorkflowStore) Lock(ctx context.Context, id uuid.UUID) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	key := advisoryKey(id)
	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to lock workflow %s: %w", id, err)
	}
	if !locked {
		conn.Release()
		return nil, workflow.ErrBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock($1)`, key); err != nil {
				// A closed connection drops its session locks.
				log.Printf("[STORE] failed to unlock workflow %s, closing connection: %v", id, err)
				_ = conn.Conn().Close(unlockCtx)
			}
			conn.Release()
		})
	}, nil
}

// advisoryKey folds a workflow id into the bigint key space of advisory locks.
func advisoryKey(id uuid.UUID) int64 {
	return int64(binary.BigEndian.Uint64(id[:8]) ^ binary.BigEndian.Uint64(id[8:]))
}

// ListExpiredApprovals returns workflows whose pending approval expired before now, oldest first.
func (s *WorkflowStore) ListExpiredApprovals(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM workflows
		 WHERE approval_expires_at IS NOT NULL AND approval_expires_at < $1
		 ORDER BY approval_expires_at`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired approvals: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan workflow id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// WorkflowSummary is a row of ListByUser.
type WorkflowSummary struct {
	ID        uuid.UUID
	Status    types.WorkflowStatus
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListByUser returns a user's workflows, newest first.
func (s *WorkflowStore) ListByUser(ctx context.Context, userID string, limit int) ([]WorkflowSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, status, version, created_at, updated_at
		 FROM workflows WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	var out []WorkflowSummary
	for rows.Next() {
		var w WorkflowSummary
		var status string
		if err := rows.Scan(&w.ID, &status, &w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		w.Status = types.WorkflowStatus(status)
		out = append(out, w)
	}
	return out, rows.Err()
}

// approvalExpiry is the expiry column value: set only while an approval is pending.
func approvalExpiry(state *types.WorkflowState) *time.Time {
	rec := state.ApprovalRecord
	if state.Status != types.StatusWaitingApproval || rec == nil || rec.Status != types.ApprovalPending {
		return nil
	}
	at := rec.ExpiresAt
	return &at
}
