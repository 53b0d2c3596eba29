package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/job-agent/internal/learning"
	"github.com/jonathan/job-agent/internal/types"
)

// foreignKeyViolation is the PostgreSQL SQLSTATE for a failed foreign key check.
const foreignKeyViolation = "23503"

// LearningStore implements learning.Store on the applications, outcomes and insights tables.
type LearningStore struct {
	pool *pgxpool.Pool
}

var _ learning.Store = (*LearningStore)(nil)

// RecordApplication appends an application; an existing ID is left untouched.
func (s *LearningStore) RecordApplication(ctx context.Context, rec learning.ApplicationRecord) error {
	keywords := rec.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO applications (application_id, user_id, workflow_id, job_key, score, keywords, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (application_id) DO NOTHING`,
		rec.ApplicationID, rec.UserID, rec.WorkflowID, rec.JobKey, rec.Score, keywords, rec.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record application: %w", err)
	}
	return nil
}

// RecordOutcome appends an outcome for a known application.
func (s *LearningStore) RecordOutcome(ctx context.Context, applicationID string, outcome learning.Outcome, observedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO outcomes (application_id, outcome, observed_at) VALUES ($1, $2, $3)`,
		applicationID, string(outcome), observedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return learning.ErrUnknownApplication
		}
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// Snapshot reads the user's applications and outcomes in one repeatable-read transaction.
func (s *LearningStore) Snapshot(ctx context.Context, userID string) (*learning.Snapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	snap := &learning.Snapshot{UserID: userID}
	if err := tx.QueryRow(ctx, `SELECT NOW()`).Scan(&snap.TakenAt); err != nil {
		return nil, fmt.Errorf("failed to read snapshot time: %w", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT application_id, user_id, workflow_id, job_key, score, keywords, submitted_at
		 FROM applications WHERE user_id = $1 ORDER BY submitted_at, application_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	for rows.Next() {
		var rec learning.ApplicationRecord
		if err := rows.Scan(&rec.ApplicationID, &rec.UserID, &rec.WorkflowID, &rec.JobKey, &rec.Score, &rec.Keywords, &rec.SubmittedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		snap.Applications = append(snap.Applications, rec)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read applications: %w", err)
	}

	rows, err = tx.Query(ctx,
		`SELECT o.application_id, o.outcome, o.observed_at
		 FROM outcomes o JOIN applications a ON a.application_id = o.application_id
		 WHERE a.user_id = $1 ORDER BY o.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rec learning.OutcomeRecord
		var outcome string
		if err := rows.Scan(&rec.ApplicationID, &outcome, &rec.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		rec.Outcome = learning.Outcome(outcome)
		snap.Outcomes = append(snap.Outcomes, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outcomes: %w", err)
	}
	return snap, nil
}

// SaveInsights appends a new insights row for the user.
func (s *LearningStore) SaveInsights(ctx context.Context, userID string, insights types.Insights) error {
	data, err := json.Marshal(insights)
	if err != nil {
		return fmt.Errorf("failed to marshal insights: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO insights (user_id, insights, computed_at) VALUES ($1, $2, $3)`,
		userID, data, insights.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save insights: %w", err)
	}
	return nil
}

// LatestInsights returns the most recently saved insights, or zero Insights.
func (s *LearningStore) LatestInsights(ctx context.Context, userID string) (types.Insights, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT insights FROM insights WHERE user_id = $1 ORDER BY id DESC LIMIT 1`,
		userID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.Insights{}, nil
		}
		return types.Insights{}, fmt.Errorf("failed to load insights: %w", err)
	}

	var insights types.Insights
	if err := json.Unmarshal(data, &insights); err != nil {
		return types.Insights{}, fmt.Errorf("failed to unmarshal insights: %w", err)
	}
	return insights, nil
}
