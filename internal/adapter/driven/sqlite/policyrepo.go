package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PolicyStore = (*PolicyRepo)(nil)

// PolicyRepo is the SQLite implementation of the PolicyStore port.
type PolicyRepo struct {
	db *DB
}

// NewPolicyRepo creates a new PolicyRepo backed by the given DB.
func NewPolicyRepo(db *DB) *PolicyRepo {
	return &PolicyRepo{db: db}
}

const policyColumns = `connection_id, cadence, next_run_at, last_run_at, active, failure_count, max_failures`

// Upsert inserts or replaces the policy for its connection.
func (r *PolicyRepo) Upsert(ctx context.Context, policy model.SyncPolicy) error {
	const query = `
		INSERT INTO sync_policies (connection_id, cadence, next_run_at, last_run_at, active, failure_count, max_failures)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(connection_id) DO UPDATE SET
			cadence = excluded.cadence,
			next_run_at = excluded.next_run_at,
			last_run_at = excluded.last_run_at,
			active = excluded.active,
			failure_count = excluded.failure_count,
			max_failures = excluded.max_failures
	`

	active := 0
	if policy.Active {
		active = 1
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		policy.ConnectionID, string(policy.Cadence),
		nullableTime(policy.NextRunAt), nullableTime(policy.LastRunAt),
		active, policy.FailureCount, policy.MaxFailures,
	)
	if err != nil {
		return fmt.Errorf("upsert policy %s: %w", policy.ConnectionID, err)
	}

	return nil
}

// Get returns the policy for the given connection.
func (r *PolicyRepo) Get(ctx context.Context, connectionID string) (*model.SyncPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sync_policies WHERE connection_id = ?`

	row := r.db.Reader.QueryRowContext(ctx, query, connectionID)
	policy, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, driven.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get policy %s: %w", connectionID, err)
	}

	return policy, nil
}

// ListDue returns all active policies with next_run_at at or before now,
// soonest first.
func (r *PolicyRepo) ListDue(ctx context.Context, now time.Time) ([]model.SyncPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sync_policies
		WHERE active = 1 AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at`

	return r.queryPolicies(ctx, query, now.UTC().Format(time.RFC3339))
}

// ListAll returns every policy, active or not.
func (r *PolicyRepo) ListAll(ctx context.Context) ([]model.SyncPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sync_policies ORDER BY connection_id`
	return r.queryPolicies(ctx, query)
}

// Delete removes the policy for the given connection.
func (r *PolicyRepo) Delete(ctx context.Context, connectionID string) error {
	const query = `DELETE FROM sync_policies WHERE connection_id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, connectionID); err != nil {
		return fmt.Errorf("delete policy %s: %w", connectionID, err)
	}
	return nil
}

func (r *PolicyRepo) queryPolicies(ctx context.Context, query string, args ...any) ([]model.SyncPolicy, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query policies: %w", err)
	}
	defer rows.Close()

	var policies []model.SyncPolicy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		policies = append(policies, *policy)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate policies: %w", err)
	}

	return policies, nil
}

func scanPolicy(row scanner) (*model.SyncPolicy, error) {
	var (
		policy           model.SyncPolicy
		cadence          string
		nextRun, lastRun sql.NullString
		active           int
	)

	err := row.Scan(&policy.ConnectionID, &cadence, &nextRun, &lastRun, &active, &policy.FailureCount, &policy.MaxFailures)
	if err != nil {
		return nil, err
	}

	policy.Cadence = model.Cadence(cadence)
	policy.Active = active == 1

	if policy.NextRunAt, err = scanNullableTime(nextRun); err != nil {
		return nil, err
	}
	if policy.LastRunAt, err = scanNullableTime(lastRun); err != nil {
		return nil, err
	}

	return &policy, nil
}
