package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
)

func makePolicy(connectionID string, nextRun time.Time) model.SyncPolicy {
	return model.SyncPolicy{
		ConnectionID: connectionID,
		Cadence:      model.CadenceHourly,
		NextRunAt:    nextRun,
		Active:       true,
		MaxFailures:  model.DefaultMaxFailures,
	}
}

func TestPolicyRepo_UpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPolicyRepo(db)
	ctx := context.Background()

	nextRun := time.Date(2026, 8, 15, 11, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, makePolicy("conn_1", nextRun)))

	got, err := repo.Get(ctx, "conn_1")
	require.NoError(t, err)
	assert.Equal(t, model.CadenceHourly, got.Cadence)
	assert.Equal(t, nextRun, got.NextRunAt.UTC())
	assert.True(t, got.Active)
	assert.Zero(t, got.FailureCount)
	assert.True(t, got.LastRunAt.IsZero())
}

func TestPolicyRepo_Upsert_Replaces(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPolicyRepo(db)
	ctx := context.Background()

	policy := makePolicy("conn_1", time.Date(2026, 8, 15, 11, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Upsert(ctx, policy))

	policy.FailureCount = 2
	policy.Active = false
	require.NoError(t, repo.Upsert(ctx, policy))

	got, err := repo.Get(ctx, "conn_1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.FailureCount)
	assert.False(t, got.Active)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "upsert must not create a second row")
}

func TestPolicyRepo_ListDue(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPolicyRepo(db)
	ctx := context.Background()

	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(ctx, makePolicy("conn_due_late", now.Add(-time.Minute))))
	require.NoError(t, repo.Upsert(ctx, makePolicy("conn_due_early", now.Add(-time.Hour))))
	require.NoError(t, repo.Upsert(ctx, makePolicy("conn_future", now.Add(time.Hour))))

	inactive := makePolicy("conn_inactive", now.Add(-time.Hour))
	inactive.Active = false
	require.NoError(t, repo.Upsert(ctx, inactive))

	due, err := repo.ListDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 2)

	// Soonest first.
	assert.Equal(t, "conn_due_early", due[0].ConnectionID)
	assert.Equal(t, "conn_due_late", due[1].ConnectionID)
}

func TestPolicyRepo_ListDue_BoundaryInclusive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPolicyRepo(db)
	ctx := context.Background()

	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, makePolicy("conn_1", now)))

	due, err := repo.ListDue(ctx, now)
	require.NoError(t, err)
	assert.Len(t, due, 1, "a policy due exactly now is due")
}

func TestPolicyRepo_Get_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPolicyRepo(db)

	_, err := repo.Get(context.Background(), "conn_missing")
	assert.ErrorIs(t, err, driven.ErrNotFound)
}

func TestPolicyRepo_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPolicyRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, makePolicy("conn_1", time.Now())))
	require.NoError(t, repo.Delete(ctx, "conn_1"))

	_, err := repo.Get(ctx, "conn_1")
	assert.ErrorIs(t, err, driven.ErrNotFound)

	// Deleting an absent policy is a no-op.
	assert.NoError(t, repo.Delete(ctx, "conn_1"))
}
