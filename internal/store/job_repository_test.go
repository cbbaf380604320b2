package store

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/perpautopilot/internal/storetest"
)

func newTestJobRepo(t *testing.T) *JobRepository {
	t.Helper()
	db, cleanup := storetest.New(t)
	t.Cleanup(cleanup)
	return NewJobRepository(db.Conn(), zerolog.Nop())
}

func TestJobRepository_UpsertThenGet_RoundTripsScheduleFields(t *testing.T) {
	repo := newTestJobRepo(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	nextRun := now.Add(time.Minute)

	require.NoError(t, repo.UpsertJobDefinition("scan", ScheduleInterval, 60_000, "", "UTC", 5_000, nextRun, now))

	job, err := repo.Get("scan")
	require.NoError(t, err)
	assert.Equal(t, ScheduleInterval, job.ScheduleKind)
	assert.Equal(t, int64(60_000), job.IntervalMs)
	assert.Equal(t, int64(5_000), job.LeaseMs)
	assert.Equal(t, JobStatus("idle"), job.Status)
	assert.Equal(t, nextRun, job.NextRunAt)
}

func TestJobRepository_UpsertJobDefinition_ReregisterKeepsNextRunAt(t *testing.T) {
	repo := newTestJobRepo(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	firstNextRun := now.Add(time.Minute)

	require.NoError(t, repo.UpsertJobDefinition("scan", ScheduleInterval, 60_000, "", "UTC", 5_000, firstNextRun, now))
	require.NoError(t, repo.MarkSuccess("scan", now.Add(5*time.Minute), now))

	require.NoError(t, repo.UpsertJobDefinition("scan", ScheduleInterval, 120_000, "", "UTC", 10_000, now.Add(time.Hour), now))

	job, err := repo.Get("scan")
	require.NoError(t, err)
	assert.Equal(t, int64(120_000), job.IntervalMs)
	assert.Equal(t, int64(10_000), job.LeaseMs)
	assert.Equal(t, now.Add(5*time.Minute), job.NextRunAt)
}

func TestJobRepository_TryAcquireLease_SucceedsWhenDueAndUnlocked(t *testing.T) {
	repo := newTestJobRepo(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertJobDefinition("scan", ScheduleInterval, 60_000, "", "UTC", 5_000, now, now))

	ok, err := repo.TryAcquireLease("scan", now, 5_000, "worker-1")
	require.NoError(t, err)
	assert.True(t, ok)

	job, err := repo.Get("scan")
	require.NoError(t, err)
	assert.Equal(t, JobStatus("running"), job.Status)
	assert.Equal(t, "worker-1", job.LockOwner)
}

func TestJobRepository_TryAcquireLease_FailsWhenNotYetDue(t *testing.T) {
	repo := newTestJobRepo(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertJobDefinition("scan", ScheduleInterval, 60_000, "", "UTC", 5_000, now.Add(time.Hour), now))

	ok, err := repo.TryAcquireLease("scan", now, 5_000, "worker-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJobRepository_TryAcquireLease_FailsWhileLockHeldByAnother(t *testing.T) {
	repo := newTestJobRepo(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertJobDefinition("scan", ScheduleInterval, 60_000, "", "UTC", 5_000, now, now))

	ok, err := repo.TryAcquireLease("scan", now, 5_000, "worker-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.TryAcquireLease("scan", now, 5_000, "worker-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJobRepository_TryAcquireLease_SucceedsAfterLeaseExpires(t *testing.T) {
	repo := newTestJobRepo(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertJobDefinition("scan", ScheduleInterval, 60_000, "", "UTC", 5_000, now, now))

	ok, err := repo.TryAcquireLease("scan", now, 5_000, "worker-1")
	require.NoError(t, err)
	require.True(t, ok)

	later := now.Add(10 * time.Second)
	ok, err = repo.TryAcquireLease("scan", later, 5_000, "worker-2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestJobRepository_MarkFailed_IncrementsFailureCountAndClearsLock(t *testing.T) {
	repo := newTestJobRepo(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertJobDefinition("scan", ScheduleInterval, 60_000, "", "UTC", 5_000, now, now))
	_, err := repo.TryAcquireLease("scan", now, 5_000, "worker-1")
	require.NoError(t, err)

	require.NoError(t, repo.MarkFailed("scan", now.Add(time.Minute), now, "handler exploded"))

	job, err := repo.Get("scan")
	require.NoError(t, err)
	assert.Equal(t, JobStatus("failed"), job.Status)
	assert.Equal(t, 1, job.FailureCount)
	assert.Equal(t, "handler exploded", job.LastError)
	assert.Empty(t, job.LockOwner)
}

func TestJobRepository_RecoverStaleLeases_DemotesExpiredRunningRows(t *testing.T) {
	repo := newTestJobRepo(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertJobDefinition("scan", ScheduleInterval, 60_000, "", "UTC", 1_000, now, now))
	_, err := repo.TryAcquireLease("scan", now, 1_000, "worker-1")
	require.NoError(t, err)

	later := now.Add(time.Hour)
	n, err := repo.RecoverStaleLeases(later, "startup recovery")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	job, err := repo.Get("scan")
	require.NoError(t, err)
	assert.Equal(t, JobStatus("failed"), job.Status)
	assert.Equal(t, 1, job.FailureCount)
	assert.Equal(t, "startup recovery", job.LastError)
}

func TestJobRepository_Get_UnknownNameReturnsErrNotFound(t *testing.T) {
	repo := newTestJobRepo(t)
	_, err := repo.Get("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobRepository_List_ReturnsAllRowsOrderedByName(t *testing.T) {
	repo := newTestJobRepo(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertJobDefinition("scan_z", ScheduleInterval, 60_000, "", "UTC", 5_000, now, now))
	require.NoError(t, repo.UpsertJobDefinition("scan_a", ScheduleInterval, 60_000, "", "UTC", 5_000, now, now))

	jobs, err := repo.List()
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "scan_a", jobs[0].Name)
	assert.Equal(t, "scan_z", jobs[1].Name)
}
