package store

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/perpautopilot/internal/storetest"
)

func newTestPolicyRepo(t *testing.T) *PolicyRepository {
	t.Helper()
	db, cleanup := storetest.New(t)
	t.Cleanup(cleanup)
	return NewPolicyRepository(db.Conn(), zerolog.Nop())
}

func TestPolicyRepository_Get_ReturnsZeroValueRowWhenMissing(t *testing.T) {
	repo := newTestPolicyRepo(t)
	state, err := repo.Get("2026-01-01")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01", state.SessionDate)
	assert.Nil(t, state.ObservationOnlyUntil)
	assert.Nil(t, state.MinEdgeOverride)
}

func TestPolicyRepository_UpsertThenGet_RoundTripsAllFields(t *testing.T) {
	repo := newTestPolicyRepo(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(time.Hour)
	minEdge := 0.015
	maxTrades := 2
	leverageCap := 3.0

	require.NoError(t, repo.Upsert(PolicyStateRow{
		SessionDate:              "2026-01-01",
		MinEdgeOverride:          &minEdge,
		MaxTradesPerScanOverride: &maxTrades,
		LeverageCapOverride:      &leverageCap,
		ObservationOnlyUntil:     &until,
		Reason:                   "tightened",
		UpdatedAt:                now,
	}))

	state, err := repo.Get("2026-01-01")
	require.NoError(t, err)
	require.NotNil(t, state.MinEdgeOverride)
	assert.InDelta(t, minEdge, *state.MinEdgeOverride, 1e-9)
	require.NotNil(t, state.MaxTradesPerScanOverride)
	assert.Equal(t, maxTrades, *state.MaxTradesPerScanOverride)
	require.NotNil(t, state.LeverageCapOverride)
	assert.InDelta(t, leverageCap, *state.LeverageCapOverride, 1e-9)
	require.NotNil(t, state.ObservationOnlyUntil)
	assert.Equal(t, until, *state.ObservationOnlyUntil)
	assert.Equal(t, "tightened", state.Reason)
}

func TestPolicyRepository_Upsert_OverwritesExistingRow(t *testing.T) {
	repo := newTestPolicyRepo(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(PolicyStateRow{SessionDate: "2026-01-01", Reason: "first", UpdatedAt: now}))
	require.NoError(t, repo.Upsert(PolicyStateRow{SessionDate: "2026-01-01", Reason: "second", UpdatedAt: now}))

	state, err := repo.Get("2026-01-01")
	require.NoError(t, err)
	assert.Equal(t, "second", state.Reason)
}

func TestPolicyRepository_CountExecutedTradesToday_FiltersByOutcomeAndDate(t *testing.T) {
	db, cleanup := storetest.New(t)
	t.Cleanup(cleanup)
	policyRepo := NewPolicyRepository(db.Conn(), zerolog.Nop())
	journal := NewJournalRepository(db.Conn(), zerolog.Nop())

	today := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	yesterday := today.Add(-24 * time.Hour)

	_, err := journal.Append(JournalEntryInput{Symbol: "BTC", Outcome: "executed", CreatedAt: today})
	require.NoError(t, err)
	_, err = journal.Append(JournalEntryInput{Symbol: "ETH", Outcome: "rejected", CreatedAt: today})
	require.NoError(t, err)
	_, err = journal.Append(JournalEntryInput{Symbol: "SOL", Outcome: "executed", CreatedAt: yesterday})
	require.NoError(t, err)

	count, err := policyRepo.CountExecutedTradesToday("2026-01-01")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPolicyRepository_ResolvedSamplesForSignalClass_OnlyResolvedOrderedAscending(t *testing.T) {
	db, cleanup := storetest.New(t)
	t.Cleanup(cleanup)
	policyRepo := NewPolicyRepository(db.Conn(), zerolog.Nop())
	journal := NewJournalRepository(db.Conn(), zerolog.Nop())

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	id1, err := journal.Append(JournalEntryInput{Symbol: "BTC", Outcome: "executed", SignalClass: "momentum_breakout", CreatedAt: base})
	require.NoError(t, err)
	require.NoError(t, journal.CloseWithOutcome(id1, true, [4]float64{}, 1.5, base.Add(2*time.Hour)))

	id2, err := journal.Append(JournalEntryInput{Symbol: "ETH", Outcome: "executed", SignalClass: "momentum_breakout", CreatedAt: base})
	require.NoError(t, err)
	require.NoError(t, journal.CloseWithOutcome(id2, false, [4]float64{}, -0.5, base.Add(time.Hour)))

	_, err = journal.Append(JournalEntryInput{Symbol: "SOL", Outcome: "executed", SignalClass: "news_event", CreatedAt: base})
	require.NoError(t, err)

	samples, err := policyRepo.ResolvedSamplesForSignalClass("momentum_breakout")
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.InDelta(t, -0.5, samples[0].CapturedR, 1e-9)
	assert.InDelta(t, 1.5, samples[1].CapturedR, 1e-9)
}
