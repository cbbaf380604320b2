package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextFireInterval_AnchorInFuture(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	got := NextFireInterval(anchor, now, 30_000)
	assert.Equal(t, anchor, got)
}

func TestNextFireInterval_AnchorAtNow(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := NextFireInterval(anchor, anchor, 30_000)
	assert.Equal(t, anchor.Add(30*time.Second), got)
}

func TestNextFireInterval_ElapsedMultipleSteps(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := anchor.Add(95 * time.Second)

	got := NextFireInterval(anchor, now, 30_000)
	assert.Equal(t, anchor.Add(120*time.Second), got)
	assert.True(t, got.After(now))
}

func TestNextFireInterval_AlwaysStrictlyAfterNow(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, elapsed := range []time.Duration{0, time.Millisecond, 29999 * time.Millisecond, 30 * time.Second, 31 * time.Second, 61 * time.Second} {
		now := anchor.Add(elapsed)
		got := NextFireInterval(anchor, now, 30_000)
		assert.Truef(t, got.After(now), "elapsed=%s got=%s now=%s", elapsed, got, now)
	}
}

func TestNextFireDaily_LaterToday(t *testing.T) {
	now := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	got, err := NextFireDaily("09:30", time.UTC, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC), got)
}

func TestNextFireDaily_AlreadyPassedRollsToTomorrow(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	got, err := NextFireDaily("09:30", time.UTC, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 16, 9, 30, 0, 0, time.UTC), got)
}

func TestNextFireDaily_ExactlyNowRollsToTomorrow(t *testing.T) {
	now := time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC)
	got, err := NextFireDaily("09:30", time.UTC, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 16, 9, 30, 0, 0, time.UTC), got)
}

func TestNextFireDaily_InvalidHHMM(t *testing.T) {
	_, err := NextFireDaily("bogus", time.UTC, time.Now())
	assert.Error(t, err)
}

func TestNextFireDaily_Timezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC) // 07:00 in New York
	got, err := NextFireDaily("09:00", loc, now)
	require.NoError(t, err)
	assert.Equal(t, 9, got.In(loc).Hour())
	assert.True(t, got.After(now))
}

func TestInitialIntervalFire_NotImmediate(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	got := InitialIntervalFire(now, 60_000)
	assert.Equal(t, now.Add(time.Minute), got)
	assert.True(t, got.After(now))
}

func TestParseHHMM_Valid(t *testing.T) {
	h, m, err := ParseHHMM("23:59")
	require.NoError(t, err)
	assert.Equal(t, 23, h)
	assert.Equal(t, 59, m)
}

func TestParseHHMM_Invalid(t *testing.T) {
	for _, s := range []string{"24:00", "9:99", "notanhour", "9"} {
		_, _, err := ParseHHMM(s)
		assert.Errorf(t, err, "expected error for %q", s)
	}
}
