package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock(t *testing.T) {
	start := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	c := NewFixed(start)

	assert.Equal(t, start, c.Now())

	c.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), c.Now())

	later := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestFixedClockNormalizesToUTC(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	local := time.Date(2026, 1, 15, 7, 0, 0, 0, loc)
	c := NewFixed(local)

	assert.Equal(t, time.UTC, c.Now().Location())
}

func TestISOMilli(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
	assert.Equal(t, "2026-03-04T05:06:07.008Z", ISOMilli(ts))
}

func TestRealClockIsUTC(t *testing.T) {
	var c Clock = Real{}
	assert.Equal(t, time.UTC, c.Now().Location())
}
