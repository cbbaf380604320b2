package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFractionalKelly_ClampedToFloor(t *testing.T) {
	got := FractionalKelly(KellyInput{Edge: 0, Expectancy: 0, Variance: 1, SampleCount: 1}, 0.25)
	assert.Equal(t, 0.01, got)
}

func TestFractionalKelly_ClampedToCeiling(t *testing.T) {
	got := FractionalKelly(KellyInput{Edge: 100, Expectancy: 100, Variance: 0.1, SampleCount: 100}, 0.25)
	assert.Equal(t, 0.25, got)
}

func TestFractionalKelly_PerCandidateMaxFractionOverride(t *testing.T) {
	got := FractionalKelly(KellyInput{Edge: 100, Expectancy: 100, Variance: 0.1, SampleCount: 100, MaxFraction: 0.1}, 0.25)
	assert.Equal(t, 0.1, got)
}

func TestFractionalKelly_NegativeExpectancyFlooredToZero(t *testing.T) {
	got := FractionalKelly(KellyInput{Edge: 1, Expectancy: -5, Variance: 1, SampleCount: 20}, 0.25)
	assert.Equal(t, 0.01, got)
}

func TestFractionalKelly_VarianceFlooredAtOneTenth(t *testing.T) {
	withFloor := FractionalKelly(KellyInput{Edge: 0.5, Expectancy: 0.5, Variance: 0, SampleCount: 20}, 0.25)
	atFloor := FractionalKelly(KellyInput{Edge: 0.5, Expectancy: 0.5, Variance: 0.1, SampleCount: 20}, 0.25)
	assert.Equal(t, atFloor, withFloor)
}

func TestFractionalKelly_ConfidenceScalesWithSampleCount(t *testing.T) {
	low := FractionalKelly(KellyInput{Edge: 0.5, Expectancy: 0.5, Variance: 1, SampleCount: 2}, 0.25)
	high := FractionalKelly(KellyInput{Edge: 0.5, Expectancy: 0.5, Variance: 1, SampleCount: 20}, 0.25)
	assert.Less(t, low, high)
}

func TestFractionalKelly_SampleCountConfidenceFloorAtPoint2(t *testing.T) {
	zero := FractionalKelly(KellyInput{Edge: 0.5, Expectancy: 0.5, Variance: 1, SampleCount: 0}, 0.25)
	one := FractionalKelly(KellyInput{Edge: 0.5, Expectancy: 0.5, Variance: 1, SampleCount: 1}, 0.25)
	assert.Equal(t, zero, one, "confidence is clamped to a 0.2 floor below sampleCount=4")
}
