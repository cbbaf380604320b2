package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean_ComputesArithmeticAverage(t *testing.T) {
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-9)
}

func TestMean_EmptySliceReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
}

func TestStdDev_EmptySliceReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, StdDev(nil))
}

func TestStdDev_ConstantSeriesIsZero(t *testing.T) {
	assert.InDelta(t, 0.0, StdDev([]float64{5, 5, 5}), 1e-9)
}

func TestVariance_EmptySliceReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, Variance(nil))
}

func TestAnnualizedVolatility_PositiveForVaryingReturns(t *testing.T) {
	vol := AnnualizedVolatility([]float64{0.01, -0.01, 0.02, -0.02})
	assert.Greater(t, vol, 0.0)
}

func TestAnnualizedVolatility_EmptyReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, AnnualizedVolatility(nil))
}

func TestCalculateReturns_ComputesPercentageChanges(t *testing.T) {
	returns := CalculateReturns([]float64{100, 110, 99})
	expected := []float64{0.1, -0.1}
	for i, r := range expected {
		assert.InDelta(t, r, returns[i], 1e-9)
	}
}

func TestCalculateReturns_FewerThanTwoPricesReturnsEmpty(t *testing.T) {
	assert.Empty(t, CalculateReturns([]float64{100}))
}

func TestCorrelation_PerfectlyCorrelatedSeriesIsOne(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	y := []float64{2, 4, 6, 8}
	assert.InDelta(t, 1.0, Correlation(x, y), 1e-9)
}

func TestCorrelation_MismatchedLengthsReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, Correlation([]float64{1, 2}, []float64{1}))
}

func TestCovariance_MismatchedLengthsReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, Covariance([]float64{1, 2}, []float64{1}))
}
