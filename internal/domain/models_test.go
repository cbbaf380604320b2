package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalCluster_PriceVol_FoundAndMissing(t *testing.T) {
	cluster := SignalCluster{Primitives: []SignalPrimitive{
		{Kind: PrimitivePriceVolRegime, Metrics: map[string]float64{"trend": 0.02}},
	}}

	got, ok := cluster.PriceVol()
	assert.True(t, ok)
	assert.Equal(t, 0.02, got.Metrics["trend"])

	_, ok = cluster.Orderflow()
	assert.False(t, ok)
}

func TestSignalCluster_Orderflow_FoundAndMissing(t *testing.T) {
	cluster := SignalCluster{Primitives: []SignalPrimitive{
		{Kind: PrimitiveOrderflowImbalance, Bias: 0.5},
	}}

	got, ok := cluster.Orderflow()
	assert.True(t, ok)
	assert.Equal(t, 0.5, got.Bias)

	_, ok = cluster.PriceVol()
	assert.False(t, ok)
}

func TestSignalCluster_EmptyClusterFindsNothing(t *testing.T) {
	var cluster SignalCluster
	_, ok := cluster.PriceVol()
	assert.False(t, ok)
	_, ok = cluster.Orderflow()
	assert.False(t, ok)
}
