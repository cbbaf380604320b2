package heartbeat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/perpautopilot/internal/domain"
)

func TestParseHeartbeatAction_Hold(t *testing.T) {
	action, err := parseHeartbeatAction(`{"kind":"hold","reasoning":"no change warranted"}`)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionHold, action.Kind)
	assert.Equal(t, "no change warranted", action.Reasoning)
}

func TestParseHeartbeatAction_TightenStop(t *testing.T) {
	action, err := parseHeartbeatAction(`{"kind":"tighten_stop","newStopPrice":95.5}`)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionTightenStop, action.Kind)
	assert.Equal(t, 95.5, action.NewStopPrice)
}

func TestParseHeartbeatAction_TakePartialProfit(t *testing.T) {
	action, err := parseHeartbeatAction(`{"kind":"take_partial_profit","fraction":0.5}`)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionTakePartialProfit, action.Kind)
	assert.Equal(t, 0.5, action.Fraction)
}

func TestParseHeartbeatAction_UnrecognizedKind(t *testing.T) {
	_, err := parseHeartbeatAction(`{"kind":"liquidate_everything"}`)
	assert.Error(t, err)
}

func TestParseHeartbeatAction_MalformedJSON(t *testing.T) {
	_, err := parseHeartbeatAction(`not json at all`)
	assert.Error(t, err)
}
