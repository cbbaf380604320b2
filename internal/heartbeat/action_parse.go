package heartbeat

import (
	"encoding/json"
	"fmt"

	"github.com/aristath/perpautopilot/internal/domain"
)

// oracleAction is the wire shape the advisory oracle is prompted to reply
// with; kind mirrors domain.HeartbeatActionKind's string values.
type oracleAction struct {
	Kind               string  `json:"kind"`
	Fraction           float64 `json:"fraction"`
	Size               float64 `json:"size"`
	NewStopPrice       float64 `json:"newStopPrice"`
	NewTakeProfitPrice float64 `json:"newTakeProfitPrice"`
	Reasoning          string  `json:"reasoning"`
}

// parseHeartbeatAction decodes one JSON object extracted from an oracle
// response into a domain.HeartbeatAction. An unrecognized kind is an error;
// ValidateAction is still the authority on whether the parsed action is
// legal for the position it names.
func parseHeartbeatAction(raw string) (domain.HeartbeatAction, error) {
	var oa oracleAction
	if err := json.Unmarshal([]byte(raw), &oa); err != nil {
		return domain.HeartbeatAction{}, fmt.Errorf("failed to parse oracle action: %w", err)
	}

	kind := domain.HeartbeatActionKind(oa.Kind)
	switch kind {
	case domain.ActionHold, domain.ActionCloseEntirely, domain.ActionTakePartialProfit,
		domain.ActionTightenStop, domain.ActionAdjustTakeProfit:
	default:
		return domain.HeartbeatAction{}, fmt.Errorf("unrecognized oracle action kind %q", oa.Kind)
	}

	return domain.HeartbeatAction{
		Kind:               kind,
		Fraction:           oa.Fraction,
		Size:               oa.Size,
		NewStopPrice:       oa.NewStopPrice,
		NewTakeProfitPrice: oa.NewTakeProfitPrice,
		Reasoning:          oa.Reasoning,
	}, nil
}
