package heartbeat

import (
	"fmt"

	"github.com/aristath/perpautopilot/internal/domain"
)

// ValidateAction checks an oracle-proposed action for legality before it
// reaches the exchange. currentStop is the position's existing stop price
// (0 if none); mark and side describe the position at validation time.
// Violations return a specific error; the caller journals the action as
// rejected without ever calling the exchange.
func ValidateAction(action domain.HeartbeatAction, side domain.Side, mark, currentStop, positionSize float64) error {
	switch action.Kind {
	case domain.ActionHold, domain.ActionCloseEntirely:
		return nil

	case domain.ActionTakePartialProfit:
		hasFraction := action.Fraction > 0 && action.Fraction < 1
		hasSize := action.Size > 0
		if hasFraction == hasSize {
			return fmt.Errorf("take_partial_profit requires exactly one of fraction in (0,1) or size > 0")
		}
		if hasSize && action.Size > positionSize {
			return fmt.Errorf("take_partial_profit size %.8f exceeds position size %.8f", action.Size, positionSize)
		}
		return nil

	case domain.ActionAdjustTakeProfit:
		if action.NewTakeProfitPrice <= 0 {
			return fmt.Errorf("adjust_take_profit requires newTakeProfitPrice > 0")
		}
		return nil

	case domain.ActionTightenStop:
		if action.NewStopPrice <= 0 {
			return fmt.Errorf("tighten_stop requires newStopPrice > 0")
		}
		if side == domain.SideBuy {
			if currentStop > 0 && action.NewStopPrice < currentStop {
				return fmt.Errorf("tighten_stop must not loosen a long's stop: new %.8f < current %.8f", action.NewStopPrice, currentStop)
			}
			if action.NewStopPrice > mark {
				return fmt.Errorf("tighten_stop must stay on the loss-protection side of mark for a long: new %.8f > mark %.8f", action.NewStopPrice, mark)
			}
		} else {
			if currentStop > 0 && action.NewStopPrice > currentStop {
				return fmt.Errorf("tighten_stop must not loosen a short's stop: new %.8f > current %.8f", action.NewStopPrice, currentStop)
			}
			if action.NewStopPrice < mark {
				return fmt.Errorf("tighten_stop must stay on the loss-protection side of mark for a short: new %.8f < mark %.8f", action.NewStopPrice, mark)
			}
		}
		return nil

	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}
