package event

import (
	"encoding/json"
	"fmt"
)

// New returns an empty event of the given type, ready for decoding.
func New(et EventType) (Event, error) {
	switch et {
	case EventTypeOpenPosition:
		return &OpenPosition{}, nil
	case EventTypeClosePosition:
		return &ClosePosition{}, nil
	case EventTypeModifyMargin:
		return &ModifyMargin{}, nil
	case EventTypeLiquidatePosition:
		return &LiquidatePosition{}, nil
	case EventTypeStake:
		return &Stake{}, nil
	case EventTypeRedeem:
		return &Redeem{}, nil
	case EventTypeCollateralDeposit:
		return &CollateralDeposit{}, nil
	case EventTypeCollateralWithdrawal:
		return &CollateralWithdrawal{}, nil
	case EventTypeOraclePriceUpdate:
		return &OraclePriceUpdate{}, nil
	case EventTypeInterestRateUpdate:
		return &InterestRateUpdate{}, nil
	case EventTypeProductUpsert:
		return &ProductUpsert{}, nil
	case EventTypeParametersUpdate:
		return &ParametersUpdate{}, nil
	case EventTypeLiquidationThresholdUpdate:
		return &LiquidationThresholdUpdate{}, nil
	case EventTypeMinMarginUpdate:
		return &MinMarginUpdate{}, nil
	case EventTypeVaultConfigUpdate:
		return &VaultConfigUpdate{}, nil
	case EventTypeManagerUpdate:
		return &ManagerUpdate{}, nil
	case EventTypeLiquidatorUpdate:
		return &LiquidatorUpdate{}, nil
	case EventTypeAccountManagerApproval:
		return &AccountManagerApproval{}, nil
	case EventTypeFeeClaim:
		return &FeeClaim{}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %d", et)
	}
}

// Encode serializes an event payload for the event log.
func Encode(evt Event) ([]byte, error) {
	return json.Marshal(evt)
}

// Decode rebuilds an event from its logged type and payload.
func Decode(et EventType, payload []byte) (Event, error) {
	evt, err := New(et)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", et, err)
	}
	return evt, nil
}
