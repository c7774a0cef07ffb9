package alert

import (
	"crypto-price-alerts/internal/types"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Evaluate returns a decision for every unresolved alert whose condition holds
// against the snapshot, in the order the alerts were given. Alerts on assets
// missing from the snapshot are skipped; they may sit outside the polled
// universe and are not an error.
func Evaluate(alerts []types.Alert, snapshot types.PriceSnapshot) []types.TriggerDecision {
	decisions := make([]types.TriggerDecision, 0)

	for _, alert := range alerts {
		if alert.Resolved {
			continue
		}

		quote, exists := snapshot.Lookup(alert.AssetID)
		if !exists {
			log.Debugf("⚠️ No price data found for coin: %s (alert %d)", alert.AssetID, alert.ID)
			continue
		}

		if ShouldTrigger(alert.Comparator, quote.CurrentPrice, alert.TargetPrice) {
			decisions = append(decisions, types.TriggerDecision{Alert: alert, Quote: quote})
		}
	}

	return decisions
}

// ShouldTrigger is inclusive on both sides: a price equal to the target fires.
func ShouldTrigger(comparator types.Comparator, current, target decimal.Decimal) bool {
	switch comparator {
	case types.Above:
		return current.GreaterThanOrEqual(target)
	case types.Below:
		return current.LessThanOrEqual(target)
	default:
		return false
	}
}
