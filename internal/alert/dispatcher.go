package alert

import (
	"context"

	"crypto-price-alerts/internal/database"
	"crypto-price-alerts/internal/metrics"
	"crypto-price-alerts/internal/realtime"
	"crypto-price-alerts/internal/types"
	"crypto-price-alerts/lib/translation"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Store is what the monitor needs from the alert store
type Store interface {
	ListUnresolved(ctx context.Context) ([]types.Alert, error)
	MarkResolved(ctx context.Context, alertID int64) error
}

// Sink is an outbound notification channel next to the real-time push
type Sink interface {
	Name() string
	Notify(ctx context.Context, decision types.TriggerDecision, event types.NotificationEvent) error
}

type Dispatcher struct {
	store    Store
	notifier realtime.Notifier
	sinks    []Sink
	metrics  *metrics.MonitorMetrics
}

func NewDispatcher(store Store, notifier realtime.Notifier, m *metrics.MonitorMetrics, sinks ...Sink) *Dispatcher {
	return &Dispatcher{store: store, notifier: notifier, sinks: sinks, metrics: m}
}

// Dispatch resolves the alert first and only then notifies. A failed store
// write leaves the alert unresolved so the next cycle retries it; sink
// failures are logged and never undo the resolution.
func (d *Dispatcher) Dispatch(ctx context.Context, decision types.TriggerDecision) error {
	alert := decision.Alert
	entry := log.WithFields(log.Fields{
		"alert_id": alert.ID,
		"owner_id": alert.OwnerID,
		"coin_id":  alert.AssetID,
	})

	if err := d.store.MarkResolved(ctx, alert.ID); err != nil {
		if errors.Is(err, database.ErrAlreadyResolved) {
			entry.Info("Alert already resolved, not notifying again")
			return nil
		}
		if d.metrics != nil {
			d.metrics.ResolveFailures.Inc()
		}
		entry.Errorf("❌ Failed to resolve alert, will retry next cycle: %v", err)
		return errors.Wrapf(err, "resolve alert %d", alert.ID)
	}

	if d.metrics != nil {
		d.metrics.AlertsTriggered.Inc()
	}

	event := NewEvent(decision)
	entry.Infof("🚨 Alert triggered: %s", event.Message)

	if d.notifier != nil {
		d.notifier.Broadcast(realtime.AlertTopic(alert.OwnerID), event)
	}

	for _, sink := range d.sinks {
		if err := sink.Notify(ctx, decision, event); err != nil {
			if d.metrics != nil {
				d.metrics.SinkFailures.WithLabelValues(sink.Name()).Inc()
			}
			entry.Errorf("❌ Failed to send %s notification: %v", sink.Name(), err)
			continue
		}
		entry.Debugf("✅ %s notification handled", sink.Name())
	}

	return nil
}

// NewEvent builds the notification for a decision
func NewEvent(decision types.TriggerDecision) types.NotificationEvent {
	alert, quote := decision.Alert, decision.Quote

	name := quote.DisplayName
	if name == "" {
		name = alert.AssetID
	}

	return types.NotificationEvent{
		AlertID:          alert.ID,
		AssetID:          alert.AssetID,
		AssetDisplayName: name,
		Comparator:       alert.Comparator,
		TargetPrice:      alert.TargetPrice,
		ObservedPrice:    quote.CurrentPrice,
		Message: translation.Translate("%s is now %s $%s. Current price: $%s",
			name, translation.Translate(string(alert.Comparator)), alert.TargetPrice.String(), quote.CurrentPrice.String()),
	}
}
