package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"crypto-price-alerts/internal/database"
	"crypto-price-alerts/internal/metrics"
	"crypto-price-alerts/internal/realtime"
	"crypto-price-alerts/internal/types"
	"crypto-price-alerts/lib/translation"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotOf(prices map[string]int64) types.PriceSnapshot {
	quotes := make([]types.PriceQuote, 0, len(prices))
	for id, p := range prices {
		quotes = append(quotes, types.PriceQuote{AssetID: id, DisplayName: id, CurrentPrice: decimal.NewFromInt(p)})
	}
	return types.NewPriceSnapshot(quotes, time.Now())
}

func newAlert(id int64, coin string, cmp types.Comparator, target int64) types.Alert {
	return types.Alert{
		ID:          id,
		OwnerID:     7,
		AssetID:     coin,
		Comparator:  cmp,
		TargetPrice: decimal.NewFromInt(target),
		Owner:       types.Owner{ID: 7, Email: "u@example.com"},
	}
}

func TestEvaluateBoundaries(t *testing.T) {
	snapshot := snapshotOf(map[string]int64{"bitcoin": 50000})

	cases := []struct {
		name   string
		cmp    types.Comparator
		target int64
		fires  bool
	}{
		{"above below price", types.Above, 49000, true},
		{"above equal price", types.Above, 50000, true},
		{"above over price", types.Above, 50001, false},
		{"below over price", types.Below, 51000, true},
		{"below equal price", types.Below, 50000, true},
		{"below under price", types.Below, 49999, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decisions := Evaluate([]types.Alert{newAlert(1, "bitcoin", tc.cmp, tc.target)}, snapshot)
			assert.Equal(t, tc.fires, len(decisions) == 1)
		})
	}
}

func TestEvaluateSkipsUnlistedAndResolved(t *testing.T) {
	snapshot := snapshotOf(map[string]int64{"bitcoin": 50000, "ethereum": 3000})

	resolved := newAlert(3, "ethereum", types.Above, 1)
	resolved.Resolved = true

	alerts := []types.Alert{
		newAlert(1, "doge-unlisted", types.Above, 0),
		newAlert(2, "Bitcoin", types.Above, 1),
		resolved,
		newAlert(4, "ethereum", types.Below, 5000),
		newAlert(5, "bitcoin", types.Above, 49000),
	}

	decisions := Evaluate(alerts, snapshot)
	require.Len(t, decisions, 2)
	assert.Equal(t, int64(4), decisions[0].Alert.ID)
	assert.Equal(t, int64(5), decisions[1].Alert.ID)
	assert.True(t, decisions[1].Quote.CurrentPrice.Equal(decimal.NewFromInt(50000)))
}

func TestEvaluateEmptyInputs(t *testing.T) {
	assert.Empty(t, Evaluate(nil, snapshotOf(map[string]int64{"bitcoin": 1})))
	assert.Empty(t, Evaluate([]types.Alert{newAlert(1, "bitcoin", types.Above, 1)}, types.PriceSnapshot{}))
}

func TestShouldTriggerUnknownComparator(t *testing.T) {
	assert.False(t, ShouldTrigger(types.Comparator("sideways"), decimal.NewFromInt(1), decimal.NewFromInt(1)))
}

type fakeStore struct {
	mu       sync.Mutex
	resolved map[int64]bool
	err      error
	calls    []int64
}

func (f *fakeStore) ListUnresolved(context.Context) ([]types.Alert, error) { return nil, nil }

func (f *fakeStore) MarkResolved(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if f.err != nil {
		return f.err
	}
	if f.resolved == nil {
		f.resolved = map[int64]bool{}
	}
	if f.resolved[id] {
		return database.ErrAlreadyResolved
	}
	f.resolved[id] = true
	return nil
}

type broadcast struct {
	topic   string
	payload any
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []broadcast
}

func (f *fakeNotifier) Broadcast(topic string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, broadcast{topic, payload})
}

type fakeSink struct {
	name   string
	err    error
	events []types.NotificationEvent
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Notify(_ context.Context, _ types.TriggerDecision, event types.NotificationEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func bitcoinDecision() types.TriggerDecision {
	return types.TriggerDecision{
		Alert: newAlert(1, "bitcoin", types.Above, 49000),
		Quote: types.PriceQuote{AssetID: "bitcoin", DisplayName: "Bitcoin", CurrentPrice: decimal.NewFromInt(50000)},
	}
}

func TestDispatchResolvesThenNotifies(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	m := metrics.New(prometheus.NewRegistry())
	email := &fakeSink{name: "email"}
	dispatcher := NewDispatcher(store, notifier, m, email)

	require.NoError(t, dispatcher.Dispatch(context.Background(), bitcoinDecision()))

	assert.True(t, store.resolved[1])
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, realtime.AlertTopic(7), notifier.sent[0].topic)

	event, ok := notifier.sent[0].payload.(types.NotificationEvent)
	require.True(t, ok)
	assert.Equal(t, int64(1), event.AlertID)
	assert.Equal(t, "bitcoin", event.AssetID)
	assert.Equal(t, "Bitcoin", event.AssetDisplayName)
	assert.Equal(t, types.Above, event.Comparator)
	assert.True(t, event.ObservedPrice.Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, "Bitcoin is now above $49000. Current price: $50000", event.Message)

	require.Len(t, email.events, 1)
	assert.Equal(t, event, email.events[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsTriggered))
}

func TestDispatchStoreFailureEmitsNothing(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	notifier := &fakeNotifier{}
	m := metrics.New(prometheus.NewRegistry())
	email := &fakeSink{name: "email"}

	err := NewDispatcher(store, notifier, m, email).Dispatch(context.Background(), bitcoinDecision())
	require.Error(t, err)
	assert.Empty(t, notifier.sent)
	assert.Empty(t, email.events)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResolveFailures))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.AlertsTriggered))
}

func TestDispatchTwiceFiresOnce(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	dispatcher := NewDispatcher(store, notifier, nil)

	require.NoError(t, dispatcher.Dispatch(context.Background(), bitcoinDecision()))
	require.NoError(t, dispatcher.Dispatch(context.Background(), bitcoinDecision()))

	assert.Len(t, store.calls, 2)
	assert.Len(t, notifier.sent, 1)
}

func TestDispatchSinkFailureDoesNotBlockOthers(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	m := metrics.New(prometheus.NewRegistry())
	email := &fakeSink{name: "email", err: errors.New("smtp down")}
	tg := &fakeSink{name: "telegram"}

	err := NewDispatcher(store, notifier, m, email, tg).Dispatch(context.Background(), bitcoinDecision())
	require.NoError(t, err)

	assert.True(t, store.resolved[1], "resolution survives sink failures")
	assert.Len(t, notifier.sent, 1)
	assert.Len(t, tg.events, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkFailures.WithLabelValues("email")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SinkFailures.WithLabelValues("telegram")))
}

func TestNewEventFallsBackToAssetID(t *testing.T) {
	decision := bitcoinDecision()
	decision.Quote.DisplayName = ""
	decision.Alert.Comparator = types.Below
	decision.Alert.TargetPrice = decimal.RequireFromString("0.00001234")
	decision.Quote.CurrentPrice = decimal.RequireFromString("0.0000012")

	event := NewEvent(decision)
	assert.Equal(t, "bitcoin", event.AssetDisplayName)
	assert.Equal(t, "bitcoin is now below $0.00001234. Current price: $0.0000012", event.Message)
}

func TestNewEventTranslatesComparator(t *testing.T) {
	translation.Configure("../../locales", "pl")
	t.Cleanup(func() { translation.Configure("../../locales", "en") })

	event := NewEvent(bitcoinDecision())
	assert.Equal(t, "Bitcoin jest teraz powyżej $49000. Aktualna cena: $50000", event.Message)
	assert.Equal(t, types.Above, event.Comparator)
}
