package types

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Comparator is the direction of a threshold alert
type Comparator string

const (
	Above Comparator = "above"
	Below Comparator = "below"
)

// ParseComparator accepts "above"/"below" in any case
func ParseComparator(s string) (Comparator, error) {
	switch Comparator(strings.ToLower(strings.TrimSpace(s))) {
	case Above:
		return Above, nil
	case Below:
		return Below, nil
	}
	return "", errors.Errorf("unknown comparator: %q", s)
}

// PriceQuote is a single asset price within a snapshot
type PriceQuote struct {
	AssetID          string          `json:"id"`
	DisplayName      string          `json:"name"`
	Symbol           string          `json:"symbol"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	Change24hPercent decimal.Decimal `json:"price_change_percentage_24h"`
}

// PriceSnapshot is an immutable, point-in-time set of quotes keyed by asset id.
type PriceSnapshot struct {
	quotes    []PriceQuote
	index     map[string]int
	fetchedAt time.Time
}

// NewPriceSnapshot keeps the order of quotes and drops repeated asset ids,
// the first occurrence wins.
func NewPriceSnapshot(quotes []PriceQuote, fetchedAt time.Time) PriceSnapshot {
	s := PriceSnapshot{
		quotes:    make([]PriceQuote, 0, len(quotes)),
		index:     make(map[string]int, len(quotes)),
		fetchedAt: fetchedAt,
	}
	for _, q := range quotes {
		if _, dup := s.index[q.AssetID]; dup {
			continue
		}
		s.index[q.AssetID] = len(s.quotes)
		s.quotes = append(s.quotes, q)
	}
	return s
}

// Lookup finds the quote for an asset by exact id
func (s PriceSnapshot) Lookup(assetID string) (PriceQuote, bool) {
	i, ok := s.index[assetID]
	if !ok {
		return PriceQuote{}, false
	}
	return s.quotes[i], true
}

// Quotes returns a copy of the quotes in provider order
func (s PriceSnapshot) Quotes() []PriceQuote {
	out := make([]PriceQuote, len(s.quotes))
	copy(out, s.quotes)
	return out
}

func (s PriceSnapshot) Len() int {
	return len(s.quotes)
}

func (s PriceSnapshot) FetchedAt() time.Time {
	return s.fetchedAt
}

type snapshotJSON struct {
	Quotes    []PriceQuote `json:"quotes"`
	FetchedAt time.Time    `json:"fetched_at"`
}

func (s PriceSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{Quotes: s.Quotes(), FetchedAt: s.fetchedAt})
}

func (s *PriceSnapshot) UnmarshalJSON(data []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = NewPriceSnapshot(raw.Quotes, raw.FetchedAt)
	return nil
}

// Owner holds the contact details of an alert owner
type Owner struct {
	ID             int64  `json:"id"`
	Email          string `json:"email,omitempty"`
	TelegramChatID int64  `json:"telegram_chat_id,omitempty"`
}

type Alert struct {
	ID          int64           `json:"id"`
	OwnerID     int64           `json:"user_id"`
	AssetID     string          `json:"coin_id"`
	Comparator  Comparator      `json:"condition"`
	TargetPrice decimal.Decimal `json:"target_price"`
	Resolved    bool            `json:"triggered"`
	ResolvedAt  *time.Time      `json:"triggered_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Owner       Owner           `json:"-"`
}

// TriggerDecision is produced for every alert whose condition is met
type TriggerDecision struct {
	Alert Alert
	Quote PriceQuote
}

type NotificationEvent struct {
	AlertID          int64           `json:"alertId"`
	AssetID          string          `json:"coinId"`
	AssetDisplayName string          `json:"coinName"`
	Comparator       Comparator      `json:"condition"`
	TargetPrice      decimal.Decimal `json:"targetPrice"`
	ObservedPrice    decimal.Decimal `json:"currentPrice"`
	Message          string          `json:"message"`
}

// Principal is the authenticated identity of a real-time client
type Principal struct {
	OwnerID int64
}
