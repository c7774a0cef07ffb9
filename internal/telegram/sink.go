package telegram

import (
	"context"
	"fmt"

	"crypto-price-alerts/internal/types"
	"crypto-price-alerts/lib/helpers"
	"crypto-price-alerts/lib/translation"
)

// Sender is the part of Bot the alert sink needs
type Sender interface {
	SendMessage(m Message) error
}

// AlertSink posts triggered alerts to the owner's Telegram chat
type AlertSink struct {
	sender Sender
}

func NewAlertSink(sender Sender) *AlertSink {
	return &AlertSink{sender: sender}
}

func (s *AlertSink) Name() string { return "telegram" }

func (s *AlertSink) Notify(ctx context.Context, decision types.TriggerDecision, event types.NotificationEvent) error {
	chatID := decision.Alert.Owner.TelegramChatID
	if chatID == 0 || s.sender == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.sender.SendMessage(Message{ChatID: chatID, Text: AlertText(decision, event)})
}

// AlertText renders a MarkdownV2 alert message
func AlertText(decision types.TriggerDecision, event types.NotificationEvent) string {
	name := event.AssetDisplayName
	if name == "" {
		name = event.AssetID
	}
	symbol := decision.Quote.Symbol
	if symbol == "" {
		symbol = event.AssetID
	}

	return fmt.Sprintf(
		translation.Translate("🚨 *Price Alert Triggered*\n\n*%s \\(%s\\)* is now %s the target price of *$%s*\nCurrent Price: *$%s*"),
		helpers.EscapeMarkdownV2(name),
		helpers.EscapeMarkdownV2(symbol),
		helpers.EscapeMarkdownV2(translation.Translate(string(event.Comparator))),
		helpers.FormatPriceUS(event.TargetPrice, true),
		helpers.FormatPriceUS(event.ObservedPrice, true),
	)
}
