package notify

import (
	"context"
	"fmt"
	"html"

	"crypto-price-alerts/internal/types"
	"crypto-price-alerts/lib/translation"

	"github.com/dustin/go-humanize"
)

// EmailSink mails the owner of a triggered alert, if the owner has an address.
type EmailSink struct {
	mailer Mailer
}

func NewEmailSink(mailer Mailer) *EmailSink {
	if mailer == nil {
		mailer = NoopMailer{}
	}
	return &EmailSink{mailer: mailer}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Notify(ctx context.Context, decision types.TriggerDecision, event types.NotificationEvent) error {
	address := decision.Alert.Owner.Email
	if address == "" {
		return nil
	}
	return s.mailer.Send(ctx, address, Subject(event), Body(decision, event))
}

func Subject(event types.NotificationEvent) string {
	return translation.Translate("Crypto Price Alert: %s", event.AssetID)
}

// Body renders the HTML mail for a triggered alert
func Body(decision types.TriggerDecision, event types.NotificationEvent) string {
	row := func(label, value string) string {
		return fmt.Sprintf("<p><strong>%s:</strong> %s</p>\n", html.EscapeString(label), html.EscapeString(value))
	}

	body := "<h2>" + html.EscapeString(translation.Translate("Price Alert Triggered!")) + "</h2>\n"
	body += row(translation.Translate("Coin"), event.AssetID)
	body += row(translation.Translate("Condition"), translation.Translate(string(event.Comparator)))
	body += row(translation.Translate("Target Price"), "$"+event.TargetPrice.String())
	body += row(translation.Translate("Current Price"), "$"+event.ObservedPrice.String())
	if created := decision.Alert.CreatedAt; !created.IsZero() {
		body += row(translation.Translate("Alert created"), humanize.Time(created))
	}
	body += "<p>" + html.EscapeString(translation.Translate("Your alert has been triggered. The price condition you set has been met.")) + "</p>\n"
	return body
}
