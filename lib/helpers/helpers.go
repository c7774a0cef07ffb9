package helpers

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var markdownV2Special = []string{"\\", ".", "-", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "=", "|", "{", "}", "!"}

func EscapeMarkdownV2(text string) string {
	for _, char := range markdownV2Special {
		text = strings.ReplaceAll(text, char, "\\"+char)
	}
	return text
}

// FormatPriceUS renders a price with US thousand separators. The fraction is
// kept exactly as given, prices are never rounded.
func FormatPriceUS(price decimal.Decimal, escapeMarkdown bool) string {
	raw := price.String()
	sign := ""
	if strings.HasPrefix(raw, "-") {
		sign, raw = "-", raw[1:]
	}

	whole, fraction, hasFraction := strings.Cut(raw, ".")
	if n, err := strconv.ParseInt(whole, 10, 64); err == nil {
		whole = message.NewPrinter(language.English).Sprintf("%d", n)
	}

	formatted := sign + whole
	if hasFraction {
		formatted += "." + fraction
	}

	if escapeMarkdown {
		return EscapeMarkdownV2(formatted)
	}
	return formatted
}
