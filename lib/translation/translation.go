package translation

import (
	"strings"

	"github.com/leonelquinteros/gotext"
)

// Configure loads the "default" domain for lang from localesDir. Unknown
// languages and missing files fall back to the message ids themselves.
func Configure(localesDir, lang string) {
	gotext.Configure(localesDir, strings.ToLower(lang), "default")
}

func Translate(msgID string, vars ...interface{}) string {
	return gotext.Get(msgID, vars...)
}
