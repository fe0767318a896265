// Package callbacks decodes telebot callback data into a routing key
// and payload.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ParseCallbackData extracts the routing key and payload. Buttons built
// through telebot carry \f<unique>|<payload>; buttons with hand-encoded
// data come back verbatim as the key.
func ParseCallbackData(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\\f")
	key, payload, _ := strings.Cut(raw, "|")
	return strings.TrimSpace(key), payload
}
