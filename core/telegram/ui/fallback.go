// Package ui declares the contract between the routers and the app's
// last-resort handlers.
package ui

import tele "gopkg.in/telebot.v4"

// FallbackProvider is implemented by the app to answer updates nothing
// else claimed: free text outside a prompt, documents that are not
// stickers, and callback presses whose data no longer decodes.
type FallbackProvider interface {
	UnknownText() tele.HandlerFunc
	UnknownDocument() tele.HandlerFunc
	UnknownCallback() tele.HandlerFunc
}
