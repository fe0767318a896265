// Package keyboard builds the reply markups the bot reuses across
// handlers. Inline decision keyboards are composed by the callers; this
// package only covers the plain reply kind.
package keyboard

import tele "gopkg.in/telebot.v4"

// ForceReply makes clients open the reply box, used by prompt questions
// so the answer arrives as a reply.
func ForceReply() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{ForceReply: true}
}

// ReplyButtons lays out a persistent reply keyboard, one row per slice.
func ReplyButtons(rows ...[]string) *tele.ReplyMarkup {
	kb := make([][]tele.ReplyButton, 0, len(rows))
	for _, labels := range rows {
		row := make([]tele.ReplyButton, 0, len(labels))
		for _, label := range labels {
			row = append(row, tele.ReplyButton{Text: label})
		}
		kb = append(kb, row)
	}
	return &tele.ReplyMarkup{ResizeKeyboard: true, ReplyKeyboard: kb}
}
