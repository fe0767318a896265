// Package state tracks per-user conversation state: when the bot asks a
// question, the pending await state decides which handler consumes the
// next plain-text message. Sessions also carry small temp values such as
// the chat a prompt was asked in.
package state
