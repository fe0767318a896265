package state

import tele "gopkg.in/telebot.v4"

// handlers maps each await state to the handler consuming its answer.
// Registration happens during wiring, before the bot starts polling, so
// no locking is needed.
var handlers = map[State]tele.HandlerFunc{}

// RegisterHandler binds a state to the handler that consumes its answer.
// Nil handlers are ignored.
func RegisterHandler(st State, h tele.HandlerFunc) {
	if h != nil {
		handlers[st] = h
	}
}

func handlerFor(st State) (tele.HandlerFunc, bool) {
	h, ok := handlers[st]
	return h, ok
}
