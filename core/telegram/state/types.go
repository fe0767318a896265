package state

import tele "gopkg.in/telebot.v4"

// State names one pending question, for example "await_set_name".
type State string

// StateIdle means no question is pending for the user.
const StateIdle State = "idle"

// Session is one user's conversation state plus scratch values that live
// only as long as the pending question.
type Session struct {
	State    State
	TempData map[string]any
}

// Manager owns the session table. Implementations must be safe for
// concurrent use by handler goroutines.
type Manager interface {
	Get(userID int64) *Session
	SetTemp(userID int64, key string, value any)
	ClearTemp(userID int64, key string)

	SetState(userID int64, st State)
	GetState(userID int64) State
	ClearState(userID int64)

	// InProgress reports whether a question is pending for the user.
	InProgress(userID int64) bool
	// ManagerHandler dispatches the update to the handler registered for
	// the user's current state.
	ManagerHandler(c tele.Context) error
}
