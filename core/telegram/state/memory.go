package state

import (
	"log/slog"
	"sync"

	"stickerdex/core/logger"
	tghelpers "stickerdex/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// memoryManager keeps sessions in a map. Pending questions do not need to
// survive a restart; a user whose prompt got lost just runs the command
// again.
type memoryManager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewMemoryManager returns an in-memory session Manager.
func NewMemoryManager() Manager {
	return &memoryManager{sessions: make(map[int64]*Session)}
}

// session returns the user's session, creating it when absent. Callers
// must hold the write lock.
func (m *memoryManager) session(userID int64) *Session {
	sess, ok := m.sessions[userID]
	if !ok {
		sess = &Session{State: StateIdle, TempData: make(map[string]any)}
		m.sessions[userID] = sess
	}
	return sess
}

// Get returns the user's session, or an idle placeholder when none exists.
func (m *memoryManager) Get(userID int64) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sess, ok := m.sessions[userID]; ok {
		return sess
	}
	return &Session{State: StateIdle, TempData: make(map[string]any)}
}

func (m *memoryManager) SetTemp(userID int64, key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session(userID).TempData[key] = value
}

func (m *memoryManager) ClearTemp(userID int64, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[userID]; ok {
		delete(sess.TempData, key)
	}
}

func (m *memoryManager) SetState(userID int64, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session(userID).State = st
}

func (m *memoryManager) GetState(userID int64) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sess, ok := m.sessions[userID]; ok {
		return sess.State
	}
	return StateIdle
}

// ClearState resets the state to idle. Temp data stays until its owner
// clears it.
func (m *memoryManager) ClearState(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[userID]; ok {
		sess.State = StateIdle
	}
}

func (m *memoryManager) InProgress(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[userID]
	return ok && sess.State != StateIdle
}

// ManagerHandler routes the update to the handler registered for the
// user's current state. Unregistered states swallow the update.
func (m *memoryManager) ManagerHandler(c tele.Context) error {
	userID := c.Sender().ID
	current := m.GetState(userID)
	logger.Debug(tghelpers.BuildContext(c), "tg", "fsm.dispatch",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.String("state", string(current)),
	)

	if handler, ok := handlerFor(current); ok {
		return handler(c)
	}
	return nil
}
