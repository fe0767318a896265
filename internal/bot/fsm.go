package bot

import (
	"strings"

	tele "gopkg.in/telebot.v4"

	tghelpers "stickerdex/core/telegram/helpers"
	"stickerdex/core/telegram/keyboard"
	"stickerdex/core/telegram/middleware"
	"stickerdex/core/telegram/state"
	"stickerdex/internal/models"
)

// Await states carry a pending question: /tag_set and /language without
// arguments ask for the missing piece and park the answer here.
const (
	stateAwaitSetName  state.State = "await_set_name"
	stateAwaitLanguage state.State = "await_language"
)

// awaitChatKey pins a prompt to the chat it was asked in, so an answer
// typed in a different chat does not get consumed.
const awaitChatKey = "await_chat_id"

// awaitRouter adapts the state manager to the text router. Command text
// never routes here, so /cancel keeps working while a prompt is open.
type awaitRouter struct {
	mgr state.Manager
}

func (r awaitRouter) InProgress(c tele.Context) bool {
	sender := c.Sender()
	if sender == nil {
		return false
	}
	if strings.HasPrefix(strings.TrimSpace(c.Text()), "/") {
		return false
	}
	return r.mgr.InProgress(sender.ID)
}

func (r awaitRouter) ManagerHandler(c tele.Context) error {
	return r.mgr.ManagerHandler(c)
}

// stateStrings narrows the manager to the gate middleware's contract.
type stateStrings struct {
	mgr state.Manager
}

func (s stateStrings) GetState(userID int64) string {
	return string(s.mgr.GetState(userID))
}

func (a *App) registerInputStates() {
	gate := stateStrings{mgr: a.fsm}
	state.RegisterHandler(stateAwaitSetName,
		middleware.State(gate, string(stateAwaitSetName))(a.awaitSetName))
	state.RegisterHandler(stateAwaitLanguage,
		middleware.State(gate, string(stateAwaitLanguage))(a.awaitLanguage))
}

// setAwait opens a prompt for the sender in the current chat.
func (a *App) setAwait(c tele.Context, st state.State) {
	sender := c.Sender()
	if sender == nil {
		return
	}
	a.fsm.SetState(sender.ID, st)
	if chat := c.Chat(); chat != nil {
		a.fsm.SetTemp(sender.ID, awaitChatKey, chat.ID)
	}
}

// ask sends a prompt question with a forced reply, so clients open the
// reply box right away.
func ask(c tele.Context, text string) error {
	return tghelpers.SendText(c, text, &tele.SendOptions{ReplyMarkup: keyboard.ForceReply()})
}

func (a *App) clearAwait(userID int64) {
	a.fsm.ClearState(userID)
	a.fsm.ClearTemp(userID, awaitChatKey)
}

// promptChatMatches reports whether the update comes from the chat the
// prompt was asked in. Sessions without a pinned chat accept anywhere.
func promptChatMatches(c tele.Context) bool {
	sess := state.SessionFrom(c)
	if sess == nil {
		return true
	}
	want, ok := sess.TempData[awaitChatKey].(int64)
	if !ok {
		return true
	}
	return c.Chat() != nil && c.Chat().ID == want
}

// awaitSetName consumes the answer to "which set do you want to tag".
func (a *App) awaitSetName(c tele.Context) error {
	if !promptChatMatches(c) {
		return nil
	}
	msgs := a.userMsgs(c)

	name := setNameFromText(c.Text())
	if name == "" {
		return ask(c, msgs.AskSetName())
	}
	a.clearAwait(c.Sender().ID)

	ctx := tghelpers.BuildContext(c)
	user, err := tghelpers.ResolveUser[models.User](ctx, c, a.store)
	if err != nil {
		return err
	}
	return a.startSetSession(ctx, c, user, name)
}

// awaitLanguage consumes the answer to "which language do you tag in".
func (a *App) awaitLanguage(c tele.Context) error {
	if !promptChatMatches(c) {
		return nil
	}
	msgs := a.userMsgs(c)

	name := strings.ToLower(strings.TrimSpace(c.Text()))
	if name == "" {
		return ask(c, msgs.AskLanguage())
	}
	a.clearAwait(c.Sender().ID)

	ctx := tghelpers.BuildContext(c)
	user, err := tghelpers.ResolveUser[models.User](ctx, c, a.store)
	if err != nil {
		return err
	}
	return a.applyLanguageChoice(ctx, c, user, name)
}
