package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"

	"stickerdex/core/logger"
	tg "stickerdex/core/telegram"
	"stickerdex/core/telegram/commands"
	"stickerdex/core/telegram/format"
	tghelpers "stickerdex/core/telegram/helpers"
	"stickerdex/internal/models"
	"stickerdex/internal/moderation"
	"stickerdex/internal/session"
	"stickerdex/internal/storage"
	"stickerdex/internal/tagging"
)

func (a *App) registerCommands(reg *tg.Registry) {
	// A command always abandons a pending prompt. Without this, the
	// next plain message would still be eaten as the prompt's answer.
	register := func(name string, cmd commands.Command) {
		inner := cmd.Handler
		cmd.Handler = func(c tele.Context) error {
			if sender := c.Sender(); sender != nil {
				a.clearAwait(sender.ID)
			}
			return inner(c)
		}
		reg.RegisterCommand(name, cmd)
	}

	register("/start", commands.Command{
		Handler:     a.cmdStart,
		Description: "Show what I can do",
	})
	register("/help", commands.Command{
		Handler:     a.cmdHelp,
		Description: "List all commands",
	})
	register("/tag_set", commands.Command{
		Handler:     a.cmdTagSet,
		Description: "Tag a whole sticker set",
	})
	register("/tag_random", commands.Command{
		Handler:     a.cmdTagRandom,
		Description: "Tag random untagged stickers",
	})
	register("/tag", commands.Command{
		Handler:     a.cmdTag,
		Description: "Tag the current sticker",
	})
	register("/next", commands.Command{
		Handler:     a.cmdNext,
		Description: "Skip the current sticker",
	})
	register("/cancel", commands.Command{
		Handler:     a.cmdCancel,
		Description: "Stop the current tagging session",
	})
	register("/language", commands.Command{
		Handler:     a.cmdLanguage,
		Description: "Switch your tagging language",
	})
	register("/set_language", commands.Command{
		Handler:     a.cmdSetLanguage,
		Description: "Propose a language for a sticker set",
	})
	register("/vote_ban", commands.Command{
		Handler:     a.voteCommand(models.TaskVoteBan),
		Description: "Report the replied-to sticker's set",
	})
	register("/vote_nsfw", commands.Command{
		Handler:     a.voteCommand(models.TaskVoteNSFW),
		Description: "Flag the replied-to sticker's set as nsfw",
	})

	register("/tasks", commands.Command{
		Handler:     a.cmdTasks,
		Description: "Work the review queue",
		AdminOnly:   true,
	})
	register("/newsfeed", commands.Command{
		Handler:     a.cmdNewsfeed,
		Description: "Review freshly imported sets",
		AdminOnly:   true,
	})
	register("/check_user", commands.Command{
		Handler:     a.cmdCheckUser,
		Description: "Open a review of a user's changes",
		AdminOnly:   true,
	})
	register("/toggle_deluxe", commands.Command{
		Handler:     a.cmdToggleDeluxe,
		Description: "Toggle the deluxe flag on a set",
		AdminOnly:   true,
	})
	register("/toggle_newsfeed", commands.Command{
		Handler:     a.toggleChatFlag("newsfeed"),
		Description: "Toggle newsfeed announcements here",
		AdminOnly:   true,
	})
	register("/toggle_maintenance", commands.Command{
		Handler:     a.toggleChatFlag("maintenance"),
		Description: "Toggle maintenance mode here",
		AdminOnly:   true,
	})
}

func (a *App) cmdStart(c tele.Context) error {
	markup := mainMarkup()
	if a.isAdmin(c) {
		markup = adminMarkup()
	}
	return c.Send(a.userMsgs(c).Start(a.botName), markup)
}

func (a *App) cmdHelp(c tele.Context) error {
	return tghelpers.SendText(c, a.userMsgs(c).Help())
}

// cmdTagSet starts a set walk. The set comes from the argument, the
// replied-to sticker, or the chat's current sticker; with none of those
// the bot asks and waits.
func (a *App) cmdTagSet(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	user, err := tghelpers.ResolveUser[models.User](ctx, c, a.store)
	if err != nil {
		return a.fail(c, err)
	}

	name := setNameFromText(c.Message().Payload)
	if name == "" {
		name, err = a.contextSetName(ctx, c)
		if err != nil {
			return a.fail(c, err)
		}
	}
	if name == "" {
		a.setAwait(c, stateAwaitSetName)
		return ask(c, a.userMsgs(c).AskSetName())
	}
	return a.startSetSession(ctx, c, user, name)
}

func (a *App) startSetSession(ctx context.Context, c tele.Context, user models.User, name string) error {
	err := a.sessions.EnterStickerSetMode(ctx, c.Chat().ID, user, name)
	if errors.Is(err, session.ErrSetNotReady) {
		return nil
	}
	if err != nil {
		return a.fail(c, err)
	}
	return nil
}

func (a *App) cmdTagRandom(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	user, err := tghelpers.ResolveUser[models.User](ctx, c, a.store)
	if err != nil {
		return a.fail(c, err)
	}
	err = a.sessions.EnterRandomMode(ctx, c.Chat().ID, user)
	if errors.Is(err, session.ErrNoEligibleSticker) {
		return nil
	}
	if err != nil {
		return a.fail(c, err)
	}
	return nil
}

// cmdTag tags one sticker in place: the replied-to sticker or the
// chat's current one. The rest of the message text is the tag list.
func (a *App) cmdTag(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	user, err := tghelpers.ResolveUser[models.User](ctx, c, a.store)
	if err != nil {
		return a.fail(c, err)
	}
	msgs := a.userMsgs(c)
	if user.Reverted {
		return nil
	}

	fileID := ""
	if reply := c.Message().ReplyTo; reply != nil && reply.Sticker != nil {
		fileID = reply.Sticker.FileID
	}
	if fileID == "" {
		chat, err := a.store.GetOrCreateChat(ctx, c.Chat().ID)
		if err != nil {
			return a.fail(c, err)
		}
		fileID = chat.CurrentSticker()
	}
	if fileID == "" {
		return tghelpers.SendText(c, msgs.ReplyToSticker())
	}

	sticker, err := a.store.GetSticker(ctx, fileID)
	if errors.Is(err, storage.ErrNotFound) {
		return tghelpers.SendText(c, msgs.StickerUnknown())
	}
	if err != nil {
		return a.fail(c, err)
	}

	change, err := a.tagger.ApplyTags(ctx, sticker, c.Text(), user, tagging.ApplyOptions{
		Replace:       true,
		SingleSticker: true,
		ChatID:        c.Chat().ID,
		MessageID:     c.Message().ID,
	})
	if err != nil {
		return a.fail(c, err)
	}
	if change == nil {
		return tghelpers.SendText(c, msgs.TaggingInstructions())
	}

	set, err := a.store.GetStickerSet(ctx, sticker.SetName)
	if err != nil {
		return a.fail(c, err)
	}
	scopeDefault := user.DefaultLanguage && set.DefaultLanguage
	tags, err := a.store.StickerTagsForLanguage(ctx, sticker.FileID, scopeDefault)
	if err != nil {
		return a.fail(c, err)
	}
	return tghelpers.SendText(c, session.PromptText(msgs, set, tags, scopeDefault, false))
}

func (a *App) cmdNext(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	user, err := tghelpers.ResolveUser[models.User](ctx, c, a.store)
	if err != nil {
		return a.fail(c, err)
	}
	msgs := a.userMsgs(c)

	chat, err := a.store.GetOrCreateChat(ctx, c.Chat().ID)
	if err != nil {
		return a.fail(c, err)
	}
	switch chat.TagMode {
	case models.ModeNone:
		return tghelpers.SendText(c, msgs.NotInSession())
	case models.ModeSingleSticker:
		// Nothing to walk past; a skipped one-off fix is a cancel.
		return a.cancelSession(ctx, c, user)
	}

	err = a.sessions.Advance(ctx, c.Chat().ID, user)
	if errors.Is(err, session.ErrNoEligibleSticker) {
		return nil
	}
	if err != nil {
		return a.fail(c, err)
	}
	return nil
}

func (a *App) cmdCancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	user, err := tghelpers.ResolveUser[models.User](ctx, c, a.store)
	if err != nil {
		return a.fail(c, err)
	}
	return a.cancelSession(ctx, c, user)
}

func (a *App) cancelSession(ctx context.Context, c tele.Context, user models.User) error {
	if err := a.sessions.Cancel(ctx, c.Chat().ID, user); err != nil {
		return a.fail(c, err)
	}
	markup := mainMarkup()
	if a.isAdmin(c) {
		markup = adminMarkup()
	}
	return c.Send(a.userMsgs(c).SessionCancelled(), markup)
}

// cmdLanguage switches the sender's tagging language. Unknown names
// become review tasks; without an argument the bot lists what exists
// and waits for a pick.
func (a *App) cmdLanguage(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	user, err := tghelpers.ResolveUser[models.User](ctx, c, a.store)
	if err != nil {
		return a.fail(c, err)
	}

	arg := strings.TrimSpace(c.Message().Payload)
	if arg == "" {
		languages, err := a.store.ListLanguages(ctx)
		if err != nil {
			return a.fail(c, err)
		}
		names := make([]string, 0, len(languages))
		for _, l := range languages {
			names = append(names, l.Name)
		}
		msgs := a.userMsgs(c)
		a.setAwait(c, stateAwaitLanguage)
		return ask(c, msgs.LanguageList(strings.Join(names, ", "))+"\n"+msgs.AskLanguage())
	}
	return a.applyLanguageChoice(ctx, c, user, arg)
}

func (a *App) applyLanguageChoice(ctx context.Context, c tele.Context, user models.User, name string) error {
	msgs := a.userMsgs(c)
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return tghelpers.SendText(c, msgs.UsageLanguage())
	}

	useDefault := name == models.DefaultLanguageName
	if !useDefault {
		_, err := a.store.GetLanguage(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			return a.proposeLanguage(ctx, c, user, name)
		}
		if err != nil {
			return a.fail(c, err)
		}
	}

	if err := a.store.SetUserDefaultLanguage(ctx, user.ID, useDefault); err != nil {
		return a.fail(c, err)
	}
	user.DefaultLanguage = useDefault
	tghelpers.StoreUser(c, user)
	return tghelpers.SendText(c, msgs.LanguageSwitched(name))
}

// proposeLanguage queues an unknown language for review and tells the
// maintenance chats.
func (a *App) proposeLanguage(ctx context.Context, c tele.Context, user models.User, name string) error {
	task := &models.Task{
		ID:     uuid.New(),
		Kind:   models.TaskNewLanguage,
		UserID: &user.ID,
		Value:  &name,
	}
	if err := a.store.CreateTask(ctx, task); err != nil {
		return a.fail(c, err)
	}
	a.notifyMaintenance(ctx,
		fmt.Sprintf("%s proposed a new language: %s", displayName(user), name),
		markupFrom(moderation.LanguageKeyboard(*task)))
	return tghelpers.SendText(c, a.userMsgs(c).LanguageProposed(name))
}

// cmdSetLanguage proposes a language for the replied-to or current
// sticker's set. Reviewers confirm it before search scopes change.
func (a *App) cmdSetLanguage(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	user, err := tghelpers.ResolveUser[models.User](ctx, c, a.store)
	if err != nil {
		return a.fail(c, err)
	}
	msgs := a.userMsgs(c)

	name := strings.ToLower(strings.TrimSpace(c.Message().Payload))
	if name == "" {
		return tghelpers.SendText(c, msgs.UsageLanguage())
	}

	setName, err := a.contextSetName(ctx, c)
	if err != nil {
		return a.fail(c, err)
	}
	if setName == "" {
		return tghelpers.SendText(c, msgs.ReplyToSticker())
	}
	set, err := a.store.GetStickerSet(ctx, setName)
	if errors.Is(err, storage.ErrNotFound) {
		return tghelpers.SendText(c, msgs.StickerUnknown())
	}
	if err != nil {
		return a.fail(c, err)
	}
	if set.Language == name {
		return tghelpers.SendText(c, msgs.LanguageExists(name))
	}

	task := &models.Task{
		ID:      uuid.New(),
		Kind:    models.TaskSetLanguage,
		SetName: &set.Name,
		UserID:  &user.ID,
		Value:   &name,
	}
	if err := a.store.CreateTask(ctx, task); err != nil {
		return a.fail(c, err)
	}
	a.notifyMaintenance(ctx,
		fmt.Sprintf("%s proposes language %s for set %s (%s)", displayName(user), name, set.Title, set.Name),
		markupFrom(moderation.SetLanguageKeyboard(*task, set)))
	return tghelpers.SendText(c, msgs.SetLanguageProposed(set.Title, name))
}

// voteCommand builds the /vote_ban and /vote_nsfw handlers. Both file a
// task against the replied-to sticker's set; any command text after the
// name rides along as the reason.
func (a *App) voteCommand(kind models.TaskKind) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		user, err := tghelpers.ResolveUser[models.User](ctx, c, a.store)
		if err != nil {
			return a.fail(c, err)
		}
		msgs := a.userMsgs(c)

		reply := c.Message().ReplyTo
		if reply == nil || reply.Sticker == nil || reply.Sticker.SetName == "" {
			return tghelpers.SendText(c, msgs.ReplyToSticker())
		}
		set, err := a.store.GetStickerSet(ctx, reply.Sticker.SetName)
		if errors.Is(err, storage.ErrNotFound) {
			a.importer.RequestImport(ctx, c.Chat().ID, reply.Sticker.SetName)
			return tghelpers.SendText(c, msgs.SetNotReady(reply.Sticker.SetName))
		}
		if err != nil {
			return a.fail(c, err)
		}

		task := &models.Task{
			ID:      uuid.New(),
			Kind:    kind,
			SetName: &set.Name,
			UserID:  &user.ID,
		}
		text := fmt.Sprintf("%s reported set %s (%s)", displayName(user), set.Title, set.Name)
		if reason := strings.TrimSpace(c.Message().Payload); reason != "" {
			task.Value = &reason
			text += ": " + reason
		}
		if kind == models.TaskVoteNSFW {
			text = fmt.Sprintf("%s flagged set %s (%s) as nsfw", displayName(user), set.Title, set.Name)
		}

		if err := a.store.CreateTask(ctx, task); err != nil {
			return a.fail(c, err)
		}
		a.notifyMaintenance(ctx, text, markupFrom(moderation.VoteKeyboard(*task, set)))
		return tghelpers.SendText(c, msgs.VoteRegistered())
	}
}

// cmdTasks serves the oldest unreviewed task. Only maintenance chats
// get the queue so review cards stay out of private noise.
func (a *App) cmdTasks(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	msgs := a.userMsgs(c)

	chat, err := a.store.GetOrCreateChat(ctx, c.Chat().ID)
	if err != nil {
		return a.fail(c, err)
	}
	if !chat.Maintenance {
		return tghelpers.SendText(c, msgs.MaintenanceOnly())
	}

	task, err := a.store.NextUnreviewedTask(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return tghelpers.SendText(c, msgs.NoOpenTasks())
	}
	if err != nil {
		return a.fail(c, err)
	}
	return a.sendTaskCard(ctx, c, task)
}

// sendTaskCard renders one review card with its decision keyboard.
// Reviewer surfaces are English on purpose, matching the button labels.
func (a *App) sendTaskCard(ctx context.Context, c tele.Context, task models.Task) error {
	switch task.Kind {
	case models.TaskVoteBan, models.TaskVoteNSFW:
		set, err := a.store.GetStickerSet(ctx, format.Deref(task.SetName, ""))
		if err != nil {
			return a.fail(c, err)
		}
		text := fmt.Sprintf("Report on set %s (%s)", set.Title, set.Name)
		if reason := format.Deref(task.Value, ""); reason != "" {
			text += ": " + reason
		}
		return c.Send(text, markupFrom(moderation.VoteKeyboard(task, set)))

	case models.TaskUserRevert:
		user, err := a.store.GetUser(ctx, format.Deref(task.UserID, 0))
		if err != nil {
			return a.fail(c, err)
		}
		changes, err := a.store.UserChangeCount(ctx, user.ID)
		if err != nil {
			return a.fail(c, err)
		}
		stickers, err := a.store.UserTaggedStickerCount(ctx, user.ID)
		if err != nil {
			return a.fail(c, err)
		}
		text := fmt.Sprintf("Check the changes of %s: %d changes on %d stickers", displayName(user), changes, stickers)
		return c.Send(text, markupFrom(moderation.UserRevertKeyboard(task, user)))

	case models.TaskNewLanguage:
		text := fmt.Sprintf("Proposed language: %s", format.Deref(task.Value, ""))
		return c.Send(text, markupFrom(moderation.LanguageKeyboard(task)))

	case models.TaskSetLanguage:
		set, err := a.store.GetStickerSet(ctx, format.Deref(task.SetName, ""))
		if err != nil {
			return a.fail(c, err)
		}
		text := fmt.Sprintf("Proposed language %s for set %s (%s)",
			format.Deref(task.Value, ""), set.Title, set.Name)
		return c.Send(text, markupFrom(moderation.SetLanguageKeyboard(task, set)))
	}
	return nil
}

// cmdNewsfeed serves the oldest unreviewed imported set.
func (a *App) cmdNewsfeed(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)

	set, err := a.store.NextUnreviewedSet(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return tghelpers.SendText(c, a.userMsgs(c).NoOpenTasks())
	}
	if err != nil {
		return a.fail(c, err)
	}
	return a.sendNewsfeedCard(ctx, c, set)
}

// sendNewsfeedCard shows one example sticker and the review controls.
func (a *App) sendNewsfeedCard(ctx context.Context, c tele.Context, set models.StickerSet) error {
	stickers, err := a.store.StickersInSet(ctx, set.Name)
	if err != nil {
		return a.fail(c, err)
	}
	if len(stickers) > 0 {
		if err := c.Send(&tele.Sticker{File: tele.File{FileID: stickers[0].FileID}}); err != nil {
			return err
		}
	}
	return c.Send(fmt.Sprintf("%s (%s)", set.Title, set.Name), markupFrom(moderation.NewsfeedKeyboard(set)))
}

// cmdCheckUser opens a revert review for an arbitrary user id, outside
// the regular task queue.
func (a *App) cmdCheckUser(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)

	arg := strings.TrimSpace(c.Message().Payload)
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id == 0 {
		return tghelpers.SendText(c, "Usage: /check_user <telegram user id>")
	}

	user, err := a.store.GetUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return tghelpers.SendText(c, fmt.Sprintf("User %d is unknown to me.", id))
	}
	if err != nil {
		return a.fail(c, err)
	}

	task := &models.Task{
		ID:     uuid.New(),
		Kind:   models.TaskUserRevert,
		UserID: &user.ID,
	}
	if err := a.store.CreateTask(ctx, task); err != nil {
		return a.fail(c, err)
	}
	return a.sendTaskCard(ctx, c, *task)
}

// cmdToggleDeluxe flips the hand-curated flag on the named or current
// set.
func (a *App) cmdToggleDeluxe(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	msgs := a.userMsgs(c)

	name := setNameFromText(c.Message().Payload)
	if name == "" {
		var err error
		name, err = a.contextSetName(ctx, c)
		if err != nil {
			return a.fail(c, err)
		}
	}
	if name == "" {
		return tghelpers.SendText(c, msgs.ReplyToSticker())
	}

	set, err := a.store.GetStickerSet(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return tghelpers.SendText(c, msgs.StickerUnknown())
	}
	if err != nil {
		return a.fail(c, err)
	}
	if err := a.store.SetStickerSetDeluxe(ctx, set.Name, !set.Deluxe); err != nil {
		return a.fail(c, err)
	}

	word := "off"
	if !set.Deluxe {
		word = "on"
	}
	return tghelpers.SendText(c, fmt.Sprintf("Deluxe is now %s for %s.", word, set.Name))
}

// toggleChatFlag builds /toggle_newsfeed and /toggle_maintenance.
func (a *App) toggleChatFlag(flag string) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)

		chat, err := a.store.GetOrCreateChat(ctx, c.Chat().ID)
		if err != nil {
			return a.fail(c, err)
		}

		var next bool
		switch flag {
		case "newsfeed":
			next = !chat.Newsfeed
			err = a.store.SetChatNewsfeed(ctx, chat.ID, next)
		case "maintenance":
			next = !chat.Maintenance
			err = a.store.SetChatMaintenance(ctx, chat.ID, next)
		}
		if err != nil {
			return a.fail(c, err)
		}
		return tghelpers.SendText(c, a.userMsgs(c).ChatFlag(flag, next))
	}
}

// contextSetName resolves a set from the replied-to sticker or, failing
// that, the chat's current sticker.
func (a *App) contextSetName(ctx context.Context, c tele.Context) (string, error) {
	if reply := c.Message().ReplyTo; reply != nil && reply.Sticker != nil && reply.Sticker.SetName != "" {
		return reply.Sticker.SetName, nil
	}
	chat, err := a.store.GetOrCreateChat(ctx, c.Chat().ID)
	if err != nil {
		return "", err
	}
	current := chat.CurrentSticker()
	if current == "" {
		return "", nil
	}
	sticker, err := a.store.GetSticker(ctx, current)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return sticker.SetName, nil
}

// setNameFromText extracts a set name from free text, accepting plain
// names and t.me/addstickers/<name> share links.
func setNameFromText(text string) string {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return ""
	}
	name := fields[0]
	if idx := strings.Index(name, "addstickers/"); idx >= 0 {
		name = name[idx+len("addstickers/"):]
	}
	return strings.Trim(name, "/")
}

// notifyMaintenance fans a review card out to every maintenance chat.
// Failures only log; the task is already stored and /tasks will find it.
func (a *App) notifyMaintenance(ctx context.Context, text string, markup *tele.ReplyMarkup) {
	chats, err := a.store.MaintenanceChats(ctx)
	if err != nil {
		logger.Moderation.Warn("maintenance chat lookup failed",
			slog.String("event", "moderation.notify"),
			slog.String("err", err.Error()),
		)
		return
	}
	for _, chat := range chats {
		a.transport.NotifyMarkup(ctx, chat.ID, text, markup)
	}
}
