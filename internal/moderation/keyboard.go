package moderation

import (
	"stickerdex/internal/callback"
	"stickerdex/internal/models"
)

// Button is one inline control: a label and the encoded callback its
// press delivers. The transport layer turns these into real markup.
type Button struct {
	Label string
	Data  string
}

// Keyboard is button rows in display order.
type Keyboard [][]Button

// flagTransition is one row of a toggle table: the button shown for a
// flag value, the outcome its press encodes and the value that outcome
// produces.
type flagTransition struct {
	label   string
	outcome callback.Outcome
	next    bool
}

// toggleTable maps a flag's current value to its single button. The
// encoded outcome names the target state, so repeating a press is a
// no-op that re-renders the same keyboard.
type toggleTable map[bool]flagTransition

var (
	banTable = toggleTable{
		false: {label: "Ban this set", outcome: callback.OutcomeBan, next: true},
		true:  {label: "Revert ban tag", outcome: callback.OutcomeOK, next: false},
	}
	nsfwTable = toggleTable{
		false: {label: "Tag as nsfw", outcome: callback.OutcomeBan, next: true},
		true:  {label: "Revert nsfw tag", outcome: callback.OutcomeOK, next: false},
	}
	furryTable = toggleTable{
		false: {label: "Tag as Furry", outcome: callback.OutcomeBan, next: true},
		true:  {label: "Revert furry tag", outcome: callback.OutcomeOK, next: false},
	}
	voteBanTable = toggleTable{
		false: {label: "Ban set", outcome: callback.OutcomeBan, next: true},
		true:  {label: "Unban set", outcome: callback.OutcomeOK, next: false},
	}
	voteNSFWTable = toggleTable{
		false: {label: "Tag as nsfw", outcome: callback.OutcomeBan, next: true},
		true:  {label: "Revert nsfw tag", outcome: callback.OutcomeOK, next: false},
	}
)

func (t toggleTable) button(action callback.Action, payload string, current bool) Button {
	tr := t[current]
	return Button{Label: tr.label, Data: callback.Encode(action, payload, tr.outcome)}
}

// NewsfeedKeyboard renders the review controls shown under a freshly
// imported set: ban and furry toggles on top, nsfw below, with a Next
// button appended while the set still awaits review.
func NewsfeedKeyboard(set models.StickerSet) Keyboard {
	rows := Keyboard{
		{
			banTable.button(callback.ActionBanSet, set.Name, set.Banned),
			furryTable.button(callback.ActionFurSet, set.Name, set.Furry),
		},
		{
			nsfwTable.button(callback.ActionNSFWSet, set.Name, set.NSFW),
		},
	}
	if !set.Reviewed {
		rows[1] = append(rows[1], Button{
			Label: "Next",
			Data:  callback.Encode(callback.ActionNewsfeedNextSet, set.Name, callback.OutcomeOK),
		})
	}
	return rows
}

// VoteKeyboard renders the two flag toggles of a reported set. Buttons
// carry the task id rather than the set name so the set can be renamed
// while the report is open.
func VoteKeyboard(task models.Task, set models.StickerSet) Keyboard {
	id := task.ID.String()
	return Keyboard{
		{voteBanTable.button(callback.ActionVoteBan, id, set.Banned)},
		{voteNSFWTable.button(callback.ActionVoteNSFW, id, set.NSFW)},
	}
}

// UserRevertKeyboard renders the check-user decision. An open task
// offers both verdicts; a resolved one offers only the way back from
// where it landed.
func UserRevertKeyboard(task models.Task, user models.User) Keyboard {
	id := task.ID.String()
	revert := Button{
		Label: "Revert changes and Ban user",
		Data:  callback.Encode(callback.ActionUserRevert, id, callback.OutcomeRevert),
	}
	ok := callback.Encode(callback.ActionUserRevert, id, callback.OutcomeOK)

	switch {
	case !task.Reviewed:
		return Keyboard{{revert, {Label: "Everything is fine", Data: ok}}}
	case user.Reverted:
		return Keyboard{{{Label: "Undo revert", Data: ok}}}
	default:
		return Keyboard{{revert}}
	}
}

// LanguageKeyboard renders the verdict controls of a proposed tagging
// language. Once accepted the only remaining move is deletion.
func LanguageKeyboard(task models.Task) Keyboard {
	id := task.ID.String()
	accept := Button{
		Label: "Accept this language",
		Data:  callback.Encode(callback.ActionAcceptLanguage, id, callback.OutcomeOK),
	}
	deny := callback.Encode(callback.ActionAcceptLanguage, id, callback.OutcomeBan)

	switch {
	case !task.Reviewed:
		return Keyboard{{{Label: "Deny this language", Data: deny}, accept}}
	case task.Accepted:
		return Keyboard{{{Label: "Delete this language", Data: deny}}}
	default:
		return Keyboard{{accept}}
	}
}

// SetLanguageKeyboard renders the controls of a set-language proposal.
// The revert branch only appears while the set still carries the
// proposed value, so it never clobbers a later language change.
func SetLanguageKeyboard(task models.Task, set models.StickerSet) Keyboard {
	id := task.ID.String()
	accept := Button{
		Label: "Accept",
		Data:  callback.Encode(callback.ActionSetLanguage, id, callback.OutcomeOK),
	}
	deny := callback.Encode(callback.ActionSetLanguage, id, callback.OutcomeBan)

	switch {
	case !task.Reviewed:
		return Keyboard{{{Label: "Deny", Data: deny}, accept}}
	case task.Value != nil && set.Language == *task.Value:
		return Keyboard{{{Label: "Revert to english", Data: deny}}}
	default:
		return Keyboard{{accept}}
	}
}
