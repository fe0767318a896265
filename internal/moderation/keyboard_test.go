package moderation

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"stickerdex/internal/callback"
	"stickerdex/internal/models"
)

func flatten(kb Keyboard) []Button {
	var out []Button
	for _, row := range kb {
		out = append(out, row...)
	}
	return out
}

func findButton(t *testing.T, kb Keyboard, label string) Button {
	t.Helper()
	for _, b := range flatten(kb) {
		if b.Label == label {
			return b
		}
	}
	t.Fatalf("no button labeled %q in %v", label, kb)
	return Button{}
}

func TestNewsfeedKeyboardEncodesOppositeOutcome(t *testing.T) {
	cases := []struct {
		set   models.StickerSet
		label string
		data  string
	}{
		{models.StickerSet{Name: "s"}, "Ban this set", "1:s:1"},
		{models.StickerSet{Name: "s", Banned: true}, "Revert ban tag", "1:s:0"},
		{models.StickerSet{Name: "s"}, "Tag as nsfw", "2:s:1"},
		{models.StickerSet{Name: "s", NSFW: true}, "Revert nsfw tag", "2:s:0"},
		{models.StickerSet{Name: "s"}, "Tag as Furry", "3:s:1"},
		{models.StickerSet{Name: "s", Furry: true}, "Revert furry tag", "3:s:0"},
	}
	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			b := findButton(t, NewsfeedKeyboard(tc.set), tc.label)
			require.Equal(t, tc.data, b.Data)
		})
	}
}

func TestNewsfeedKeyboardNextOnlyWhileUnreviewed(t *testing.T) {
	kb := NewsfeedKeyboard(models.StickerSet{Name: "s"})
	next := findButton(t, kb, "Next")
	require.Equal(t, "4:s:0", next.Data)

	kb = NewsfeedKeyboard(models.StickerSet{Name: "s", Reviewed: true})
	for _, b := range flatten(kb) {
		require.NotEqual(t, "Next", b.Label)
	}
}

func TestNewsfeedKeyboardRenderIsStable(t *testing.T) {
	set := models.StickerSet{Name: "s", NSFW: true}
	require.Equal(t, NewsfeedKeyboard(set), NewsfeedKeyboard(set))
}

func TestVoteKeyboardAddressedByTaskID(t *testing.T) {
	task := models.Task{ID: uuid.New()}
	id := task.ID.String()

	kb := VoteKeyboard(task, models.StickerSet{Name: "s"})
	require.Len(t, kb, 2)
	require.Equal(t, fmt.Sprintf("5:%s:1", id), findButton(t, kb, "Ban set").Data)
	require.Equal(t, fmt.Sprintf("6:%s:1", id), findButton(t, kb, "Tag as nsfw").Data)

	kb = VoteKeyboard(task, models.StickerSet{Name: "s", Banned: true, NSFW: true})
	require.Equal(t, fmt.Sprintf("5:%s:0", id), findButton(t, kb, "Unban set").Data)
	require.Equal(t, fmt.Sprintf("6:%s:0", id), findButton(t, kb, "Revert nsfw tag").Data)
}

func TestUserRevertKeyboardStates(t *testing.T) {
	task := models.Task{ID: uuid.New()}
	id := task.ID.String()

	kb := UserRevertKeyboard(task, models.User{})
	require.Len(t, flatten(kb), 2)
	require.Equal(t, fmt.Sprintf("7:%s:2", id), findButton(t, kb, "Revert changes and Ban user").Data)
	require.Equal(t, fmt.Sprintf("7:%s:0", id), findButton(t, kb, "Everything is fine").Data)

	task.Reviewed = true
	kb = UserRevertKeyboard(task, models.User{Reverted: true})
	require.Len(t, flatten(kb), 1)
	require.Equal(t, fmt.Sprintf("7:%s:0", id), findButton(t, kb, "Undo revert").Data)

	kb = UserRevertKeyboard(task, models.User{})
	require.Len(t, flatten(kb), 1)
	findButton(t, kb, "Revert changes and Ban user")
}

func TestLanguageKeyboardStates(t *testing.T) {
	task := models.Task{ID: uuid.New()}

	kb := LanguageKeyboard(task)
	require.Len(t, flatten(kb), 2)
	findButton(t, kb, "Deny this language")
	findButton(t, kb, "Accept this language")

	task.Reviewed = true
	task.Accepted = true
	kb = LanguageKeyboard(task)
	require.Len(t, flatten(kb), 1)
	findButton(t, kb, "Delete this language")

	task.Accepted = false
	kb = LanguageKeyboard(task)
	require.Len(t, flatten(kb), 1)
	findButton(t, kb, "Accept this language")
}

func TestSetLanguageKeyboardGuardsRevert(t *testing.T) {
	value := "danish"
	task := models.Task{ID: uuid.New(), Value: &value}

	kb := SetLanguageKeyboard(task, models.StickerSet{Name: "s"})
	require.Len(t, flatten(kb), 2)
	findButton(t, kb, "Deny")
	findButton(t, kb, "Accept")

	task.Reviewed = true
	kb = SetLanguageKeyboard(task, models.StickerSet{Name: "s", Language: "danish"})
	require.Len(t, flatten(kb), 1)
	findButton(t, kb, "Revert to english")

	// A later task moved the language on; only accept remains.
	kb = SetLanguageKeyboard(task, models.StickerSet{Name: "s", Language: "norwegian"})
	require.Len(t, flatten(kb), 1)
	findButton(t, kb, "Accept")
}

func TestKeyboardDataDecodes(t *testing.T) {
	task := models.Task{ID: uuid.New()}
	set := models.StickerSet{Name: "cool_set", NSFW: true}

	keyboards := []Keyboard{
		NewsfeedKeyboard(set),
		VoteKeyboard(task, set),
		UserRevertKeyboard(task, models.User{}),
		LanguageKeyboard(task),
		SetLanguageKeyboard(task, set),
	}
	for _, kb := range keyboards {
		for _, b := range flatten(kb) {
			_, err := callback.Decode(b.Data)
			require.NoError(t, err, "button %q", b.Label)
		}
	}
}
