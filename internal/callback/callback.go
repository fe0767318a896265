// Package callback implements the compact wire format carried by inline
// buttons: three colon-delimited fields "action:payload:outcome". Action and
// outcome are stable integer discriminants; the payload is an opaque id or
// name that must never contain a colon.
package callback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrMalformed reports callback data that does not decode into a known
// (action, payload, outcome) triple.
var ErrMalformed = errors.New("malformed callback data")

// Action enumerates button purposes. The numeric values are persisted in
// in-flight button payloads; never reorder or reuse them.
type Action int

const (
	ActionBanSet          Action = 1
	ActionNSFWSet         Action = 2
	ActionFurSet          Action = 3
	ActionNewsfeedNextSet Action = 4
	ActionVoteBan         Action = 5
	ActionVoteNSFW        Action = 6
	ActionUserRevert      Action = 7
	ActionAcceptLanguage  Action = 8
	ActionSetLanguage     Action = 9
	ActionTagSet          Action = 10
	ActionNext            Action = 11
	ActionCancel          Action = 12
	ActionEditSticker     Action = 13
)

var actionNames = map[Action]string{
	ActionBanSet:          "ban_set",
	ActionNSFWSet:         "nsfw_set",
	ActionFurSet:          "fur_set",
	ActionNewsfeedNextSet: "newsfeed_next_set",
	ActionVoteBan:         "task_vote_ban",
	ActionVoteNSFW:        "task_vote_nsfw",
	ActionUserRevert:      "task_user_revert",
	ActionAcceptLanguage:  "accept_language",
	ActionSetLanguage:     "sticker_set_language",
	ActionTagSet:          "tag_set",
	ActionNext:            "next",
	ActionCancel:          "cancel",
	ActionEditSticker:     "edit_sticker",
}

// Valid reports whether the action is a known discriminant.
func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

// String returns the action's symbolic name for logs and handler keys.
func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "action(" + strconv.Itoa(int(a)) + ")"
}

// Outcome enumerates the decision a button press encodes.
type Outcome int

const (
	OutcomeOK     Outcome = 0
	OutcomeBan    Outcome = 1
	OutcomeRevert Outcome = 2
)

var outcomeNames = map[Outcome]string{
	OutcomeOK:     "ok",
	OutcomeBan:    "ban",
	OutcomeRevert: "revert",
}

// Valid reports whether the outcome is a known discriminant.
func (o Outcome) Valid() bool {
	_, ok := outcomeNames[o]
	return ok
}

// String returns the outcome's symbolic name for logs.
func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "outcome(" + strconv.Itoa(int(o)) + ")"
}

// Data is a decoded callback triple.
type Data struct {
	Action  Action
	Payload string
	Outcome Outcome
}

// Encode renders the triple into its wire form. The payload must not
// contain ':'; ids and set names never do.
func Encode(action Action, payload string, outcome Outcome) string {
	return fmt.Sprintf("%d:%s:%d", action, payload, outcome)
}

// Encode renders the data back into its wire form.
func (d Data) Encode() string {
	return Encode(d.Action, d.Payload, d.Outcome)
}

// Decode parses raw callback data. It fails with ErrMalformed when the
// input does not split into exactly three fields or when action/outcome
// fall outside their enumerations. The payload is not interpreted.
func Decode(raw string) (Data, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return Data{}, fmt.Errorf("%w: expected 3 fields, got %d", ErrMalformed, len(parts))
	}

	actionNum, err := strconv.Atoi(parts[0])
	if err != nil {
		return Data{}, fmt.Errorf("%w: action %q", ErrMalformed, parts[0])
	}
	action := Action(actionNum)
	if !action.Valid() {
		return Data{}, fmt.Errorf("%w: unknown action %d", ErrMalformed, actionNum)
	}

	outcomeNum, err := strconv.Atoi(parts[2])
	if err != nil {
		return Data{}, fmt.Errorf("%w: outcome %q", ErrMalformed, parts[2])
	}
	outcome := Outcome(outcomeNum)
	if !outcome.Valid() {
		return Data{}, fmt.Errorf("%w: unknown outcome %d", ErrMalformed, outcomeNum)
	}

	return Data{Action: action, Payload: parts[1], Outcome: outcome}, nil
}

// PayloadUUID parses the payload as a task id.
func (d Data) PayloadUUID() (uuid.UUID, error) {
	id, err := uuid.Parse(d.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: payload %q is not a task id", ErrMalformed, d.Payload)
	}
	return id, nil
}
