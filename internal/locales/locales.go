// Package locales bundles the bot's user-facing strings. Button labels
// are deliberately not here: review keyboards carry fixed labels that
// moderators rely on.
package locales

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed *.json
var files embed.FS

// NewBundle loads the embedded message files.
func NewBundle() (*i18n.Bundle, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)
	for _, name := range []string{"en.json", "ru.json"} {
		if _, err := bundle.LoadMessageFileFS(files, name); err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
	}
	return bundle, nil
}

// Messages renders user-facing text for one language preference chain.
type Messages struct {
	loc *i18n.Localizer
}

// NewMessages builds a renderer preferring the given languages, falling
// back to English.
func NewMessages(bundle *i18n.Bundle, langs ...string) *Messages {
	return &Messages{loc: i18n.NewLocalizer(bundle, langs...)}
}

func (m *Messages) render(id string, data map[string]any, plural any) string {
	s, err := m.loc.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
		PluralCount:  plural,
	})
	if err != nil {
		return id
	}
	return s
}

func (m *Messages) Start(botName string) string {
	return m.render("Start", map[string]any{"Bot": botName}, nil)
}

func (m *Messages) Help() string {
	return m.render("Help", nil, nil)
}

func (m *Messages) TaggingInstructions() string {
	return m.render("TaggingInstructions", nil, nil)
}

func (m *Messages) SetNotReady(name string) string {
	return m.render("SetNotReady", map[string]any{"Name": name}, nil)
}

func (m *Messages) SetAdded(title string) string {
	return m.render("SetAdded", map[string]any{"Title": title}, nil)
}

func (m *Messages) SetFullyTagged() string {
	return m.render("SetFullyTagged", nil, nil)
}

func (m *Messages) AllTagged() string {
	return m.render("AllTagged", nil, nil)
}

func (m *Messages) TaggedCount(count int) string {
	return m.render("TaggedCount", map[string]any{"Count": count}, count)
}

func (m *Messages) CurrentTags(languageName, tags string) string {
	return m.render("CurrentTags", map[string]any{"Language": languageName, "Tags": tags}, nil)
}

func (m *Messages) NoTags(languageName string) string {
	return m.render("NoTags", map[string]any{"Language": languageName}, nil)
}

func (m *Messages) FromSet(title, name string) string {
	return m.render("FromSet", map[string]any{"Title": title, "Name": name}, nil)
}

func (m *Messages) Milestone(count int) string {
	return m.render("Milestone", map[string]any{"Count": count}, count)
}

func (m *Messages) ActionFailed() string {
	return m.render("ActionFailed", nil, nil)
}

func (m *Messages) NotInSession() string {
	return m.render("NotInSession", nil, nil)
}

func (m *Messages) SessionCancelled() string {
	return m.render("SessionCancelled", nil, nil)
}

func (m *Messages) StickerUnknown() string {
	return m.render("StickerUnknown", nil, nil)
}

func (m *Messages) ReplyToSticker() string {
	return m.render("ReplyToSticker", nil, nil)
}

func (m *Messages) UsageTagSet() string {
	return m.render("UsageTagSet", nil, nil)
}

func (m *Messages) AskSetName() string {
	return m.render("AskSetName", nil, nil)
}

func (m *Messages) UsageLanguage() string {
	return m.render("UsageLanguage", nil, nil)
}

func (m *Messages) AskLanguage() string {
	return m.render("AskLanguage", nil, nil)
}

func (m *Messages) LanguageSwitched(name string) string {
	return m.render("LanguageSwitched", map[string]any{"Name": name}, nil)
}

func (m *Messages) LanguageProposed(name string) string {
	return m.render("LanguageProposed", map[string]any{"Name": name}, nil)
}

func (m *Messages) LanguageExists(name string) string {
	return m.render("LanguageExists", map[string]any{"Name": name}, nil)
}

func (m *Messages) LanguageList(names string) string {
	return m.render("LanguageList", map[string]any{"Names": names}, nil)
}

func (m *Messages) SetLanguageProposed(set, languageName string) string {
	return m.render("SetLanguageProposed", map[string]any{"Set": set, "Language": languageName}, nil)
}

func (m *Messages) VoteRegistered() string {
	return m.render("VoteRegistered", nil, nil)
}

func (m *Messages) NoOpenTasks() string {
	return m.render("NoOpenTasks", nil, nil)
}

func (m *Messages) NoSearchResults() string {
	return m.render("NoSearchResults", nil, nil)
}

func (m *Messages) Banned() string {
	return m.render("Banned", nil, nil)
}

func (m *Messages) MaintenanceOnly() string {
	return m.render("MaintenanceOnly", nil, nil)
}

func (m *Messages) ChatFlag(flag string, on bool) string {
	id := "ChatFlagOff"
	if on {
		id = "ChatFlagOn"
	}
	return m.render(id, map[string]any{"Flag": flag}, nil)
}
