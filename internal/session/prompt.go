package session

import (
	"strings"

	"stickerdex/internal/locales"
	"stickerdex/internal/models"
)

// internationalScope names the shared non-english tag scope in prompts.
const internationalScope = "international"

// PromptText composes the tag-state message for one sticker. Pure: the
// caller supplies the set, the tags for the applicable language scope
// and whether to lead with set identification.
func PromptText(msgs *locales.Messages, set models.StickerSet, tags []models.Tag, scopeDefault, sendSetInfo bool) string {
	languageName := internationalScope
	if scopeDefault {
		languageName = models.DefaultLanguageName
	}

	var text string
	if len(tags) > 0 {
		text = msgs.CurrentTags(languageName, strings.Join(models.TagNames(tags), ", "))
	} else {
		text = msgs.NoTags(languageName)
	}
	if sendSetInfo {
		text = msgs.FromSet(set.Title, set.Name) + text
	}
	return text
}
