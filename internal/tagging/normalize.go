// Package tagging turns free-form message text into searchable tags and
// applies them to stickers while keeping an auditable change history.
package tagging

import "strings"

// DefaultTagLimit bounds how many tags a single message may produce.
const DefaultTagLimit = 15

// ignoredCharacters are removed from incoming text before tokenizing.
// Removal glues adjacent fragments together instead of splitting them,
// so "telegram.me" collapses into the link marker checked below.
var ignoredCharacters = []string{
	"\n", ",", ".", "!", "?", ";", ":", "\"", "'", "(", ")", "[", "]",
}

// linkMarker identifies link fragments accidentally sent while browsing
// sets in search mode.
const linkMarker = "telegramme"

// blacklist holds words that never become tags.
var blacklist = map[string]struct{}{
	"@":           {},
	"bot":         {},
	"sticker":     {},
	"stickers":    {},
	"stickerset":  {},
	"sticker_set": {},
	"telegram":    {},
}

// Normalize extracts clean tag tokens from raw message text. The result
// is lower-cased, stripped of punctuation noise, deduplicated in
// first-seen order and capped at limit tokens. Input that boils down to
// nothing yields an empty slice, never an error.
func Normalize(raw string, limit int) []string {
	if limit <= 0 {
		limit = DefaultTagLimit
	}

	text := strings.TrimSpace(strings.ToLower(raw))
	for _, ignored := range ignoredCharacters {
		text = strings.ReplaceAll(text, ignored, "")
	}

	var tokens []string
	for _, token := range strings.Split(text, " ") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if strings.Contains(token, linkMarker) {
			continue
		}
		tokens = append(tokens, token)
	}

	// Inline-bot invocations leak the bot handle as the first word.
	if len(tokens) > 0 && strings.HasPrefix(raw, "@") && strings.Contains(tokens[0], "bot") {
		tokens = tokens[1:]
	}

	seen := make(map[string]struct{}, len(tokens))
	tags := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimPrefix(token, "#")
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		if _, banned := blacklist[token]; banned {
			continue
		}
		tags = append(tags, token)
	}

	if len(tags) > limit {
		tags = tags[:limit]
	}
	return tags
}
