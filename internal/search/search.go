// Package search turns raw inline queries into storage filters.
package search

import (
	"strconv"

	"stickerdex/internal/storage"
	"stickerdex/internal/tagging"
)

// DefaultPageSize is how many results one inline answer carries.
// Telegram caps an inline answer at 50 results.
const DefaultPageSize = 50

// Query is a parsed inline search request. NSFW and Furry mirror the
// opt-in keywords; the keywords themselves are not search terms.
type Query struct {
	Terms []string
	NSFW  bool
	Furry bool
}

// Parse normalizes the raw query text into search terms and peels off
// the nsfw/furry opt-in keywords.
func Parse(raw string) Query {
	var q Query
	for _, term := range tagging.Normalize(raw, 0) {
		switch term {
		case "nsfw":
			q.NSFW = true
		case "fur", "furry":
			q.Furry = true
		default:
			q.Terms = append(q.Terms, term)
		}
	}
	return q
}

// Empty reports whether the query carries no searchable terms.
func (q Query) Empty() bool {
	return len(q.Terms) == 0
}

// Params builds the storage filter for one result page.
func (q Query) Params(defaultLanguage bool, offset, pageSize int) storage.SearchParams {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return storage.SearchParams{
		Terms:           q.Terms,
		NSFW:            q.NSFW,
		Furry:           q.Furry,
		DefaultLanguage: defaultLanguage,
		Offset:          offset,
		Limit:           pageSize,
	}
}

// ParseOffset reads the transport's paging cursor. The first page
// arrives as an empty string; garbage restarts from the top.
func ParseOffset(raw string) int {
	if raw == "" {
		return 0
	}
	offset, err := strconv.Atoi(raw)
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}

// NextOffset renders the follow-up page cursor, or "" when the current
// page came back short and paging ends.
func NextOffset(offset, returned, pageSize int) string {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if returned < pageSize {
		return ""
	}
	return strconv.Itoa(offset + returned)
}
