package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// SearchParams narrows an inline sticker search. NSFW and Furry select
// which side of those flags the results come from, so opting in swaps
// the result pool instead of widening it.
type SearchParams struct {
	Terms           []string
	NSFW            bool
	Furry           bool
	DefaultLanguage bool
	Offset          int
	Limit           int
}

// SearchResult is one inline search hit. Score counts matched terms so
// stickers hitting more of the query rank first.
type SearchResult struct {
	FileID string `db:"file_id"`
	Score  int    `db:"score"`
}

// SearchStickers ranks stickers by how many query terms their tags
// match, breaking ties in favor of deluxe sets. Banned sets never
// appear.
func (q queries) SearchStickers(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	if len(params.Terms) == 0 {
		return nil, nil
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	var results []SearchResult
	err := sqlx.SelectContext(ctx, q.ext, &results, `
		SELECT s.file_id, COUNT(DISTINCT t.name) AS score
		FROM stickers s
		JOIN sticker_sets ss ON ss.name = s.sticker_set_name
		JOIN sticker_tags st ON st.sticker_file_id = s.file_id
		JOIN tags t ON t.id = st.tag_id
		WHERE ss.banned = false
		  AND ss.complete = true
		  AND ss.nsfw = $2
		  AND ss.furry = $3
		  AND (t.is_default_language = $4 OR t.is_emoji = true)
		  AND t.name = ANY($1::text[])
		GROUP BY s.file_id, ss.deluxe
		ORDER BY score DESC, ss.deluxe DESC, s.created_at DESC, s.file_id
		OFFSET $5 LIMIT $6`,
		pq.Array(params.Terms), params.NSFW, params.Furry, params.DefaultLanguage,
		params.Offset, limit)
	if err != nil {
		return nil, fmt.Errorf("search stickers: %w", err)
	}
	return results, nil
}
