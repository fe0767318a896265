package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

type encoding int

const (
	encodeJSON encoding = iota
	encodeKV

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

// lineHandler is the slog.Handler behind every logger in the process. It
// flattens groups, folds context metadata in, canonicalizes enum fields and
// emits one line per record with a fixed key order.
type lineHandler struct {
	level  slog.Leveler
	sink   *fanoutWriter
	enc    encoding
	order  []string
	preset []slog.Attr
	scope  []string
}

type lineOptions struct {
	level slog.Leveler
	sink  *fanoutWriter
	enc   encoding
	order []string
}

func newLineHandler(opts lineOptions) *lineHandler {
	if opts.level == nil {
		opts.level = slog.LevelInfo
	}
	if opts.order == nil {
		opts.order = append([]string(nil), defaultKeyOrder...)
	}
	return &lineHandler{level: opts.level, sink: opts.sink, enc: opts.enc, order: opts.order}
}

func (h *lineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.preset = append(append([]slog.Attr(nil), h.preset...), attrs...)
	return &clone
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.scope = append(append([]string(nil), h.scope...), name)
	return &clone
}

func (h *lineHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.sink == nil {
		return fmt.Errorf("logger: sink not initialized")
	}

	rec := make(map[string]any, 16)
	ts := r.Time.UTC()
	rec["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	rec["level"] = canonicalLevel(r.Level.String())
	if h.enc == encodeJSON {
		rec["ts_unix_nano"] = ts.UnixNano()
	}

	for _, a := range h.preset {
		h.gather(rec, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.gather(rec, a)
		return true
	})

	h.finalize(ctx, rec, r.Message)

	line, err := h.encode(rec)
	if err != nil {
		return err
	}
	return h.sink.Write(append(line, '\n'), r.Level)
}

func (h *lineHandler) gather(rec map[string]any, attr slog.Attr) {
	walkAttr(strings.Join(h.scope, "."), attr, func(key string, v slog.Value) {
		key, val, ok := fieldValue(key, v)
		if ok {
			rec[key] = val
		}
	})
}

// finalize fills required fields, pulls update metadata out of the context
// and canonicalizes the enumerated columns.
func (h *lineHandler) finalize(ctx context.Context, rec map[string]any, msg string) {
	if rid := RIDFrom(ctx); rid != "" {
		putMissing(rec, "rid", rid)
	}
	if uid := UserIDFrom(ctx); uid != 0 {
		putMissing(rec, "user_id", uid)
	}
	if cid := ChatIDFrom(ctx); cid != 0 {
		putMissing(rec, "chat_id", cid)
	}
	if updateID := UpdateIDFrom(ctx); updateID != 0 {
		putMissing(rec, "update_id", updateID)
	}
	if handler := HandlerFrom(ctx); handler != "" {
		putMissing(rec, "handler", handler)
	}

	if rid, _ := stringField(rec, "rid"); rid != "" {
		if compact := CompactRID(rid); compact != rid {
			if h.enc == encodeJSON {
				putMissing(rec, "rid_full", rid)
			}
			rec["rid"] = compact
		}
	}

	if event, _ := stringField(rec, "event"); event == "" {
		if msg != "" {
			rec["event"] = msg
		} else {
			rec["event"] = "unknown"
		}
	}
	if component, _ := stringField(rec, "component"); component == "" {
		rec["component"] = "app"
	}

	if level, ok := stringField(rec, "level"); ok {
		rec["level"] = canonicalLevel(level)
	}
	if s, _ := stringField(rec, "status"); s != "" {
		rec["status"] = canonicalStatus(s)
	}
	if o, _ := stringField(rec, "outcome"); o != "" {
		if canon, known := canonicalOutcome(o); known {
			rec["outcome"] = canon
		} else {
			delete(rec, "outcome")
		}
	}

	for k, v := range rec {
		switch val := v.(type) {
		case nil:
			delete(rec, k)
		case string:
			if val == "" {
				delete(rec, k)
			}
		case fmt.Stringer:
			if val.String() == "" {
				delete(rec, k)
			}
		}
	}
}

func (h *lineHandler) encode(rec map[string]any) ([]byte, error) {
	keys := orderKeys(rec, h.order)
	if h.enc == encodeKV {
		return encodeKVLine(rec, keys), nil
	}
	return encodeJSONLine(rec, keys)
}

func putMissing(rec map[string]any, key string, val any) {
	if _, ok := rec[key]; !ok {
		rec[key] = val
	}
}

// walkAttr flattens slog groups into dot-joined keys.
func walkAttr(prefix string, attr slog.Attr, fn func(string, slog.Value)) {
	key := attr.Key
	switch {
	case key == "":
		key = prefix
	case prefix != "":
		key = prefix + "." + key
	}
	if attr.Value.Kind() == slog.KindGroup {
		for _, child := range attr.Value.Group() {
			walkAttr(key, child, fn)
		}
		return
	}
	if key != "" {
		fn(key, attr.Value)
	}
}

// durationKey rewrites a duration-typed attribute key so the unit is
// visible in the column name.
func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_duration"):
		return strings.TrimSuffix(key, "_duration") + "_duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	}
	return key + "_ms"
}

func fieldValue(key string, val slog.Value) (string, any, bool) {
	if key == "" {
		return "", nil, false
	}
	switch val.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(val.String()), true
	case slog.KindBool:
		return key, val.Bool(), true
	case slog.KindInt64:
		return key, val.Int64(), true
	case slog.KindUint64:
		u := val.Uint64()
		if u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, u, true
	case slog.KindFloat64:
		return key, val.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(val.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, val.Time().UTC().Format(time.RFC3339Nano), true
	case slog.KindAny:
		switch x := val.Any().(type) {
		case error:
			return key, x.Error(), true
		case string:
			return key, strings.TrimSpace(x), true
		case time.Duration:
			return durationKey(key), RoundMS(x).Milliseconds(), true
		case fmt.Stringer:
			return key, x.String(), true
		case nil:
			return key, nil, false
		default:
			return key, fmt.Sprint(x), true
		}
	default:
		return key, val.Any(), true
	}
}

// orderKeys returns the record's keys with the configured prefix order
// first and everything else appended alphabetically.
func orderKeys(rec map[string]any, order []string) []string {
	keys := make([]string, 0, len(rec))
	seen := make(map[string]struct{}, len(rec))
	for _, key := range order {
		if _, ok := rec[key]; ok {
			keys = append(keys, key)
			seen[key] = struct{}{}
		}
	}
	tail := len(keys)
	for key := range rec {
		if _, ok := seen[key]; !ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys[tail:])
	return keys
}

func encodeJSONLine(rec map[string]any, keys []string) ([]byte, error) {
	buf := make([]byte, 0, 256)
	buf = append(buf, '{')
	for i, key := range keys {
		data, err := json.Marshal(rec[key])
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendQuote(buf, key)
		buf = append(buf, ':')
		buf = append(buf, data...)
	}
	return append(buf, '}'), nil
}

func encodeKVLine(rec map[string]any, keys []string) []byte {
	buf := make([]byte, 0, 256)
	for i, key := range keys {
		if i > 0 {
			buf = append(buf, ' ')
		}
		buf = append(buf, key...)
		buf = append(buf, '=')
		buf = append(buf, kvValue(rec[key])...)
	}
	return buf
}

func kvValue(val any) string {
	switch v := val.(type) {
	case string:
		return quoteIfNeeded(v)
	case bool:
		return strconv.FormatBool(v)
	case int, int64, uint64, float64:
		return fmt.Sprint(v)
	default:
		return quoteIfNeeded(fmt.Sprint(v))
	}
}

func quoteIfNeeded(s string) string {
	if strings.IndexFunc(s, func(r rune) bool { return r <= 32 || r == '=' || r == '"' }) >= 0 {
		return strconv.Quote(s)
	}
	return s
}

func stringField(rec map[string]any, key string) (string, bool) {
	v, ok := rec[key]
	if !ok {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, true
	case fmt.Stringer:
		return val.String(), true
	}
	return fmt.Sprint(v), true
}
