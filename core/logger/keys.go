package logger

import "strings"

const (
	// LevelDebug is the canonical debug severity name.
	LevelDebug = "DEBUG"
	// LevelInfo is the canonical info severity name.
	LevelInfo = "INFO"
	// LevelWarn is the canonical warning severity name.
	LevelWarn = "WARN"
	// LevelError is the canonical error severity name.
	LevelError = "ERROR"
	// LevelFatal is the canonical fatal severity name.
	LevelFatal = "FATAL"
)

var levelNames = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
	"fatal":   LevelFatal,
}

func canonicalLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := levelNames[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

// statusNames canonicalizes the status attribute. Unknown values pass
// through unchanged so handlers may introduce new ones without touching
// the logger.
var statusNames = map[string]string{
	"ok":           "ok",
	"fail":         "fail",
	"skip":         "skip",
	"retry":        "retry",
	"rate_limited": "rate_limited",
	"cancelled":    "cancelled",
}

// outcomeNames lists the moderation decisions carried by callback presses
// plus the generic handler results. Values outside the list are dropped so
// a typo never mints a new outcome in dashboards.
var outcomeNames = map[string]struct{}{
	"ok":        {},
	"fail":      {},
	"ban":       {},
	"revert":    {},
	"cancelled": {},
}

func canonicalStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if mapped, ok := statusNames[status]; ok {
		return mapped
	}
	return status
}

func canonicalOutcome(outcome string) (string, bool) {
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	_, ok := outcomeNames[outcome]
	return outcome, ok
}

// defaultKeyOrder fixes the column order of emitted lines: correlation
// first, then the acting user and chat, then the tagging subject, then
// counters and timings, with the error tail last. Keys outside the list
// are appended alphabetically.
var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"username",
	"chat_id",
	"chat_type",
	"handler",
	"cb_key",
	"action",
	"outcome",
	"mode",
	"state",
	"set",
	"sticker",
	"task",
	"language",
	"lang",
	"flag",
	"value",
	"nsfw",
	"furry",
	"terms",
	"results",
	"offset",
	"added",
	"removed",
	"stickers",
	"messages",
	"kb",
	"payload",
	"data",
	"reason",
	"expected",
	"duration_ms",
	"elapsed_ms",
	"listen",
	"public_url",
	"endpoint",
	"db",
	"driver",
	"host",
	"port",
	"path",
	"err",
	"err_code",
	"error_kind",
	"cause",
	"attempt",
	"attempts",
	"delay_ms",
	"collapsed",
	"repeats",
}
