package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newTestHandler(buf *bytes.Buffer, enc encoding) (*lineHandler, *fanoutWriter) {
	w := newFanoutWriter([]sinkOutput{{w: buf, min: slog.LevelDebug}}, 1024)
	h := newLineHandler(lineOptions{
		level: slog.LevelInfo,
		sink:  w,
		enc:   enc,
	})
	return h, w
}

func drainLine(t *testing.T, buf *bytes.Buffer, w *fanoutWriter) string {
	t.Helper()
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected a log line")
	}
	return line
}

func TestHandlerKVColumnOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	h, w := newTestHandler(buf, encodeKV)

	ctx := WithRID(Background(), "rid-abc")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)
	log := slog.New(h).With("component", "tagging")
	LogEvent(ctx, log, slog.LevelInfo, "tags.applied",
		slog.String("status", "ok"),
		slog.String("set", "grumpycats"),
	)

	line := drainLine(t, buf, w)
	tokens := strings.Split(line, " ")
	expected := []string{"ts=", "level=INFO", "component=tagging", "event=tags.applied", "status=ok", "rid=rid-abc"}
	if len(tokens) < len(expected) {
		t.Fatalf("unexpected token count %d: %s", len(tokens), line)
	}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %q, want prefix %q", i, tokens[i], prefix)
		}
	}
	if !strings.Contains(line, "set=grumpycats") {
		t.Fatalf("set attribute missing: %s", line)
	}
}

func TestHandlerJSONColumnOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	h, w := newTestHandler(buf, encodeJSON)

	ctx := WithUpdateMeta(Background(), 11, 22, 33)
	log := slog.New(h).With("component", "moderation")
	LogEvent(ctx, log, slog.LevelError, "task.resolve",
		slog.String("status", "fail"),
		slog.String("err", "boom"),
	)

	line := drainLine(t, buf, w)
	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected JSON, got %s", line)
	}
	ordered := []string{`{"ts":`, `"level":"ERROR"`, `"component":"moderation"`, `"event":"task.resolve"`, `"status":"fail"`, `"user_id":22`, `"err":"boom"`}
	pos := -1
	for _, fragment := range ordered {
		idx := strings.Index(line, fragment)
		if idx == -1 || idx < pos {
			t.Fatalf("fragment %s out of order in %s", fragment, line)
		}
		pos = idx
	}
	if !strings.Contains(line, `"ts_unix_nano"`) {
		t.Fatalf("ts_unix_nano missing from JSON output: %s", line)
	}
}

// Callback presses log the decision they encode; those values must not be
// scrubbed by the enum canonicalizer.
func TestHandlerKeepsModerationOutcomes(t *testing.T) {
	for _, outcome := range []string{"ok", "ban", "revert"} {
		buf := &bytes.Buffer{}
		h, w := newTestHandler(buf, encodeKV)
		log := slog.New(h).With("component", "moderation")
		LogEvent(Background(), log, slog.LevelInfo, "flag.toggle",
			slog.String("outcome", outcome),
		)
		line := drainLine(t, buf, w)
		if !strings.Contains(line, "outcome="+outcome) {
			t.Fatalf("outcome %q was scrubbed: %s", outcome, line)
		}
	}
}

func TestHandlerDropsUnknownOutcome(t *testing.T) {
	buf := &bytes.Buffer{}
	h, w := newTestHandler(buf, encodeKV)
	log := slog.New(h)
	LogEvent(Background(), log, slog.LevelInfo, "flag.toggle",
		slog.String("outcome", "maybe"),
	)
	line := drainLine(t, buf, w)
	if strings.Contains(line, "outcome=") {
		t.Fatalf("unknown outcome should be dropped: %s", line)
	}
}

func TestHandlerCompactRIDKV(t *testing.T) {
	buf := &bytes.Buffer{}
	h, w := newTestHandler(buf, encodeKV)

	raw := "123:456:789"
	ctx := WithRID(Background(), raw)
	LogEvent(ctx, slog.New(h), slog.LevelInfo, "rid.test")

	line := drainLine(t, buf, w)
	if !strings.Contains(line, "rid="+CompactRID(raw)) {
		t.Fatalf("expected compact rid in %s", line)
	}
	if strings.Contains(line, "rid_full=") {
		t.Fatalf("rid_full must stay out of KV output: %s", line)
	}
}

func TestHandlerCompactRIDJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	h, w := newTestHandler(buf, encodeJSON)

	raw := "12:34:56"
	ctx := WithRID(Background(), raw)
	LogEvent(ctx, slog.New(h), slog.LevelInfo, "rid.test")

	line := drainLine(t, buf, w)
	if !strings.Contains(line, `"rid":"`+CompactRID(raw)+`"`) {
		t.Fatalf("expected compact rid in %s", line)
	}
	if !strings.Contains(line, `"rid_full":"`+raw+`"`) {
		t.Fatalf("expected rid_full in JSON output: %s", line)
	}
}

func TestHandlerDurationKey(t *testing.T) {
	buf := &bytes.Buffer{}
	h, w := newTestHandler(buf, encodeKV)
	LogEvent(Background(), slog.New(h), slog.LevelInfo, "timing",
		slog.Duration("duration", 1500000000),
	)
	line := drainLine(t, buf, w)
	if !strings.Contains(line, "duration_ms=1500") {
		t.Fatalf("expected duration_ms=1500 in %s", line)
	}
}

func TestCompactRID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"100:200:300", "2s.5k.8c"},
		{"not:a:rid", "not:a:rid"},
		{"1:2", "1:2"},
		{"0:0:0", "0.0.0"},
	}
	for _, tc := range cases {
		if got := CompactRID(tc.in); got != tc.want {
			t.Fatalf("CompactRID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSampleGate(t *testing.T) {
	g := newSampleGate(1, 4)
	allowed := 0
	for i := 0; i < 40; i++ {
		if g.Allow() {
			allowed++
		}
	}
	if allowed != 10 {
		t.Fatalf("1/4 gate over 40 calls allowed %d, want 10", allowed)
	}

	g.Set(0, 0)
	for i := 0; i < 5; i++ {
		if !g.Allow() {
			t.Fatal("zero gate must pass everything")
		}
	}
}

func TestParseSampleRatio(t *testing.T) {
	cases := []struct {
		in       string
		num, den int
	}{
		{"", 0, 0},
		{"1/50", 1, 50},
		{" 2 / 5 ", 2, 5},
		{"25", 1, 25},
		{"0", 0, 0},
		{"garbage", 0, 0},
	}
	for _, tc := range cases {
		num, den := parseSampleRatio(tc.in)
		if num != tc.num || den != tc.den {
			t.Fatalf("parseSampleRatio(%q) = %d/%d, want %d/%d", tc.in, num, den, tc.num, tc.den)
		}
	}
}

// The errors file shares the pipeline with the main log; its sink floor
// keeps info noise out.
func TestFanoutLevelFloor(t *testing.T) {
	all := &bytes.Buffer{}
	errsOnly := &bytes.Buffer{}
	w := newFanoutWriter([]sinkOutput{
		{w: all, min: slog.LevelDebug},
		{w: errsOnly, min: slog.LevelWarn},
	}, 1024)
	h := newLineHandler(lineOptions{level: slog.LevelInfo, sink: w, enc: encodeKV})
	log := slog.New(h)

	LogEvent(Background(), log, slog.LevelInfo, "quiet.info")
	LogEvent(Background(), log, slog.LevelError, "loud.error")
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := all.String(); !strings.Contains(got, "quiet.info") || !strings.Contains(got, "loud.error") {
		t.Fatalf("main sink should carry both lines: %q", got)
	}
	errLines := strings.TrimSpace(errsOnly.String())
	if strings.Contains(errLines, "quiet.info") {
		t.Fatalf("info line leaked into the errors sink: %q", errLines)
	}
	if !strings.Contains(errLines, "loud.error") {
		t.Fatalf("error line missing from the errors sink: %q", errLines)
	}
}

func TestSummarizeStrings(t *testing.T) {
	joined, truncated := SummarizeStrings([]string{"cat", "dog", "fox"}, 2)
	if joined != "cat, dog" || !truncated {
		t.Fatalf("got %q truncated=%v", joined, truncated)
	}
	joined, truncated = SummarizeStrings([]string{"cat"}, 2)
	if joined != "cat" || truncated {
		t.Fatalf("got %q truncated=%v", joined, truncated)
	}
}
