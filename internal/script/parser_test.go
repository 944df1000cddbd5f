package script

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/intonelabs/intone/internal/emotion"
)

func testLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestParseResolvesSegments(t *testing.T) {
	const doc = `{
		"title": "Chapter One",
		"segments": [
			{"text": "  Hello.  ", "emotion": "suspense", "pause_after": "short"},
			{"text": "Goodbye.", "pause_after": "long"},
			{"text": "The end."}
		],
		"extra_field": true
	}`
	log, buf := testLogger()
	table := emotion.NewTable()

	parsed, err := Parse([]byte(doc), table, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Title != "Chapter One" {
		t.Fatalf("expected title, got %q", parsed.Title)
	}
	if len(parsed.Utterances) != 3 {
		t.Fatalf("expected 3 utterances, got %d", len(parsed.Utterances))
	}

	first := parsed.Utterances[0]
	if first.Text != "Hello." {
		t.Fatalf("expected trimmed text, got %q", first.Text)
	}
	suspense, _ := table.Resolve("suspense")
	if first.Emotion != suspense {
		t.Fatalf("expected suspense profile, got %+v", first.Emotion)
	}
	if first.PauseAfter != PauseShort {
		t.Fatalf("expected short pause, got %v", first.PauseAfter)
	}

	// absent emotion defaults to neutral without a diagnostic
	neutral, _ := table.Resolve(emotion.Neutral)
	if parsed.Utterances[1].Emotion != neutral {
		t.Fatalf("expected neutral for absent emotion")
	}
	// absent pause_after defaults to none
	if parsed.Utterances[2].PauseAfter != PauseNone {
		t.Fatalf("expected none pause for absent pause_after")
	}
	for i, utt := range parsed.Utterances {
		if utt.Index != i {
			t.Fatalf("expected contiguous indexes, got %d at %d", utt.Index, i)
		}
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no diagnostics, got %s", buf.String())
	}
}

func TestParseEmptySegmentsIsValid(t *testing.T) {
	log, _ := testLogger()
	parsed, err := Parse([]byte(`{"segments": []}`), emotion.NewTable(), log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed.Utterances) != 0 {
		t.Fatalf("expected zero utterances, got %d", len(parsed.Utterances))
	}
}

func TestParseInvalidDocuments(t *testing.T) {
	cases := map[string]struct {
		doc     string
		segment int
	}{
		"malformed json":     {`{"segments": [`, -1},
		"missing segments":   {`{"title": "x"}`, -1},
		"segments not array": {`{"segments": {"text": "x"}}`, -1},
		"missing text":       {`{"segments": [{"emotion": "neutral"}]}`, 0},
		"empty text":         {`{"segments": [{"text": "   "}]}`, 0},
		"unknown pause":      {`{"segments": [{"text": "a"}, {"text": "b", "pause_after": "forever"}]}`, 1},
	}

	log, _ := testLogger()
	table := emotion.NewTable()
	for name, tc := range cases {
		_, err := Parse([]byte(tc.doc), table, log)
		var invalid *InvalidScriptError
		if !errors.As(err, &invalid) {
			t.Fatalf("%s: expected InvalidScriptError, got %v", name, err)
		}
		if invalid.Segment != tc.segment {
			t.Fatalf("%s: expected segment %d, got %d", name, tc.segment, invalid.Segment)
		}
	}
}

func TestParseUnknownEmotionDegrades(t *testing.T) {
	const doc = `{"segments": [
		{"text": "One.", "emotion": "excited"},
		{"text": "Two.", "emotion": "excited"},
		{"text": "Three.", "emotion": ""}
	]}`
	log, buf := testLogger()
	table := emotion.NewTable()

	parsed, err := Parse([]byte(doc), table, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	neutral, _ := table.Resolve(emotion.Neutral)
	for i, utt := range parsed.Utterances {
		if utt.Emotion != neutral {
			t.Fatalf("utterance %d: expected neutral fallback", i)
		}
		if utt.EmotionName != emotion.Neutral {
			t.Fatalf("utterance %d: expected resolved name neutral, got %q", i, utt.EmotionName)
		}
	}
	if got := strings.Count(buf.String(), "unrecognized emotion"); got != 3 {
		t.Fatalf("expected 3 diagnostics, got %d: %s", got, buf.String())
	}
}

func TestPauseDurations(t *testing.T) {
	expect := map[PauseKind]time.Duration{
		PauseNone:     0,
		PauseShort:    250 * time.Millisecond,
		PauseMedium:   500 * time.Millisecond,
		PauseLong:     time.Second,
		PauseVeryLong: 2 * time.Second,
	}
	for kind, want := range expect {
		if got := kind.Duration(); got != want {
			t.Fatalf("%s: expected %v, got %v", kind, want, got)
		}
	}
}
