package script

import (
	"fmt"
	"time"

	"github.com/intonelabs/intone/internal/emotion"
)

// PauseKind names the silence inserted after an utterance.
type PauseKind string

const (
	PauseNone     PauseKind = "none"
	PauseShort    PauseKind = "short"
	PauseMedium   PauseKind = "medium"
	PauseLong     PauseKind = "long"
	PauseVeryLong PauseKind = "very_long"
)

var pauseDurations = map[PauseKind]time.Duration{
	PauseNone:     0,
	PauseShort:    250 * time.Millisecond,
	PauseMedium:   500 * time.Millisecond,
	PauseLong:     1000 * time.Millisecond,
	PauseVeryLong: 2000 * time.Millisecond,
}

// Duration returns the silence length for the pause kind.
func (p PauseKind) Duration() time.Duration {
	return pauseDurations[p]
}

func pauseKind(name string) (PauseKind, bool) {
	k := PauseKind(name)
	_, ok := pauseDurations[k]
	return k, ok
}

// Utterance is one validated narration segment, ready for synthesis.
type Utterance struct {
	Text        string
	Emotion     emotion.Profile
	EmotionName string
	PauseAfter  PauseKind
	Index       int
}

// Script is a fully parsed narration document.
type Script struct {
	Title      string
	Utterances []Utterance
}

// InvalidScriptError reports a malformed narration document. Segment is -1
// when the fault is not tied to a particular segment.
type InvalidScriptError struct {
	Segment int
	Reason  string
	Err     error
}

func (e *InvalidScriptError) Error() string {
	if e.Segment >= 0 {
		return fmt.Sprintf("invalid script: segment %d: %s", e.Segment, e.Reason)
	}
	return fmt.Sprintf("invalid script: %s", e.Reason)
}

func (e *InvalidScriptError) Unwrap() error { return e.Err }
