package assemble

import (
	"errors"
	"testing"
	"time"

	"github.com/intonelabs/intone/internal/audio"
	"github.com/intonelabs/intone/internal/script"
)

const (
	rate     = 22050
	channels = 1
)

func clipOf(d time.Duration) audio.Clip {
	return audio.Silence(d, rate, channels)
}

func TestAssembleInsertsPausesBetweenSegments(t *testing.T) {
	clips := []audio.Clip{
		clipOf(time.Second),
		clipOf(500 * time.Millisecond),
		clipOf(2 * time.Second),
	}
	utterances := []script.Utterance{
		{Index: 0, PauseAfter: script.PauseShort},
		{Index: 1, PauseAfter: script.PauseLong},
		{Index: 2, PauseAfter: script.PauseVeryLong}, // last pause never emitted
	}

	combined, err := Assemble(clips, utterances, rate, channels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Second + 500*time.Millisecond + 2*time.Second +
		250*time.Millisecond + time.Second
	if got := combined.Duration(); got != want {
		t.Fatalf("expected duration %v, got %v", want, got)
	}
}

func TestAssembleNoTrailingPause(t *testing.T) {
	clips := []audio.Clip{clipOf(time.Second)}
	utterances := []script.Utterance{{Index: 0, PauseAfter: script.PauseVeryLong}}

	combined, err := Assemble(clips, utterances, rate, channels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := combined.Duration(); got != time.Second {
		t.Fatalf("expected no trailing pause, got duration %v", got)
	}
}

func TestAssembleEmptyInput(t *testing.T) {
	combined, err := Assemble(nil, nil, rate, channels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !combined.Empty() || combined.Duration() != 0 {
		t.Fatalf("expected empty clip, got duration %v", combined.Duration())
	}
}

func TestAssembleLengthMismatchIsPreconditionError(t *testing.T) {
	clips := []audio.Clip{clipOf(time.Second)}
	_, err := Assemble(clips, nil, rate, channels)
	var pre *PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
}

func TestAssembleRejectsForeignSampleRate(t *testing.T) {
	clips := []audio.Clip{audio.Silence(time.Second, 16000, 1)}
	utterances := []script.Utterance{{Index: 0}}
	_, err := Assemble(clips, utterances, rate, channels)
	var pre *PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
}

func TestAssembleRejectsForeignChannelCount(t *testing.T) {
	// a stereo clip at the pipeline rate must not be stamped mono: it would
	// double the apparent duration and misalign every inserted silence
	clips := []audio.Clip{audio.Silence(time.Second, rate, 2)}
	utterances := []script.Utterance{{Index: 0}}
	_, err := Assemble(clips, utterances, rate, channels)
	var pre *PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
}

func TestAssembleDeterministic(t *testing.T) {
	clips := []audio.Clip{clipOf(300 * time.Millisecond), clipOf(700 * time.Millisecond)}
	utterances := []script.Utterance{
		{Index: 0, PauseAfter: script.PauseMedium},
		{Index: 1, PauseAfter: script.PauseNone},
	}

	first, err := Assemble(clips, utterances, rate, channels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Assemble(clips, utterances, rate, channels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Duration() != second.Duration() || len(first.PCM) != len(second.PCM) {
		t.Fatal("expected identical output for identical input")
	}
}
