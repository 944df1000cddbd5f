package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/intonelabs/intone/internal/audio"
	"github.com/intonelabs/intone/internal/emotion"
	"github.com/intonelabs/intone/internal/finish"
	"github.com/intonelabs/intone/internal/script"
	"github.com/intonelabs/intone/internal/synth"
)

const (
	rate     = 22050
	channels = 1
)

func newRunner(t *testing.T, logBuf *bytes.Buffer) *Runner {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(logBuf, nil))
	table := emotion.NewTable()
	adapter := synth.NewAdapter(synth.NewMockEngine(rate, channels), rate, channels, 1, logger)
	finisher := finish.NewFinisher(finish.NoopNormalizer{}, finish.NewEncoder(""), logger)
	return NewRunner(table, adapter, finisher, nil, rate, channels, logger)
}

func wavOptions(t *testing.T) finish.Options {
	t.Helper()
	return finish.Options{
		Format:    "wav",
		Path:      filepath.Join(t.TempDir(), "out.wav"),
		Normalize: false,
	}
}

func readArtifact(t *testing.T, path string) audio.Clip {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer file.Close()
	clip, err := audio.DecodeWAV(file)
	if err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	return clip
}

func TestRunEndToEnd(t *testing.T) {
	const doc = `{"segments": [
		{"text": "Hello.", "emotion": "neutral", "pause_after": "short"},
		{"text": "Goodbye.", "emotion": "neutral", "pause_after": "long"}
	]}`
	var logBuf bytes.Buffer
	runner := newRunner(t, &logBuf)
	opts := wavOptions(t)

	result, err := runner.Run(context.Background(), Request{ScriptJSON: []byte(doc), Output: opts})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Segments != 2 {
		t.Fatalf("expected 2 segments, got %d", result.Segments)
	}

	// combined audio = both clips + one 250ms pause, zero trailing pause
	engine := synth.NewMockEngine(rate, channels)
	neutral, _ := emotion.NewTable().Resolve("neutral")
	hello, _ := engine.Synthesize(context.Background(), "Hello.", neutral)
	goodbye, _ := engine.Synthesize(context.Background(), "Goodbye.", neutral)
	pause := audio.Silence(250*time.Millisecond, rate, channels)
	wantBytes := len(hello.PCM) + len(pause.PCM) + len(goodbye.PCM)

	artifact := readArtifact(t, opts.Path)
	if len(artifact.PCM) != wantBytes {
		t.Fatalf("expected %d PCM bytes, got %d", wantBytes, len(artifact.PCM))
	}
	if result.Duration != artifact.Duration() {
		t.Fatalf("result duration mismatch: %v vs %v", result.Duration, artifact.Duration())
	}
}

func TestRunEmptyScriptProducesEmptyArtifact(t *testing.T) {
	var logBuf bytes.Buffer
	runner := newRunner(t, &logBuf)
	opts := wavOptions(t)

	result, err := runner.Run(context.Background(), Request{ScriptJSON: []byte(`{"segments": []}`), Output: opts})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Segments != 0 || result.Duration != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
	if artifact := readArtifact(t, opts.Path); !artifact.Empty() {
		t.Fatalf("expected empty artifact, got %v", artifact.Duration())
	}
}

func TestRunUnknownEmotionMatchesNeutral(t *testing.T) {
	const excited = `{"segments": [{"text": "Hello.", "emotion": "excited"}]}`
	const neutral = `{"segments": [{"text": "Hello.", "emotion": "neutral"}]}`

	var excitedLog bytes.Buffer
	runner := newRunner(t, &excitedLog)
	excitedOpts := wavOptions(t)
	if _, err := runner.Run(context.Background(), Request{ScriptJSON: []byte(excited), Output: excitedOpts}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var neutralLog bytes.Buffer
	neutralRunner := newRunner(t, &neutralLog)
	neutralOpts := wavOptions(t)
	if _, err := neutralRunner.Run(context.Background(), Request{ScriptJSON: []byte(neutral), Output: neutralOpts}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a := readArtifact(t, excitedOpts.Path)
	b := readArtifact(t, neutralOpts.Path)
	if !bytes.Equal(a.PCM, b.PCM) {
		t.Fatal("expected identical audio for degraded emotion")
	}

	if got := strings.Count(excitedLog.String(), "unrecognized emotion"); got != 1 {
		t.Fatalf("expected exactly one diagnostic, got %d", got)
	}
	if strings.Contains(neutralLog.String(), "unrecognized emotion") {
		t.Fatal("neutral run must not emit a diagnostic")
	}
}

type failAtEngine struct {
	failIndex int
	calls     int
}

func (e *failAtEngine) Synthesize(ctx context.Context, text string, p emotion.Profile) (audio.Clip, error) {
	call := e.calls
	e.calls++
	if call == e.failIndex {
		return audio.Clip{}, errors.New("model rejected input")
	}
	return audio.Silence(100*time.Millisecond, rate, channels), nil
}

func TestRunSynthesisFailureAbortsWithoutArtifact(t *testing.T) {
	const doc = `{"segments": [
		{"text": "One."}, {"text": "Two."}, {"text": "Three."}
	]}`
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	adapter := synth.NewAdapter(&failAtEngine{failIndex: 1}, rate, channels, 1, logger)
	finisher := finish.NewFinisher(finish.NoopNormalizer{}, finish.NewEncoder(""), logger)
	runner := NewRunner(emotion.NewTable(), adapter, finisher, nil, rate, channels, logger)
	opts := wavOptions(t)

	_, err := runner.Run(context.Background(), Request{ScriptJSON: []byte(doc), Output: opts})
	var synthErr *synth.SynthesisError
	if !errors.As(err, &synthErr) {
		t.Fatalf("expected SynthesisError, got %v", err)
	}
	if synthErr.Index != 1 {
		t.Fatalf("expected failing index 1, got %d", synthErr.Index)
	}
	if _, statErr := os.Stat(opts.Path); !os.IsNotExist(statErr) {
		t.Fatal("expected no artifact after synthesis failure")
	}
}

func TestRunInvalidScript(t *testing.T) {
	var logBuf bytes.Buffer
	runner := newRunner(t, &logBuf)

	_, err := runner.Run(context.Background(), Request{ScriptJSON: []byte(`{"segments": [{"text": ""}]}`), Output: wavOptions(t)})
	var invalid *script.InvalidScriptError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidScriptError, got %v", err)
	}
}

func TestExitCodes(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{nil, 0},
		{&script.InvalidScriptError{Segment: 0, Reason: "x"}, 2},
		{&synth.SynthesisError{Index: 1, Err: errors.New("x")}, 3},
		{&finish.NormalizeError{Err: errors.New("x")}, 4},
		{&finish.EncodeError{Format: "mp3", Err: errors.New("x")}, 4},
		{errors.New("boom"), 1},
	}
	for _, tc := range cases {
		if got := ExitCode(tc.err); got != tc.code {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.code, got)
		}
	}
}
