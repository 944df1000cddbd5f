package finish

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/intonelabs/intone/internal/audio"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFinishWritesWAV(t *testing.T) {
	clip := audio.Silence(time.Second, 22050, 1)
	path := filepath.Join(t.TempDir(), "out", "narration.wav")

	finisher := NewFinisher(NoopNormalizer{}, NewEncoder(""), discardLogger())
	err := finisher.Finish(context.Background(), clip, Options{
		Format:    "wav",
		Path:      path,
		Normalize: true,
		Loudness:  DefaultLoudness(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open artifact: %v", err)
	}
	defer file.Close()
	decoded, err := audio.DecodeWAV(file)
	if err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if decoded.Duration() != time.Second {
		t.Fatalf("expected 1s artifact, got %v", decoded.Duration())
	}
}

func TestFinishRejectsUnknownFormat(t *testing.T) {
	finisher := NewFinisher(NoopNormalizer{}, NewEncoder(""), discardLogger())
	err := finisher.Finish(context.Background(), audio.Clip{}, Options{
		Format: "flac",
		Path:   filepath.Join(t.TempDir(), "x.flac"),
	})
	var encErr *EncodeError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected EncodeError, got %v", err)
	}
}

type failingNormalizer struct{}

func (failingNormalizer) Normalize(context.Context, audio.Clip, Loudness) (audio.Clip, error) {
	return audio.Clip{}, errors.New("loudnorm broke")
}

func TestFinishNormalizationFailureWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "narration.wav")
	finisher := NewFinisher(failingNormalizer{}, NewEncoder(""), discardLogger())

	err := finisher.Finish(context.Background(), audio.Silence(time.Second, 22050, 1), Options{
		Format:    "wav",
		Path:      path,
		Normalize: true,
		Loudness:  DefaultLoudness(),
	})
	var normErr *NormalizeError
	if !errors.As(err, &normErr) {
		t.Fatalf("expected NormalizeError, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("expected no artifact after normalization failure")
	}
}

func TestFinishSkipsNormalizerWhenDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "narration.wav")
	// failingNormalizer proves the normalizer is never invoked
	finisher := NewFinisher(failingNormalizer{}, NewEncoder(""), discardLogger())

	err := finisher.Finish(context.Background(), audio.Silence(100*time.Millisecond, 22050, 1), Options{
		Format:    "wav",
		Path:      path,
		Normalize: false,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Fatalf("expected artifact: %v", statErr)
	}
}

func TestNoopNormalizerIsIdentity(t *testing.T) {
	clip := audio.Silence(time.Second, 22050, 1)
	out, err := NoopNormalizer{}.Normalize(context.Background(), clip, DefaultLoudness())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Duration() != clip.Duration() {
		t.Fatal("noop normalizer changed the clip")
	}
}
