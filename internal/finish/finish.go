// Package finish normalizes loudness and encodes the final artifact.
package finish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/intonelabs/intone/internal/audio"
)

// Loudness carries the normalization targets for the ffmpeg loudnorm filter.
type Loudness struct {
	TargetLUFS float64
	TruePeak   float64
	LRA        float64
}

// DefaultLoudness matches broadcast-friendly narration targets.
func DefaultLoudness() Loudness {
	return Loudness{TargetLUFS: -16.0, TruePeak: -1.5, LRA: 11.0}
}

// Normalizer adjusts a waveform to a target loudness.
type Normalizer interface {
	Normalize(ctx context.Context, clip audio.Clip, loudness Loudness) (audio.Clip, error)
}

// NormalizeError reports a loudness-normalization fault, distinct from
// encoding faults so callers can tell audio processing from container
// problems.
type NormalizeError struct {
	Err error
}

func (e *NormalizeError) Error() string { return fmt.Sprintf("normalization failed: %v", e.Err) }
func (e *NormalizeError) Unwrap() error { return e.Err }

// EncodeError reports a failure writing the output artifact.
type EncodeError struct {
	Format string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encoding to %s failed: %v", e.Format, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Options controls the final artifact.
type Options struct {
	Format    string // mp3, wav, ogg
	Path      string
	Normalize bool
	Loudness  Loudness
}

// Finisher writes the combined waveform to its final encoded form. It
// applies normalization at most once per run.
type Finisher struct {
	normalizer Normalizer
	encoder    *Encoder
	logger     *slog.Logger
}

// NewFinisher wires a normalizer and encoder together.
func NewFinisher(n Normalizer, enc *Encoder, log *slog.Logger) *Finisher {
	return &Finisher{
		normalizer: n,
		encoder:    enc,
		logger:     log.With(slog.String("component", "finish")),
	}
}

// Finish normalizes (once, when requested) and encodes the clip to
// opts.Path. The output directory is created if missing. Nothing is written
// when normalization fails.
func (f *Finisher) Finish(ctx context.Context, clip audio.Clip, opts Options) error {
	switch opts.Format {
	case "mp3", "wav", "ogg":
	default:
		return &EncodeError{Format: opts.Format, Err: fmt.Errorf("unsupported format")}
	}

	if opts.Normalize {
		normalized, err := f.normalizer.Normalize(ctx, clip, opts.Loudness)
		if err != nil {
			return &NormalizeError{Err: err}
		}
		clip = normalized
		f.logger.Info("loudness normalized",
			slog.Float64("target_lufs", opts.Loudness.TargetLUFS))
	}

	if dir := filepath.Dir(opts.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &EncodeError{Format: opts.Format, Err: err}
		}
	}

	if err := f.encoder.Encode(ctx, clip, opts.Format, opts.Path); err != nil {
		return &EncodeError{Format: opts.Format, Err: err}
	}
	f.logger.Info("artifact written",
		slog.String("path", opts.Path),
		slog.String("format", opts.Format),
		slog.Duration("duration", clip.Duration()))
	return nil
}
