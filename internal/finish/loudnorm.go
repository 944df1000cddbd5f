package finish

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/intonelabs/intone/internal/audio"
)

// FFmpegNormalizer runs ffmpeg's loudnorm filter over a temp WAV file and
// reads the normalized WAV back over a pipe. Output is forced to mono at the
// clip's sample rate so normalization never changes the pipeline format.
type FFmpegNormalizer struct {
	ffmpegPath string
}

// NewFFmpegNormalizer uses the given ffmpeg binary (path or name on PATH).
func NewFFmpegNormalizer(ffmpegPath string) *FFmpegNormalizer {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegNormalizer{ffmpegPath: ffmpegPath}
}

func (n *FFmpegNormalizer) Normalize(ctx context.Context, clip audio.Clip, loudness Loudness) (audio.Clip, error) {
	if clip.Empty() {
		return clip, nil
	}

	tmp, err := os.CreateTemp("", "intone_norm_*.wav")
	if err != nil {
		return audio.Clip{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := audio.EncodeWAV(tmp, clip); err != nil {
		tmp.Close()
		return audio.Clip{}, err
	}
	if err := tmp.Close(); err != nil {
		return audio.Clip{}, err
	}

	filter := fmt.Sprintf("loudnorm=I=%g:TP=%g:LRA=%g",
		loudness.TargetLUFS, loudness.TruePeak, loudness.LRA)
	args := []string{
		"-y",
		"-i", tmp.Name(),
		"-af", filter,
		"-ar", fmt.Sprintf("%d", clip.SampleRate),
		"-ac", "1",
		"-f", "wav",
		"pipe:1",
	}

	command := exec.CommandContext(ctx, n.ffmpegPath, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return audio.Clip{}, fmt.Errorf("ffmpeg loudnorm: %w: %s", err, stderr.String())
	}

	out, err := audio.DecodeWAVBytes(stdout.Bytes())
	if err != nil {
		return audio.Clip{}, fmt.Errorf("read normalized wav: %w", err)
	}
	return out, nil
}

// NoopNormalizer passes clips through unchanged; used for --no-normalize and
// in tests.
type NoopNormalizer struct{}

func (NoopNormalizer) Normalize(_ context.Context, clip audio.Clip, _ Loudness) (audio.Clip, error) {
	return clip, nil
}
