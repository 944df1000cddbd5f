package finish

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/intonelabs/intone/internal/audio"
)

// Encoder writes a clip into an audio container. WAV is written natively;
// mp3 and ogg go through ffmpeg.
type Encoder struct {
	ffmpegPath string
}

// NewEncoder uses the given ffmpeg binary for compressed formats.
func NewEncoder(ffmpegPath string) *Encoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Encoder{ffmpegPath: ffmpegPath}
}

// Encode writes clip to path in the requested format.
func (e *Encoder) Encode(ctx context.Context, clip audio.Clip, format, path string) error {
	if format == "wav" {
		return audio.WriteWAVFile(path, clip)
	}

	tmp, err := os.CreateTemp("", "intone_enc_*.wav")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := audio.EncodeWAV(tmp, clip); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	args := []string{"-y", "-i", tmp.Name()}
	switch format {
	case "mp3":
		args = append(args, "-codec:a", "libmp3lame", "-q:a", "2")
	case "ogg":
		args = append(args, "-codec:a", "libvorbis", "-q:a", "5")
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
	args = append(args, path)

	command := exec.CommandContext(ctx, e.ffmpegPath, args...)
	var stderr bytes.Buffer
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return fmt.Errorf("ffmpeg encode: %w: %s", err, stderr.String())
	}
	return nil
}
