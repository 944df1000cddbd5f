// Package assemble joins per-segment clips into one waveform, inserting the
// pause silences the script asked for.
package assemble

import (
	"bytes"
	"fmt"

	"github.com/intonelabs/intone/internal/audio"
	"github.com/intonelabs/intone/internal/script"
)

// PreconditionError reports broken internal consistency between the clip
// and utterance sequences. It is a programming error, never recoverable.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "assembler precondition violated: " + e.Reason
}

// Assemble concatenates clips in utterance order, appending each segment's
// pause silence after it. The last segment never gets a trailing pause. Both slices must be parallel and index-ordered. An empty
// input yields an empty zero-duration clip. Deterministic given identical
// inputs.
func Assemble(clips []audio.Clip, utterances []script.Utterance, sampleRate, channels int) (audio.Clip, error) {
	if len(clips) != len(utterances) {
		return audio.Clip{}, &PreconditionError{
			Reason: fmt.Sprintf("%d clips for %d utterances", len(clips), len(utterances)),
		}
	}

	var buf bytes.Buffer
	for i, clip := range clips {
		if clip.SampleRate != sampleRate && !clip.Empty() {
			return audio.Clip{}, &PreconditionError{
				Reason: fmt.Sprintf("clip %d has sample rate %d, want %d", i, clip.SampleRate, sampleRate),
			}
		}
		if clip.Channels != channels && !clip.Empty() {
			return audio.Clip{}, &PreconditionError{
				Reason: fmt.Sprintf("clip %d has %d channels, want %d", i, clip.Channels, channels),
			}
		}
		buf.Write(clip.PCM)
		if i < len(clips)-1 {
			pause := utterances[i].PauseAfter.Duration()
			if pause > 0 {
				buf.Write(audio.Silence(pause, sampleRate, channels).PCM)
			}
		}
	}

	return audio.Clip{SampleRate: sampleRate, Channels: channels, PCM: buf.Bytes()}, nil
}
