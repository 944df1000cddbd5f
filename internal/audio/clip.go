package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Clip is a buffer of 16-bit little-endian PCM audio. Ownership transfers
// from producer to consumer at each pipeline stage; stages never mutate a
// clip they handed off.
type Clip struct {
	SampleRate int
	Channels   int
	PCM        []byte
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.PCM) / (2 * c.Channels)
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}

// Empty reports whether the clip carries no audio.
func (c Clip) Empty() bool { return len(c.PCM) == 0 }

// Silence returns a clip of zeroed samples lasting d.
func Silence(d time.Duration, sampleRate, channels int) Clip {
	frames := int(d.Seconds() * float64(sampleRate))
	return Clip{
		SampleRate: sampleRate,
		Channels:   channels,
		PCM:        make([]byte, frames*2*channels),
	}
}

// Samples decodes the PCM payload into int16 samples.
func (c Clip) Samples() ([]int16, error) {
	if len(c.PCM)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned")
	}
	samples := make([]int16, len(c.PCM)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(c.PCM[i*2:]))
	}
	return samples, nil
}

// FromSamples encodes int16 samples into a clip.
func FromSamples(samples []int16, sampleRate, channels int) Clip {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return Clip{SampleRate: sampleRate, Channels: channels, PCM: pcm}
}

// DownmixMono folds a multi-channel clip to mono by averaging the channels
// of each frame. Mono clips pass through unchanged.
func DownmixMono(c Clip) (Clip, error) {
	if c.Channels == 1 || c.Empty() {
		c.Channels = 1
		return c, nil
	}
	if c.Channels <= 0 {
		return Clip{}, fmt.Errorf("downmix needs a channel count, got %d", c.Channels)
	}
	in, err := c.Samples()
	if err != nil {
		return Clip{}, err
	}
	frames := len(in) / c.Channels
	out := make([]int16, frames)
	for f := 0; f < frames; f++ {
		sum := 0
		for ch := 0; ch < c.Channels; ch++ {
			sum += int(in[f*c.Channels+ch])
		}
		out[f] = int16(sum / c.Channels)
	}
	return FromSamples(out, c.SampleRate, 1), nil
}

// Resample converts a mono clip to the target sample rate using linear
// interpolation. A clip already at the target rate is returned unchanged.
// Multi-channel clips are rejected even at the target rate; downmix first.
func Resample(c Clip, targetRate int) (Clip, error) {
	if c.Empty() {
		c.SampleRate = targetRate
		return c, nil
	}
	if c.Channels != 1 {
		return Clip{}, fmt.Errorf("resample supports mono clips, got %d channels", c.Channels)
	}
	if c.SampleRate == targetRate {
		return c, nil
	}
	in, err := c.Samples()
	if err != nil {
		return Clip{}, err
	}

	ratio := float64(c.SampleRate) / float64(targetRate)
	outLen := int(float64(len(in)) / ratio)
	out := make([]int16, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = int16(float64(in[idx])*(1-frac) + float64(in[idx+1])*frac)
	}
	return FromSamples(out, targetRate, 1), nil
}
