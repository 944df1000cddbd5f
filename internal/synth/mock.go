package synth

import (
	"context"
	"math"

	"github.com/intonelabs/intone/internal/audio"
	"github.com/intonelabs/intone/internal/emotion"
)

// mockEngine produces a deterministic tone whose length tracks the text and
// the profile's length scale. Useful for tests and dry runs: identical
// text+profile inputs yield byte-identical clips.
type mockEngine struct {
	sampleRate int
	channels   int
}

// NewMockEngine returns the deterministic test engine.
func NewMockEngine(sampleRate, channels int) Engine {
	return &mockEngine{sampleRate: sampleRate, channels: channels}
}

func (m *mockEngine) Synthesize(ctx context.Context, text string, p emotion.Profile) (audio.Clip, error) {
	if err := ctx.Err(); err != nil {
		return audio.Clip{}, err
	}
	// 60ms of audio per character, stretched by the length scale.
	frames := int(float64(len(text)) * 0.06 * p.LengthScale * float64(m.sampleRate))
	samples := make([]int16, frames*m.channels)
	freq := 110.0 + 10.0*p.NoiseScale*float64(len(text)%8)
	for i := range samples {
		v := math.Sin(2 * math.Pi * freq * float64(i) / float64(m.sampleRate))
		samples[i] = int16(v * p.NoiseW * 8000)
	}
	return audio.FromSamples(samples, m.sampleRate, m.channels), nil
}
