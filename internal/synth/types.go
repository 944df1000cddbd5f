package synth

import (
	"context"
	"fmt"

	"github.com/intonelabs/intone/internal/audio"
	"github.com/intonelabs/intone/internal/emotion"
)

// Engine is the contract for a voice synthesis backend. Implementations
// state their own concurrency discipline: an engine that cannot serve
// concurrent calls must serialize them internally.
type Engine interface {
	Synthesize(ctx context.Context, text string, p emotion.Profile) (audio.Clip, error)
}

// SynthesisError reports a failed synthesis for one segment. A single
// segment failure aborts the whole run; there is no partial output.
type SynthesisError struct {
	Index int
	Err   error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed for segment %d: %v", e.Index, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
