package synth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/intonelabs/intone/internal/audio"
	"github.com/intonelabs/intone/internal/script"
)

// Adapter sequences synthesis calls over an Engine and returns one clip per
// utterance, ordered by utterance index. The default is strictly sequential
// calls; Workers > 1 fans synthesis out across goroutines, pairing each
// result with its index and joining on index order so assembly input never
// depends on goroutine interleaving. Whether parallel calls actually overlap
// inside the engine is the engine's business: the exec engine serializes
// through its own mutex, the wyoming engine dials per request.
type Adapter struct {
	engine     Engine
	sampleRate int
	channels   int
	workers    int
	logger     *slog.Logger
}

// NewAdapter wraps an engine. Clips are conformed to sampleRate and channels
// so the assembler always sees a single format, whatever the engine reports.
func NewAdapter(engine Engine, sampleRate, channels, workers int, log *slog.Logger) *Adapter {
	if workers < 1 {
		workers = 1
	}
	if channels < 1 {
		channels = 1
	}
	return &Adapter{
		engine:     engine,
		sampleRate: sampleRate,
		channels:   channels,
		workers:    workers,
		logger:     log.With(slog.String("component", "synth")),
	}
}

// RenderAll synthesizes every utterance. The first failure aborts the run
// with a SynthesisError naming the offending segment; there is no retry and
// no partial skip.
func (a *Adapter) RenderAll(ctx context.Context, utterances []script.Utterance) ([]audio.Clip, error) {
	if len(utterances) == 0 {
		return nil, nil
	}
	if a.workers == 1 {
		return a.renderSequential(ctx, utterances)
	}
	return a.renderParallel(ctx, utterances)
}

func (a *Adapter) renderSequential(ctx context.Context, utterances []script.Utterance) ([]audio.Clip, error) {
	clips := make([]audio.Clip, len(utterances))
	for i, utt := range utterances {
		clip, err := a.renderOne(ctx, utt, len(utterances))
		if err != nil {
			return nil, err
		}
		clips[i] = clip
	}
	return clips, nil
}

type indexedResult struct {
	index int
	clip  audio.Clip
	err   error
}

func (a *Adapter) renderParallel(ctx context.Context, utterances []script.Utterance) ([]audio.Clip, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan script.Utterance)
	results := make(chan indexedResult)

	var wg sync.WaitGroup
	for w := 0; w < a.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for utt := range jobs {
				clip, err := a.renderOne(ctx, utt, len(utterances))
				select {
				case results <- indexedResult{index: utt.Index, clip: clip, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, utt := range utterances {
			select {
			case jobs <- utt:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	clips := make([]audio.Clip, len(utterances))
	var firstErr error
	received := 0
	for res := range results {
		received++
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
				cancel() // stop in-flight siblings; partial output is never used
			}
		} else {
			clips[res.index] = res.clip
		}
		if received == len(utterances) {
			break
		}
	}
	cancel()
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return clips, nil
}

func (a *Adapter) renderOne(ctx context.Context, utt script.Utterance, total int) (audio.Clip, error) {
	a.logger.Info("synthesizing segment",
		slog.Int("segment", utt.Index+1),
		slog.Int("total", total),
		slog.String("emotion", utt.EmotionName))

	clip, err := a.engine.Synthesize(ctx, utt.Text, utt.Emotion)
	if err != nil {
		return audio.Clip{}, &SynthesisError{Index: utt.Index, Err: err}
	}
	clip, err = a.conform(clip)
	if err != nil {
		return audio.Clip{}, &SynthesisError{Index: utt.Index, Err: err}
	}
	return clip, nil
}

// conform brings an engine clip to the pipeline format. A stereo clip from
// an engine that ignores the requested channel count is downmixed rather
// than rejected.
func (a *Adapter) conform(clip audio.Clip) (audio.Clip, error) {
	if clip.Channels != a.channels {
		if a.channels != 1 {
			return audio.Clip{}, fmt.Errorf("engine produced %d channels, want %d", clip.Channels, a.channels)
		}
		mono, err := audio.DownmixMono(clip)
		if err != nil {
			return audio.Clip{}, err
		}
		clip = mono
	}
	return audio.Resample(clip, a.sampleRate)
}
