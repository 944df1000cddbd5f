// Package pipeline drives one narration render from script bytes to an
// encoded artifact: parse, synthesize, assemble, finish. Data flows strictly
// forward and any stage error aborts the run before an artifact is written.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/intonelabs/intone/internal/assemble"
	"github.com/intonelabs/intone/internal/emotion"
	"github.com/intonelabs/intone/internal/finish"
	"github.com/intonelabs/intone/internal/history"
	"github.com/intonelabs/intone/internal/script"
	"github.com/intonelabs/intone/internal/synth"
)

// Request describes one render run.
type Request struct {
	RunID      string
	ScriptJSON []byte
	Output     finish.Options
}

// Result summarizes a completed run.
type Result struct {
	Title        string
	Segments     int
	Duration     time.Duration
	ArtifactPath string
}

// Runner owns the per-run pipeline. The emotion table and engine are loaded
// once and shared across runs; each run is otherwise independent.
type Runner struct {
	table      *emotion.Table
	adapter    *synth.Adapter
	finisher   *finish.Finisher
	store      *history.Store
	sampleRate int
	channels   int
	logger     *slog.Logger

	tracer      trace.Tracer
	runsTotal   metric.Int64Counter
	runsFailed  metric.Int64Counter
	segmentsRun metric.Int64Counter
}

// NewRunner wires pipeline stages together. store may be nil when no run
// ledger is wanted (one-shot CLI renders).
func NewRunner(table *emotion.Table, adapter *synth.Adapter, finisher *finish.Finisher,
	store *history.Store, sampleRate, channels int, log *slog.Logger) *Runner {
	r := &Runner{
		table:      table,
		adapter:    adapter,
		finisher:   finisher,
		store:      store,
		sampleRate: sampleRate,
		channels:   channels,
		logger:     log.With(slog.String("component", "pipeline")),
		tracer:     otel.Tracer("github.com/intonelabs/intone/pipeline"),
	}
	r.initMetrics()
	return r
}

func (r *Runner) initMetrics() {
	meter := otel.Meter("github.com/intonelabs/intone/pipeline")
	var err error
	if r.runsTotal, err = meter.Int64Counter("intone.runs.total",
		metric.WithDescription("Render runs started")); err != nil {
		r.logger.Warn("failed to initialize metrics", slog.String("error", err.Error()))
		return
	}
	if r.runsFailed, err = meter.Int64Counter("intone.runs.failed",
		metric.WithDescription("Render runs that aborted with an error")); err != nil {
		r.logger.Warn("failed to initialize metrics", slog.String("error", err.Error()))
		return
	}
	if r.segmentsRun, err = meter.Int64Counter("intone.segments.synthesized",
		metric.WithDescription("Segments synthesized across all runs")); err != nil {
		r.logger.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
}

func (r *Runner) add(ctx context.Context, counter metric.Int64Counter, n int64) {
	if counter != nil {
		counter.Add(ctx, n)
	}
}

// Run executes the whole pipeline for one request. On error no artifact
// exists at the output path; a narration missing a sentence is worse than no
// narration at all.
func (r *Runner) Run(ctx context.Context, req Request) (Result, error) {
	ctx, span := r.tracer.Start(ctx, "pipeline.render",
		trace.WithAttributes(attribute.String("output.format", req.Output.Format)))
	defer span.End()

	r.add(ctx, r.runsTotal, 1)

	result, err := r.run(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.add(ctx, r.runsFailed, 1)
		r.recordFinish(ctx, req.RunID, history.StateFailed, err.Error(), "")
		return Result{}, err
	}
	span.SetAttributes(
		attribute.Int("segments", result.Segments),
		attribute.String("duration", result.Duration.String()),
	)
	r.recordFinish(ctx, req.RunID, history.StateDone, "", result.ArtifactPath)
	return result, nil
}

func (r *Runner) run(ctx context.Context, req Request) (Result, error) {
	parsed, err := script.Parse(req.ScriptJSON, r.table, r.logger)
	if err != nil {
		return Result{}, err
	}
	r.recordBegin(ctx, req, parsed)
	r.recordEvent(ctx, req.RunID, "parsed", fmt.Sprintf("%d segments", len(parsed.Utterances)))

	clips, err := r.adapter.RenderAll(ctx, parsed.Utterances)
	if err != nil {
		return Result{}, err
	}
	r.add(ctx, r.segmentsRun, int64(len(clips)))
	r.recordEvent(ctx, req.RunID, "synthesized", fmt.Sprintf("%d clips", len(clips)))

	combined, err := assemble.Assemble(clips, parsed.Utterances, r.sampleRate, r.channels)
	if err != nil {
		return Result{}, err
	}
	r.recordEvent(ctx, req.RunID, "assembled", combined.Duration().String())

	if err := r.finisher.Finish(ctx, combined, req.Output); err != nil {
		return Result{}, err
	}
	r.recordEvent(ctx, req.RunID, "finished", req.Output.Path)

	return Result{
		Title:        parsed.Title,
		Segments:     len(parsed.Utterances),
		Duration:     combined.Duration(),
		ArtifactPath: req.Output.Path,
	}, nil
}

func (r *Runner) recordBegin(ctx context.Context, req Request, parsed script.Script) {
	if r.store == nil || req.RunID == "" {
		return
	}
	if err := r.store.BeginRun(ctx, req.RunID, parsed.Title, len(parsed.Utterances), req.Output.Format); err != nil {
		r.logger.Warn("failed to record run start", slog.String("error", err.Error()))
	}
}

func (r *Runner) recordEvent(ctx context.Context, runID, eventType, detail string) {
	if r.store == nil || runID == "" {
		return
	}
	if err := r.store.AppendEvent(ctx, runID, eventType, detail); err != nil {
		r.logger.Warn("failed to record run event", slog.String("error", err.Error()))
	}
}

func (r *Runner) recordFinish(ctx context.Context, runID, state, errText, artifact string) {
	if r.store == nil || runID == "" {
		return
	}
	if err := r.store.FinishRun(ctx, runID, state, errText, artifact); err != nil {
		r.logger.Warn("failed to record run finish", slog.String("error", err.Error()))
	}
}

// ExitCode maps pipeline errors onto the command surface's distinct exit
// codes: 2 invalid script, 3 synthesis, 4 normalization or encoding,
// 1 anything else, 0 success.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var invalid *script.InvalidScriptError
	if errors.As(err, &invalid) {
		return 2
	}
	var synthErr *synth.SynthesisError
	if errors.As(err, &synthErr) {
		return 3
	}
	var normErr *finish.NormalizeError
	var encErr *finish.EncodeError
	if errors.As(err, &normErr) || errors.As(err, &encErr) {
		return 4
	}
	return 1
}
