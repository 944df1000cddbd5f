package protocol

import (
	"encoding/json"
	"time"
)

// RenderRequest asks the render service to narrate a script. Script carries
// the raw narration document; validation happens inside the pipeline.
type RenderRequest struct {
	RequestID  string          `json:"request_id"`
	Script     json.RawMessage `json:"script"`
	Format     string          `json:"format,omitempty"`
	OutputPath string          `json:"output_path,omitempty"`
	Normalize  *bool           `json:"normalize,omitempty"`
	TargetLUFS *float64        `json:"target_lufs,omitempty"`
}

// Render states reported on the status subject.
const (
	RenderQueued    = "queued"
	RenderRendering = "rendering"
	RenderDone      = "done"
	RenderFailed    = "failed"
)

// RenderStatus reports progress for a render request.
type RenderStatus struct {
	RequestID string    `json:"request_id"`
	State     string    `json:"state"`
	Segment   int       `json:"segment,omitempty"`
	Total     int       `json:"total,omitempty"`
	Error     string    `json:"error,omitempty"`
	Artifact  string    `json:"artifact,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectRenderRequest = "narrate.render.request"
	SubjectRenderStatus  = "narrate.render.status"
	SubjectRenderDone    = "narrate.render.done"

	// RenderQueueGroup spreads requests across service instances.
	RenderQueueGroup = "intone-render"
)
