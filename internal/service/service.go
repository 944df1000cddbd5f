// Package service exposes the render pipeline over the NATS bus.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/intonelabs/intone/internal/bus"
	"github.com/intonelabs/intone/internal/config"
	"github.com/intonelabs/intone/internal/finish"
	"github.com/intonelabs/intone/internal/pipeline"
	"github.com/intonelabs/intone/internal/protocol"
)

// Service subscribes to render requests on a queue group, runs the pipeline
// per request and publishes status transitions.
type Service struct {
	cfg    config.Config
	bus    *bus.Client
	runner *pipeline.Runner
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

func New(parent context.Context, cfg config.Config, busClient *bus.Client, runner *pipeline.Runner, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:    cfg,
		bus:    busClient,
		runner: runner,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "render-service")),
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().QueueSubscribe(protocol.SubjectRenderRequest, protocol.RenderQueueGroup, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("render service listening", slog.String("subject", protocol.SubjectRenderRequest))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.RenderRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode render request", slogError(err))
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	s.publishStatus(protocol.RenderStatus{RequestID: req.RequestID, State: protocol.RenderQueued})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timeout := time.Duration(s.cfg.Engine.TimeoutMS) * time.Millisecond
		ctx, cancel := context.WithTimeout(s.ctx, timeout)
		defer cancel()

		s.publishStatus(protocol.RenderStatus{RequestID: req.RequestID, State: protocol.RenderRendering})

		result, err := s.runner.Run(ctx, s.buildRequest(req))
		if err != nil {
			s.logger.Warn("render failed",
				slog.String("request_id", req.RequestID),
				slogError(err))
			s.publishStatus(protocol.RenderStatus{
				RequestID: req.RequestID,
				State:     protocol.RenderFailed,
				Error:     err.Error(),
			})
			return
		}

		s.logger.Info("render complete",
			slog.String("request_id", req.RequestID),
			slog.Int("segments", result.Segments),
			slog.Duration("duration", result.Duration))
		done := protocol.RenderStatus{
			RequestID: req.RequestID,
			State:     protocol.RenderDone,
			Total:     result.Segments,
			Artifact:  result.ArtifactPath,
			Timestamp: time.Now().UTC(),
		}
		s.publish(protocol.SubjectRenderDone, done)
		s.publishStatus(done)
	}()
}

func (s *Service) buildRequest(req protocol.RenderRequest) pipeline.Request {
	out := s.cfg.Output
	format := out.Format
	if req.Format != "" {
		format = req.Format
	}
	normalize := out.Normalize
	if req.Normalize != nil {
		normalize = *req.Normalize
	}
	loudness := finish.Loudness{TargetLUFS: out.TargetLUFS, TruePeak: out.TruePeak, LRA: out.LRA}
	if req.TargetLUFS != nil {
		loudness.TargetLUFS = *req.TargetLUFS
	}
	path := req.OutputPath
	if path == "" {
		path = filepath.Join("./data/renders", fmt.Sprintf("%s.%s", req.RequestID, format))
	}
	return pipeline.Request{
		RunID:      req.RequestID,
		ScriptJSON: req.Script,
		Output: finish.Options{
			Format:    format,
			Path:      path,
			Normalize: normalize,
			Loudness:  loudness,
		},
	}
}

func (s *Service) publishStatus(status protocol.RenderStatus) {
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now().UTC()
	}
	s.publish(protocol.SubjectRenderStatus, status)
}

func (s *Service) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("failed to marshal status", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish status", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
