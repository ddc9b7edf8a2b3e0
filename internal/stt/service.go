package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-notes/internal/bus"
	"github.com/loqalabs/loqa-notes/internal/config"
	"github.com/loqalabs/loqa-notes/internal/eventstore"
	"github.com/loqalabs/loqa-notes/internal/protocol"
	"github.com/loqalabs/loqa-notes/internal/summary"
	"github.com/nats-io/nats.go"
)

const journalTimeout = 5 * time.Second

// Service exposes an Orchestrator on the bus. It serves one run at a time.
type Service struct {
	cfg         config.STTConfig
	bus         *bus.Client
	orch        *Orchestrator
	store       *eventstore.Store
	summaryRate float64
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	subs   []*nats.Subscription

	mu     sync.Mutex
	active string
	ready  bool

	inflight sync.WaitGroup // runs whose done event is not yet out
}

func NewService(parent context.Context, cfg config.STTConfig, busClient *bus.Client, orch *Orchestrator, store *eventstore.Store, summaryRate float64) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:         cfg,
		bus:         busClient,
		orch:        orch,
		store:       store,
		summaryRate: summaryRate,
		logger:      busClient.Logger().With(slog.String("component", "stt-service")),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start loads the configured model and subscribes to run requests.
func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	if err := s.orch.Initialize(s.ctx, s.cfg.ModelPath); err != nil {
		return err
	}
	handlers := map[string]nats.MsgHandler{
		protocol.SubjectTranscribeRequest: s.handleRequest,
		protocol.SubjectTranscribeCancel:  s.handleCancel,
	}
	for subject, h := range handlers {
		sub, err := s.bus.Conn().Subscribe(subject, h)
		if err != nil {
			s.unsubscribe()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	return nil
}

func (s *Service) Close() {
	s.cancel()
	s.unsubscribe()
	if err := s.orch.Finish(); err != nil {
		s.logger.Warn("release model failed", slogError(err))
	}
	s.inflight.Wait()
}

func (s *Service) Healthy() bool {
	if !s.cfg.Enabled {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *Service) unsubscribe() {
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.subs = nil
}

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.TranscribeRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode transcribe request", slogError(err))
		s.reply(msg, protocol.TranscribeAck{Error: err.Error()})
		return
	}
	if req.Path == "" {
		s.reply(msg, protocol.TranscribeAck{RunID: req.RunID, Error: "path is required"})
		return
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	language := req.Language
	if language == "" {
		language = s.cfg.Language
	}

	if s.orch.Status() == StatusTranscribing {
		s.reply(msg, protocol.TranscribeAck{RunID: runID, Error: ErrBusy.Error()})
		return
	}

	s.journalRun(runID, req.Path, language)

	r := &run{svc: s, id: runID, summary: req.Summary}
	s.mu.Lock()
	s.active = runID
	s.mu.Unlock()

	s.orch.Reset()
	s.inflight.Add(1)
	if err := s.orch.Start(s.ctx, req.Path, language, r.callbacks()); err != nil {
		s.inflight.Done()
		s.mu.Lock()
		if s.active == runID {
			s.active = ""
		}
		s.mu.Unlock()
		s.logger.Warn("transcription rejected", slog.String("run_id", runID), slogError(err))
		s.journalStatus(runID, "rejected", err.Error())
		s.reply(msg, protocol.TranscribeAck{RunID: runID, Error: err.Error()})
		return
	}

	s.logger.Info("transcription started",
		slog.String("run_id", runID),
		slog.String("path", req.Path),
		slog.String("language", language))
	s.reply(msg, protocol.TranscribeAck{RunID: runID, Accepted: true})
}

func (s *Service) handleCancel(msg *nats.Msg) {
	var req protocol.CancelRequest
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			s.reply(msg, protocol.TranscribeAck{Error: err.Error()})
			return
		}
	}
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()

	if active == "" || (req.RunID != "" && req.RunID != active) {
		s.reply(msg, protocol.TranscribeAck{RunID: req.RunID, Error: "no matching run"})
		return
	}
	s.orch.Stop()
	s.reply(msg, protocol.TranscribeAck{RunID: active, Accepted: true})
}

func (s *Service) reply(msg *nats.Msg, ack protocol.TranscribeAck) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(ack)
	if err != nil {
		s.logger.Warn("failed to marshal ack", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to respond", slogError(err))
	}
}

func (s *Service) publish(subject string, v any) {
	if err := s.bus.PublishJSON(subject, v); err != nil {
		s.logger.Warn("failed to publish", slog.String("subject", subject), slogError(err))
	}
}

func (s *Service) journalCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(s.ctx), journalTimeout)
}

func (s *Service) journalRun(runID, path, language string) {
	if s.store == nil {
		return
	}
	ctx, cancel := s.journalCtx()
	defer cancel()
	if err := s.store.AppendRun(ctx, runID, path, language, StatusTranscribing.String()); err != nil {
		s.logger.Warn("journal run failed", slogError(err))
	}
}

func (s *Service) journalStatus(runID, status, errMsg string) {
	if s.store == nil {
		return
	}
	ctx, cancel := s.journalCtx()
	defer cancel()
	if err := s.store.UpdateRunStatus(ctx, runID, status, errMsg); err != nil {
		s.logger.Warn("journal status failed", slogError(err))
	}
}

func (s *Service) journalEvent(runID, kind string, v any) {
	if s.store == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	ctx, cancel := s.journalCtx()
	defer cancel()
	if err := s.store.AppendEvent(ctx, eventstore.Event{RunID: runID, Type: kind, Payload: payload}); err != nil {
		s.logger.Warn("journal event failed", slogError(err))
	}
}

// run collects the events of one transcription. Callbacks arrive on the
// orchestrator's run goroutine, so no locking is needed.
type run struct {
	svc     *Service
	id      string
	summary bool
	texts   []string
}

func (r *run) callbacks() Callbacks {
	return Callbacks{
		OnSegment: func(seg Segment) {
			if t := strings.TrimSpace(seg.Text); t != "" {
				r.texts = append(r.texts, t)
			}
			evt := protocol.SegmentEvent{RunID: r.id, StartMs: seg.StartMs, EndMs: seg.EndMs, Text: seg.Text}
			r.svc.publish(protocol.SubjectTranscriptSegment, evt)
			r.svc.journalEvent(r.id, "segment", evt)
		},
		OnProgress: func(percent int) {
			r.svc.publish(protocol.SubjectTranscriptProgress, protocol.ProgressEvent{RunID: r.id, Percent: percent})
		},
		OnComplete: func() { r.finish(StatusCompleted, nil) },
		OnCancel:   func() { r.finish(StatusCancelled, nil) },
		OnError:    func(err error) { r.finish(StatusFailed, err) },
	}
}

func (r *run) finish(status Status, err error) {
	s := r.svc
	defer s.inflight.Done()
	s.mu.Lock()
	if s.active == r.id {
		s.active = ""
	}
	s.mu.Unlock()

	done := protocol.RunStatus{
		RunID:      r.id,
		Status:     status.String(),
		Transcript: strings.Join(r.texts, " "),
		Timestamp:  time.Now().UTC(),
	}
	if err != nil {
		done.Error = err.Error()
	}
	if r.summary && status == StatusCompleted {
		done.Summary = summary.Summarize(done.Transcript, s.summaryRate)
	}

	s.journalEvent(r.id, "done", done)
	s.journalStatus(r.id, done.Status, done.Error)
	s.publish(protocol.SubjectTranscriptDone, done)

	if err != nil {
		s.logger.Warn("run ended", slog.String("run_id", r.id), slog.String("status", done.Status), slogError(err))
		return
	}
	s.logger.Info("run ended", slog.String("run_id", r.id), slog.String("status", done.Status))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
