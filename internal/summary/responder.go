package summary

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-notes/internal/bus"
	"github.com/loqalabs/loqa-notes/internal/config"
	"github.com/loqalabs/loqa-notes/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Responder answers summary requests on the bus.
type Responder struct {
	cfg    config.SummaryConfig
	bus    *bus.Client
	logger *slog.Logger
	sub    *nats.Subscription
}

func NewResponder(cfg config.SummaryConfig, busClient *bus.Client) *Responder {
	return &Responder{
		cfg:    cfg,
		bus:    busClient,
		logger: busClient.Logger().With(slog.String("component", "summary")),
	}
}

func (r *Responder) Start() error {
	if !r.cfg.Enabled {
		return nil
	}
	sub, err := r.bus.Conn().Subscribe(protocol.SubjectSummaryRequest, r.handle)
	if err != nil {
		return fmt.Errorf("subscribe summary requests: %w", err)
	}
	r.sub = sub
	return nil
}

func (r *Responder) Close() {
	if r.sub != nil {
		_ = r.sub.Drain()
	}
}

func (r *Responder) Healthy() bool {
	return !r.cfg.Enabled || r.sub != nil
}

func (r *Responder) handle(msg *nats.Msg) {
	var req protocol.SummaryRequest
	var resp protocol.SummaryResponse
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		r.logger.Warn("failed to decode summary request", slog.String("error", err.Error()))
		resp.Error = err.Error()
	} else {
		rate := req.CompressionRate
		if rate == 0 {
			rate = r.cfg.CompressionRate
		}
		resp.Summary = Summarize(req.Text, rate)
	}
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		r.logger.Warn("failed to marshal summary", slog.String("error", err.Error()))
		return
	}
	if err := msg.Respond(data); err != nil {
		r.logger.Warn("failed to respond", slog.String("error", err.Error()))
	}
}
