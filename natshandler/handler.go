package natshandler

import (
	"encoding/json"
	"fmt"

	"replbox/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subjects are the NATS subjects the daemon listens and publishes on.
type Subjects struct {
	Exec    string
	Imports string
	Start   string
	Events  string
}

func NewSubjects(prefix string) Subjects {
	return Subjects{
		Exec:    prefix + ".exec",
		Imports: prefix + ".imports",
		Start:   prefix + ".start",
		Events:  prefix + ".events",
	}
}

// Service is the request facade the handlers call into.
type Service interface {
	Exec(code string) (string, error)
	ImportDependencies(manifest string) (string, error)
	Start() (string, error)
}

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Subscribe registers the request handlers on nc.
func (h *Handler) Subscribe(nc *nats.Conn, subjects Subjects) ([]*nats.Subscription, error) {
	routes := []struct {
		subject string
		handle  func([]byte) model.SubmitResponse
	}{
		{subjects.Exec, h.HandleExec},
		{subjects.Imports, h.HandleImports},
		{subjects.Start, h.HandleStart},
	}

	var subs []*nats.Subscription
	for _, r := range routes {
		handle := r.handle
		sub, err := nc.Subscribe(r.subject, func(msg *nats.Msg) {
			h.respond(msg, handle(msg.Data))
		})
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, fmt.Errorf("subscribe %s: %w", r.subject, err)
		}
		h.logger.Info("Subscribed", zap.String("subject", r.subject))
		subs = append(subs, sub)
	}
	return subs, nil
}

func (h *Handler) HandleExec(data []byte) model.SubmitResponse {
	var req model.ExecRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.logger.Warn("Failed to parse exec request", zap.Error(err))
		return rejected(fmt.Errorf("invalid exec request: %w", err))
	}
	return result(h.service.Exec(req.Code))
}

func (h *Handler) HandleImports(data []byte) model.SubmitResponse {
	var req model.ImportRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.logger.Warn("Failed to parse import request", zap.Error(err))
		return rejected(fmt.Errorf("invalid import request: %w", err))
	}
	return result(h.service.ImportDependencies(req.Manifest))
}

// HandleStart ignores the message body.
func (h *Handler) HandleStart([]byte) model.SubmitResponse {
	return result(h.service.Start())
}

func (h *Handler) respond(msg *nats.Msg, res model.SubmitResponse) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		h.logger.Error("Failed to send response",
			zap.String("subject", msg.Subject),
			zap.Error(err))
	}
}

func result(requestID string, err error) model.SubmitResponse {
	if err != nil {
		return rejected(err)
	}
	return model.SubmitResponse{Accepted: true, RequestID: requestID}
}

func rejected(err error) model.SubmitResponse {
	return model.SubmitResponse{Accepted: false, Error: err.Error()}
}
