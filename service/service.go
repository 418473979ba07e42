package service

import (
	"replbox/config"
	"replbox/executor"
	"replbox/internal"

	"github.com/nats-io/nuid"
	"go.uber.org/zap"
)

// Submitter queues work for the sandbox worker loop.
type Submitter interface {
	Submit(req executor.WorkRequest) error
}

// SandboxService validates inbound requests before handing them to the
// worker loop. It never waits for the work itself.
type SandboxService struct {
	submitter     Submitter
	maxCodeLength int
	screenCode    bool
	logger        *zap.Logger
}

func NewSandboxService(submitter Submitter, cfg config.Config, logger *zap.Logger) *SandboxService {
	return &SandboxService{
		submitter:     submitter,
		maxCodeLength: cfg.MaxCodeLength,
		screenCode:    cfg.SanitizeCode,
		logger:        logger,
	}
}

// Exec queues code for execution and returns the ID its events carry.
func (s *SandboxService) Exec(code string) (string, error) {
	if err := internal.SanitizeCode(code, s.maxCodeLength, s.screenCode); err != nil {
		s.logger.Warn("Rejected exec request", zap.Int("length", len(code)), zap.Error(err))
		return "", err
	}
	return s.submit(executor.ExecRequest(code))
}

func (s *SandboxService) ImportDependencies(manifest string) (string, error) {
	if err := internal.CheckLength(manifest, s.maxCodeLength); err != nil {
		s.logger.Warn("Rejected import request", zap.Int("length", len(manifest)), zap.Error(err))
		return "", err
	}
	return s.submit(executor.ImportRequest(manifest))
}

// Start asks the worker loop to provision the sandbox again.
func (s *SandboxService) Start() (string, error) {
	return s.submit(executor.StartRequest())
}

func (s *SandboxService) submit(req executor.WorkRequest) (string, error) {
	id := nuid.Next()
	req = req.WithID(id)
	if err := s.submitter.Submit(req); err != nil {
		s.logger.Error("Failed to queue request",
			zap.String("request", req.Kind().String()),
			zap.Error(err))
		return "", err
	}
	s.logger.Debug("Request queued",
		zap.String("request", req.Kind().String()),
		zap.String("id", id))
	return id, nil
}
