package send

import (
	"context"

	"github.com/odpf/salt/log"

	"github.com/raystack/scale/config"
	"github.com/raystack/scale/core/command"
	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/core/messaging/diagnostic"
	"github.com/raystack/scale/server"
)

// sender knows every message type but holds no store, its messages are
// only encoded and sent.
type sender struct {
	logger   log.Logger
	backend  messaging.Backend
	registry *messaging.Registry
	manager  *messaging.Manager
}

func newSender(ctx context.Context, configFilePath string) (*sender, error) {
	conf, err := config.LoadConfig(configFilePath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(conf); err != nil {
		return nil, err
	}
	logger := server.NewLogger(conf.Log)

	registry := messaging.NewRegistry()
	if err := command.New(nil, logger).Register(registry); err != nil {
		return nil, err
	}
	if err := diagnostic.Register(registry, logger); err != nil {
		return nil, err
	}

	backend, err := server.NewBackend(ctx, conf.Messaging, logger)
	if err != nil {
		return nil, err
	}
	return &sender{
		logger:   logger,
		backend:  backend,
		registry: registry,
		manager:  messaging.NewManager(backend, registry, conf.Messaging.BatchSize, conf.Messaging.Workers, logger),
	}, nil
}

func (s *sender) send(ctx context.Context, messages []messaging.Message) error {
	if err := s.manager.SendMessages(ctx, messages); err != nil {
		return err
	}
	s.logger.Info("sent %d message(s) through %s", len(messages), s.backend.Name())
	return nil
}

func (s *sender) close() {
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing %s backend: %s", s.backend.Name(), err)
	}
}
