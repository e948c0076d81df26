package server

import (
	"context"
	"fmt"

	"github.com/odpf/salt/log"

	"github.com/raystack/scale/config"
	"github.com/raystack/scale/core/command"
	"github.com/raystack/scale/core/messaging"
	"github.com/raystack/scale/core/messaging/diagnostic"
	"github.com/raystack/scale/internal/store/postgres"
	"github.com/raystack/scale/internal/telemetry"
)

type setupFn func() error

// ScaleServer owns everything the message handler needs: the store, the
// message backend and the manager that connects them.
type ScaleServer struct {
	conf   *config.Config
	logger log.Logger

	store    *postgres.Store
	backend  messaging.Backend
	registry *messaging.Registry
	manager  *messaging.Manager
	commands *command.Commands

	cleanupFn []func()
}

func New(conf *config.Config) (*ScaleServer, error) {
	return NewWithLogger(conf, NewLogger(conf.Log))
}

func NewWithLogger(conf *config.Config, logger log.Logger) (*ScaleServer, error) {
	if err := config.Validate(conf); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	server := &ScaleServer{
		conf:     conf,
		logger:   logger,
		registry: messaging.NewRegistry(),
	}

	fns := []setupFn{
		server.setupTelemetry,
		server.setupDB,
		server.setupBackend,
		server.setupRegistry,
	}

	for _, fn := range fns {
		if err := fn(); err != nil {
			server.Shutdown()
			return nil, err
		}
	}

	server.manager = messaging.NewManager(server.backend, server.registry,
		conf.Messaging.BatchSize, conf.Messaging.Workers, logger)
	server.logger.Info("starting %s %s with %s backend", config.AppName, config.BuildVersion, server.backend.Name())
	return server, nil
}

func (s *ScaleServer) setupTelemetry() error {
	teleShutdown, err := telemetry.Init(s.logger, s.conf.Telemetry)
	if err != nil {
		return err
	}

	s.cleanupFn = append(s.cleanupFn, teleShutdown)
	return nil
}

func (s *ScaleServer) setupDB() error {
	if s.conf.DB.DSN == "" {
		s.logger.Warn("no database configured, using an in-memory store")
		store, err := postgres.NewMemoryStore(s.logger)
		if err != nil {
			return err
		}
		s.store = store
		return nil
	}

	if err := postgres.Migrate(s.conf.DB.DSN); err != nil {
		return fmt.Errorf("error executing migration up: %w", err)
	}
	db, err := postgres.Connect(s.conf.DB.DSN, s.conf.DB.MaxIdleConnection, s.conf.DB.MaxOpenConnection)
	if err != nil {
		return fmt.Errorf("postgres.Connect: %w", err)
	}
	s.store = postgres.NewStore(db, s.logger)
	return nil
}

func (s *ScaleServer) setupBackend() error {
	backend, err := NewBackend(context.Background(), s.conf.Messaging, s.logger)
	if err != nil {
		return fmt.Errorf("unable to open %s backend: %w", s.conf.Messaging.Backend, err)
	}
	s.backend = backend
	return nil
}

func (s *ScaleServer) setupRegistry() error {
	s.commands = command.New(s.store, s.logger)
	if err := s.commands.Register(s.registry); err != nil {
		return err
	}
	return diagnostic.Register(s.registry, s.logger)
}

// Commands builds the domain messages bound to this server's store.
func (s *ScaleServer) Commands() *command.Commands {
	return s.commands
}

func (s *ScaleServer) Manager() *messaging.Manager {
	return s.manager
}

// Run processes messages until ctx is done.
func (s *ScaleServer) Run(ctx context.Context) error {
	s.logger.Info("handling messages with %d worker(s), batch size %d",
		s.conf.Messaging.Workers, s.conf.Messaging.BatchSize)
	return s.manager.Run(ctx)
}

func (s *ScaleServer) Shutdown() {
	s.logger.Warn("shutting down %s", config.AppName)

	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			s.logger.Error("error closing %s backend: %s", s.backend.Name(), err)
		}
	}

	for _, fn := range s.cleanupFn {
		fn()
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("error closing store: %s", err)
		}
	}

	s.logger.Info("shutdown complete")
}
