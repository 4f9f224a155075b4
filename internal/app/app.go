// Package app wires the pieces every command needs: logging, the session,
// the transcript publisher and the metrics endpoint.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"smartspeech-client/internal/config"
	"smartspeech-client/internal/events"
	"smartspeech-client/internal/observability"
	"smartspeech-client/internal/observability/logging"
	"smartspeech-client/internal/observability/metrics"
	"smartspeech-client/internal/schema"
	"smartspeech-client/internal/session"
)

const shutdownTimeout = 5 * time.Second

// Application holds process-wide state for a command.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	Session   *session.Session
	Publisher *events.Publisher
	Metrics   *metrics.Metrics

	server *observability.Server
}

// New constructs a new Application from the provided configuration and
// sets up the global logger.
func New(cfg *config.Configuration) *Application {
	a := &Application{
		Cfg:     cfg,
		Metrics: metrics.DefaultMetrics,
	}
	a.setupLogger()

	a.Logger.Debug().
		Str("method", "New").
		Str("provider", cfg.Recognition.Provider).
		Msg("application created")
	return a
}

func (a *Application) setupLogger() {
	logging.Init(logging.Config{
		Level:  a.Cfg.Observability.LogLevel,
		Format: a.Cfg.Observability.LogFormat,
	})
	a.Logger = logging.WithComponent("application")
}

// Start validates the configuration, opens the session and the publisher,
// and serves metrics when an address is configured.
func (a *Application) Start(opts ...session.Option) error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	if err := a.Cfg.Validate(); err != nil {
		return err
	}
	sessionCfg, err := a.Cfg.Service.SessionConfig()
	if err != nil {
		return err
	}
	validator, err := schema.New()
	if err != nil {
		return err
	}

	opts = append([]session.Option{session.WithMetrics(a.Metrics)}, opts...)
	a.Session, err = session.New(sessionCfg, opts...)
	if err != nil {
		return err
	}

	a.Publisher = events.New(&events.Config{
		Enabled:      a.Cfg.Kafka.Enabled,
		Brokers:      a.Cfg.Kafka.Brokers,
		TopicPartial: a.Cfg.Kafka.TopicPartial,
		TopicFinal:   a.Cfg.Kafka.TopicFinal,
		Principal:    a.Cfg.Kafka.Principal,
		Metrics:      a.Metrics,
		Validator:    validator,
	})

	if addr := a.Cfg.Observability.MetricsAddr; addr != "" {
		a.server = observability.NewServer(addr, nil)
		a.server.Start()
		a.server.SetReady(true)
	}

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("address", a.Cfg.Service.Address).
		Msg("client started")
	return nil
}

// Shutdown releases everything Start acquired. Safe to call after a failed
// Start and more than once.
func (a *Application) Shutdown() error {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	var errs []error
	if a.Session != nil {
		errs = append(errs, a.Session.Shutdown())
	}
	if a.Publisher != nil {
		errs = append(errs, a.Publisher.Close())
		a.Publisher = nil
	}
	if a.server != nil {
		a.server.SetReady(false)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = append(errs, a.server.Shutdown(ctx))
		cancel()
		a.server = nil
	}

	err := errors.Join(errs...)
	if err != nil {
		shutdownLogger.Warn().Err(err).Msg("client shut down with errors")
	} else {
		shutdownLogger.Info().Msg("client shut down")
	}
	return err
}
