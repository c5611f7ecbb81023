// Package asamgr manages a single ARK: Survival Ascended dedicated server:
// lifecycle, updates, warning countdowns, backups and status.
package asamgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/asamgr/internal/backup"
	cfg "github.com/loykin/asamgr/internal/config"
	"github.com/loykin/asamgr/internal/history"
	"github.com/loykin/asamgr/internal/history/factory"
	"github.com/loykin/asamgr/internal/manager"
	"github.com/loykin/asamgr/internal/metrics"
	"github.com/loykin/asamgr/internal/schedule"
)

// Re-export core types for external consumers.

type Config = cfg.Config

type Status = manager.Status

type StartOptions = manager.StartOptions

type StopOptions = manager.StopOptions

type RestartOptions = manager.RestartOptions

type UpdateOptions = manager.UpdateOptions

type Option = manager.Option

type Artifact = backup.Artifact

type ScheduledAction = schedule.Record

type HistorySink = history.Sink

type (
	EarlyExitError        = manager.EarlyExitError
	PortMismatchError     = manager.PortMismatchError
	ActionInProgressError = manager.ActionInProgressError
)

var (
	ErrAlreadyRunning   = manager.ErrAlreadyRunning
	ErrNotInstalled     = manager.ErrNotInstalled
	ErrUnknownStartType = manager.ErrUnknownStartType
	ErrNotListening     = manager.ErrNotListening
	ErrInvalidConfig    = cfg.ErrInvalidConfig
)

var (
	WithGateway        = manager.WithGateway
	WithInstaller      = manager.WithInstaller
	WithListenerFinder = manager.WithListenerFinder
	WithPrompter       = manager.WithPrompter
	WithHistory        = manager.WithHistory
	WithEOS            = manager.WithEOS
)

// registry collects this process's metrics for the textfile export.
var registry = prometheus.NewRegistry()

// Manager is a thin facade over internal/manager with the configured
// history sink and metrics export attached.
type Manager struct {
	inner *manager.Manager
	cfg   *Config
	sink  HistorySink
}

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// Open loads the configuration at path and builds a Manager for it.
func Open(path string, opts ...Option) (*Manager, error) {
	c, err := cfg.Load(path)
	if err != nil {
		return nil, err
	}
	return New(c, opts...)
}

// New builds a Manager. When the configuration names a history DSN the
// sink is opened here and closed by Close.
func New(c *Config, opts ...Option) (*Manager, error) {
	if err := metrics.Register(registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	m := &Manager{cfg: c}
	if dsn := c.Manager.HistoryDSN; dsn != "" {
		sink, err := factory.NewSinkFromDSN(dsn)
		if err != nil {
			// history is optional; operations run without it
			slog.Warn("History sink unavailable", "error", err)
		} else {
			m.sink = sink
			opts = append([]Option{manager.WithHistory(sink)}, opts...)
		}
	}
	m.inner = manager.New(c, opts...)
	return m, nil
}

func (m *Manager) Config() *Config { return m.cfg }

// Registry returns the metrics registry the manager reports to.
func (m *Manager) Registry() *prometheus.Registry { return registry }

// Close writes the metrics textfile when configured and closes the history
// sink.
func (m *Manager) Close() error {
	var errs []error
	if path := m.cfg.Manager.MetricsTextfile; path != "" {
		if err := metrics.WriteTextfile(path, registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if c, ok := m.sink.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) Start(ctx context.Context, o StartOptions) error {
	return m.inner.Start(ctx, o)
}

func (m *Manager) Stop(ctx context.Context, o StopOptions) error {
	return m.inner.Stop(ctx, o)
}

func (m *Manager) Restart(ctx context.Context, o RestartOptions) error {
	return m.inner.Restart(ctx, o)
}

func (m *Manager) Update(ctx context.Context, o UpdateOptions) error {
	return m.inner.Update(ctx, o)
}

func (m *Manager) Status(ctx context.Context, full bool) (*Status, error) {
	return m.inner.Status(ctx, full)
}

func (m *Manager) Backup(ctx context.Context, level int) (Artifact, error) {
	return m.inner.Backup(ctx, level)
}

func (m *Manager) Restore(ctx context.Context, path string, latest bool) (string, error) {
	return m.inner.Restore(ctx, path, latest)
}

func (m *Manager) Command(ctx context.Context, command string) (string, error) {
	return m.inner.Command(ctx, command)
}

func (m *Manager) Running() (int, bool) {
	return m.inner.Running()
}

func (m *Manager) Guard() error {
	return m.inner.Guard()
}

func (m *Manager) ScheduledAction() (ScheduledAction, error) {
	return m.inner.ScheduledAction()
}
