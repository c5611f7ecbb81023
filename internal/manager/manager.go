// Package manager drives the lifecycle of one dedicated server: start, stop,
// restart, update, backups and status.
package manager

import (
	"context"
	"time"

	"github.com/loykin/asamgr/internal/backup"
	"github.com/loykin/asamgr/internal/config"
	"github.com/loykin/asamgr/internal/eos"
	"github.com/loykin/asamgr/internal/history"
	"github.com/loykin/asamgr/internal/process"
	"github.com/loykin/asamgr/internal/prompt"
	"github.com/loykin/asamgr/internal/rcon"
	"github.com/loykin/asamgr/internal/schedule"
	"github.com/loykin/asamgr/internal/steamcmd"
)

// Manager operates the server described by one configuration. A Manager is
// meant for a single CLI invocation; concurrent invocations coordinate
// through the PID and schedule files only.
type Manager struct {
	cfg *config.Config

	pid       process.PIDFile
	sched     *schedule.Store
	gateway   rcon.Gateway
	fast      rcon.Gateway
	installer steamcmd.Installer
	finder    process.ListenerFinder
	prompter  prompt.Prompter
	eos       *eos.Client
	history   *history.Recorder

	spawn    func(process.Command) (*process.Child, error)
	sleep    func(ctx context.Context, d time.Duration) error
	exitPoll time.Duration
}

// Option customises a Manager.
type Option func(*Manager)

// WithGateway replaces the RCON client. g is used for the fast pre-checked
// calls as well.
func WithGateway(g rcon.Gateway) Option {
	return func(m *Manager) { m.gateway, m.fast = g, g }
}

func WithInstaller(i steamcmd.Installer) Option {
	return func(m *Manager) { m.installer = i }
}

func WithListenerFinder(f process.ListenerFinder) Option {
	return func(m *Manager) { m.finder = f }
}

func WithPrompter(p prompt.Prompter) Option {
	return func(m *Manager) { m.prompter = p }
}

func WithEOS(c *eos.Client) Option {
	return func(m *Manager) { m.eos = c }
}

// WithHistory sends lifecycle events to s.
func WithHistory(s history.Sink) Option {
	return func(m *Manager) { m.history = &history.Recorder{Sink: s} }
}

// WithSleep replaces the countdown timer of warning sequences.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Manager) { m.sleep = fn }
}

// WithExitPoll sets how often a stopping server is checked.
func WithExitPoll(d time.Duration) Option {
	return func(m *Manager) { m.exitPoll = d }
}

func New(cfg *config.Config, opts ...Option) *Manager {
	client := &rcon.Client{
		Address:  cfg.Ark.Advanced.RCONAddress,
		Port:     cfg.RCONPort(),
		Password: cfg.AdminPassword(),
	}
	m := &Manager{
		cfg:       cfg,
		pid:       process.PIDFile{Path: cfg.Ark.Advanced.PIDFile},
		sched:     schedule.NewStore(cfg.Ark.Advanced.ScheduleFile),
		gateway:   client,
		fast:      client.WithFastFail(),
		installer: steamcmd.SteamCMD{Validate: cfg.SteamCMD.Validate},
		finder:    process.SocketFinder{ThreadName: cfg.Ark.Advanced.ThreadName},
		prompter:  prompt.Survey{},
		eos:       eos.NewClient(),
		history:   &history.Recorder{},
		spawn:     process.Spawn,
		exitPoll:  500 * time.Millisecond,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Config returns the configuration the manager runs with.
func (m *Manager) Config() *config.Config { return m.cfg }

// Gateway returns the RCON gateway to the managed server.
func (m *Manager) Gateway() rcon.Gateway { return m.gateway }

// Running returns the recorded server pid when that process is alive.
func (m *Manager) Running() (int, bool) { return m.pid.Running() }

// ScheduledAction returns the live scheduled action, None when idle.
func (m *Manager) ScheduledAction() (schedule.Record, error) { return m.sched.Get() }

// Guard fails with *ActionInProgressError while another invocation runs a
// warning countdown.
func (m *Manager) Guard() error { return m.sched.Guard() }

// Command sends a raw RCON command.
func (m *Manager) Command(ctx context.Context, command string) (string, error) {
	return m.gateway.Send(ctx, command)
}

func (m *Manager) warn(ctx context.Context, action schedule.Action, kind string) error {
	warnings, err := schedule.ParseWarnings(m.cfg.Warnings(kind))
	if err != nil {
		return err
	}
	w := &schedule.Warner{Store: m.sched, Broadcaster: m.gateway, Sleep: m.sleep}
	return w.Run(ctx, action, warnings)
}

func (m *Manager) record(ctx context.Context, t history.EventType, pid int, detail string, err error) {
	m.history.Record(ctx, history.NewEvent(t, pid, m.cfg.Port(), detail, err))
}

func (m *Manager) backupEngine() *backup.Engine {
	e := backup.NewEngine(m.cfg)
	e.Running = func() bool {
		_, ok := m.Running()
		return ok
	}
	e.Saver = m.gateway
	e.Chooser = m.prompter
	return e
}
