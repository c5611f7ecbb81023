package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/loykin/asamgr/internal/config"
	"github.com/loykin/asamgr/internal/detector"
	"github.com/loykin/asamgr/internal/gameini"
	"github.com/loykin/asamgr/internal/history"
	"github.com/loykin/asamgr/internal/metrics"
	"github.com/loykin/asamgr/internal/process"
	"github.com/loykin/asamgr/internal/schedule"
)

type StartOptions struct {
	SkipAutoUpdate bool
	// Clean kills any recorded server and truncates the log, PID and
	// schedule files first.
	Clean bool
}

type StopOptions struct {
	SaveWorld bool
	Warn      bool
}

type RestartOptions struct {
	SaveWorld      bool
	SkipAutoUpdate bool
	Warn           bool
}

type UpdateOptions struct {
	SkipAutoStart bool
	Force         bool
	SaveWorld     bool
	Warn          bool
}

// Start launches the server and waits until it listens on its game port.
func (m *Manager) Start(ctx context.Context, o StartOptions) (err error) {
	defer func() { metrics.IncOperation("start", err) }()

	if o.Clean {
		if err := m.cleanSlate(); err != nil {
			return err
		}
	}
	if pid, ok := m.Running(); ok {
		slog.Warn("Server is already running", "pid", pid)
		return ErrAlreadyRunning
	}
	if !o.SkipAutoUpdate {
		if err := m.Update(ctx, UpdateOptions{SkipAutoStart: true}); err != nil {
			return err
		}
	}
	if err := gameini.BuildAll(m.cfg); err != nil {
		return fmt.Errorf("build ini files: %w", err)
	}

	if st := m.cfg.Ark.Exec.StartType; st != config.StartTypeProton {
		return fmt.Errorf("%w: %q", ErrUnknownStartType, st)
	}
	binary := m.cfg.ServerBinary()
	if _, err := os.Stat(binary); err != nil {
		slog.Error("Server binary not found", "path", binary)
		return fmt.Errorf("%w: %s", ErrNotInstalled, binary)
	}
	env, err := m.cfg.LaunchEnv()
	if err != nil {
		return fmt.Errorf("load environment: %w", err)
	}
	args := m.cfg.LaunchArgs()
	slog.Debug("Starting server", "args", args)

	began := time.Now()
	child, err := m.spawn(process.Command{Args: args, Env: env, Dir: m.cfg.Ark.InstallFolder})
	if err != nil {
		return fmt.Errorf("spawn server: %w", err)
	}
	defer func() { _ = child.Release() }()
	slog.Info("Server started", "pid", child.PID)

	if child.WaitExit(m.cfg.EarlyExitWait()) {
		ee := &EarlyExitError{ExitCode: child.ExitCode(), Output: child.Output()}
		slog.Error("Server exited early", "code", ee.ExitCode)
		m.record(ctx, history.EventStart, child.PID, "early exit", ee)
		return ee
	}

	port := m.cfg.Port()
	slog.Info("Waiting for server to listen", "port", port)
	for attempt := 0; attempt < m.cfg.ListenAttempts(); attempt++ {
		ok, err := detector.ListenerDetector{Finder: m.finder, PGID: child.PGID, Port: port}.Alive()
		var mismatch *PortMismatchError
		switch {
		case errors.As(err, &mismatch):
			slog.Error("Server listening on the wrong port", "port", mismatch.Got, "expected", mismatch.Want)
			m.record(ctx, history.EventStart, child.PID, "port mismatch", err)
			return err
		case err != nil:
			slog.Debug("Listener lookup failed", "error", err)
		case ok:
			if err := m.pid.Write(child.PID); err != nil {
				return fmt.Errorf("store pid: %w", err)
			}
			metrics.ObserveStartDuration(time.Since(began).Seconds())
			metrics.SetServerUp(true)
			m.record(ctx, history.EventStart, child.PID, "", nil)
			slog.Info("Server is up", "pid", child.PID, "port", port)
			return nil
		}
		if err := sleepCtx(ctx, m.cfg.ListenInterval()); err != nil {
			_ = process.KillGroup(child.PGID, syscall.SIGKILL)
			return err
		}
	}

	slog.Error("Server is not listening, killing it", "pid", child.PID)
	_ = process.KillGroup(child.PGID, syscall.SIGKILL)
	m.record(ctx, history.EventStart, child.PID, "not listening", ErrNotListening)
	return ErrNotListening
}

func (m *Manager) cleanSlate() error {
	if pid, ok := m.Running(); ok {
		slog.Info("Killing running server", "pid", pid)
		if err := process.KillGroup(pid, syscall.SIGKILL); err != nil {
			return err
		}
	}
	logFile := m.cfg.Ark.Advanced.LogFile
	if err := os.MkdirAll(filepath.Dir(logFile), 0o750); err != nil {
		return err
	}
	for _, p := range []string{logFile, m.cfg.Ark.Advanced.PIDFile, m.cfg.Ark.Advanced.ScheduleFile} {
		if err := process.Truncate(p); err != nil {
			return fmt.Errorf("truncate %s: %w", p, err)
		}
	}
	return nil
}

// Stop shuts the server down, gracefully when RCON answers and by killing its
// process group otherwise. The PID file is always cleared.
func (m *Manager) Stop(ctx context.Context, o StopOptions) (err error) {
	defer func() { metrics.IncOperation("stop", err) }()

	pid, ok := m.Running()
	if !ok {
		slog.Warn("Server is not running")
		return nil
	}
	if o.Warn {
		if err := m.sched.Guard(); err != nil {
			return err
		}
		if err := m.warn(ctx, schedule.Stopping, "stop"); err != nil {
			return err
		}
	}
	if o.SaveWorld {
		if err := m.gateway.SaveWorld(ctx); err != nil {
			slog.Warn("Failed to save world", "error", err)
		} else {
			slog.Info("World saved")
		}
	}

	mode := "graceful"
	var cause error
	if err := m.fast.DoExit(ctx); err != nil {
		cause = err
	} else if !process.WaitForExit(ctx, pid, m.cfg.DoExitTimeout(), m.exitPoll) {
		cause = fmt.Errorf("server did not exit within %s", m.cfg.DoExitTimeout())
	}
	if cause != nil {
		mode = "forced"
		slog.Warn("Forcing server shutdown", "pid", pid, "reason", cause)
		if err := process.KillGroup(pid, syscall.SIGKILL); err != nil {
			slog.Error("Failed to kill server", "pid", pid, "error", err)
		}
	}

	metrics.IncStop(mode)
	metrics.SetServerUp(false)
	m.record(ctx, history.EventStop, pid, mode, cause)
	if err := m.pid.Clear(); err != nil {
		return fmt.Errorf("clear pid: %w", err)
	}
	slog.Info("Server stopped", "pid", pid, "mode", mode)
	return nil
}

// Restart stops and starts a running server. It refuses while another
// invocation owns a scheduled action.
func (m *Manager) Restart(ctx context.Context, o RestartOptions) (err error) {
	defer func() { metrics.IncOperation("restart", err) }()

	pid, ok := m.Running()
	if !ok {
		slog.Warn("Server is not running")
		return nil
	}
	if err := m.sched.Guard(); err != nil {
		return err
	}
	if o.Warn {
		if err := m.warn(ctx, schedule.Restarting, "restart"); err != nil {
			return err
		}
	}
	if err := m.Stop(ctx, StopOptions{SaveWorld: o.SaveWorld}); err != nil {
		return err
	}
	err = m.Start(ctx, StartOptions{SkipAutoUpdate: o.SkipAutoUpdate})
	m.record(ctx, history.EventRestart, pid, "", err)
	return err
}

// Update installs or updates the server files, stopping the server first
// when it runs.
func (m *Manager) Update(ctx context.Context, o UpdateOptions) (err error) {
	defer func() { metrics.IncOperation("update", err) }()

	_, running := m.Running()
	if running && !o.Force && !o.Warn {
		ok, err := m.prompter.Confirm("Would you like to stop the server now?", false)
		if err != nil {
			return err
		}
		if !ok {
			slog.Info("Update cancelled")
			return nil
		}
	}
	if running && o.Warn {
		if err := m.sched.Guard(); err != nil {
			return err
		}
		if err := m.warn(ctx, schedule.Updating, "update"); err != nil {
			return err
		}
	}
	if running {
		if err := m.Stop(ctx, StopOptions{SaveWorld: o.SaveWorld}); err != nil {
			return err
		}
	}

	slog.Info("Updating server", "appid", m.cfg.Ark.AppID)
	err = m.installer.InstallOrUpdate(ctx, m.cfg.SteamCMD.InstallFolder, m.cfg.Ark.InstallFolder, m.cfg.Ark.AppID)
	m.record(ctx, history.EventUpdate, 0, m.cfg.Ark.AppID, err)
	if err != nil {
		return fmt.Errorf("update server: %w", err)
	}
	slog.Info("Server updated")

	if !o.SkipAutoStart {
		return m.Start(ctx, StartOptions{SkipAutoUpdate: true})
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
