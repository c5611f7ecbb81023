package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/loykin/asamgr"
	"github.com/loykin/asamgr/internal/config"
	"github.com/loykin/asamgr/internal/eos"
	"github.com/loykin/asamgr/internal/logger"
	"github.com/loykin/asamgr/internal/prompt"
	"github.com/loykin/asamgr/internal/rcon"
	"github.com/loykin/asamgr/internal/schedule"
)

type command struct {
	global *GlobalFlags
	mgr    *asamgr.Manager
	logs   io.Closer
	out    io.Writer
}

// open loads the configuration, installs the logger and builds the manager.
// The background child reports readiness once its logger is in place.
func (c *command) open() error {
	cfg, err := asamgr.LoadConfig(c.global.ConfigPath)
	if err != nil {
		return err
	}
	lc := cfg.Manager.Log
	var console io.Writer = os.Stderr
	if inBackground() {
		console = nil
	}
	l, closer, err := logger.New(logger.Config{
		Dir:        lc.Dir,
		File:       lc.File,
		MaxSizeMB:  lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAgeDays: lc.MaxAgeDays,
		Compress:   lc.Compress,
		Verbose:    c.global.Verbose,
		Console:    console,
	})
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	slog.SetDefault(l)
	c.logs = closer

	if inBackground() {
		if err := signalReady(os.NewFile(readyFD, "ready")); err != nil {
			slog.Warn("Failed to report readiness", "error", err)
		}
	}

	c.mgr, err = asamgr.New(cfg)
	return err
}

func (c *command) close() {
	if c.mgr != nil {
		if err := c.mgr.Close(); err != nil {
			slog.Warn("Failed to close manager", "error", err)
		}
	}
	if c.logs != nil {
		_ = c.logs.Close()
	}
}

func (c *command) Start(ctx context.Context, f StartFlags) error {
	err := c.mgr.Start(ctx, asamgr.StartOptions{SkipAutoUpdate: f.NoAutoUpdate, Clean: f.Clean})
	var early *asamgr.EarlyExitError
	if errors.As(err, &early) && len(early.Output) > 0 {
		_, _ = fmt.Fprintf(os.Stderr, "Server output:\n%s\n", early.Output)
	}
	if err != nil {
		return err
	}
	if pid, ok := c.mgr.Running(); ok {
		_, _ = fmt.Fprintf(c.out, "Server started as PID %d\n", pid)
	}
	return nil
}

func (c *command) Stop(ctx context.Context, f StopFlags) error {
	if detached, err := c.detach("stop", f.Warn, f.Foreground); detached || err != nil {
		return err
	}
	done := spin(c.out, "Stopping server")
	defer done()
	return c.mgr.Stop(ctx, asamgr.StopOptions{SaveWorld: f.SaveWorld, Warn: f.Warn})
}

func (c *command) Restart(ctx context.Context, f RestartFlags) error {
	if detached, err := c.detach("restart", f.Warn, f.Foreground); detached || err != nil {
		return err
	}
	return c.mgr.Restart(ctx, asamgr.RestartOptions{
		SkipAutoUpdate: f.NoAutoUpdate,
		SaveWorld:      f.SaveWorld,
		Warn:           f.Warn,
	})
}

func (c *command) Update(ctx context.Context, f UpdateFlags) error {
	if detached, err := c.detach("update", f.Warn, f.Foreground); detached || err != nil {
		return err
	}
	err := c.mgr.Update(ctx, asamgr.UpdateOptions{
		SkipAutoStart: f.NoAutoStart,
		Force:         f.Force,
		SaveWorld:     f.SaveWorld,
		Warn:          f.Warn,
	})
	if errors.Is(err, prompt.ErrInterrupted) {
		return nil
	}
	return err
}

func (c *command) Backup(ctx context.Context, level int) error {
	done := spin(c.out, "Creating backup")
	a, err := c.mgr.Backup(ctx, level)
	done()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "Backup written to %s (%s)\n", a.Path, config.HumanSize(a.Size))
	return nil
}

func (c *command) Restore(ctx context.Context, f RestoreFlags) error {
	restored, err := c.mgr.Restore(ctx, f.Path, f.Latest)
	if errors.Is(err, prompt.ErrInterrupted) {
		return nil
	}
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "Restored %s\n", restored)
	return nil
}

func (c *command) Status(ctx context.Context, f StatusFlags) error {
	st, err := c.mgr.Status(ctx, f.Full)
	if err != nil {
		return err
	}
	renderStatus(c.out, st, f.Full)
	return nil
}

// RCON sends args joined by spaces and prints the reply.
func (c *command) RCON(ctx context.Context, f RCONFlags, args []string) error {
	cfg := c.mgr.Config()
	client := &rcon.Client{
		Address:  cfg.Ark.Advanced.RCONAddress,
		Port:     cfg.RCONPort(),
		Password: cfg.AdminPassword(),
	}
	if f.IP != "" {
		client.Address = f.IP
	}
	if f.Port != 0 {
		client.Port = f.Port
	}
	reply, err := client.Send(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.out, strings.TrimRight(reply, "\n"))
	return nil
}

func (c *command) EOSCredentials(f EOSCredentialsFlags) error {
	path := c.mgr.Config().Ark.Advanced.EOSFile
	if err := eos.SaveCredentials(path, eos.NewCredentials(f.ClientID, f.ClientSecret, f.DeploymentID)); err != nil {
		return fmt.Errorf("write EOS credentials: %w", err)
	}
	_, _ = fmt.Fprintf(c.out, "EOS credentials written to %s\n", path)
	return nil
}

// detach moves a warned operation into a background child and reports
// whether it did. The guard runs here first so a refused operation fails in
// the foreground, and so does a missing or malformed [ark.warn.<kind>] list.
func (c *command) detach(kind string, warn, foreground bool) (bool, error) {
	if !warn || foreground || inBackground() {
		return false, nil
	}
	if _, ok := c.mgr.Running(); !ok {
		return false, nil
	}
	warnings, err := schedule.ParseWarnings(c.mgr.Config().Warnings(kind))
	if err != nil {
		return false, fmt.Errorf("failed to read %s warnings: %w", kind, err)
	}
	if len(warnings) == 0 {
		return false, fmt.Errorf("failed to read %s warnings: %w", kind, schedule.ErrNoWarnings)
	}
	if err := c.mgr.Guard(); err != nil {
		return false, err
	}
	pid, err := startBackground(os.Args[1:])
	if err != nil {
		return false, err
	}
	_, _ = fmt.Fprintf(c.out, "Background process started as PID %d\n", pid)
	return true, nil
}
