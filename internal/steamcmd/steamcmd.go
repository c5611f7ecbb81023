// Package steamcmd installs and updates the server through steamcmd.
package steamcmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

var ErrSteamcmdMissing = errors.New("steamcmd.sh not found or not executable")

// ExitError reports a failed steamcmd run.
type ExitError struct {
	AppID string
	Code  int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("failed to install app %s: steamcmd exited with %d", e.AppID, e.Code)
}

// Installer installs or updates an application into a directory.
type Installer interface {
	InstallOrUpdate(ctx context.Context, steamcmdFolder, targetDir, appID string) error
}

// SteamCMD runs steamcmd.sh under a pseudo-terminal; steamcmd buffers its
// progress output when attached to a pipe.
type SteamCMD struct {
	Validate bool
}

// Args returns the steamcmd argv for an anonymous app_update.
func Args(steamcmdFolder, targetDir, appID string, validate bool) []string {
	args := []string{
		filepath.Join(steamcmdFolder, "steamcmd.sh"),
		"+force_install_dir", targetDir,
		"+login", "anonymous",
		"+app_update", appID,
	}
	if validate {
		args = append(args, "validate")
	}
	return append(args, "+quit")
}

func (s SteamCMD) InstallOrUpdate(ctx context.Context, steamcmdFolder, targetDir, appID string) error {
	script := filepath.Join(steamcmdFolder, "steamcmd.sh")
	if err := unix.Access(script, unix.X_OK); err != nil {
		return fmt.Errorf("%w: %s", ErrSteamcmdMissing, script)
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", targetDir, err)
	}
	if err := unix.Access(targetDir, unix.W_OK); err != nil {
		return fmt.Errorf("could not write into %s: %w", targetDir, err)
	}

	args := Args(steamcmdFolder, targetDir, appID, s.Validate)
	slog.Info("Running steamcmd", "cmd", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	f, err := pty.Start(cmd)
	if err != nil {
		return fmt.Errorf("start steamcmd: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line != "" {
			slog.Info(">>> " + line)
		}
	}

	if err := cmd.Wait(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return &ExitError{AppID: appID, Code: ee.ExitCode()}
		}
		return err
	}
	slog.Info("App successfully installed", "appid", appID)
	return nil
}
