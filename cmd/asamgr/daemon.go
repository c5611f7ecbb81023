package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	backgroundEnv = "ASAMGR_BACKGROUND"
	// readyFD is the child's end of the readiness pipe (first ExtraFiles entry).
	readyFD      = 3
	readyTimeout = 10 * time.Second
)

func inBackground() bool { return os.Getenv(backgroundEnv) == "1" }

// startBackground re-executes the binary with args in a new session and
// returns the child's pid once it reports ready.
func startBackground(args []string) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to get executable path: %w", err)
	}
	r, w, err := os.Pipe()
	if err != nil {
		return 0, err
	}
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		_ = r.Close()
		_ = w.Close()
		return 0, err
	}
	defer func() { _ = devNull.Close() }()

	// #nosec G204
	cmd := exec.Command(executable, args...)
	cmd.Env = append(os.Environ(), backgroundEnv+"=1")
	cmd.Stdin, cmd.Stdout, cmd.Stderr = devNull, devNull, devNull
	cmd.ExtraFiles = []*os.File{w}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	err = cmd.Start()
	_ = w.Close()
	if err != nil {
		_ = r.Close()
		return 0, fmt.Errorf("failed to start background process: %w", err)
	}
	pid, err := readReadyPID(r, readyTimeout)
	_ = cmd.Process.Release()
	return pid, err
}

// signalReady writes this process's pid to w and closes it.
func signalReady(w *os.File) error {
	if w == nil {
		return errors.New("no readiness pipe")
	}
	defer func() { _ = w.Close() }()
	_, err := fmt.Fprintf(w, "%d\n", os.Getpid())
	return err
}

// readReadyPID reads the pid line the child writes once it is set up. A
// child that exits first closes the pipe and yields an error.
func readReadyPID(r *os.File, timeout time.Duration) (int, error) {
	defer func() { _ = r.Close() }()
	_ = r.SetReadDeadline(time.Now().Add(timeout))
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return 0, fmt.Errorf("background process did not report ready: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("background process sent %q: %w", line, err)
	}
	return pid, nil
}
