//go:build !windows

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// OutputTail is how much pty output a Child keeps for crash reports.
const OutputTail = 10240

// ErrGroupMismatch is returned when a spawned process is not the leader of
// its own process group.
var ErrGroupMismatch = errors.New("process group id differs from pid")

// Command describes a process to launch detached from the manager.
type Command struct {
	Args []string
	Env  []string
	Dir  string
}

// Child is a process started by Spawn. Its stdio is a pseudo-terminal owned
// by the manager; the last OutputTail bytes written to it are kept.
type Child struct {
	PID  int
	PGID int

	cmd     *exec.Cmd
	master  *os.File
	out     tailBuffer
	done    chan struct{}
	drained chan struct{}
	exitErr error
}

// configureSysProcAttr starts the child in a new session, which also makes
// it the leader of a new process group.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

// Spawn starts c in a new session with its standard streams on a pty and
// verifies that its process group id equals its pid.
func Spawn(c Command) (*Child, error) {
	if len(c.Args) == 0 || c.Args[0] == "" {
		return nil, errors.New("empty command")
	}
	master, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("open pty: %w", err)
	}

	cmd := exec.Command(c.Args[0], c.Args[1:]...)
	cmd.Env = c.Env
	cmd.Dir = c.Dir
	cmd.Stdin = tty
	cmd.Stdout = tty
	cmd.Stderr = tty
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		_ = master.Close()
		_ = tty.Close()
		return nil, err
	}
	// the child holds its own copy of the slave
	_ = tty.Close()

	ch := &Child{
		PID:     cmd.Process.Pid,
		cmd:     cmd,
		master:  master,
		out:     tailBuffer{max: OutputTail},
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
	// read the group before anything can reap the child
	pgid, err := syscall.Getpgid(ch.PID)
	if err != nil || pgid != ch.PID {
		_ = KillGroup(ch.PID, syscall.SIGKILL)
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		_ = master.Close()
		if err != nil {
			return nil, fmt.Errorf("getpgid %d: %w", ch.PID, err)
		}
		return nil, fmt.Errorf("%w: pid %d pgid %d", ErrGroupMismatch, ch.PID, pgid)
	}
	ch.PGID = pgid

	go func() {
		defer close(ch.drained)
		_, _ = io.Copy(&ch.out, master)
	}()
	go func() {
		ch.exitErr = cmd.Wait()
		close(ch.done)
	}()
	return ch, nil
}

// WaitExit waits up to d for the child to exit.
func (c *Child) WaitExit(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.done:
		return true
	case <-t.C:
		return false
	}
}

// ExitCode returns the exit status once the child has been reaped; -1 when
// it was killed by a signal or is still running.
func (c *Child) ExitCode() int {
	select {
	case <-c.done:
	default:
		return -1
	}
	if c.exitErr == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(c.exitErr, &ee) {
		return ee.ExitCode()
	}
	return -1
}

// Output returns the captured tail of the pty output. After exit it waits
// briefly for the reader to drain what the child wrote.
func (c *Child) Output() []byte {
	select {
	case <-c.done:
		select {
		case <-c.drained:
		case <-time.After(200 * time.Millisecond):
		}
	default:
	}
	return c.out.Bytes()
}

// Release closes the manager's end of the pty. The child keeps running.
func (c *Child) Release() error {
	return c.master.Close()
}

type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}
