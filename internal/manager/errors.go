package manager

import (
	"errors"
	"fmt"

	"github.com/loykin/asamgr/internal/detector"
	"github.com/loykin/asamgr/internal/schedule"
)

var (
	ErrAlreadyRunning   = errors.New("server is already running")
	ErrNotInstalled     = errors.New("server binary not found; run update first")
	ErrUnknownStartType = errors.New("unknown start type")
	ErrNotListening     = errors.New("server is not listening")
)

// EarlyExitError reports a server that died during the early-exit window.
type EarlyExitError struct {
	ExitCode int
	Output   []byte
}

func (e *EarlyExitError) Error() string {
	return fmt.Sprintf("server exited early with code %d", e.ExitCode)
}

// PortMismatchError reports a server listening on another port than the
// configured one.
type PortMismatchError = detector.PortMismatchError

// ActionInProgressError is returned when another invocation owns a
// scheduled action.
type ActionInProgressError = schedule.ActionInProgressError
