// Package schedule records the disruptive action in progress so concurrent
// manager invocations can refuse to overlap with it.
//
// The record is advisory: a reader treats it as stale when its owner pid is
// gone. Two invocations can both observe None before either writes; no lock
// closes that window.
package schedule

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/pelletier/go-toml/v2"

	"github.com/loykin/asamgr/internal/process"
)

// Action is the kind of scheduled action. The values are persisted.
type Action int

const (
	None       Action = 1
	Restarting Action = 10
	Stopping   Action = 20
	Updating   Action = 30
)

func (a Action) String() string {
	switch a {
	case None:
		return "NONE"
	case Restarting:
		return "RESTARTING"
	case Stopping:
		return "STOPPING"
	case Updating:
		return "UPDATING"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Valid reports whether a is one of the persisted codes.
func (a Action) Valid() bool {
	switch a {
	case None, Restarting, Stopping, Updating:
		return true
	}
	return false
}

// Record is the persisted scheduled action.
type Record struct {
	Action       Action    `toml:"action"`
	PID          int       `toml:"pid"`
	ExpectedTime time.Time `toml:"expected_time"`
}

// ActionInProgressError is returned when another invocation owns a live
// scheduled action.
type ActionInProgressError struct {
	Record Record
}

func (e *ActionInProgressError) Error() string {
	return fmt.Sprintf("there is already an action in progress: %s (pid %d, until %s)",
		e.Record.Action, e.Record.PID, e.Record.ExpectedTime.Format(time.RFC3339))
}

// Store is the scheduled-action file.
type Store struct {
	Path string
	// Alive reports whether an owner pid still runs. Defaults to process.Exists.
	Alive func(pid int) bool
}

func NewStore(path string) *Store {
	return &Store{Path: path, Alive: process.Exists}
}

func (s *Store) alive(pid int) bool {
	if s.Alive != nil {
		return s.Alive(pid)
	}
	return process.Exists(pid)
}

// Load returns the raw record without the staleness check. A missing, empty
// or undecodable file is a None record.
func (s *Store) Load() (Record, error) {
	none := Record{Action: None}
	b, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return none, nil
		}
		return none, err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return none, nil
	}
	var r Record
	if err := toml.Unmarshal(b, &r); err != nil {
		slog.Debug("Ignoring unreadable schedule file", "path", s.Path, "error", err)
		return none, nil
	}
	if !r.Action.Valid() {
		return none, nil
	}
	return r, nil
}

// Get returns the live scheduled record. A record whose owner is gone is
// cleared and reported as None.
func (s *Store) Get() (Record, error) {
	r, err := s.Load()
	if err != nil {
		return r, err
	}
	if r.Action == None {
		return r, nil
	}
	if !s.alive(r.PID) {
		slog.Debug("Clearing stale scheduled action", "action", r.Action, "pid", r.PID)
		if err := s.Clear(); err != nil {
			return Record{Action: None}, err
		}
		return Record{Action: None}, nil
	}
	return r, nil
}

// Action returns the current scheduled action kind.
func (s *Store) Action() (Action, error) {
	r, err := s.Get()
	return r.Action, err
}

// Guard fails with *ActionInProgressError when a live action is recorded.
func (s *Store) Guard() error {
	r, err := s.Get()
	if err != nil {
		return err
	}
	if r.Action != None {
		return &ActionInProgressError{Record: r}
	}
	return nil
}

func (s *Store) Set(r Record) error {
	slog.Debug("Setting scheduled action", "action", r.Action, "code", int(r.Action), "pid", r.PID)
	b, err := toml.Marshal(r)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o750); err != nil {
		return err
	}
	return renameio.WriteFile(s.Path, b, 0o644)
}

// Clear empties the file.
func (s *Store) Clear() error {
	return process.Truncate(s.Path)
}
