package manager

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/loykin/asamgr/internal/detector"
	"github.com/loykin/asamgr/internal/eos"
	"github.com/loykin/asamgr/internal/process"
	"github.com/loykin/asamgr/internal/schedule"
)

// Status is a snapshot of the managed server.
type Status struct {
	Running bool
	PID     int
	Uptime  time.Duration
	// Port is the configured game port; ListenPort is what the server
	// actually bound, 0 when it does not listen.
	Port       int
	ListenPort int
	// Reachable is true when RCON answered the player query.
	Reachable bool
	Players   int
	Action    schedule.Record
	// Checks holds each detector's verdict for a running server.
	Checks []detector.Result

	// Session is filled by a full status when the server is listed on EOS.
	Session *eos.SessionInfo
	// EOSError explains why Session is missing in a full status.
	EOSError error
}

// Listening reports whether the server listens on its configured port.
func (s *Status) Listening() bool { return s.ListenPort != 0 && s.ListenPort == s.Port }

// Up is true when the server runs, listens and answers RCON.
func (s *Status) Up() bool { return s.Running && s.Listening() && s.Reachable }

// Status inspects the server. With full set it also queries its public
// listing on EOS.
func (m *Manager) Status(ctx context.Context, full bool) (*Status, error) {
	st := &Status{Port: m.cfg.Port()}
	if rec, err := m.sched.Get(); err == nil {
		st.Action = rec
	}
	pid, ok := m.Running()
	if !ok {
		return st, nil
	}
	st.Running, st.PID = true, pid
	if started := process.StartTime(pid); !started.IsZero() {
		st.Uptime = time.Since(started).Truncate(time.Second)
	}

	st.Checks = detector.Run(
		detector.PIDFileDetector{PIDFile: m.cfg.Ark.Advanced.PIDFile},
		detector.ListenerDetector{Finder: m.finder, PGID: pid, Port: st.Port},
	)
	for _, r := range st.Checks {
		slog.Debug("Detector", "method", r.Method, "alive", r.Alive, "error", r.Err)
	}
	listening, err := st.Checks[1].Alive, st.Checks[1].Err
	var mismatch *PortMismatchError
	switch {
	case errors.As(err, &mismatch):
		st.ListenPort = mismatch.Got
		return st, nil
	case err != nil:
		return st, err
	case !listening:
		return st, nil
	}
	st.ListenPort = st.Port

	n, err := m.fast.PlayerCount(ctx)
	if err != nil {
		slog.Debug("Player count failed", "error", err)
		return st, nil
	}
	st.Reachable, st.Players = true, n

	if full {
		st.Session, st.EOSError = m.fullStatus(ctx)
	}
	return st, nil
}

func (m *Manager) fullStatus(ctx context.Context) (*eos.SessionInfo, error) {
	creds, err := eos.LoadCredentials(m.cfg.Ark.Advanced.EOSFile)
	if err != nil {
		return nil, err
	}
	return m.eos.Session(ctx, creds, m.cfg.Port())
}
