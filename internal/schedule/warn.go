package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/loykin/asamgr/internal/config"
	"github.com/loykin/asamgr/internal/metrics"
)

var ErrNoWarnings = errors.New("no warnings configured")

// Warning is one broadcast, sent Before ahead of the action.
type Warning struct {
	Message string
	Before  time.Duration
}

// ParseWarnings converts configured entries.
func ParseWarnings(entries []config.WarnEntry) ([]Warning, error) {
	out := make([]Warning, 0, len(entries))
	for _, e := range entries {
		d, err := config.ParseHumanTime(e.Time)
		if err != nil {
			return nil, fmt.Errorf("warning %q: %w", e.Message, err)
		}
		out = append(out, Warning{Message: e.Message, Before: d})
	}
	return out, nil
}

// Broadcaster sends a message to every connected player.
type Broadcaster interface {
	Broadcast(ctx context.Context, message string) error
}

// Warner runs the warning countdown and owns the scheduled record while it
// runs.
type Warner struct {
	Store       *Store
	Broadcaster Broadcaster
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
	PID   int
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

// Run records {action, pid, now+lead}, broadcasts each warning when its time
// comes, waits out the remainder and clears the record. The record is cleared
// on every return path.
func (w *Warner) Run(ctx context.Context, action Action, warnings []Warning) (err error) {
	if len(warnings) == 0 {
		return ErrNoWarnings
	}
	sleep := w.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	pid := w.PID
	if pid == 0 {
		pid = os.Getpid()
	}

	ws := append([]Warning(nil), warnings...)
	sort.SliceStable(ws, func(i, j int) bool { return ws[i].Before > ws[j].Before })
	left := ws[0].Before

	if err := w.Store.Set(Record{Action: action, PID: pid, ExpectedTime: now().Add(left)}); err != nil {
		return fmt.Errorf("set scheduled action: %w", err)
	}
	defer func() {
		slog.Debug("Clearing scheduled config")
		if cerr := w.Store.Clear(); cerr != nil && err == nil {
			err = fmt.Errorf("clear scheduled action: %w", cerr)
		}
	}()

	for _, warning := range ws {
		if gap := left - warning.Before; gap > 0 {
			slog.Info("Sleeping", "for", gap.String())
			if err := sleep(ctx, gap); err != nil {
				return err
			}
			left -= gap
		}
		berr := w.Broadcaster.Broadcast(ctx, warning.Message)
		metrics.IncWarningBroadcast(action.String(), berr)
		if berr != nil {
			slog.Error("Failed to broadcast warning", "message", warning.Message, "error", berr)
			continue
		}
		slog.Info("Broadcast warning", "message", warning.Message)
	}

	slog.Info("Sleeping", "for", left.String())
	return sleep(ctx, left)
}
