package schedule

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/asamgr/internal/config"
)

func newStore(t *testing.T, alive func(int) bool) *Store {
	t.Helper()
	return &Store{Path: filepath.Join(t.TempDir(), "schedule.toml"), Alive: alive}
}

func always(v bool) func(int) bool { return func(int) bool { return v } }

func TestStore_MissingEmptyGarbage(t *testing.T) {
	s := newStore(t, always(true))

	a, err := s.Action()
	require.NoError(t, err)
	assert.Equal(t, None, a)

	require.NoError(t, os.WriteFile(s.Path, nil, 0o644))
	a, err = s.Action()
	require.NoError(t, err)
	assert.Equal(t, None, a)

	require.NoError(t, os.WriteFile(s.Path, []byte("not = [toml"), 0o644))
	a, err = s.Action()
	require.NoError(t, err)
	assert.Equal(t, None, a)

	require.NoError(t, os.WriteFile(s.Path, []byte("action = 99\npid = 1\n"), 0o644))
	a, err = s.Action()
	require.NoError(t, err)
	assert.Equal(t, None, a)
}

func TestStore_SetGetRoundTrip(t *testing.T) {
	s := newStore(t, always(true))
	when := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Set(Record{Action: Restarting, PID: 4242, ExpectedTime: when}))

	r, err := s.Get()
	require.NoError(t, err)
	assert.Equal(t, Restarting, r.Action)
	assert.Equal(t, 4242, r.PID)
	assert.True(t, when.Equal(r.ExpectedTime))

	b, err := os.ReadFile(s.Path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "action = 10")
}

func TestStore_StaleOwnerCleared(t *testing.T) {
	s := newStore(t, always(false))
	require.NoError(t, s.Set(Record{Action: Stopping, PID: 99999, ExpectedTime: time.Now()}))

	a, err := s.Action()
	require.NoError(t, err)
	assert.Equal(t, None, a)

	b, err := os.ReadFile(s.Path)
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestStore_Guard(t *testing.T) {
	s := newStore(t, always(true))
	require.NoError(t, s.Guard())

	require.NoError(t, s.Set(Record{Action: Updating, PID: 7, ExpectedTime: time.Now()}))
	err := s.Guard()
	var inProgress *ActionInProgressError
	require.ErrorAs(t, err, &inProgress)
	assert.Equal(t, Updating, inProgress.Record.Action)
	assert.Contains(t, err.Error(), "UPDATING")

	require.NoError(t, s.Clear())
	require.NoError(t, s.Guard())
}

func TestStore_RealProcessLiveness(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "schedule.toml"))
	require.NoError(t, s.Set(Record{Action: Restarting, PID: os.Getpid(), ExpectedTime: time.Now()}))
	a, err := s.Action()
	require.NoError(t, err)
	assert.Equal(t, Restarting, a)
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "NONE", None.String())
	assert.Equal(t, "RESTARTING", Restarting.String())
	assert.Equal(t, "STOPPING", Stopping.String())
	assert.Equal(t, "UPDATING", Updating.String())
	assert.Equal(t, "Action(5)", Action(5).String())
}

func TestParseWarnings(t *testing.T) {
	ws, err := ParseWarnings([]config.WarnEntry{
		{Message: "soon", Time: "1m"},
		{Message: "now", Time: "10"},
	})
	require.NoError(t, err)
	require.Len(t, ws, 2)
	assert.Equal(t, time.Minute, ws[0].Before)
	assert.Equal(t, 10*time.Second, ws[1].Before)

	_, err = ParseWarnings([]config.WarnEntry{{Message: "bad", Time: "soon"}})
	require.Error(t, err)
}

type recorder struct {
	mu     sync.Mutex
	events []string
	fail   map[string]bool
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, s)
}

func (r *recorder) Broadcast(_ context.Context, msg string) error {
	r.add("broadcast:" + msg)
	if r.fail[msg] {
		return errors.New("rcon down")
	}
	return nil
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.add("sleep:" + d.String())
	return nil
}

func TestWarner_OrderAndGaps(t *testing.T) {
	s := newStore(t, always(true))
	rec := &recorder{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var seen Record
	w := &Warner{
		Store:       s,
		Broadcaster: rec,
		Now:         func() time.Time { return now },
		PID:         321,
		Sleep: func(ctx context.Context, d time.Duration) error {
			if seen.Action == 0 {
				seen, _ = s.Load()
			}
			return rec.sleep(ctx, d)
		},
	}
	err := w.Run(context.Background(), Restarting, []Warning{
		{Message: "ten seconds", Before: 10 * time.Second},
		{Message: "one minute", Before: time.Minute},
		{Message: "thirty seconds", Before: 30 * time.Second},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"broadcast:one minute",
		"sleep:30s",
		"broadcast:thirty seconds",
		"sleep:20s",
		"broadcast:ten seconds",
		"sleep:10s",
	}, rec.events)

	assert.Equal(t, Restarting, seen.Action)
	assert.Equal(t, 321, seen.PID)
	assert.True(t, now.Add(time.Minute).Equal(seen.ExpectedTime))

	r, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, None, r.Action)
}

func TestWarner_BroadcastFailureContinues(t *testing.T) {
	s := newStore(t, always(true))
	rec := &recorder{fail: map[string]bool{"first": true}}
	w := &Warner{Store: s, Broadcaster: rec, Sleep: rec.sleep, PID: 1}

	err := w.Run(context.Background(), Stopping, []Warning{
		{Message: "first", Before: 2 * time.Second},
		{Message: "second", Before: time.Second},
	})
	require.NoError(t, err)
	assert.Contains(t, rec.events, "broadcast:second")
	assert.Equal(t, "sleep:1s", rec.events[len(rec.events)-1])
}

func TestWarner_EmptyList(t *testing.T) {
	s := newStore(t, always(true))
	w := &Warner{Store: s, Broadcaster: &recorder{}}
	err := w.Run(context.Background(), Updating, nil)
	require.ErrorIs(t, err, ErrNoWarnings)
	_, statErr := os.Stat(s.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWarner_CancelClearsRecord(t *testing.T) {
	s := newStore(t, always(true))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := &Warner{Store: s, Broadcaster: &recorder{}, PID: 1}

	err := w.Run(ctx, Restarting, []Warning{{Message: "m", Before: time.Hour}})
	require.ErrorIs(t, err, context.Canceled)
	r, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, None, r.Action)
}
