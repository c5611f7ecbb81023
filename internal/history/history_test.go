package history

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (m *memSink) Send(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(EventStop, 42, 7777, "forced", errors.New("rcon down"))
	assert.Equal(t, EventStop, e.Type)
	assert.Equal(t, 42, e.PID)
	assert.Equal(t, "rcon down", e.Error)
	assert.False(t, e.OccurredAt.IsZero())

	e = NewEvent(EventStart, 1, 7777, "", nil)
	assert.Empty(t, e.Error)
}

func TestRecorder(t *testing.T) {
	var nilRec *Recorder
	nilRec.Record(context.Background(), Event{})
	(&Recorder{}).Record(context.Background(), Event{})

	sink := &memSink{err: errors.New("unreachable")}
	r := &Recorder{Sink: sink}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Record(ctx, NewEvent(EventBackup, 0, 0, "backup_x.tar.gz", nil))
	require.Len(t, sink.events, 1)
	assert.Equal(t, EventBackup, sink.events[0].Type)
}
