package rcon

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountPlayers(t *testing.T) {
	assert.Equal(t, 0, CountPlayers("No Players Connected\n"))
	assert.Equal(t, 2, CountPlayers("0. Alice, 0002abc\n1. Bob, 0002def\n"))
	assert.Equal(t, 0, CountPlayers(""))
}

func TestSend_Disabled(t *testing.T) {
	c := &Client{Port: -1}
	_, err := c.Send(context.Background(), "ListPlayers")
	require.ErrorIs(t, err, ErrDisabled)
	require.ErrorIs(t, c.SaveWorld(context.Background()), ErrDisabled)
}

func TestSend_FastFailRefused(t *testing.T) {
	// grab a free port and close it so nothing listens there
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	c := (&Client{Port: port}).WithFastFail()
	start := time.Now()
	_, err = c.Send(context.Background(), "DoExit")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, errors.Is(err, ErrTimeout), "refused is not a timeout: %v", err)
}

func TestSend_ContextTimeout(t *testing.T) {
	// accepts connections but never answers the handshake
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			defer func() { _ = conn.Close() }()
		}
	}()

	c := &Client{Port: l.Addr().(*net.TCPAddr).Port, Timeout: 5 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = c.Send(ctx, "ListPlayers")
	require.ErrorIs(t, err, ErrTimeout)
}

func TestWithFastFailCopies(t *testing.T) {
	c := &Client{Port: 1}
	f := c.WithFastFail()
	assert.True(t, f.FastFail)
	assert.False(t, c.FastFail)
	assert.Equal(t, "127.0.0.1:1", c.addr())
}
