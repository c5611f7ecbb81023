// Package rcon talks to the running server over Source RCON.
package rcon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gorcon/rcon"
)

const (
	DefaultTimeout  = 3 * time.Second
	PrecheckTimeout = 500 * time.Millisecond
)

var (
	// ErrDisabled is returned when RCON is not enabled in the server config.
	ErrDisabled = errors.New("RCON is disabled")
	// ErrTimeout wraps network timeouts; callers fall back instead of failing.
	ErrTimeout = errors.New("RCON timeout")
)

// Gateway is the administrative channel to the live server.
type Gateway interface {
	Send(ctx context.Context, command string) (string, error)
	SaveWorld(ctx context.Context) error
	ListPlayers(ctx context.Context) (string, error)
	PlayerCount(ctx context.Context) (int, error)
	DoExit(ctx context.Context) error
	Broadcast(ctx context.Context, message string) error
}

// Client is a Gateway that opens one RCON connection per command.
type Client struct {
	Address  string
	Port     int
	Password string
	Timeout  time.Duration
	// FastFail runs a short TCP connect before the RCON handshake so an
	// unreachable server fails in PrecheckTimeout instead of Timeout.
	FastFail bool
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c *Client) addr() string {
	host := c.Address
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// WithFastFail returns a copy of c with the TCP pre-check enabled.
func (c *Client) WithFastFail() *Client {
	cp := *c
	cp.FastFail = true
	return &cp
}

func (c *Client) Send(ctx context.Context, command string) (string, error) {
	if c.Port < 0 {
		return "", ErrDisabled
	}
	if c.FastFail {
		d := net.Dialer{Timeout: PrecheckTimeout}
		conn, err := d.DialContext(ctx, "tcp", c.addr())
		if err != nil {
			return "", classify(fmt.Errorf("RCON precheck %s: %w", c.addr(), err))
		}
		_ = conn.Close()
	}

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := rcon.Dial(c.addr(), c.Password,
			rcon.SetDialTimeout(c.timeout()),
			rcon.SetDeadline(c.timeout()))
		if err != nil {
			done <- result{err: fmt.Errorf("RCON dial %s: %w", c.addr(), err)}
			return
		}
		defer func() { _ = conn.Close() }()
		out, err := conn.Execute(command)
		if err != nil {
			err = fmt.Errorf("RCON %s: %w", command, err)
		}
		done <- result{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", classify(ctx.Err())
	case r := <-done:
		return r.out, classify(r.err)
	}
}

// classify marks timeouts with ErrTimeout.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}

// SaveWorld forces a world save; the server answers "World Saved".
func (c *Client) SaveWorld(ctx context.Context) error {
	out, err := c.Send(ctx, "SaveWorld")
	if err != nil {
		return err
	}
	if !strings.Contains(out, "World Saved") {
		return fmt.Errorf("unexpected SaveWorld response %q", strings.TrimSpace(out))
	}
	return nil
}

func (c *Client) ListPlayers(ctx context.Context) (string, error) {
	return c.Send(ctx, "ListPlayers")
}

func (c *Client) PlayerCount(ctx context.Context) (int, error) {
	out, err := c.ListPlayers(ctx)
	if err != nil {
		return 0, err
	}
	return CountPlayers(out), nil
}

// CountPlayers parses a ListPlayers reply: one player per line.
func CountPlayers(reply string) int {
	if strings.Contains(reply, "No Players") {
		return 0
	}
	return strings.Count(reply, "\n")
}

// DoExit asks the server to save and exit. The server may drop the
// connection before answering; that counts as accepted.
func (c *Client) DoExit(ctx context.Context) error {
	_, err := c.Send(ctx, "DoExit")
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (c *Client) Broadcast(ctx context.Context, message string) error {
	_, err := c.Send(ctx, "Broadcast "+message)
	return err
}
