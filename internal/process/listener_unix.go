//go:build !windows

package process

import (
	"context"
	"log/slog"
	"syscall"

	gopsnet "github.com/shirou/gopsutil/v4/net"
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ListenerFinder locates the UDP port a server process group listens on.
type ListenerFinder interface {
	// FindUDPListener returns the bound port, or 0 when nothing in group
	// pgid listens yet.
	FindUDPListener(ctx context.Context, pgid int) (int, error)
}

// SocketFinder scans the system UDP socket table. A socket matches when its
// owner belongs to the group and carries ThreadName as process name.
type SocketFinder struct {
	ThreadName string
}

func (f SocketFinder) FindUDPListener(ctx context.Context, pgid int) (int, error) {
	conns, err := gopsnet.ConnectionsWithContext(ctx, "udp")
	if err != nil {
		return 0, err
	}
	for _, c := range conns {
		// some sockets have no known owner
		if c.Pid <= 0 {
			continue
		}
		g, err := syscall.Getpgid(int(c.Pid))
		if err != nil || g != pgid {
			continue
		}
		p, err := gopsproc.NewProcessWithContext(ctx, c.Pid)
		if err != nil {
			continue
		}
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if f.ThreadName == "" || name == f.ThreadName {
			return int(c.Laddr.Port), nil
		}
		slog.Error("Found matching PGID, but invalid name", "pid", c.Pid, "name", name, "want", f.ThreadName)
	}
	return 0, nil
}
