package detector

import (
	"context"
	"fmt"
	"time"

	"github.com/loykin/asamgr/internal/process"
)

// PortMismatchError reports a server group listening on an unexpected port.
type PortMismatchError struct {
	Want, Got int
}

func (e *PortMismatchError) Error() string {
	return fmt.Sprintf("server listening on port %d instead of %d", e.Got, e.Want)
}

// ListenerDetector detects the server by its UDP game socket.
type ListenerDetector struct {
	Finder  process.ListenerFinder
	PGID    int
	Port    int
	Timeout time.Duration
}

// Alive is true when the group listens on Port. Listening on another port
// returns a *PortMismatchError.
func (d ListenerDetector) Alive() (bool, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	port, err := d.Finder.FindUDPListener(ctx, d.PGID)
	if err != nil {
		return false, err
	}
	if port == 0 {
		return false, nil
	}
	if port != d.Port {
		return false, &PortMismatchError{Want: d.Port, Got: port}
	}
	return true, nil
}

func (d ListenerDetector) Describe() string {
	return fmt.Sprintf("udp:%d", d.Port)
}
