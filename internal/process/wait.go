package process

import (
	"context"
	"time"
)

// WaitForExit polls until pid is gone, ctx is done or timeout elapses. It
// works for processes that are not children of the caller.
func WaitForExit(ctx context.Context, pid int, timeout, poll time.Duration) bool {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(poll)
	defer tick.Stop()
	for {
		if !Exists(pid) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return !Exists(pid)
		case <-tick.C:
		}
	}
}
