package detector

import "github.com/loykin/asamgr/internal/process"

// PIDFileDetector detects the server via the PID Store. An empty or
// non-numeric file means not running.
type PIDFileDetector struct {
	PIDFile string
}

func (d PIDFileDetector) Alive() (bool, error) {
	pid, err := process.PIDFile{Path: d.PIDFile}.Read()
	if err != nil {
		return false, err
	}
	return process.Exists(pid), nil
}

func (d PIDFileDetector) Describe() string { return "pidfile:" + d.PIDFile }
