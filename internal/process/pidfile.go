package process

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"
)

// ReadPIDFile reads a PID file. An empty file yields 0 and no error; a
// non-numeric one yields an error.
func ReadPIDFile(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pidLine, _, _ := strings.Cut(string(b), "\n")
	pidStr := strings.TrimSpace(pidLine)
	if pidStr == "" {
		return 0, nil
	}
	return strconv.Atoi(pidStr)
}

// PIDFile persists the server PID across invocations. The file holds the
// decimal pid or nothing; it is emptied, never removed.
type PIDFile struct {
	Path string
}

// Read returns the recorded pid, or 0 when the file is missing, empty or not
// a number. Other I/O errors are returned.
func (f PIDFile) Read() (int, error) {
	pid, err := ReadPIDFile(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			return 0, nil
		}
		return 0, err
	}
	if pid < 0 {
		return 0, nil
	}
	return pid, nil
}

// Running returns the recorded pid when that process is alive.
func (f PIDFile) Running() (int, bool) {
	pid, err := f.Read()
	if err != nil || pid <= 0 {
		return 0, false
	}
	if !Exists(pid) {
		return 0, false
	}
	return pid, true
}

func (f PIDFile) Write(pid int) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o750); err != nil {
		return err
	}
	return renameio.WriteFile(f.Path, []byte(strconv.Itoa(pid)), 0o644)
}

// Clear empties the file.
func (f PIDFile) Clear() error {
	return Truncate(f.Path)
}

// Truncate creates or empties path, creating parent directories.
func Truncate(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return renameio.WriteFile(path, nil, 0o644)
}
