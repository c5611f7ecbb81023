// Package backup creates, rotates and restores world-save archives.
package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/loykin/asamgr/internal/config"
)

const (
	Extension  = ".tar.gz"
	nameLayout = "2006-01-02_15-04-05"
)

var (
	ErrCannotFreeSpace = errors.New("cannot free enough space to save backup")
	ErrServerRunning   = errors.New("cannot restore backup while server is running")
	ErrInvalidChoice   = errors.New("invalid backup choice")
	ErrUnsafePath      = errors.New("archive entry escapes install folder")
	ErrNoBackups       = errors.New("no backups found")
	ErrNotWritable     = errors.New("backup folder not found or bad permissions")
)

var nameRE = regexp.MustCompile(`^backup_(\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2})\..+$`)

// Artifact is one backup archive on disk.
type Artifact struct {
	Path      string
	CreatedAt time.Time
	Size      int64
}

// Policy bounds the backup directory. Zero disables a bound.
type Policy struct {
	MaxTotalBytes int64
	MaxCount      int
}

// DeleteError reports the artifact whose removal aborted an eviction.
type DeleteError struct {
	Path string
	Err  error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("failed to delete backup %s: %v", e.Path, e.Err)
}

func (e *DeleteError) Unwrap() error { return e.Err }

// Name returns the artifact file name for t.
func Name(t time.Time) string {
	return "backup_" + t.Format(nameLayout) + Extension
}

// ParseName extracts the creation time encoded in a backup file name.
func ParseName(name string) (time.Time, bool) {
	m := nameRE.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(nameLayout, m[1], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// List returns the artifacts in dir, oldest first, and the names of archives
// whose names carry no timestamp. Those are neither ordered nor sized.
func List(dir string) ([]Artifact, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	var (
		out     []Artifact
		skipped []string
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), Extension) {
			continue
		}
		t, ok := ParseName(e.Name())
		if !ok {
			skipped = append(skipped, e.Name())
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, nil, err
		}
		out = append(out, Artifact{Path: filepath.Join(dir, e.Name()), CreatedAt: t, Size: info.Size()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(skipped) > 0 {
		slog.Warn("Ignoring backups with unrecognised names", "dir", dir, "files", skipped)
	}
	return out, skipped, nil
}

// TotalSize sums artifact sizes.
func TotalSize(as []Artifact) int64 {
	var n int64
	for _, a := range as {
		n += a.Size
	}
	return n
}

// ComputeEvictionSet picks the artifacts to delete before a new backup is
// written. The result is ordered oldest first whatever the input order.
//
// Over the size budget, the shortest oldest-first prefix freeing strictly
// more than the newest artifact's size is chosen. Otherwise, at or over the
// count budget, enough of the oldest go to leave room for one more.
func ComputeEvictionSet(artifacts []Artifact, p Policy) ([]Artifact, error) {
	if len(artifacts) == 0 {
		return nil, nil
	}
	artifacts = append([]Artifact(nil), artifacts...)
	sort.SliceStable(artifacts, func(i, j int) bool { return artifacts[i].CreatedAt.Before(artifacts[j].CreatedAt) })
	total := TotalSize(artifacts)
	if p.MaxTotalBytes > 0 && total >= p.MaxTotalBytes {
		target := artifacts[len(artifacts)-1].Size
		var freed int64
		for i, a := range artifacts {
			freed += a.Size
			if freed > target {
				return artifacts[:i+1], nil
			}
		}
		return nil, ErrCannotFreeSpace
	}
	if p.MaxCount > 0 && len(artifacts) >= p.MaxCount {
		return artifacts[:len(artifacts)-p.MaxCount+1], nil
	}
	return nil, nil
}

// Evict deletes set in order and stops at the first failure.
func Evict(set []Artifact) error {
	for _, a := range set {
		if err := os.Remove(a.Path); err != nil {
			return &DeleteError{Path: a.Path, Err: err}
		}
		slog.Debug("Backup successfully deleted", "path", a.Path)
	}
	return nil
}

// PolicyFromConfig reads the retention bounds from the backup section.
func PolicyFromConfig(c *config.Config) Policy {
	return Policy{MaxTotalBytes: c.MaxBackupBytes(), MaxCount: c.Ark.Backup.MaxBackupNumber}
}
