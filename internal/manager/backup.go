package manager

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/loykin/asamgr/internal/backup"
	"github.com/loykin/asamgr/internal/history"
	"github.com/loykin/asamgr/internal/metrics"
)

// Backup writes a new archive of the configured save files.
func (m *Manager) Backup(ctx context.Context, level int) (backup.Artifact, error) {
	e := m.backupEngine()
	e.OnEvict = func(evicted []backup.Artifact) {
		names := make([]string, 0, len(evicted))
		for _, a := range evicted {
			names = append(names, filepath.Base(a.Path))
		}
		m.record(ctx, history.EventEvict, 0, strings.Join(names, ","), nil)
	}
	a, err := e.Create(ctx, level)
	metrics.IncOperation("backup", err)
	m.record(ctx, history.EventBackup, 0, a.Path, err)
	return a, err
}

// Restore extracts an archive over the install folder. The server must be
// stopped.
func (m *Manager) Restore(ctx context.Context, path string, latest bool) (string, error) {
	restored, err := m.backupEngine().Restore(ctx, path, latest)
	metrics.IncOperation("restore", err)
	m.record(ctx, history.EventRestore, 0, restored, err)
	return restored, err
}
