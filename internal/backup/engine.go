package backup

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/renameio/v2"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sys/unix"

	"github.com/loykin/asamgr/internal/config"
	"github.com/loykin/asamgr/internal/metrics"
)

// DefaultCompressionLevel matches gzip's usual default.
const DefaultCompressionLevel = 6

// Saver flushes the world to disk before files are read.
type Saver interface {
	SaveWorld(ctx context.Context) error
}

// Chooser asks the operator for a line of input.
type Chooser interface {
	Input(message string) (string, error)
}

// Engine creates and restores archives for one install.
type Engine struct {
	Dir           string
	InstallFolder string
	Rules         []config.BackupFiles
	Policy        Policy

	// Running reports whether the server is up. Nil means never.
	Running func() bool
	Saver   Saver
	Chooser Chooser
	// OnEvict is called with the archives rotated out by Create.
	OnEvict func(evicted []Artifact)
	Now     func() time.Time
	// SavePause is how long to wait after a successful save.
	SavePause time.Duration
}

// NewEngine builds an engine from the loaded configuration.
func NewEngine(c *config.Config) *Engine {
	return &Engine{
		Dir:           c.Ark.Backup.TargetDir,
		InstallFolder: c.Ark.InstallFolder,
		Rules:         c.Ark.Backup.Files,
		Policy:        PolicyFromConfig(c),
		SavePause:     200 * time.Millisecond,
	}
}

func (e *Engine) running() bool { return e.Running != nil && e.Running() }

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Create rotates old archives out, saves the world if the server is up and
// writes a new archive of the configured files.
func (e *Engine) Create(ctx context.Context, level int) (Artifact, error) {
	if level < -1 || level > 9 {
		return Artifact{}, fmt.Errorf("compression level %d out of range [-1, 9]", level)
	}
	if err := unix.Access(e.Dir, unix.W_OK|unix.X_OK); err != nil {
		slog.Error("Backup folder not found or bad permissions", "dir", e.Dir, "error", err)
		return Artifact{}, fmt.Errorf("%w: %s", ErrNotWritable, e.Dir)
	}

	current, _, err := List(e.Dir)
	if err != nil {
		return Artifact{}, err
	}
	slog.Info("Current backup usage",
		"backups", fmt.Sprintf("%d/%s", len(current), limit(e.Policy.MaxCount > 0, strconv.Itoa(e.Policy.MaxCount))),
		"size", fmt.Sprintf("%s/%s", humanize.IBytes(uint64(TotalSize(current))),
			limit(e.Policy.MaxTotalBytes > 0, humanize.IBytes(uint64(max(e.Policy.MaxTotalBytes, 0))))))

	set, err := ComputeEvictionSet(current, e.Policy)
	if err != nil {
		slog.Error("Cannot free enough space to save backup")
		return Artifact{}, err
	}
	if len(set) > 0 {
		slog.Info("Deleting old backups", "count", len(set))
		if err := Evict(set); err != nil {
			slog.Error("Failed to delete backup", "error", err)
			return Artifact{}, err
		}
		metrics.AddBackupEvictions(len(set))
		if e.OnEvict != nil {
			e.OnEvict(set)
		}
	}

	if e.running() && e.Saver != nil {
		if err := e.Saver.SaveWorld(ctx); err != nil {
			slog.Warn("Failed to save world before starting backup", "error", err)
		} else if e.SavePause > 0 {
			time.Sleep(e.SavePause)
		}
	}

	files, err := e.collect()
	if err != nil {
		return Artifact{}, err
	}
	slog.Debug("Found files to backup", "count", len(files), "files", files)

	created := e.now()
	path := filepath.Join(e.Dir, Name(created))
	slog.Info("Backup in progress...")
	size, err := e.write(ctx, path, files, level)
	if err != nil {
		return Artifact{}, err
	}
	slog.Info("Backup saved", "path", path, "size", humanize.IBytes(uint64(size)))

	if after, _, err := List(e.Dir); err == nil {
		metrics.SetBackupUsage(len(after), TotalSize(after))
	}
	return Artifact{Path: path, CreatedAt: created.Truncate(time.Second), Size: size}, nil
}

func limit(bounded bool, s string) string {
	if bounded {
		return s
	}
	return "∞"
}

// collect returns the absolute paths of regular files selected by the rules.
// Matching is on base names, anchored at the start, and does not recurse.
func (e *Engine) collect() ([]string, error) {
	var out []string
	for _, rule := range e.Rules {
		if len(rule.FilesRegex) == 0 {
			continue
		}
		re, err := regexp.Compile("^(?:(" + strings.Join(rule.FilesRegex, ")|(") + "))")
		if err != nil {
			return nil, fmt.Errorf("backup rule %s: %w", rule.Folder, err)
		}
		folder := filepath.Join(e.InstallFolder, rule.Folder)
		entries, err := os.ReadDir(folder)
		if err != nil {
			slog.Warn("Backup folder unreadable", "folder", folder, "error", err)
			continue
		}
		for _, ent := range entries {
			if !ent.Type().IsRegular() {
				continue
			}
			if re.MatchString(ent.Name()) {
				out = append(out, filepath.Join(folder, ent.Name()))
			}
		}
	}
	return out, nil
}

func (e *Engine) write(ctx context.Context, path string, files []string, level int) (int64, error) {
	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return 0, err
	}
	defer func() { _ = pf.Cleanup() }()

	gz, err := gzip.NewWriterLevel(pf, level)
	if err != nil {
		return 0, err
	}
	tw := tar.NewWriter(gz)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		slog.Info("Copying", "file", filepath.Base(f))
		if err := e.addFile(tw, f); err != nil {
			return 0, fmt.Errorf("add %s: %w", f, err)
		}
	}
	if err := tw.Close(); err != nil {
		return 0, err
	}
	if err := gz.Close(); err != nil {
		return 0, err
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (e *Engine) addFile(tw *tar.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(e.InstallFolder, path)
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(rel)
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

// Restore extracts an archive over the install folder. With path empty it
// takes the newest archive when latest is set, otherwise it asks which one.
func (e *Engine) Restore(ctx context.Context, path string, latest bool) (string, error) {
	if e.running() {
		slog.Warn("Cannot restore backup while server is running")
		return "", ErrServerRunning
	}
	if path != "" {
		if err := unix.Access(path, unix.R_OK); err != nil {
			return "", fmt.Errorf("backup file %s not found or bad permissions: %w", path, err)
		}
	} else {
		chosen, err := e.choose(latest)
		if err != nil {
			return "", err
		}
		path = chosen
	}
	slog.Info("Restoring backup", "path", path, "into", e.InstallFolder)
	if err := Extract(ctx, path, e.InstallFolder); err != nil {
		return "", err
	}
	slog.Info("Backup restored", "path", path)
	return path, nil
}

func (e *Engine) choose(latest bool) (string, error) {
	current, _, err := List(e.Dir)
	if err != nil {
		return "", fmt.Errorf("backup folder %s: %w", e.Dir, err)
	}
	if len(current) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoBackups, e.Dir)
	}
	if latest {
		return current[len(current)-1].Path, nil
	}
	if e.Chooser == nil {
		return "", errors.New("no prompt available to choose a backup")
	}
	for i, a := range current {
		slog.Info(fmt.Sprintf("%2d - - - - - File: %s", i+1, a.Path))
	}
	res, err := e.Chooser.Input("Please input the number of the archive you want to restore")
	if err != nil {
		return "", err
	}
	n, err := strconv.Atoi(strings.TrimSpace(res))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidChoice, res)
	}
	if n < 1 || n > len(current) {
		return "", fmt.Errorf("%w: %d", ErrInvalidChoice, n)
	}
	return current[n-1].Path, nil
}

// Extract unpacks a gzip tar archive under root, overwriting existing files.
func Extract(ctx context.Context, archive, root string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open %s: %w", archive, err)
	}
	defer func() { _ = gz.Close() }()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", archive, err)
		}
		target, err := safeJoin(absRoot, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o750); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := extractFile(tr, target, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		default:
			slog.Warn("Skipping unsupported archive entry", "name", hdr.Name, "type", string(hdr.Typeflag))
		}
	}
}

func safeJoin(root, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	target := filepath.Join(root, name)
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}

func extractFile(r io.Reader, target string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
