package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ShayCichocki/warden/pkg/models"
)

// SessionRunner executes one task inside an isolated workspace and returns
// the proposed changeset. Implementations must respect ctx cancellation.
type SessionRunner interface {
	Run(ctx context.Context, task *models.Task, tier models.Tier, workspace string) (*models.Changeset, error)
}

// Workspace is one isolated snapshot a session works in. No session
// observes another's uncommitted changes.
type Workspace interface {
	// Path is the snapshot's root directory.
	Path() string
	// Discard removes the snapshot.
	Discard() error
}

// Snapshotter produces isolated workspace snapshots.
type Snapshotter interface {
	Snapshot(taskID string) (Workspace, error)
}

// DirSnapshotter copies the source tree into a fresh temp directory per
// session.
type DirSnapshotter struct {
	// Source is the directory to snapshot.
	Source string
	// BaseDir is where snapshots are created; defaults to os.TempDir().
	BaseDir string
}

type dirWorkspace struct {
	path string
}

func (w *dirWorkspace) Path() string { return w.path }

func (w *dirWorkspace) Discard() error { return os.RemoveAll(w.path) }

type borrowedDir struct {
	path string
}

func (w *borrowedDir) Path() string { return w.path }

// Discard is a no-op: the directory is not owned by the workspace.
func (w *borrowedDir) Discard() error { return nil }

// Dir returns a Workspace view over an existing directory, used to apply
// an approved changeset onto the real project tree. Discarding it never
// removes the directory.
func Dir(path string) Workspace {
	return &borrowedDir{path: path}
}

// Snapshot implements Snapshotter.
func (s *DirSnapshotter) Snapshot(taskID string) (Workspace, error) {
	base := s.BaseDir
	if base == "" {
		base = os.TempDir()
	}
	dir, err := os.MkdirTemp(base, "warden-"+sanitize(taskID)+"-")
	if err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := copyTree(s.Source, dir); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("snapshot %s: %w", s.Source, err)
	}
	return &dirWorkspace{path: dir}, nil
}

// copyTree copies src into dst, skipping VCS metadata and prior snapshots.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		name := d.Name()
		if d.IsDir() && (name == ".git" || name == ".warden") {
			return filepath.SkipDir
		}

		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// ApplyChangeset writes the proposed changes into the workspace so the
// verification engine can run checks against the changed tree. Paths must
// stay inside the workspace: absolute paths and paths traversing above the
// root are rejected before anything is written or deleted.
func ApplyChangeset(ws Workspace, cs *models.Changeset) error {
	if cs.Empty() {
		return nil
	}
	for _, f := range cs.Files {
		if !filepath.IsLocal(filepath.FromSlash(f.Path)) {
			return fmt.Errorf("changeset path %q escapes the workspace", f.Path)
		}
	}
	for _, f := range cs.Files {
		target := filepath.Join(ws.Path(), filepath.FromSlash(f.Path))
		if f.Delete {
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("delete %s: %w", f.Path, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("apply %s: %w", f.Path, err)
		}
		if err := os.WriteFile(target, []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("apply %s: %w", f.Path, err)
		}
	}
	return nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}
