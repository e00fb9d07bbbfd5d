package runbook

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// scriptFileName is the fixed name WriteScript gives the script file
// inside a workspace, matching the dialect's Script section contract.
const scriptFileName = "temp.zsh"

// Workspace is a short-lived isolated directory created per execution.
type Workspace struct {
	Path string
}

// NewWorkspace creates an owner-only-permission directory with a
// high-entropy suffix under the OS temporary root.
func NewWorkspace() (*Workspace, error) {
	prefix := fmt.Sprintf("runbook-exec-%s-", uuid.New().String()[:8])
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		return nil, WrapError(KindInternal, "creating workspace directory", err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		os.RemoveAll(dir)
		return nil, WrapError(KindInternal, "setting workspace permissions", err)
	}
	return &Workspace{Path: dir}, nil
}

// Dispose recursively removes the workspace directory. Failures are
// logged by the caller, not raised.
func (w *Workspace) Dispose() error {
	return os.RemoveAll(w.Path)
}

// WriteScript writes the script text as an owner-only executable file
// inside the workspace and returns its absolute path.
func (w *Workspace) WriteScript(script string) (string, error) {
	path := filepath.Join(w.Path, scriptFileName)
	if err := os.WriteFile(path, []byte(script), 0o700); err != nil {
		return "", WrapError(KindInternal, "writing script file", err)
	}
	return path, nil
}

// Populate copies each declared input path from runbookDir into the
// workspace, rejecting paths that escape runbookDir or collide on
// basename.
func (w *Workspace) Populate(runbookDir string, inputPaths []string) []string {
	var errs []string
	seen := make(map[string]bool)

	for _, rel := range inputPaths {
		if rel == "" {
			continue
		}
		base := filepath.Base(rel)
		if seen[base] {
			errs = append(errs, fmt.Sprintf("input path %q collides with another input's basename %q", rel, base))
			continue
		}

		resolved, err := resolveWithinDir(runbookDir, rel)
		if err != nil {
			errs = append(errs, fmt.Sprintf("input path %q: %v", rel, err))
			continue
		}

		info, err := os.Lstat(resolved)
		if err != nil {
			errs = append(errs, fmt.Sprintf("input path %q does not exist", rel))
			continue
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(resolved)
			if err != nil {
				errs = append(errs, fmt.Sprintf("input path %q: unresolvable symlink", rel))
				continue
			}
			if _, err := resolveWithinDir(runbookDir, mustRel(runbookDir, target)); err != nil {
				errs = append(errs, fmt.Sprintf("input path %q: symlink escapes runbook directory", rel))
				continue
			}
		}

		dest := filepath.Join(w.Path, base)
		if info.IsDir() {
			if err := copyDir(resolved, dest); err != nil {
				errs = append(errs, fmt.Sprintf("input path %q: %v", rel, err))
				continue
			}
		} else {
			if err := copyFile(resolved, dest, info.Mode()); err != nil {
				errs = append(errs, fmt.Sprintf("input path %q: %v", rel, err))
				continue
			}
		}
		seen[base] = true
	}

	return errs
}

func mustRel(base, target string) string {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return target
	}
	return rel
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	ownerOnly := mode & 0o700
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, ownerOnly)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return nil
}

func copyDir(src, dest string) error {
	if err := os.MkdirAll(dest, 0o700); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		destPath := filepath.Join(dest, entry.Name())
		if entry.IsDir() {
			if err := copyDir(srcPath, destPath); err != nil {
				return err
			}
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if err := copyFile(srcPath, destPath, info.Mode()); err != nil {
			return err
		}
	}
	return nil
}
