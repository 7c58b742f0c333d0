package worktree

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Iron-Ham/pipewright/internal/errors"
	"github.com/gobwas/glob"
)

// walkSkipDirs are never descended into when matching copy patterns.
var walkSkipDirs = map[string]bool{".git": true, "node_modules": true}

// copyConfiguredFiles copies files matching the configured patterns from the
// repository root into dst, keeping their relative paths. Literal patterns
// that match nothing are skipped silently.
func (m *Manager) copyConfiguredFiles(dst string) error {
	if len(m.cfg.Copy) == 0 {
		return nil
	}

	var literals []string
	var matchers []glob.Glob
	for _, pattern := range m.cfg.Copy {
		pattern = filepath.ToSlash(pattern)
		if glob.QuoteMeta(pattern) == pattern {
			literals = append(literals, pattern)
			continue
		}
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return errors.NewValidationError("invalid copy pattern").
				WithField("copy").
				WithValue(pattern).
				WithCause(err)
		}
		matchers = append(matchers, g)
	}

	for _, rel := range literals {
		src := filepath.Join(m.repoDir, filepath.FromSlash(rel))
		info, err := os.Stat(src)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if err := copyFile(src, filepath.Join(dst, filepath.FromSlash(rel))); err != nil {
			return err
		}
	}

	if len(matchers) == 0 {
		return nil
	}

	baseDir := m.BaseDir()
	return filepath.WalkDir(m.repoDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if walkSkipDirs[d.Name()] || path == baseDir || path == dst {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(m.repoDir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		for _, g := range matchers {
			if g.Match(rel) {
				return copyFile(path, filepath.Join(dst, filepath.FromSlash(rel)))
			}
		}
		return nil
	})
}

// copyDir copies the regular files under src into dst, skipping top-level
// entries named in skip.
func copyDir(src, dst string, skip ...string) error {
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[filepath.Join(src, s)] = true
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if skipped[path] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

// copyFile copies src to dst, preserving the source permissions.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return err
	}
	// OpenFile honors umask; chmod makes the result match the source exactly.
	return os.Chmod(dst, info.Mode().Perm())
}
