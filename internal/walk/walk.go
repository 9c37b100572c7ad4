// Package walk discovers analyzable source files under a root directory.
// Discovery is deterministic: results come back sorted by relative path.
package walk

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// MaxFileSize caps how large a source file may be before it is skipped.
const MaxFileSize = 1 << 20 // 1 MiB

// skipDirs are directories never worth descending into.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".git":         true,
}

// File is one discovered source file. Path is relative to the walk root
// and slash-separated on every platform.
type File struct {
	Path string
	Abs  string
	Size int64
}

// Walker discovers files, applying compiled exclude patterns.
type Walker struct {
	excludes []glob.Glob
	skipped  int
}

// New compiles exclude patterns. Patterns match against the
// slash-separated relative path ("**/generated/**", "*.pb.go").
func New(excludes []string) (*Walker, error) {
	w := &Walker{}
	for _, pat := range excludes {
		g, err := glob.Compile(pat, '/')
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", pat, err)
		}
		w.excludes = append(w.excludes, g)
	}
	return w, nil
}

// Skipped reports how many files the last Walk rejected for size or
// exclusion. Unsupported extensions are not counted here; language
// detection happens downstream.
func (w *Walker) Skipped() int { return w.skipped }

// Walk lists candidate source files under root, sorted by relative path.
// Hidden directories and well-known build output directories are pruned.
func (w *Walker) Walk(root string) ([]File, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("walk root %s: not a directory", root)
	}

	w.skipped = 0
	var files []File
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if path == root {
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") || skipDirs[name] || w.excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && !wellKnownDotfile(d.Name()) {
			return nil
		}
		if w.excluded(rel) {
			w.skipped++
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if fi.Size() > MaxFileSize {
			w.skipped++
			return nil
		}
		files = append(files, File{Path: rel, Abs: path, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (w *Walker) excluded(rel string) bool {
	for _, g := range w.excludes {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// wellKnownDotfiles like .bashrc are shell scripts worth analyzing.
func wellKnownDotfile(name string) bool {
	switch name {
	case ".bashrc", ".bash_profile", ".zshrc", ".profile":
		return true
	}
	return false
}
