package validator

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// FileSystem is the read-only view the validator inspects. Paths are manifest
// paths: slash separated and relative to the project root.
type FileSystem interface {
	Stat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.DirEntry, error)
}

// DirFS returns a view of the OS filesystem rooted at root. Absolute manifest
// paths are used as-is.
func DirFS(root string) FileSystem {
	return dirFS{root: root}
}

type dirFS struct {
	root string
}

func (d dirFS) resolve(name string) string {
	native := filepath.FromSlash(name)
	if filepath.IsAbs(native) {
		return filepath.Clean(native)
	}
	return filepath.Join(d.root, native)
}

func (d dirFS) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(d.resolve(name))
}

func (d dirFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(d.resolve(name))
}

// FromFS adapts an io/fs filesystem such as fstest.MapFS.
func FromFS(fsys fs.FS) FileSystem {
	return ioFS{fsys: fsys}
}

type ioFS struct {
	fsys fs.FS
}

func (f ioFS) name(op, name string) (string, error) {
	cleaned := path.Clean(strings.TrimPrefix(strings.TrimSpace(name), "./"))
	if cleaned == "" {
		cleaned = "."
	}
	if !fs.ValidPath(cleaned) {
		return "", &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	return cleaned, nil
}

func (f ioFS) Stat(name string) (fs.FileInfo, error) {
	cleaned, err := f.name("stat", name)
	if err != nil {
		return nil, err
	}
	return fs.Stat(f.fsys, cleaned)
}

func (f ioFS) ReadDir(name string) ([]fs.DirEntry, error) {
	cleaned, err := f.name("readdir", name)
	if err != nil {
		return nil, err
	}
	return fs.ReadDir(f.fsys, cleaned)
}
