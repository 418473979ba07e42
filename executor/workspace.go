package executor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	CodeFileName     = "main.js"
	ManifestFileName = "package.json"

	DirPermission  = 0755
	FilePermission = 0644
)

// FileSystem defines the file operations the workspace needs
type FileSystem interface {
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	ReadFile(filename string) ([]byte, error)
	Stat(name string) (os.FileInfo, error)
}

// RealFileSystem implements FileSystem using the os package
type RealFileSystem struct{}

func (RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

func (RealFileSystem) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

// Workspace is the host directory bind mounted into the sandbox. It holds
// exactly one code file and one dependency manifest; each write replaces the
// previous contents.
type Workspace struct {
	dir string
	fs  FileSystem
}

func NewWorkspace(dir string, fs FileSystem) *Workspace {
	if fs == nil {
		fs = RealFileSystem{}
	}
	return &Workspace{dir: dir, fs: fs}
}

func (w *Workspace) Dir() string { return w.dir }

func (w *Workspace) CodePath() string { return filepath.Join(w.dir, CodeFileName) }

func (w *Workspace) ManifestPath() string { return filepath.Join(w.dir, ManifestFileName) }

// Ensure creates the directory if it is missing.
func (w *Workspace) Ensure() error {
	if err := w.fs.MkdirAll(w.dir, DirPermission); err != nil {
		return fmt.Errorf("%w: create working directory %s: %w", ErrFilesystem, w.dir, err)
	}
	return nil
}

func (w *Workspace) WriteCode(code string) error {
	return w.write(w.CodePath(), code)
}

func (w *Workspace) WriteManifest(manifest string) error {
	return w.write(w.ManifestPath(), manifest)
}

// ReadManifest returns the current manifest. The error wraps fs.ErrNotExist
// when no manifest has been written yet.
func (w *Workspace) ReadManifest() (string, error) {
	data, err := w.fs.ReadFile(w.ManifestPath())
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrFilesystem, w.ManifestPath(), err)
	}
	return string(data), nil
}

// HasManifest reports whether a manifest file exists.
func (w *Workspace) HasManifest() (bool, error) {
	_, err := w.fs.Stat(w.ManifestPath())
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: stat %s: %w", ErrFilesystem, w.ManifestPath(), err)
	}
	return true, nil
}

func (w *Workspace) write(path, content string) error {
	if err := w.fs.WriteFile(path, []byte(content), FilePermission); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrFilesystem, path, err)
	}
	return nil
}
