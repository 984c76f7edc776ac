package bridge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cesargomez89/chordbook/internal/constants"
)

// LocalBridge implements FileBridge against a directory on the local disk.
type LocalBridge struct {
	dir string
}

// NewLocalBridge creates the storage directory if needed and returns a
// bridge rooted at it.
func NewLocalBridge(dir string) (*LocalBridge, error) {
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &LocalBridge{dir: dir}, nil
}

func (b *LocalBridge) SaveFile(name, content string) error {
	return os.WriteFile(b.path(name), []byte(content), constants.FilePermissions)
}

func (b *LocalBridge) ReadFile(name string) (string, error) {
	data, err := os.ReadFile(b.path(name))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (b *LocalBridge) DeleteFile(name string) error {
	err := os.Remove(b.path(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (b *LocalBridge) ListFiles() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (b *LocalBridge) GetFileStats(name string) (FileStats, error) {
	info, err := os.Stat(b.path(name))
	if err != nil {
		return FileStats{}, err
	}
	return FileStats{Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (b *LocalBridge) StorageDir() string {
	return b.dir
}

func (b *LocalBridge) path(name string) string {
	return filepath.Join(b.dir, Sanitize(name))
}

// Sanitize strips characters that are invalid in filesystem names and
// trims trailing dots and spaces.
func Sanitize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if strings.ContainsRune(constants.InvalidPathChars, r) {
			return -1
		}
		return r
	}, s)

	return strings.TrimRight(mapped, ". ")
}
