// Package bridge abstracts the privileged host filesystem capability the
// file mirror writes through. A nil bridge is a normal condition: without
// one the app degrades to key-value-only persistence.
package bridge

import "time"

// FileStats describes a stored file.
type FileStats struct {
	Size    int64
	ModTime time.Time
}

// FileBridge exposes the host file operations the mirror needs. Paths are
// relative to the bridge's storage directory.
type FileBridge interface {
	SaveFile(name, content string) error
	ReadFile(name string) (string, error)
	DeleteFile(name string) error
	ListFiles() ([]string, error)
	GetFileStats(name string) (FileStats, error)
	StorageDir() string
}
