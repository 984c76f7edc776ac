// Package kv provides the key-value storage primitive the persistence
// subsystem writes through: synchronous get/set/remove with enumerable
// keys and a byte quota that mirrors browser storage limits.
package kv

import "errors"

// ErrQuotaExceeded is returned by SetItem when a write would push the
// store past its configured quota.
var ErrQuotaExceeded = errors.New("kv: quota exceeded")

// Store is the storage primitive. GetItem returns an empty string for an
// absent key; values in this namespace are JSON documents, never empty.
type Store interface {
	GetItem(key string) (string, error)
	SetItem(key, value string) error
	RemoveItem(key string) error
	Keys() ([]string, error)
}
