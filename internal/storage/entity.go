package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cesargomez89/chordbook/internal/codec"
	"github.com/cesargomez89/chordbook/internal/constants"
	"github.com/cesargomez89/chordbook/internal/domain"
	"github.com/cesargomez89/chordbook/internal/kv"
	"github.com/cesargomez89/chordbook/internal/logger"
)

// EntityStore keeps one record per song so a corrupt consolidated
// envelope cannot take the whole library down. Records here are snapshots
// of the most recent successful consolidated save; recovery treats them
// as second-best after the primary store.
type EntityStore struct {
	kv  kv.Store
	log *logger.Logger
}

func NewEntityStore(store kv.Store, log *logger.Logger) *EntityStore {
	return &EntityStore{kv: store, log: log.WithComponent("storage")}
}

// SaveEntity writes one song's fallback record.
func (e *EntityStore) SaveEntity(song *domain.Song) error {
	data, err := json.Marshal(codec.SerializeSong(song))
	if err != nil {
		return fmt.Errorf("failed to encode song %s: %w", song.ID, err)
	}
	if err := e.kv.SetItem(constants.KeySongPrefix+song.ID, string(data)); err != nil {
		return fmt.Errorf("failed to write song record %s: %w", song.ID, err)
	}
	return nil
}

// DeleteEntity removes one song's fallback record.
func (e *EntityStore) DeleteEntity(songID string) error {
	return e.kv.RemoveItem(constants.KeySongPrefix + songID)
}

// LoadAllEntities reads every per-song record. Corrupt records are
// skipped with a log line rather than failing the whole recovery. The
// result is ordered by creation time for a stable library listing.
func (e *EntityStore) LoadAllEntities() []*domain.Song {
	keys, err := e.kv.Keys()
	if err != nil {
		e.log.Warn("Failed to enumerate per-song records", "error", err)
		return nil
	}

	var songs []*domain.Song
	for _, key := range keys {
		if !strings.HasPrefix(key, constants.KeySongPrefix) {
			continue
		}
		raw, err := e.kv.GetItem(key)
		if err != nil || raw == "" {
			continue
		}
		var stored domain.SerializedSong
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			e.log.Warn("Skipping corrupt song record", "key", key, "error", err)
			continue
		}
		if stored.ID == "" {
			e.log.Warn("Skipping song record without id", "key", key)
			continue
		}
		songs = append(songs, codec.DeserializeSong(stored))
	}

	sort.Slice(songs, func(i, j int) bool {
		if !songs[i].CreatedAt.Equal(songs[j].CreatedAt) {
			return songs[i].CreatedAt.Before(songs[j].CreatedAt)
		}
		return songs[i].ID < songs[j].ID
	})
	return songs
}

// Prune removes per-song records whose song is no longer in the
// authoritative set. Low-priority cleanup; failures only log.
func (e *EntityStore) Prune(keep map[string]bool) {
	keys, err := e.kv.Keys()
	if err != nil {
		e.log.Warn("Failed to enumerate per-song records for pruning", "error", err)
		return
	}
	for _, key := range keys {
		if !strings.HasPrefix(key, constants.KeySongPrefix) {
			continue
		}
		id := strings.TrimPrefix(key, constants.KeySongPrefix)
		if keep[id] {
			continue
		}
		if err := e.kv.RemoveItem(key); err != nil {
			e.log.Warn("Failed to prune song record", "key", key, "error", err)
		}
	}
}
