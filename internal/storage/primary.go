// Package storage implements the multi-tier persistence strategy for the
// song library: a consolidated envelope in the key-value store, per-song
// fallback records, an optional file mirror, and the recovery orchestrator
// that stitches them together at startup.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cesargomez89/chordbook/internal/codec"
	"github.com/cesargomez89/chordbook/internal/constants"
	"github.com/cesargomez89/chordbook/internal/domain"
	"github.com/cesargomez89/chordbook/internal/kv"
	"github.com/cesargomez89/chordbook/internal/logger"
)

// PrimaryStore reads and writes the consolidated song envelope under the
// single authoritative key. Every save snapshots the previous value into
// the backup slot first.
type PrimaryStore struct {
	kv  kv.Store
	log *logger.Logger
}

func NewPrimaryStore(store kv.Store, log *logger.Logger) *PrimaryStore {
	return &PrimaryStore{kv: store, log: log.WithComponent("storage")}
}

// Save writes all songs as one consolidated envelope. On a quota-exceeded
// condition it purges auxiliary keys owned by this subsystem and retries
// exactly once; a second failure propagates to the caller's failure
// accounting.
func (p *PrimaryStore) Save(songs []*domain.Song) error {
	p.backupCurrent()

	env := domain.Envelope{
		Version:           constants.EnvelopeVersion,
		SavedAt:           codec.FormatTime(time.Now()),
		SongCount:         len(songs),
		TotalProgressions: domain.TotalProgressions(songs),
		Songs:             codec.SerializeSongs(songs),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode song envelope: %w", err)
	}

	err = p.kv.SetItem(constants.KeySongs, string(data))
	if errors.Is(err, kv.ErrQuotaExceeded) {
		p.log.Warn("Storage quota exceeded, purging auxiliary keys and retrying", "song_count", len(songs))
		p.purgeAuxiliaryKeys(songs)
		err = p.kv.SetItem(constants.KeySongs, string(data))
	}
	if err != nil {
		return fmt.Errorf("failed to write consolidated songs: %w", err)
	}
	return nil
}

// Load reads the consolidated envelope. Absent or unparseable data is
// treated as "no data", never as an error: parse failures are logged and
// the recovery tiers take over.
func (p *PrimaryStore) Load() []*domain.Song {
	raw, err := p.kv.GetItem(constants.KeySongs)
	if err != nil {
		p.log.Warn("Failed to read consolidated songs", "error", err)
		return nil
	}
	if raw == "" {
		return nil
	}

	songs, err := ParseStoredSongs(raw)
	if err != nil {
		p.log.Warn("Consolidated songs record is unparseable, treating as no data", "error", err)
		return nil
	}
	return songs
}

// backupCurrent copies the current envelope into the backup slot. Best
// effort: a failed backup never aborts the save.
func (p *PrimaryStore) backupCurrent() {
	current, err := p.kv.GetItem(constants.KeySongs)
	if err != nil {
		p.log.Warn("Failed to read current envelope for backup", "error", err)
		return
	}
	if current == "" {
		return
	}
	if err := p.kv.SetItem(constants.KeySongsBackup, current); err != nil {
		p.log.Warn("Failed to refresh backup slot", "error", err)
	}
}

// purgeAuxiliaryKeys frees quota by removing keys this subsystem owns and
// can rebuild or no longer needs: the pre-migration progression record and
// last-opened stamps for songs that no longer exist. Keys outside our
// namespace are never touched.
func (p *PrimaryStore) purgeAuxiliaryKeys(songs []*domain.Song) {
	if err := p.kv.RemoveItem(constants.KeyLegacyProgressions); err != nil {
		p.log.Warn("Failed to remove legacy progressions record", "error", err)
	}

	keep := make(map[string]bool, len(songs))
	for _, s := range songs {
		keep[s.ID] = true
	}

	keys, err := p.kv.Keys()
	if err != nil {
		p.log.Warn("Failed to enumerate keys during quota cleanup", "error", err)
		return
	}
	for _, key := range keys {
		if !strings.HasPrefix(key, constants.KeyLastOpenedPrefix) {
			continue
		}
		id := strings.TrimPrefix(key, constants.KeyLastOpenedPrefix)
		if keep[id] {
			continue
		}
		if err := p.kv.RemoveItem(key); err != nil {
			p.log.Warn("Failed to remove orphan last-opened key", "key", key, "error", err)
		}
	}
}
