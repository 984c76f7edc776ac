package storage

import (
	"github.com/cesargomez89/chordbook/internal/constants"
	"github.com/cesargomez89/chordbook/internal/domain"
	"github.com/cesargomez89/chordbook/internal/kv"
	"github.com/cesargomez89/chordbook/internal/logger"
)

// Recovery loads the song library at startup, trying sources in strict
// priority order: consolidated envelope, per-song fallback records, then
// the backup slot. Whichever non-primary tier succeeds is persisted back
// to the primary store so the next start takes the fast path.
type Recovery struct {
	primary  *PrimaryStore
	entities *EntityStore
	kv       kv.Store
	log      *logger.Logger
}

func NewRecovery(primary *PrimaryStore, entities *EntityStore, store kv.Store, log *logger.Logger) *Recovery {
	return &Recovery{primary: primary, entities: entities, kv: store, log: log.WithComponent("recovery")}
}

// LoadWithRecovery returns the recovered song set. An empty result is the
// legitimate new-user state, never an error. Each tier's failure is
// logged and falls through to the next.
func (r *Recovery) LoadWithRecovery() []*domain.Song {
	if songs := r.primary.Load(); len(songs) > 0 {
		return songs
	}

	r.log.Info("Primary store empty, trying per-song records")
	if songs := r.entities.LoadAllEntities(); len(songs) > 0 {
		r.log.Info("Recovered songs from per-song records", "count", len(songs))
		r.selfHeal(songs)
		return songs
	}

	r.log.Info("Per-song records empty, trying backup slot")
	if songs := r.loadBackup(); len(songs) > 0 {
		r.log.Info("Recovered songs from backup slot", "count", len(songs))
		r.selfHeal(songs)
		return songs
	}

	r.log.Info("No stored songs found, starting empty")
	return nil
}

func (r *Recovery) loadBackup() []*domain.Song {
	raw, err := r.kv.GetItem(constants.KeySongsBackup)
	if err != nil {
		r.log.Warn("Failed to read backup slot", "error", err)
		return nil
	}
	if raw == "" {
		return nil
	}
	songs, err := ParseStoredSongs(raw)
	if err != nil {
		r.log.Warn("Backup slot is unparseable", "error", err)
		return nil
	}
	return songs
}

func (r *Recovery) selfHeal(songs []*domain.Song) {
	if err := r.primary.Save(songs); err != nil {
		r.log.Warn("Failed to persist recovered songs back to primary store", "error", err)
	}
}
