// Package backup produces and restores full library snapshots: manual
// export/import plus a periodic auto-backup into the backup slot.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cesargomez89/chordbook/internal/codec"
	"github.com/cesargomez89/chordbook/internal/constants"
	"github.com/cesargomez89/chordbook/internal/domain"
	"github.com/cesargomez89/chordbook/internal/kv"
	"github.com/cesargomez89/chordbook/internal/logger"
)

// Library is the in-memory song set the service snapshots and restores.
// Implemented by the app's song service.
type Library interface {
	SnapshotSongs() []*domain.Song
	LegacyProgressions() []domain.SerializedProgression
	Replace(songs []*domain.Song, legacy []domain.SerializedProgression)
}

type Service struct {
	library  Library
	kv       kv.Store
	log      *logger.Logger
	interval time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewService(library Library, store kv.Store, interval time.Duration, log *logger.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		library:  library,
		kv:       store,
		log:      log.WithComponent("backup"),
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// CreateSnapshot serializes the full current song set plus any legacy
// progression set, stamped with the schema version and creation time.
func (s *Service) CreateSnapshot() domain.BackupSnapshot {
	return domain.BackupSnapshot{
		Songs:        codec.SerializeSongs(s.library.SnapshotSongs()),
		Progressions: s.library.LegacyProgressions(),
		Timestamp:    codec.FormatTime(time.Now()),
		Version:      constants.SnapshotVersion,
	}
}

// ExportSnapshot renders the snapshot as a downloadable artifact and a
// suggested file name.
func (s *Service) ExportSnapshot() ([]byte, string, error) {
	snap := s.CreateSnapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode snapshot: %w", err)
	}
	name := fmt.Sprintf("%s-%s%s", constants.ExportFilePrefix, time.Now().Format("2006-01-02"), constants.MirrorFileExt)
	return data, name, nil
}

// ImportSnapshot parses and structurally validates raw snapshot text.
// Every structural problem is collected before rejecting so the caller
// can display a complete diagnostic. Nothing is restored here.
func (s *Service) ImportSnapshot(raw []byte) (*domain.BackupSnapshot, error) {
	if errs := validateSnapshot(raw); len(errs) > 0 {
		return nil, &ImportError{Errors: errs}
	}

	var snap domain.BackupSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// Restore overwrites the live song set and legacy progression set from a
// validated snapshot. The swap is all-or-nothing: the new state is fully
// built before the library is touched, so a failure leaves the prior
// in-memory state intact.
func (s *Service) Restore(snap *domain.BackupSnapshot) error {
	if !knownSnapshotVersion(snap.Version) {
		return fmt.Errorf("cannot restore snapshot with unknown version %q", snap.Version)
	}

	songs := codec.DeserializeSongs(snap.Songs)
	legacy := append([]domain.SerializedProgression(nil), snap.Progressions...)

	s.library.Replace(songs, legacy)
	s.log.Info("Restored library from snapshot", "songs", len(songs), "timestamp", snap.Timestamp)
	return nil
}

// Start begins the periodic auto-backup loop.
func (s *Service) Start() {
	s.log.Info("Starting auto-backup", "interval", s.interval)
	s.wg.Add(1)
	go s.run()
}

// Stop halts the auto-backup loop.
func (s *Service) Stop() {
	s.log.Info("Stopping auto-backup")
	s.cancel()
	s.wg.Wait()
}

func (s *Service) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.persistSnapshot()
		}
	}
}

// persistSnapshot writes the current snapshot into the backup slot
// without user interaction. Best effort.
func (s *Service) persistSnapshot() {
	snap := s.CreateSnapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		s.log.Warn("Failed to encode auto-backup snapshot", "error", err)
		return
	}
	if err := s.kv.SetItem(constants.KeySongsBackup, string(data)); err != nil {
		s.log.Warn("Failed to persist auto-backup snapshot", "error", err)
		return
	}
	s.log.Debug("Auto-backup snapshot persisted", "songs", len(snap.Songs))
}
