// Package app holds the song service: the in-memory library plus the
// persistence wiring around it (debounced auto-save, throttled settings
// writes, per-song fallback records and the optional file mirror).
package app

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cesargomez89/chordbook/internal/autosave"
	"github.com/cesargomez89/chordbook/internal/codec"
	"github.com/cesargomez89/chordbook/internal/constants"
	"github.com/cesargomez89/chordbook/internal/domain"
	"github.com/cesargomez89/chordbook/internal/kv"
	"github.com/cesargomez89/chordbook/internal/logger"
	"github.com/cesargomez89/chordbook/internal/ratelimit"
	"github.com/cesargomez89/chordbook/internal/storage"
)

// Options carries the timing knobs for the service's write paths.
type Options struct {
	AutoSaveDelay     time.Duration
	MaxSaveFailures   int
	RateLimitInterval time.Duration
	RateLimitQueueMax int
}

// SettingsUpdate is a partial update of a song's playback settings. Nil
// fields are left unchanged.
type SettingsUpdate struct {
	Tuning *string `json:"tuning,omitempty"`
	Capo   *int    `json:"capo,omitempty"`
	BPM    *int    `json:"bpm,omitempty"`
}

// SongService owns the mutable in-memory library. All persisted copies
// are snapshots taken under the lock; nothing outside this package holds
// a live reference to a stored song.
type SongService struct {
	mu  sync.RWMutex
	log *logger.Logger

	kv       kv.Store
	primary  *storage.PrimaryStore
	entities *storage.EntityStore
	mirror   *storage.FileMirror
	recovery *storage.Recovery

	scheduler *autosave.Scheduler
	limiter   *ratelimit.Limiter

	songs         []*domain.Song
	legacy        []domain.SerializedProgression
	currentSongID string
}

// NewSongService wires the library to its persistence layers. mirror may
// be nil, in which case the service runs in key-value-only mode.
func NewSongService(store kv.Store, primary *storage.PrimaryStore, entities *storage.EntityStore, mirror *storage.FileMirror, recovery *storage.Recovery, opts Options, log *logger.Logger) *SongService {
	s := &SongService{
		log:      log.WithComponent("app"),
		kv:       store,
		primary:  primary,
		entities: entities,
		mirror:   mirror,
		recovery: recovery,
	}
	s.scheduler = autosave.NewScheduler(s.persistSongs, opts.AutoSaveDelay, opts.MaxSaveFailures, log)
	s.limiter = ratelimit.NewLimiter(opts.RateLimitInterval, opts.RateLimitQueueMax, log)
	return s
}

// LoadInitial populates the library through the recovery chain and reads
// the auxiliary records (legacy progressions, current-song marker).
func (s *SongService) LoadInitial() {
	songs := s.recovery.LoadWithRecovery()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.songs = songs
	s.legacy = s.loadLegacyProgressions()

	current, err := s.kv.GetItem(constants.KeyCurrentSong)
	if err != nil {
		s.log.Warn("Failed to read current-song marker", "error", err)
	}
	for _, song := range s.songs {
		if song.ID == current {
			s.currentSongID = current
			break
		}
	}

	s.log.Info("Library loaded", "songs", len(s.songs), "legacy_progressions", len(s.legacy))
}

func (s *SongService) loadLegacyProgressions() []domain.SerializedProgression {
	raw, err := s.kv.GetItem(constants.KeyLegacyProgressions)
	if err != nil || raw == "" {
		return nil
	}
	var legacy []domain.SerializedProgression
	if err := json.Unmarshal([]byte(raw), &legacy); err != nil {
		s.log.Warn("Legacy progressions record is unparseable, ignoring", "error", err)
		return nil
	}
	return legacy
}

// Songs returns a deep copy of the library sorted by creation time.
func (s *SongService) Songs() []*domain.Song {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := domain.CloneSongs(s.songs)
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// GetSong returns a deep copy of one song.
func (s *SongService) GetSong(id string) (*domain.Song, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	song := s.findLocked(id)
	if song == nil {
		return nil, fmt.Errorf("song not found: %s", id)
	}
	return song.Clone(), nil
}

// CreateSong adds a new song with default playback settings and schedules
// a save.
func (s *SongService) CreateSong(name string) *domain.Song {
	now := time.Now().UTC()
	song := &domain.Song{
		ID:        uuid.New().String(),
		Name:      name,
		Tuning:    constants.DefaultTuning,
		BPM:       constants.DefaultBPM,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.songs = append(s.songs, song)
	snapshot := domain.CloneSongs(s.songs)
	s.mu.Unlock()

	s.log.WithSong(song.ID, song.Name).Info("Song created")
	s.scheduler.ScheduleWrite(snapshot)
	return song.Clone()
}

// RenameSong updates a song's name and schedules a save.
func (s *SongService) RenameSong(id, name string) (*domain.Song, error) {
	s.mu.Lock()
	song := s.findLocked(id)
	if song == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("song not found: %s", id)
	}
	song.Name = name
	song.UpdatedAt = time.Now().UTC()
	out := song.Clone()
	snapshot := domain.CloneSongs(s.songs)
	s.mu.Unlock()

	s.scheduler.ScheduleWrite(snapshot)
	return out, nil
}

// DeleteSong removes a song and all records derived from it: the
// per-song fallback record, the last-opened stamp, the mirrored file and
// the current-song marker when it pointed at the deleted song.
func (s *SongService) DeleteSong(id string) error {
	s.mu.Lock()
	idx := -1
	for i, song := range s.songs {
		if song.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("song not found: %s", id)
	}
	name := s.songs[idx].Name
	s.songs = append(s.songs[:idx], s.songs[idx+1:]...)
	clearedCurrent := s.currentSongID == id
	if clearedCurrent {
		s.currentSongID = ""
	}
	snapshot := domain.CloneSongs(s.songs)
	s.mu.Unlock()

	if err := s.entities.DeleteEntity(id); err != nil {
		s.log.Warn("Failed to delete per-song record", "song_id", id, "error", err)
	}
	if err := s.kv.RemoveItem(constants.KeyLastOpenedPrefix + id); err != nil {
		s.log.Warn("Failed to remove last-opened stamp", "song_id", id, "error", err)
	}
	if clearedCurrent {
		if err := s.kv.RemoveItem(constants.KeyCurrentSong); err != nil {
			s.log.Warn("Failed to clear current-song marker", "error", err)
		}
	}
	if s.mirror != nil {
		s.mirror.RemoveSongFile(id)
	}

	s.log.WithSong(id, name).Info("Song deleted")
	s.scheduler.ScheduleWrite(snapshot)
	return nil
}

// OpenSong marks a song as the current one and stamps its last-opened
// time.
func (s *SongService) OpenSong(id string) (*domain.Song, error) {
	now := time.Now().UTC()

	s.mu.Lock()
	song := s.findLocked(id)
	if song == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("song not found: %s", id)
	}
	song.LastOpened = &now
	s.currentSongID = id
	out := song.Clone()
	snapshot := domain.CloneSongs(s.songs)
	s.mu.Unlock()

	if err := s.kv.SetItem(constants.KeyCurrentSong, id); err != nil {
		s.log.Warn("Failed to persist current-song marker", "error", err)
	}
	if err := s.kv.SetItem(constants.KeyLastOpenedPrefix+id, codec.FormatTime(now)); err != nil {
		s.log.Warn("Failed to persist last-opened stamp", "song_id", id, "error", err)
	}

	s.scheduler.ScheduleWrite(snapshot)
	return out, nil
}

// CurrentSong returns the song last opened in this session, or nil.
func (s *SongService) CurrentSong() *domain.Song {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLocked(s.currentSongID).Clone()
}

// AddProgression appends a progression to a song and schedules a save.
func (s *SongService) AddProgression(songID, name string, chords []domain.Chord, bpm *int) (*domain.Progression, error) {
	now := time.Now().UTC()
	prog := domain.Progression{
		ID:        uuid.New().String(),
		Name:      name,
		Chords:    chords,
		BPM:       bpm,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	song := s.findLocked(songID)
	if song == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("song not found: %s", songID)
	}
	song.Progressions = append(song.Progressions, prog)
	song.UpdatedAt = now
	snapshot := domain.CloneSongs(s.songs)
	s.mu.Unlock()

	s.scheduler.ScheduleWrite(snapshot)
	return prog.Clone(), nil
}

// UpdateProgression replaces a progression's name, chords and tempo
// override and schedules a save.
func (s *SongService) UpdateProgression(songID, progID, name string, chords []domain.Chord, bpm *int) (*domain.Progression, error) {
	now := time.Now().UTC()

	s.mu.Lock()
	song := s.findLocked(songID)
	if song == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("song not found: %s", songID)
	}
	var updated *domain.Progression
	for i := range song.Progressions {
		if song.Progressions[i].ID == progID {
			song.Progressions[i].Name = name
			song.Progressions[i].Chords = chords
			song.Progressions[i].BPM = bpm
			song.Progressions[i].UpdatedAt = now
			updated = song.Progressions[i].Clone()
			break
		}
	}
	if updated == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("progression not found: %s", progID)
	}
	song.UpdatedAt = now
	snapshot := domain.CloneSongs(s.songs)
	s.mu.Unlock()

	s.scheduler.ScheduleWrite(snapshot)
	return updated, nil
}

// DeleteProgression removes a progression from a song and schedules a
// save.
func (s *SongService) DeleteProgression(songID, progID string) error {
	s.mu.Lock()
	song := s.findLocked(songID)
	if song == nil {
		s.mu.Unlock()
		return fmt.Errorf("song not found: %s", songID)
	}
	idx := -1
	for i := range song.Progressions {
		if song.Progressions[i].ID == progID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("progression not found: %s", progID)
	}
	song.Progressions = append(song.Progressions[:idx], song.Progressions[idx+1:]...)
	song.UpdatedAt = time.Now().UTC()
	snapshot := domain.CloneSongs(s.songs)
	s.mu.Unlock()

	s.scheduler.ScheduleWrite(snapshot)
	return nil
}

// UpdateSettings applies a partial playback-settings update immediately
// in memory, then routes the persistence through the rate limiter so
// rapid capo/tuning edits cannot flood the store.
func (s *SongService) UpdateSettings(songID string, update SettingsUpdate) (*domain.Song, error) {
	s.mu.Lock()
	song := s.findLocked(songID)
	if song == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("song not found: %s", songID)
	}
	if update.Tuning != nil {
		song.Tuning = *update.Tuning
	}
	if update.Capo != nil {
		song.Capo = *update.Capo
	}
	if update.BPM != nil {
		song.BPM = *update.BPM
	}
	song.UpdatedAt = time.Now().UTC()
	out := song.Clone()
	s.mu.Unlock()

	s.limiter.DebouncedSave(s.persistCurrentState)
	return out, nil
}

// persistCurrentState snapshots the live library at execution time and
// writes it through the scheduler, so rate-limited writes share the
// scheduler's failure accounting and circuit state. Last-write-wins
// semantics make a point-in-time capture at enqueue time pointless.
func (s *SongService) persistCurrentState() error {
	s.mu.RLock()
	snapshot := domain.CloneSongs(s.songs)
	s.mu.RUnlock()
	return s.scheduler.WriteNow(snapshot)
}

// persistSongs is the single write path: consolidated envelope first,
// then per-song fallback records and the file mirror, both best effort.
func (s *SongService) persistSongs(songs []*domain.Song) error {
	if err := s.primary.Save(songs); err != nil {
		return err
	}

	keep := make(map[string]bool, len(songs))
	for _, song := range songs {
		keep[song.ID] = true
		if err := s.entities.SaveEntity(song); err != nil {
			s.log.Warn("Failed to write per-song record", "song_id", song.ID, "error", err)
		}
	}
	s.entities.Prune(keep)

	if s.mirror != nil {
		raw, err := s.kv.GetItem(constants.KeySongs)
		if err != nil || raw == "" {
			s.log.Warn("Failed to read envelope for mirroring", "error", err)
		} else {
			s.mirror.MirrorEnvelope(raw)
		}
	}
	return nil
}

// SaveNow flushes any pending debounced write immediately.
func (s *SongService) SaveNow() error {
	s.mu.RLock()
	snapshot := domain.CloneSongs(s.songs)
	s.mu.RUnlock()
	return s.scheduler.ForceWrite(snapshot)
}

// ReenableAutoSave closes the failure circuit so scheduled writes resume.
func (s *SongService) ReenableAutoSave() {
	s.scheduler.Reenable()
}

// AutoSaveStatus exposes the scheduler's state for diagnostics.
func (s *SongService) AutoSaveStatus() autosave.Status {
	return s.scheduler.Status()
}

// RateLimitStatus exposes the settings limiter's state for diagnostics.
func (s *SongService) RateLimitStatus() ratelimit.Status {
	return s.limiter.Status()
}

// CustomChords reads the user-defined chord library.
func (s *SongService) CustomChords() ([]domain.Chord, error) {
	raw, err := s.kv.GetItem(constants.KeyCustomChords)
	if err != nil {
		return nil, fmt.Errorf("failed to read custom chords: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	var chords []domain.Chord
	if err := json.Unmarshal([]byte(raw), &chords); err != nil {
		return nil, fmt.Errorf("custom chords record is unparseable: %w", err)
	}
	return chords, nil
}

// AddCustomChord upserts one chord into the user-defined library, keyed
// by name.
func (s *SongService) AddCustomChord(chord domain.Chord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chords, err := s.CustomChords()
	if err != nil {
		return err
	}
	replaced := false
	for i := range chords {
		if chords[i].Name == chord.Name {
			chords[i] = chord
			replaced = true
			break
		}
	}
	if !replaced {
		chords = append(chords, chord)
	}
	return s.writeCustomChords(chords)
}

// RemoveCustomChord deletes one chord from the user-defined library by
// name. Removing an absent chord is a no-op.
func (s *SongService) RemoveCustomChord(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chords, err := s.CustomChords()
	if err != nil {
		return err
	}
	out := chords[:0]
	for _, c := range chords {
		if c.Name != name {
			out = append(out, c)
		}
	}
	return s.writeCustomChords(out)
}

func (s *SongService) writeCustomChords(chords []domain.Chord) error {
	data, err := json.Marshal(chords)
	if err != nil {
		return fmt.Errorf("failed to encode custom chords: %w", err)
	}
	if err := s.kv.SetItem(constants.KeyCustomChords, string(data)); err != nil {
		return fmt.Errorf("failed to write custom chords: %w", err)
	}
	return nil
}

// SnapshotSongs implements backup.Library.
func (s *SongService) SnapshotSongs() []*domain.Song {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneSongs(s.songs)
}

// LegacyProgressions implements backup.Library.
func (s *SongService) LegacyProgressions() []domain.SerializedProgression {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.SerializedProgression(nil), s.legacy...)
}

// Replace implements backup.Library: swap in a fully built library, then
// persist it immediately so the restore survives a crash. The write goes
// through the scheduler, which also cancels any pending write of the
// pre-restore state.
func (s *SongService) Replace(songs []*domain.Song, legacy []domain.SerializedProgression) {
	s.mu.Lock()
	s.songs = songs
	s.legacy = legacy
	s.currentSongID = ""
	snapshot := domain.CloneSongs(s.songs)
	s.mu.Unlock()

	if err := s.kv.RemoveItem(constants.KeyCurrentSong); err != nil {
		s.log.Warn("Failed to clear current-song marker after restore", "error", err)
	}
	if err := s.scheduler.ForceWrite(snapshot); err != nil {
		s.log.Warn("Failed to persist restored library", "error", err)
	}
}

// Stop flushes pending work and shuts the write paths down.
func (s *SongService) Stop() {
	s.limiter.Clear()
	if err := s.SaveNow(); err != nil {
		s.log.Warn("Final save on shutdown failed", "error", err)
	}
	s.scheduler.Stop()
}

func (s *SongService) findLocked(id string) *domain.Song {
	if id == "" {
		return nil
	}
	for _, song := range s.songs {
		if song.ID == id {
			return song
		}
	}
	return nil
}
