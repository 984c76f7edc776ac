package app

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cesargomez89/chordbook/internal/constants"
	"github.com/cesargomez89/chordbook/internal/domain"
	"github.com/cesargomez89/chordbook/internal/kv"
	"github.com/cesargomez89/chordbook/internal/logger"
	"github.com/cesargomez89/chordbook/internal/storage"
)

func newTestService(t *testing.T) (*SongService, *kv.MemoryStore) {
	t.Helper()
	store := kv.NewMemoryStore(0)
	log := logger.Default()
	primary := storage.NewPrimaryStore(store, log)
	entities := storage.NewEntityStore(store, log)
	recovery := storage.NewRecovery(primary, entities, store, log)
	opts := Options{
		AutoSaveDelay:     10 * time.Millisecond,
		MaxSaveFailures:   3,
		RateLimitInterval: 10 * time.Millisecond,
		RateLimitQueueMax: 5,
	}
	svc := NewSongService(store, primary, entities, nil, recovery, opts, log)
	svc.LoadInitial()
	t.Cleanup(svc.Stop)
	return svc, store
}

func TestCreateSongDefaults(t *testing.T) {
	svc, _ := newTestService(t)

	song := svc.CreateSong("Blue in Green")

	if song.ID == "" {
		t.Error("Expected a generated ID")
	}
	if song.BPM != constants.DefaultBPM {
		t.Errorf("Expected default BPM %d, got %d", constants.DefaultBPM, song.BPM)
	}
	if song.Tuning != constants.DefaultTuning {
		t.Errorf("Expected default tuning %s, got %s", constants.DefaultTuning, song.Tuning)
	}
	if len(svc.Songs()) != 1 {
		t.Errorf("Expected 1 song in the library, got %d", len(svc.Songs()))
	}
}

func TestSaveNowWritesEnvelope(t *testing.T) {
	svc, store := newTestService(t)
	song := svc.CreateSong("So What")

	if err := svc.SaveNow(); err != nil {
		t.Fatalf("SaveNow failed: %v", err)
	}

	raw, _ := store.GetItem(constants.KeySongs)
	if raw == "" {
		t.Fatal("Expected consolidated envelope to be written")
	}
	var env domain.Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("Envelope is invalid JSON: %v", err)
	}
	if env.SongCount != 1 || env.Songs[0].ID != song.ID {
		t.Errorf("Expected envelope with the created song, got %+v", env)
	}

	// Per-song fallback record written in the same pass
	entityRaw, _ := store.GetItem(constants.KeySongPrefix + song.ID)
	if entityRaw == "" {
		t.Error("Expected per-song record to be written")
	}
}

func TestDeleteSongCascades(t *testing.T) {
	svc, store := newTestService(t)
	song := svc.CreateSong("Footprints")
	if _, err := svc.OpenSong(song.ID); err != nil {
		t.Fatalf("OpenSong failed: %v", err)
	}
	if err := svc.SaveNow(); err != nil {
		t.Fatalf("SaveNow failed: %v", err)
	}

	if err := svc.DeleteSong(song.ID); err != nil {
		t.Fatalf("DeleteSong failed: %v", err)
	}

	if raw, _ := store.GetItem(constants.KeySongPrefix + song.ID); raw != "" {
		t.Error("Expected per-song record to be removed")
	}
	if raw, _ := store.GetItem(constants.KeyLastOpenedPrefix + song.ID); raw != "" {
		t.Error("Expected last-opened stamp to be removed")
	}
	if raw, _ := store.GetItem(constants.KeyCurrentSong); raw != "" {
		t.Error("Expected current-song marker to be cleared")
	}
	if svc.CurrentSong() != nil {
		t.Error("Expected no current song after deleting it")
	}
}

func TestDeleteUnknownSong(t *testing.T) {
	svc, _ := newTestService(t)
	if err := svc.DeleteSong("nope"); err == nil {
		t.Error("Expected an error deleting an unknown song")
	}
}

func TestOpenSongTracking(t *testing.T) {
	svc, store := newTestService(t)
	song := svc.CreateSong("Nardis")

	opened, err := svc.OpenSong(song.ID)
	if err != nil {
		t.Fatalf("OpenSong failed: %v", err)
	}
	if opened.LastOpened == nil {
		t.Error("Expected last-opened timestamp to be set")
	}

	current, _ := store.GetItem(constants.KeyCurrentSong)
	if current != song.ID {
		t.Errorf("Expected current-song marker %s, got %s", song.ID, current)
	}
	stamp, _ := store.GetItem(constants.KeyLastOpenedPrefix + song.ID)
	if stamp == "" {
		t.Error("Expected last-opened stamp to be persisted")
	}
	if got := svc.CurrentSong(); got == nil || got.ID != song.ID {
		t.Errorf("Expected current song %s, got %v", song.ID, got)
	}
}

func TestProgressionLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	song := svc.CreateSong("Autumn Leaves")

	chords := []domain.Chord{{Name: "Am7", Notes: []string{"A", "C", "E", "G"}}}
	prog, err := svc.AddProgression(song.ID, "Verse", chords, nil)
	if err != nil {
		t.Fatalf("AddProgression failed: %v", err)
	}
	if prog.ID == "" {
		t.Error("Expected a generated progression ID")
	}

	bpm := 90
	updated, err := svc.UpdateProgression(song.ID, prog.ID, "Chorus", chords, &bpm)
	if err != nil {
		t.Fatalf("UpdateProgression failed: %v", err)
	}
	if updated.Name != "Chorus" || updated.BPM == nil || *updated.BPM != 90 {
		t.Errorf("Expected updated progression, got %+v", updated)
	}

	if err := svc.DeleteProgression(song.ID, prog.ID); err != nil {
		t.Fatalf("DeleteProgression failed: %v", err)
	}
	got, _ := svc.GetSong(song.ID)
	if len(got.Progressions) != 0 {
		t.Errorf("Expected no progressions left, got %d", len(got.Progressions))
	}

	if _, err := svc.UpdateProgression(song.ID, "missing", "x", nil, nil); err == nil {
		t.Error("Expected an error updating an unknown progression")
	}
}

func TestUpdateSettingsAppliesImmediately(t *testing.T) {
	svc, _ := newTestService(t)
	song := svc.CreateSong("All Blues")

	tuning := "drop-d"
	capo := 3
	updated, err := svc.UpdateSettings(song.ID, SettingsUpdate{Tuning: &tuning, Capo: &capo})
	if err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}
	if updated.Tuning != "drop-d" || updated.Capo != 3 {
		t.Errorf("Expected settings applied, got tuning=%s capo=%d", updated.Tuning, updated.Capo)
	}
	if updated.BPM != constants.DefaultBPM {
		t.Errorf("Expected untouched BPM, got %d", updated.BPM)
	}

	// The in-memory copy is already updated even before the limiter fires.
	got, _ := svc.GetSong(song.ID)
	if got.Tuning != "drop-d" {
		t.Errorf("Expected in-memory tuning drop-d, got %s", got.Tuning)
	}
}

func TestCustomChordLibrary(t *testing.T) {
	svc, _ := newTestService(t)

	chord := domain.Chord{Name: "[x02210]", Notes: []string{"A", "E", "A", "C", "E"}}
	if err := svc.AddCustomChord(chord); err != nil {
		t.Fatalf("AddCustomChord failed: %v", err)
	}

	// Upsert by name
	chord.Notes = []string{"A", "C", "E"}
	if err := svc.AddCustomChord(chord); err != nil {
		t.Fatalf("AddCustomChord upsert failed: %v", err)
	}

	chords, err := svc.CustomChords()
	if err != nil {
		t.Fatalf("CustomChords failed: %v", err)
	}
	if len(chords) != 1 || len(chords[0].Notes) != 3 {
		t.Errorf("Expected one upserted chord, got %+v", chords)
	}

	if err := svc.RemoveCustomChord("[x02210]"); err != nil {
		t.Fatalf("RemoveCustomChord failed: %v", err)
	}
	chords, _ = svc.CustomChords()
	if len(chords) != 0 {
		t.Errorf("Expected empty chord library, got %+v", chords)
	}
}

func TestLoadInitialRecoversFromEnvelope(t *testing.T) {
	store := kv.NewMemoryStore(0)
	log := logger.Default()
	primary := storage.NewPrimaryStore(store, log)
	entities := storage.NewEntityStore(store, log)
	recovery := storage.NewRecovery(primary, entities, store, log)

	seed := &domain.Song{
		ID: "seed", Name: "Seed", BPM: 100, Tuning: "standard",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := primary.Save([]*domain.Song{seed}); err != nil {
		t.Fatalf("seed save failed: %v", err)
	}
	legacy, _ := json.Marshal([]domain.SerializedProgression{{ID: "p1", Name: "Old"}})
	store.SetItem(constants.KeyLegacyProgressions, string(legacy))
	store.SetItem(constants.KeyCurrentSong, "seed")

	opts := Options{AutoSaveDelay: 10 * time.Millisecond, MaxSaveFailures: 3, RateLimitInterval: 10 * time.Millisecond, RateLimitQueueMax: 5}
	svc := NewSongService(store, primary, entities, nil, recovery, opts, log)
	svc.LoadInitial()
	t.Cleanup(svc.Stop)

	songs := svc.Songs()
	if len(songs) != 1 || songs[0].ID != "seed" {
		t.Fatalf("Expected recovered seed song, got %v", songs)
	}
	if got := svc.CurrentSong(); got == nil || got.ID != "seed" {
		t.Error("Expected current-song marker restored")
	}
	if got := svc.LegacyProgressions(); len(got) != 1 || got[0].ID != "p1" {
		t.Errorf("Expected legacy progressions loaded, got %v", got)
	}
}

func TestReplacePersistsRestoredLibrary(t *testing.T) {
	svc, store := newTestService(t)
	svc.CreateSong("Old Song")

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	restored := []*domain.Song{{ID: "restored", Name: "Restored", BPM: 120, Tuning: "standard", CreatedAt: now, UpdatedAt: now}}
	svc.Replace(restored, nil)

	songs := svc.Songs()
	if len(songs) != 1 || songs[0].ID != "restored" {
		t.Fatalf("Expected restored library, got %v", songs)
	}

	raw, _ := store.GetItem(constants.KeySongs)
	if !strings.Contains(raw, "restored") {
		t.Error("Expected restored library persisted immediately")
	}
	if svc.CurrentSong() != nil {
		t.Error("Expected current song cleared after restore")
	}
}

func TestDebouncedWriteCoalesces(t *testing.T) {
	svc, store := newTestService(t)
	svc.CreateSong("A")
	svc.CreateSong("B")
	svc.CreateSong("C")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		raw, _ := store.GetItem(constants.KeySongs)
		if raw != "" {
			var env domain.Envelope
			if err := json.Unmarshal([]byte(raw), &env); err == nil && env.SongCount == 3 {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Expected debounced write of all 3 songs to land")
}

// failingStore wraps a MemoryStore and fails every consolidated-envelope
// write, counting the attempts.
type failingStore struct {
	*kv.MemoryStore
	mu       sync.Mutex
	attempts int
}

func (f *failingStore) SetItem(key, value string) error {
	if key == constants.KeySongs {
		f.mu.Lock()
		f.attempts++
		f.mu.Unlock()
		return errors.New("simulated storage failure")
	}
	return f.MemoryStore.SetItem(key, value)
}

func (f *failingStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func TestSettingsWritesRespectCircuitBreaker(t *testing.T) {
	store := &failingStore{MemoryStore: kv.NewMemoryStore(0)}
	log := logger.Default()
	primary := storage.NewPrimaryStore(store, log)
	entities := storage.NewEntityStore(store, log)
	recovery := storage.NewRecovery(primary, entities, store, log)
	opts := Options{
		AutoSaveDelay:     time.Hour,
		MaxSaveFailures:   2,
		RateLimitInterval: 10 * time.Millisecond,
		RateLimitQueueMax: 5,
	}
	svc := NewSongService(store, primary, entities, nil, recovery, opts, log)
	svc.LoadInitial()
	t.Cleanup(svc.Stop)

	song := svc.CreateSong("Milestones")
	for i := 0; i < 2; i++ {
		if err := svc.SaveNow(); err == nil {
			t.Fatal("Expected save to fail")
		}
	}
	if st := svc.AutoSaveStatus(); !st.Disabled {
		t.Fatalf("Expected circuit open after repeated failures, got %+v", st)
	}
	before := store.count()

	// A settings edit still applies in memory, but its rate-limited write
	// must be dropped by the open circuit instead of retrying the store
	capo := 5
	if _, err := svc.UpdateSettings(song.ID, SettingsUpdate{Capo: &capo}); err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && svc.RateLimitStatus().HasPending {
		time.Sleep(5 * time.Millisecond)
	}

	if got := store.count(); got != before {
		t.Errorf("Expected no primary write attempts while circuit open, got %d more", got-before)
	}
	if st := svc.AutoSaveStatus(); st.Failures != 2 || !st.Disabled {
		t.Errorf("Expected failure count untouched at 2 with circuit open, got %+v", st)
	}

	got, err := svc.GetSong(song.ID)
	if err != nil {
		t.Fatalf("GetSong failed: %v", err)
	}
	if got.Capo != 5 {
		t.Errorf("Expected in-memory capo 5, got %d", got.Capo)
	}
}
