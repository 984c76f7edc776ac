package domain

import (
	"time"

	"github.com/cesargomez89/chordbook/internal/constants"
)

// Chord is a named set of pitch-class note names. The name is either a
// standard chord symbol ("Am7") or a custom bracket-notation identifier
// ("[x02210]"). Note order is musically meaningful.
type Chord struct {
	Name  string   `json:"name"`
	Notes []string `json:"notes"`
}

// Progression is a named, ordered chord sequence owned by exactly one Song.
// BPM is an optional override; when nil the parent song's tempo applies.
type Progression struct {
	ID        string
	Name      string
	Chords    []Chord
	BPM       *int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Song is the root entity. Persisted copies are snapshots, never live
// references; the in-memory application state owns the only mutable copy.
type Song struct {
	ID           string
	Name         string
	Progressions []Progression
	Tuning       string
	Capo         int
	BPM          int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastOpened   *time.Time
}

// EffectiveBPM resolves a progression's tempo: its own override if set,
// otherwise the parent song's tempo, otherwise the application default.
func (p *Progression) EffectiveBPM(song *Song) int {
	if p.BPM != nil {
		return *p.BPM
	}
	if song != nil && song.BPM != 0 {
		return song.BPM
	}
	return constants.DefaultBPM
}

// Clone returns a deep copy of the song.
func (s *Song) Clone() *Song {
	if s == nil {
		return nil
	}
	out := *s
	if s.LastOpened != nil {
		lo := *s.LastOpened
		out.LastOpened = &lo
	}
	out.Progressions = make([]Progression, len(s.Progressions))
	for i := range s.Progressions {
		out.Progressions[i] = *s.Progressions[i].Clone()
	}
	return &out
}

// Clone returns a deep copy of the progression.
func (p *Progression) Clone() *Progression {
	if p == nil {
		return nil
	}
	out := *p
	if p.BPM != nil {
		bpm := *p.BPM
		out.BPM = &bpm
	}
	out.Chords = make([]Chord, len(p.Chords))
	for i, c := range p.Chords {
		out.Chords[i] = Chord{Name: c.Name, Notes: append([]string(nil), c.Notes...)}
	}
	return &out
}

// CloneSongs deep-copies a song set. Used to hand immutable snapshots to
// the write scheduler so later mutations cannot race a pending save.
func CloneSongs(songs []*Song) []*Song {
	out := make([]*Song, len(songs))
	for i, s := range songs {
		out[i] = s.Clone()
	}
	return out
}

// TotalProgressions counts progressions across a song set.
func TotalProgressions(songs []*Song) int {
	total := 0
	for _, s := range songs {
		total += len(s.Progressions)
	}
	return total
}
