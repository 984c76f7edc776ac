// Package codec converts the in-memory song graph to and from its
// JSON-safe serialized representation. In memory every date is a time.Time;
// on the wire every date is an ISO-8601 string. Both conversions are total:
// malformed input is coerced, never propagated as an error.
package codec

import (
	"time"

	"github.com/cesargomez89/chordbook/internal/constants"
	"github.com/cesargomez89/chordbook/internal/domain"
)

// FormatTime renders a date in the stored ISO-8601 form.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime parses a stored ISO-8601 date. Malformed or empty input falls
// back to the current time so that a single bad field never poisons a
// whole record.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	// Older exports used millisecond precision without a zone
	if t, err := time.Parse("2006-01-02T15:04:05.000", s); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}

// SerializeSong converts a song to its storage form.
func SerializeSong(s *domain.Song) domain.SerializedSong {
	out := domain.SerializedSong{
		ID:        s.ID,
		Name:      s.Name,
		Tuning:    s.Tuning,
		Capo:      s.Capo,
		BPM:       s.BPM,
		CreatedAt: FormatTime(s.CreatedAt),
		UpdatedAt: FormatTime(s.UpdatedAt),
	}
	if s.LastOpened != nil {
		out.LastOpened = FormatTime(*s.LastOpened)
	}
	out.Progressions = make([]domain.SerializedProgression, len(s.Progressions))
	for i := range s.Progressions {
		out.Progressions[i] = SerializeProgression(&s.Progressions[i])
	}
	return out
}

// SerializeProgression converts a progression to its storage form.
func SerializeProgression(p *domain.Progression) domain.SerializedProgression {
	out := domain.SerializedProgression{
		ID:        p.ID,
		Name:      p.Name,
		CreatedAt: FormatTime(p.CreatedAt),
		UpdatedAt: FormatTime(p.UpdatedAt),
	}
	if p.BPM != nil {
		bpm := *p.BPM
		out.BPM = &bpm
	}
	out.Chords = make([]domain.Chord, len(p.Chords))
	for i, c := range p.Chords {
		out.Chords[i] = domain.Chord{Name: c.Name, Notes: append([]string(nil), c.Notes...)}
	}
	return out
}

// DeserializeSong converts a stored song back to its in-memory form.
// Missing optional fields are defaulted for forward compatibility with
// data saved by older versions.
func DeserializeSong(ss domain.SerializedSong) *domain.Song {
	out := &domain.Song{
		ID:        ss.ID,
		Name:      ss.Name,
		Tuning:    ss.Tuning,
		Capo:      ss.Capo,
		BPM:       ss.BPM,
		CreatedAt: ParseTime(ss.CreatedAt),
		UpdatedAt: ParseTime(ss.UpdatedAt),
	}
	if out.BPM == 0 {
		out.BPM = constants.DefaultBPM
	}
	if out.Tuning == "" {
		out.Tuning = constants.DefaultTuning
	}
	if ss.LastOpened != "" {
		lo := ParseTime(ss.LastOpened)
		out.LastOpened = &lo
	}
	out.Progressions = make([]domain.Progression, len(ss.Progressions))
	for i, sp := range ss.Progressions {
		out.Progressions[i] = *DeserializeProgression(sp)
	}
	return out
}

// DeserializeProgression converts a stored progression back to its
// in-memory form.
func DeserializeProgression(sp domain.SerializedProgression) *domain.Progression {
	out := &domain.Progression{
		ID:        sp.ID,
		Name:      sp.Name,
		CreatedAt: ParseTime(sp.CreatedAt),
		UpdatedAt: ParseTime(sp.UpdatedAt),
	}
	if sp.BPM != nil {
		bpm := *sp.BPM
		out.BPM = &bpm
	}
	out.Chords = make([]domain.Chord, len(sp.Chords))
	for i, c := range sp.Chords {
		out.Chords[i] = domain.Chord{Name: c.Name, Notes: append([]string(nil), c.Notes...)}
	}
	return out
}

// SerializeSongs converts a song set to storage form.
func SerializeSongs(songs []*domain.Song) []domain.SerializedSong {
	out := make([]domain.SerializedSong, len(songs))
	for i, s := range songs {
		out[i] = SerializeSong(s)
	}
	return out
}

// DeserializeSongs converts a stored song set back to in-memory form.
func DeserializeSongs(stored []domain.SerializedSong) []*domain.Song {
	out := make([]*domain.Song, len(stored))
	for i, ss := range stored {
		out[i] = DeserializeSong(ss)
	}
	return out
}
