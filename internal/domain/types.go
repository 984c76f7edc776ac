package domain

// SerializedProgression is the wire/storage form of Progression; all date
// fields are ISO-8601 strings.
type SerializedProgression struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Chords    []Chord `json:"chords"`
	BPM       *int    `json:"bpm,omitempty"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt"`
}

// SerializedSong is the wire/storage form of Song.
type SerializedSong struct {
	ID           string                  `json:"id"`
	Name         string                  `json:"name"`
	Progressions []SerializedProgression `json:"progressions"`
	Tuning       string                  `json:"tuning"`
	Capo         int                     `json:"capo"`
	BPM          int                     `json:"bpm,omitempty"`
	CreatedAt    string                  `json:"createdAt"`
	UpdatedAt    string                  `json:"updatedAt"`
	LastOpened   string                  `json:"lastOpened,omitempty"`
}

// Envelope is the consolidated record holding all songs in one storage
// write. The shape must round-trip across versions of the app.
type Envelope struct {
	Version           string           `json:"version"`
	SavedAt           string           `json:"savedAt"`
	SongCount         int              `json:"songCount"`
	TotalProgressions int              `json:"totalProgressions"`
	Songs             []SerializedSong `json:"songs"`
}

// BackupSnapshot is a full exportable copy of the library: current songs
// plus any pre-migration progression set kept for legacy compatibility.
type BackupSnapshot struct {
	Songs        []SerializedSong        `json:"songs"`
	Progressions []SerializedProgression `json:"progressions"`
	Timestamp    string                  `json:"timestamp"`
	Version      string                  `json:"version"`
}
