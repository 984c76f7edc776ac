// Package constants contains application-wide constants to avoid magic numbers and strings.
package constants

import "time"

// Application defaults
const (
	DefaultPort               = "8080"
	DefaultDBPath             = "chordbook.db"
	DefaultAutoSaveDelay      = 3 * time.Second
	DefaultMaxSaveFailures    = 5
	DefaultRateLimitInterval  = 2 * time.Second
	DefaultRateLimitQueueMax  = 10
	DefaultAutoBackupInterval = 5 * time.Minute
	DefaultMirrorMaxFiles     = 50
	DefaultMirrorOpDelay      = 100 * time.Millisecond
	DefaultKVQuotaBytes       = 5 * 1024 * 1024 // matches typical browser storage limits
	DefaultBPM                = 120
	DefaultTuning             = "standard"
)

// Storage key namespace. These are persisted identifiers; changing any of
// them breaks compatibility with existing data.
const (
	KeySongs              = "chordbook:songs"
	KeySongsBackup        = "chordbook:songs:backup"
	KeySongPrefix         = "chordbook:song:"
	KeyCurrentSong        = "chordbook:current-song"
	KeyLastOpenedPrefix   = "chordbook:last-opened:"
	KeyCustomChords       = "chordbook:custom-chords"
	KeyLegacyProgressions = "chordbook:progressions"
)

// Schema versions
const (
	EnvelopeVersion = "2.0"
	SnapshotVersion = "2.0"
)

// Mirror file names
const (
	MirrorSongsFile  = "songs.json"
	MirrorSongPrefix = "song-"
	MirrorFileExt    = ".json"
	ExportFilePrefix = "chordbook-backup"
)

// File Permissions
const (
	DirPermissions  = 0755
	FilePermissions = 0644
)

// Characters to sanitize from filesystem paths
const InvalidPathChars = "<>:\"/\\|?*"
