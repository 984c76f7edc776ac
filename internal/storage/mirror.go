package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cesargomez89/chordbook/internal/bridge"
	"github.com/cesargomez89/chordbook/internal/constants"
	"github.com/cesargomez89/chordbook/internal/logger"
)

type mirrorJobKind int

const (
	mirrorWriteEnvelope mirrorJobKind = iota
	mirrorDeleteSong
)

type mirrorJob struct {
	kind    mirrorJobKind
	content string
	songID  string
}

// FileMirror mirrors the consolidated envelope to the host filesystem when
// a file bridge is available. All file operations run on one worker
// goroutine, one at a time, with a pause between operations so a large
// library cannot exhaust host file descriptors.
type FileMirror struct {
	bridge   bridge.FileBridge
	log      *logger.Logger
	opDelay  time.Duration
	maxFiles int

	jobs   chan mirrorJob
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewFileMirror(b bridge.FileBridge, opDelay time.Duration, maxFiles int, log *logger.Logger) *FileMirror {
	ctx, cancel := context.WithCancel(context.Background())
	return &FileMirror{
		bridge:   b,
		log:      log.WithComponent("mirror"),
		opDelay:  opDelay,
		maxFiles: maxFiles,
		jobs:     make(chan mirrorJob, 16),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (m *FileMirror) Start() {
	m.log.Info("Starting file mirror", "dir", m.bridge.StorageDir())
	m.wg.Add(1)
	go m.run()
}

func (m *FileMirror) Stop() {
	m.log.Info("Stopping file mirror")
	m.cancel()
	m.wg.Wait()
}

// MirrorEnvelope enqueues a consolidated write. The mirror is best
// effort: when the queue is full the write is dropped with a warning;
// the next save carries the newer state anyway.
func (m *FileMirror) MirrorEnvelope(content string) {
	select {
	case m.jobs <- mirrorJob{kind: mirrorWriteEnvelope, content: content}:
	default:
		m.log.Warn("Mirror queue full, dropping envelope write")
	}
}

// RemoveSongFile enqueues removal of a deleted song's mirrored file.
func (m *FileMirror) RemoveSongFile(songID string) {
	select {
	case m.jobs <- mirrorJob{kind: mirrorDeleteSong, songID: songID}:
	default:
		m.log.Warn("Mirror queue full, dropping song file removal", "song_id", songID)
	}
}

func (m *FileMirror) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case job := <-m.jobs:
			switch job.kind {
			case mirrorWriteEnvelope:
				m.writeEnvelope(job.content)
			case mirrorDeleteSong:
				m.deleteSongFile(job.songID)
			}
		}
	}
}

// writeEnvelope writes the consolidated file, removes per-song files made
// redundant by it (written by older versions of the app), then enforces
// the retention limit.
func (m *FileMirror) writeEnvelope(content string) {
	if err := m.bridge.SaveFile(constants.MirrorSongsFile, content); err != nil {
		m.log.Warn("Failed to mirror envelope", "error", err)
		return
	}
	m.pause()

	names, err := m.bridge.ListFiles()
	if err != nil {
		m.log.Warn("Failed to list mirrored files", "error", err)
		return
	}
	for _, name := range names {
		if !isSongFile(name) {
			continue
		}
		if err := m.bridge.DeleteFile(name); err != nil {
			m.log.Warn("Failed to remove redundant song file", "file", name, "error", err)
		}
		m.pause()
	}

	m.enforceRetention()
}

func (m *FileMirror) deleteSongFile(songID string) {
	name := constants.MirrorSongPrefix + songID + constants.MirrorFileExt
	if err := m.bridge.DeleteFile(name); err != nil {
		m.log.Warn("Failed to delete mirrored song file", "file", name, "error", err)
	}
	m.pause()
}

// enforceRetention deletes the oldest files (by modification time) until
// the directory is back under the configured maximum.
func (m *FileMirror) enforceRetention() {
	names, err := m.bridge.ListFiles()
	if err != nil {
		m.log.Warn("Failed to list files for retention", "error", err)
		return
	}
	if len(names) <= m.maxFiles {
		return
	}

	type fileAge struct {
		name    string
		modTime time.Time
	}
	var files []fileAge
	for _, name := range names {
		stats, err := m.bridge.GetFileStats(name)
		if err != nil {
			continue
		}
		files = append(files, fileAge{name: name, modTime: stats.ModTime})
		m.pause()
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	excess := len(files) - m.maxFiles
	for i := 0; i < excess && i < len(files); i++ {
		if err := m.bridge.DeleteFile(files[i].name); err != nil {
			m.log.Warn("Failed to delete file during retention", "file", files[i].name, "error", err)
			continue
		}
		m.log.Info("Deleted old mirrored file", "file", files[i].name)
		m.pause()
	}
}

func (m *FileMirror) pause() {
	if m.opDelay > 0 {
		time.Sleep(m.opDelay)
	}
}

func isSongFile(name string) bool {
	return strings.HasPrefix(name, constants.MirrorSongPrefix) && strings.HasSuffix(name, constants.MirrorFileExt)
}
