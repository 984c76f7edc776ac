package storage

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cesargomez89/chordbook/internal/bridge"
	"github.com/cesargomez89/chordbook/internal/logger"
)

// fakeBridge records every file operation in order.
type fakeBridge struct {
	mu    sync.Mutex
	files map[string]string
	mtime map[string]time.Time
	ops   []string
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{files: make(map[string]string), mtime: make(map[string]time.Time)}
}

func (b *fakeBridge) SaveFile(name, content string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[name] = content
	b.mtime[name] = time.Now()
	b.ops = append(b.ops, "save:"+name)
	return nil
}

func (b *fakeBridge) ReadFile(name string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.files[name], nil
}

func (b *fakeBridge) DeleteFile(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.files, name)
	delete(b.mtime, name)
	b.ops = append(b.ops, "delete:"+name)
	return nil
}

func (b *fakeBridge) ListFiles() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var names []string
	for name := range b.files {
		names = append(names, name)
	}
	return names, nil
}

func (b *fakeBridge) GetFileStats(name string) (bridge.FileStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.mtime[name]
	if !ok {
		return bridge.FileStats{}, fmt.Errorf("no such file: %s", name)
	}
	return bridge.FileStats{Size: int64(len(b.files[name])), ModTime: t}, nil
}

func (b *fakeBridge) StorageDir() string { return "/fake" }

func (b *fakeBridge) fileNames() map[string]bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]bool, len(b.files))
	for name := range b.files {
		out[name] = true
	}
	return out
}

func TestMirrorWriteEnvelopeCleansSongFiles(t *testing.T) {
	fake := newFakeBridge()
	fake.SaveFile("song-a.json", "{}")
	fake.SaveFile("song-b.json", "{}")
	fake.SaveFile("unrelated.txt", "keep")

	m := NewFileMirror(fake, 0, 100, logger.Default())
	m.writeEnvelope(`{"version":"2.0"}`)

	files := fake.fileNames()
	if !files["songs.json"] {
		t.Error("Expected consolidated file to be written")
	}
	if files["song-a.json"] || files["song-b.json"] {
		t.Error("Expected redundant per-song files to be removed")
	}
	if !files["unrelated.txt"] {
		t.Error("Expected unrelated files to survive")
	}
}

func TestMirrorRetention(t *testing.T) {
	fake := newFakeBridge()
	// Oldest first; fake mtimes are assigned at save time
	for i := 0; i < 5; i++ {
		fake.SaveFile(fmt.Sprintf("backup-%d.json", i), "{}")
		fake.mtime[fmt.Sprintf("backup-%d.json", i)] = time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC)
	}

	m := NewFileMirror(fake, 0, 3, logger.Default())
	m.enforceRetention()

	files := fake.fileNames()
	if len(files) != 3 {
		t.Fatalf("Expected 3 files after retention, got %d", len(files))
	}
	if files["backup-0.json"] || files["backup-1.json"] {
		t.Error("Expected the two oldest files to be deleted")
	}
	if !files["backup-4.json"] {
		t.Error("Expected the newest file to survive")
	}
}

func TestMirrorWorkerProcessesJobs(t *testing.T) {
	fake := newFakeBridge()
	m := NewFileMirror(fake, 0, 100, logger.Default())
	m.Start()

	m.MirrorEnvelope(`{"version":"2.0"}`)
	m.RemoveSongFile("gone")

	// Jobs run on the worker goroutine; wait briefly for them to drain
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if content, _ := fake.ReadFile("songs.json"); content != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	m.Stop()

	content, _ := fake.ReadFile("songs.json")
	if content != `{"version":"2.0"}` {
		t.Errorf("Expected envelope content, got %q", content)
	}
}

func TestMirrorAgainstLocalBridge(t *testing.T) {
	b, err := bridge.NewLocalBridge(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBridge failed: %v", err)
	}

	m := NewFileMirror(b, 0, 10, logger.Default())
	m.writeEnvelope(`{"version":"2.0","songs":[]}`)

	content, err := b.ReadFile("songs.json")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if content != `{"version":"2.0","songs":[]}` {
		t.Errorf("Expected mirrored envelope, got %q", content)
	}
}
