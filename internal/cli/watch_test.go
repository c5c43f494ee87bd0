package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	db "github.com/markdave123-py/docindex/internal/core/database"
	"github.com/markdave123-py/docindex/internal/core/ingestion_engine"
	"github.com/markdave123-py/docindex/internal/logging"
	"github.com/markdave123-py/docindex/internal/models"
)

type fakeIngester struct {
	mu    sync.Mutex
	paths []string
	fail  map[string]bool
	proc  *ingestion_engine.DocumentProcessor
}

func newFakeIngester() *fakeIngester {
	return &fakeIngester{fail: map[string]bool{}, proc: ingestion_engine.NewDocumentProcessor(logging.Discard())}
}

func (f *fakeIngester) IngestFile(_ context.Context, path string, _ ingestion_engine.IngestOptions) (*ingestion_engine.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	if f.fail[path] {
		return nil, errors.New("boom")
	}
	return &ingestion_engine.IngestResult{FilePath: path, ChunkCount: 1}, nil
}

func (f *fakeIngester) Processor() *ingestion_engine.DocumentProcessor { return f.proc }

func (f *fakeIngester) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func newTestWatcher(t *testing.T, ing *fakeIngester, out *bytes.Buffer) *folderWatcher {
	t.Helper()
	w, err := newFolderWatcher(ing, ingestion_engine.IngestOptions{}, out, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestFolderWatcher_Relevant(t *testing.T) {
	dir := t.TempDir()
	doc := writeDoc(t, dir, "notes.txt", "content")
	hidden := writeDoc(t, dir, ".notes.txt", "content")
	image := writeDoc(t, dir, "photo.png", "content")
	nested := writeDoc(t, dir, "deep/inner.txt", "content")
	sub := filepath.Join(dir, "sub.txt")
	require.NoError(t, os.Mkdir(sub, 0o755))

	tests := []struct {
		name string
		ev   fsnotify.Event
		want bool
	}{
		{"create", fsnotify.Event{Name: doc, Op: fsnotify.Create}, true},
		{"write", fsnotify.Event{Name: doc, Op: fsnotify.Write}, true},
		{"write and chmod", fsnotify.Event{Name: doc, Op: fsnotify.Write | fsnotify.Chmod}, true},
		{"chmod only", fsnotify.Event{Name: doc, Op: fsnotify.Chmod}, false},
		{"remove", fsnotify.Event{Name: doc, Op: fsnotify.Remove}, false},
		{"hidden", fsnotify.Event{Name: hidden, Op: fsnotify.Create}, false},
		{"unsupported", fsnotify.Event{Name: image, Op: fsnotify.Create}, false},
		{"directory", fsnotify.Event{Name: sub, Op: fsnotify.Create}, false},
		{"vanished", fsnotify.Event{Name: filepath.Join(dir, "gone.txt"), Op: fsnotify.Create}, false},
		{"subdirectory of flat root", fsnotify.Event{Name: nested, Op: fsnotify.Create}, false},
	}

	w := newTestWatcher(t, newFakeIngester(), &bytes.Buffer{})
	require.NoError(t, w.Add(watchRoot{path: dir}))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, rank, ok := w.relevant(tt.ev)
			assert.Equal(t, tt.want, ok)
			if tt.want {
				assert.Equal(t, tt.ev.Name, path)
				assert.Zero(t, rank)
			}
		})
	}
}

func TestFolderWatcher_RootsFilterAndRank(t *testing.T) {
	high := t.TempDir()
	low := t.TempDir()
	pdfOnly := writeDoc(t, high, "notes.txt", "content")
	nested := writeDoc(t, high, "a/b/deep.md", "content")
	lowDoc := writeDoc(t, low, "notes.txt", "content")

	w := newTestWatcher(t, newFakeIngester(), &bytes.Buffer{})
	require.NoError(t, w.Add(watchRoot{path: high, recursive: true, types: map[string]bool{".md": true}}))
	require.NoError(t, w.Add(watchRoot{path: low}))

	_, _, ok := w.relevant(fsnotify.Event{Name: pdfOnly, Op: fsnotify.Create})
	assert.False(t, ok, "extension outside the root's types")

	path, rank, ok := w.relevant(fsnotify.Event{Name: nested, Op: fsnotify.Create})
	require.True(t, ok)
	assert.Equal(t, nested, path)
	assert.Equal(t, 0, rank)

	_, rank, ok = w.relevant(fsnotify.Event{Name: lowDoc, Op: fsnotify.Write})
	require.True(t, ok)
	assert.Equal(t, 1, rank)
}

func TestFolderWatcher_AddRejectsFiles(t *testing.T) {
	file := writeDoc(t, t.TempDir(), "a.txt", "x")
	w := newTestWatcher(t, newFakeIngester(), &bytes.Buffer{})
	assert.ErrorContains(t, w.Add(watchRoot{path: file}), "not a directory")
	assert.Error(t, w.Add(watchRoot{path: filepath.Join(t.TempDir(), "missing")}))
}

func TestFolderWatcher_FlushWaitsForSettle(t *testing.T) {
	ing := newFakeIngester()
	var out bytes.Buffer
	w := newTestWatcher(t, ing, &out)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	w.pending["/data/b.txt"] = pendingFile{seen: now.Add(-time.Second)}
	w.pending["/data/a.txt"] = pendingFile{seen: now.Add(-time.Second)}
	w.pending["/data/fresh.txt"] = pendingFile{seen: now.Add(-settleDelay / 4)}
	ing.fail["/data/b.txt"] = true

	w.flush(context.Background())

	assert.Equal(t, []string{"/data/a.txt", "/data/b.txt"}, ing.seen())
	assert.Contains(t, w.pending, "/data/fresh.txt")
	assert.Len(t, w.pending, 1)
	assert.Contains(t, out.String(), "✅ /data/a.txt: 1 chunks")
	assert.Contains(t, out.String(), "❌ /data/b.txt: boom")
}

func TestFolderWatcher_FlushFollowsRank(t *testing.T) {
	ing := newFakeIngester()
	w := newTestWatcher(t, ing, &bytes.Buffer{})

	w.pending["/low/a.txt"] = pendingFile{rank: 1}
	w.pending["/high/z.txt"] = pendingFile{rank: 0}
	w.pending["/high/b.txt"] = pendingFile{rank: 0}

	w.flush(context.Background())

	assert.Equal(t, []string{"/high/b.txt", "/high/z.txt", "/low/a.txt"}, ing.seen())
}

func TestFolderWatcher_Scan(t *testing.T) {
	dir := t.TempDir()
	top := writeDoc(t, dir, "top.txt", "content")
	writeDoc(t, dir, "sub/inner.txt", "content")
	writeDoc(t, dir, ".hidden/secret.txt", "content")
	writeDoc(t, dir, "image.png", "content")

	ing := newFakeIngester()
	w := newTestWatcher(t, ing, &bytes.Buffer{})
	require.NoError(t, w.Add(watchRoot{path: dir}))
	require.NoError(t, w.Scan())
	assert.Equal(t, []string{top}, mapKeys(w.pending))

	rw := newTestWatcher(t, ing, &bytes.Buffer{})
	require.NoError(t, rw.Add(watchRoot{path: dir, recursive: true}))
	require.NoError(t, rw.Scan())
	assert.ElementsMatch(t, []string{top, filepath.Join(dir, "sub", "inner.txt")}, mapKeys(rw.pending))
}

func TestResolveRoots(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	roots, err := resolveRoots(ctx, store, []string{"a", "b"}, true)
	require.NoError(t, err)
	assert.Equal(t, []watchRoot{{path: "a", recursive: true}, {path: "b", recursive: true}}, roots)

	_, err = resolveRoots(ctx, store, nil, false)
	assert.ErrorIs(t, err, errNoWatchFolders)

	require.NoError(t, store.AddWatchFolder(ctx, &models.WatchFolder{FolderPath: "/low", Priority: 1}))
	require.NoError(t, store.AddWatchFolder(ctx, &models.WatchFolder{FolderPath: "/high", Recursive: true, FileTypes: []string{"pdf"}, Priority: 9}))
	off := &models.WatchFolder{FolderPath: "/off", Priority: 50}
	require.NoError(t, store.AddWatchFolder(ctx, off))
	off.Active = false
	require.NoError(t, store.UpdateWatchFolder(ctx, off))

	roots, err = resolveRoots(ctx, store, nil, false)
	require.NoError(t, err)
	assert.Equal(t, []watchRoot{
		{path: "/high", recursive: true, types: map[string]bool{".pdf": true}},
		{path: "/low"},
	}, roots)
}

func TestFolderWatcher_RunIngestsNewFiles(t *testing.T) {
	ing := newFakeIngester()
	w := newTestWatcher(t, ing, &bytes.Buffer{})
	dir := t.TempDir()
	require.NoError(t, w.Add(watchRoot{path: dir, recursive: true}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	path := writeDoc(t, dir, "report.md", "# Report")
	writeDoc(t, dir, "skip.bin", "binary")

	assert.Eventually(t, func() bool {
		return len(ing.seen()) == 1
	}, 5*time.Second, 50*time.Millisecond)

	nested := writeDoc(t, dir, "later/notes.txt", "notes")
	assert.Eventually(t, func() bool {
		return len(ing.seen()) == 2
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{path, nested}, ing.seen())
}

func mapKeys(m map[string]pendingFile) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func newSQLiteStore(t *testing.T) *db.DatabaseClient {
	t.Helper()
	store, err := db.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "watch.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}
