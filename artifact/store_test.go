package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dexgo/internal/fs"
)

func newTestIndex(name string, chunks ...string) *Index {
	return &Index{
		Name:    name,
		BuiltAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		IChunks: chunks,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(nil, t.TempDir(), nil)
	require.NoError(t, err)

	ix := newTestIndex("events", "chunks/part-0", "chunks/part-1")
	require.NoError(t, store.Write("events", ix))

	got, err := store.ReadIndex("events")
	require.NoError(t, err)
	assert.Equal(t, ix, got)

	ok, err := store.Exists("events")
	require.NoError(t, err)
	assert.True(t, ok)

	raw, err := store.Read("events")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"ichunks"`)

	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"events"}, names)
}

func TestStoreNotFound(t *testing.T) {
	store, err := NewStore(nil, t.TempDir(), nil)
	require.NoError(t, err)

	_, err = store.Read("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = store.ReadIndex("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := store.Exists("missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreReplace(t *testing.T) {
	store, err := NewStore(nil, t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, store.Write("events", newTestIndex("events", "old-0")))
	require.NoError(t, store.Write("events", newTestIndex("events", "new-0", "new-1")))

	got, err := store.ReadIndex("events")
	require.NoError(t, err)
	assert.Equal(t, []string{"new-0", "new-1"}, got.IChunks)

	// Replace swaps the whole document, so only one file remains.
	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"events"}, names)
}

func TestStoreDelete(t *testing.T) {
	store, err := NewStore(nil, t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, store.Write("events", newTestIndex("events", "c0")))
	require.NoError(t, store.Delete("events"))

	_, err = store.Read("events")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again signals not-found rather than succeeding silently.
	assert.ErrorIs(t, store.Delete("events"), ErrNotFound)
}

func TestStoreInvalidNames(t *testing.T) {
	store, err := NewStore(nil, t.TempDir(), nil)
	require.NoError(t, err)

	for _, name := range []string{"", ".hidden", "a/b", `a\b`, "../escape"} {
		assert.ErrorIs(t, store.Write(name, newTestIndex(name)), ErrInvalidName, "name %q", name)
		_, err := store.Read(name)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
		assert.ErrorIs(t, store.Delete(name), ErrInvalidName, "name %q", name)
	}
}

func TestStoreListSkipsTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(nil, dir, nil)
	require.NoError(t, err)

	require.NoError(t, store.Write("events", newTestIndex("events", "c0")))

	// Simulate another writer's in-flight temp file.
	tmp := filepath.Join(dir, tmpPrefix+"events-deadbeef")
	require.NoError(t, os.WriteFile(tmp, []byte("partial"), 0o644))

	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"events"}, names)
}

func TestStoreInterruptedWrite(t *testing.T) {
	tests := []struct {
		name  string
		fault fs.Fault
	}{
		{name: "write fails", fault: fs.Fault{FailAfterBytes: 4}},
		{name: "sync fails", fault: fs.Fault{FailAfterBytes: -1, FailOnSync: true}},
		{name: "rename fails", fault: fs.Fault{FailAfterBytes: -1, FailOnRename: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			ffs := fs.NewFaultyFS(nil)

			store, err := NewStore(ffs, dir, nil)
			require.NoError(t, err)

			// Persist a first version, then make the replacement fail.
			require.NoError(t, store.Write("events", newTestIndex("events", "old-0")))
			ffs.AddRule(tmpPrefix+"events", tt.fault)

			err = store.Write("events", newTestIndex("events", "new-0"))
			require.ErrorIs(t, err, fs.ErrInjected)

			// The prior artifact stays observable and no temp debris remains.
			ffs.ClearRules()
			got, err := store.ReadIndex("events")
			require.NoError(t, err)
			assert.Equal(t, []string{"old-0"}, got.IChunks)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "events", entries[0].Name())
		})
	}
}

func TestStoreInterruptedFirstWrite(t *testing.T) {
	dir := t.TempDir()
	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule(tmpPrefix, fs.Fault{FailAfterBytes: 4})

	store, err := NewStore(ffs, dir, nil)
	require.NoError(t, err)

	err = store.Write("events", newTestIndex("events", "c0"))
	require.ErrorIs(t, err, fs.ErrInjected)

	// Nothing ever becomes visible at the final path.
	_, err = store.Read("events")
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoreConcurrentWriters(t *testing.T) {
	store, err := NewStore(nil, t.TempDir(), nil)
	require.NoError(t, err)

	const writers = 16

	var wg sync.WaitGroup
	errs := make([]error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ix := newTestIndex("events", fmt.Sprintf("writer-%d-chunk-0", i), fmt.Sprintf("writer-%d-chunk-1", i))
			errs[i] = store.Write("events", ix)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "writer %d", i)
	}

	// Whichever rename won, the artifact is one writer's complete document.
	got, err := store.ReadIndex("events")
	require.NoError(t, err)
	require.Len(t, got.IChunks, 2)

	winner := strings.TrimSuffix(got.IChunks[0], "-chunk-0")
	assert.Equal(t, []string{winner + "-chunk-0", winner + "-chunk-1"}, got.IChunks)

	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"events"}, names)
}
