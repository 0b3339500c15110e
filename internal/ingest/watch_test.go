package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWatcher_InvalidRoot(t *testing.T) {
	_, err := NewWatcher("/nonexistent/corpus", WatchOptions{})
	require.Error(t, err)

	root := t.TempDir()
	writeCorpusFile(t, root, "file.md", "# F\n")
	_, err = NewWatcher(filepath.Join(root, "file.md"), WatchOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestWatcher_ShouldIgnore(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), WatchOptions{
		ExcludePatterns: []string{"drafts/**", "**/*.tmp"},
	})
	require.NoError(t, err)

	cases := []struct {
		rel  string
		want bool
	}{
		{".", true},
		{"", true},
		{".git", true},
		{filepath.Join(".git", "config"), true},
		{filepath.Join(".cividex", "state.db"), true},
		{filepath.Join("drafts", "wip.md"), true},
		{filepath.Join("notices", "scratch.tmp"), true},
		{filepath.Join("ordinances", "ord-2024-17.md"), false},
		{"minutes", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, w.shouldIgnore(tc.rel), tc.rel)
	}
}

func TestWatcher_EmitsBatchOnCreate(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "notices"), 0o755))

	w, err := NewWatcher(root, WatchOptions{DebounceWindow: 100 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	// Give the watcher time to register the tree.
	time.Sleep(300 * time.Millisecond)

	writeCorpusFile(t, root, "notices/hearing.md", "# Hearing\n")

	select {
	case batch := <-w.Events():
		require.NotEmpty(t, batch)
		found := false
		for _, e := range batch {
			if e.Path == "notices/hearing.md" {
				found = true
				assert.Equal(t, OpCreate, e.Operation)
			}
		}
		assert.True(t, found, "expected an event for the new file, got %v", batch)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for debounced batch")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.True(t, err == nil || errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not shut down")
	}
}

func TestWatcher_IgnoresNonCorpusFiles(t *testing.T) {
	root := t.TempDir()

	w, err := NewWatcher(root, WatchOptions{DebounceWindow: 50 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()
	time.Sleep(300 * time.Millisecond)

	writeCorpusFile(t, root, "budget.xlsx", "binary spreadsheet\n")

	select {
	case batch := <-w.Events():
		t.Fatalf("expected no batch for a spreadsheet, got %v", batch)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestRunner_Watch_IndexesNewFile(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Index.WatchDebounce = "100ms"
	require.NoError(t, os.MkdirAll(filepath.Join(env.corpus, "notices"), 0o755))

	r := env.newRunner(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx) }()

	// Give the watcher time to register the tree.
	time.Sleep(300 * time.Millisecond)

	writeCorpusFile(t, env.corpus, "notices/leaf-pickup.md",
		"# Leaf Pickup Schedule\n\nCurbside collection begins November 3.\n")

	// Then: the record shows up without a manual reindex
	var count int
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var err error
		count, err = env.records.Count(context.Background())
		require.NoError(t, err)
		if count == 1 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	assert.Equal(t, 1, count, "watch loop should have ingested the new file")

	cancel()
	select {
	case err := <-done:
		assert.True(t, err == nil || errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("watch loop did not shut down")
	}
}
