package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherCoalescesBurstIntoOneBatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("1"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := New(30 * time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if err := w.AddRecursive(dir); err != nil {
		t.Fatalf("AddRecursive: %v", err)
	}

	for i := 0; i < 5; i++ {
		os.WriteFile(path, []byte("write"), 0644)
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case batch := <-w.Changes():
		if len(batch) == 0 {
			t.Fatalf("expected a non-empty batch")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a debounced batch")
	}
}

func TestWatcherSkipsDotAndNodeModulesDirs(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "node_modules", "pkg"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0755); err != nil {
		t.Fatal(err)
	}

	w, err := New(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if err := w.AddRecursive(dir); err != nil {
		t.Fatalf("AddRecursive: %v", err)
	}

	for _, p := range w.fsw.WatchList() {
		if b := filepath.Base(p); b == "node_modules" || b == "pkg" || b == ".git" {
			t.Fatalf("AddRecursive watched skipped directory %s", p)
		}
	}
}
