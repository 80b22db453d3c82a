package watch

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *recorder) onChange(files []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, files)
	return nil
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.batches...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for condition")
}

func TestFileWatcher_ManifestInput(t *testing.T) {
	tmpDir := t.TempDir()
	manifest := filepath.Join(tmpDir, "App.yaml")
	if err := os.WriteFile(manifest, []byte("name: App\n"), 0644); err != nil {
		t.Fatalf("Failed to create manifest: %v", err)
	}

	rec := &recorder{}
	watcher, err := NewFileWatcher([]string{manifest}, rec.onChange, Options{Debounce: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	if err := watcher.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}

	// unrelated files in the same directory are ignored
	if err := os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if err := os.WriteFile(manifest, []byte("name: App\nreferences: [Lib]\n"), 0644); err != nil {
		t.Fatalf("Failed to modify manifest: %v", err)
	}

	waitFor(t, func() bool { return len(rec.snapshot()) > 0 })

	for _, batch := range rec.snapshot() {
		for _, file := range batch {
			if file != manifest {
				t.Errorf("Unexpected file in batch: %s", file)
			}
		}
	}
}

func TestFileWatcher_ModuleInput(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "pkg")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/m\n"), 0644); err != nil {
		t.Fatalf("Failed to write go.mod: %v", err)
	}

	rec := &recorder{}
	// a go.mod input watches its whole module
	watcher, err := NewFileWatcher([]string{filepath.Join(root, "go.mod")}, rec.onChange, Options{Debounce: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	if err := watcher.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}

	source := filepath.Join(sub, "a.go")
	if err := os.WriteFile(source, []byte("package pkg\n"), 0644); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}

	waitFor(t, func() bool {
		for _, batch := range rec.snapshot() {
			for _, file := range batch {
				if file == source {
					return true
				}
			}
		}
		return false
	})
}

func TestNewFileWatcher_MissingInput(t *testing.T) {
	_, err := NewFileWatcher([]string{filepath.Join(t.TempDir(), "missing.yaml")}, func([]string) error { return nil }, Options{})
	if err == nil {
		t.Fatal("Expected error for missing input")
	}
}

func TestFileWatcher_FindDirectories(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"a", "a/b", ".git", "vendor/x", "testdata", "_tools"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			t.Fatalf("Failed to create dir: %v", err)
		}
	}

	watcher, err := NewFileWatcher([]string{root}, func([]string) error { return nil }, Options{})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	dirs, err := watcher.findDirectories()
	if err != nil {
		t.Fatalf("findDirectories failed: %v", err)
	}

	want := []string{root, filepath.Join(root, "a"), filepath.Join(root, "a", "b")}
	if len(dirs) != len(want) {
		t.Fatalf("Expected %v, got %v", want, dirs)
	}
	for i := range want {
		if dirs[i] != want[i] {
			t.Errorf("dirs[%d] = %s, want %s", i, dirs[i], want[i])
		}
	}
}

func TestFileWatcher_Relevant(t *testing.T) {
	root := t.TempDir()
	manifest := filepath.Join(t.TempDir(), "Lib.json")
	if err := os.WriteFile(manifest, []byte("{}"), 0644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}

	watcher, err := NewFileWatcher([]string{root, manifest}, func([]string) error { return nil }, Options{})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	tests := []struct {
		path string
		want bool
	}{
		{manifest, true},
		{filepath.Join(filepath.Dir(manifest), "Other.json"), false},
		{filepath.Join(root, "main.go"), true},
		{filepath.Join(root, "x", "go.mod"), true},
		{filepath.Join(root, "go.sum"), true},
		{filepath.Join(root, "README.md"), false},
		{filepath.Join(root, ".hidden.go"), false},
	}
	for _, tt := range tests {
		if got := watcher.relevant(tt.path); got != tt.want {
			t.Errorf("relevant(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestFileWatcher_IgnoresChmod(t *testing.T) {
	root := t.TempDir()
	watcher, err := NewFileWatcher([]string{root}, func([]string) error { return nil }, Options{Debounce: time.Hour})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer watcher.Stop()

	watcher.handle(fsnotify.Event{Name: filepath.Join(root, "a.go"), Op: fsnotify.Chmod})

	watcher.debouncer.mutex.Lock()
	pending := len(watcher.debouncer.files)
	watcher.debouncer.mutex.Unlock()
	if pending != 0 {
		t.Errorf("Expected chmod to be ignored, got %d pending", pending)
	}
}

func TestFileWatcher_StopTwice(t *testing.T) {
	watcher, err := NewFileWatcher([]string{t.TempDir()}, func([]string) error { return nil }, Options{})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	if err := watcher.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Fatalf("First stop failed: %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Errorf("Second stop failed: %v", err)
	}
}

func TestDebouncer_Add(t *testing.T) {
	var mu sync.Mutex
	var called bool
	var files []string

	debouncer := NewDebouncer(50 * time.Millisecond)
	debouncer.SetCallback(func(f []string) {
		mu.Lock()
		defer mu.Unlock()
		called = true
		files = f
	})

	debouncer.Add("b.go")
	debouncer.Add("a.go")
	debouncer.Add("b.go")

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	if !called {
		t.Fatal("Expected callback to be called")
	}
	if len(files) != 2 || files[0] != "a.go" || files[1] != "b.go" {
		t.Errorf("Expected sorted [a.go b.go], got %v", files)
	}
}

func TestDebouncer_Resets(t *testing.T) {
	var mu sync.Mutex
	calls := 0

	debouncer := NewDebouncer(80 * time.Millisecond)
	debouncer.SetCallback(func([]string) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})

	for i := 0; i < 4; i++ {
		debouncer.Add("a.go")
		time.Sleep(30 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDebouncer_Stop(t *testing.T) {
	var mu sync.Mutex
	called := false

	debouncer := NewDebouncer(50 * time.Millisecond)
	debouncer.SetCallback(func([]string) {
		mu.Lock()
		defer mu.Unlock()
		called = true
	})

	debouncer.Add("a.go")
	debouncer.Stop()
	debouncer.Add("b.go")

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if called {
		t.Error("Expected no callback after stop")
	}
}

func TestDebouncer_CallbacksNeverOverlap(t *testing.T) {
	var mu sync.Mutex
	active, maxActive := 0, 0
	seen := map[string]bool{}

	debouncer := NewDebouncer(10 * time.Millisecond)
	debouncer.SetCallback(func(files []string) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		for _, f := range files {
			seen[f] = true
		}
		mu.Unlock()

		time.Sleep(200 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
	})

	debouncer.Add("a.go")
	time.Sleep(50 * time.Millisecond)
	debouncer.Add("b.go")
	time.Sleep(100 * time.Millisecond)
	debouncer.Add("c.go")

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3 && active == 0
	})

	mu.Lock()
	defer mu.Unlock()
	if maxActive != 1 {
		t.Errorf("Expected callbacks to run one at a time, got %d concurrent", maxActive)
	}
}

func TestDebouncer_StopDropsWaitingBatch(t *testing.T) {
	var mu sync.Mutex
	var batches [][]string
	release := make(chan struct{})

	debouncer := NewDebouncer(10 * time.Millisecond)
	debouncer.SetCallback(func(files []string) {
		mu.Lock()
		batches = append(batches, files)
		first := len(batches) == 1
		mu.Unlock()
		if first {
			<-release
		}
	})

	debouncer.Add("a.go")
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 1
	})

	// b.go's batch waits behind the running callback
	debouncer.Add("b.go")
	time.Sleep(50 * time.Millisecond)
	debouncer.Stop()
	close(release)
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 {
		t.Errorf("Expected no callback after stop, got batches %v", batches)
	}
}
