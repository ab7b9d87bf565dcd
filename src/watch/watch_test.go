package watch

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sofmeright/snapforge/src/output"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// runSession starts a watch session in the background and fails the test
// if it does not exit cleanly at the end.
func runSession(t *testing.T, cfg Config) *syncBuffer {
	t.Helper()
	logs := &syncBuffer{}
	cfg.Printer = &output.Printer{Writer: logs}

	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(t.Context()) }()
	t.Cleanup(func() {
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("watcher did not stop on context cancellation")
		}
	})
	return logs
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte("x\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func waitChanged(t *testing.T, ch <-chan []string) []string {
	t.Helper()
	select {
	case changed := <-ch:
		return changed
	case <-time.After(2 * time.Second):
		t.Fatal("no change callback within deadline")
		return nil
	}
}

func TestDeniedPaths(t *testing.T) {
	s, err := New(Config{
		Root:     t.TempDir(),
		Ignore:   []string{"**/*.log"},
		OnChange: func(context.Context, []string) error { return nil },
		Printer:  &output.Printer{Writer: &bytes.Buffer{}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.fsw.Close()

	tests := []struct {
		rel    string
		denied bool
	}{
		{".git/config", true},
		{"app/.git/HEAD", true},
		{".snapforge.yml", true},
		{".snapforge/ns/context.tar", true},
		{"app/__pycache__/mod.cpython-312.pyc", true},
		{"node_modules/left-pad/index.js", true},
		{"main.py.swp", true},
		{"main.py~", true},
		{".DS_Store", true},
		{"logs/app.log", true},
		{"app/main.py", false},
		{"Dockerfile", false},
		{"docs/notes.md", false},
	}
	for _, tt := range tests {
		if got := s.denied(tt.rel); got != tt.denied {
			t.Errorf("denied(%q) = %v, want %v", tt.rel, got, tt.denied)
		}
	}
}

func TestBurstCoalescesIntoOneTrigger(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, ".git"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	triggers := make(chan []string, 4)
	runSession(t, Config{
		Root:     root,
		Debounce: 120 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			triggers <- changed
			return nil
		},
	})

	writeFile(t, filepath.Join(root, "a.py"))
	time.Sleep(10 * time.Millisecond)
	writeFile(t, filepath.Join(root, "sub", "b.py"))
	time.Sleep(10 * time.Millisecond)
	writeFile(t, filepath.Join(root, "scratch.swp"))
	writeFile(t, filepath.Join(root, ".git", "config"))

	changed := waitChanged(t, triggers)
	for _, want := range []string{"a.py", "sub/b.py"} {
		if !slices.Contains(changed, want) {
			t.Errorf("changed %v missing %q", changed, want)
		}
	}
	for _, banned := range []string{"scratch.swp", ".git/config"} {
		if slices.Contains(changed, banned) {
			t.Errorf("changed %v includes denied path %q", changed, banned)
		}
	}
	if !slices.IsSorted(changed) {
		t.Errorf("changed %v not sorted", changed)
	}

	select {
	case extra := <-triggers:
		t.Fatalf("burst produced a second trigger: %v", extra)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestChangesDuringRebuildAreDropped(t *testing.T) {
	root := t.TempDir()

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan []string, 2)

	logs := runSession(t, Config{
		Root:     root,
		Debounce: 60 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			if calls.Add(1) == 1 {
				close(started)
				<-release
			}
			finished <- changed
			return nil
		},
	})

	writeFile(t, filepath.Join(root, "a.py"))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first rebuild never started")
	}

	// Lands while the first rebuild is blocked, so its trigger must be
	// dropped rather than queued.
	writeFile(t, filepath.Join(root, "b.py"))
	time.Sleep(250 * time.Millisecond)
	close(release)

	first := waitChanged(t, finished)
	if !slices.Contains(first, "a.py") {
		t.Errorf("first rebuild saw %v, want a.py", first)
	}

	time.Sleep(50 * time.Millisecond)
	writeFile(t, filepath.Join(root, "c.py"))
	second := waitChanged(t, finished)
	if !slices.Contains(second, "c.py") {
		t.Errorf("second rebuild saw %v, want c.py", second)
	}
	if slices.Contains(second, "b.py") {
		t.Errorf("dropped change b.py resurfaced in %v", second)
	}

	if got := calls.Load(); got != 2 {
		t.Errorf("rebuild ran %d times, want 2", got)
	}
	if !strings.Contains(logs.String(), "dropping") {
		t.Errorf("expected a drop warning in logs, got %q", logs.String())
	}
}

func TestCreatedDirectoryIsWatched(t *testing.T) {
	root := t.TempDir()

	triggers := make(chan []string, 4)
	runSession(t, Config{
		Root:     root,
		Debounce: 150 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			triggers <- changed
			return nil
		},
	})

	if err := os.MkdirAll(filepath.Join(root, "newpkg"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// Give the event loop time to register the new directory before
	// writing into it.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(root, "newpkg", "mod.py"))

	changed := waitChanged(t, triggers)
	if !slices.Contains(changed, "newpkg/mod.py") {
		t.Errorf("changed %v missing newpkg/mod.py", changed)
	}
}

func TestCancelExitsCleanly(t *testing.T) {
	s, err := New(Config{
		Root:     t.TempDir(),
		OnChange: func(context.Context, []string) error { return nil },
		Printer:  &output.Printer{Writer: &bytes.Buffer{}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned %v on cancellation, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
