// Package watch triggers rebuilds when the source tree changes. Events
// run through a transient-path denylist, coalesce behind a debounce
// timer, and are dropped outright while a rebuild is in flight.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/sofmeright/snapforge/src/output"
)

// defaultDebounce coalesces an editor's write burst into one rebuild.
const defaultDebounce = 500 * time.Millisecond

// denylist matches transient paths that must never trigger a rebuild.
var denylist = []string{
	"**/.git/**",
	"**/.snapforge*",
	"**/.snapforge/**",
	"**/__pycache__/**",
	"**/node_modules/**",
	"**/*.swp",
	"**/*.swo",
	"**/*~",
	"**/.DS_Store",
}

// Config parameterizes a watch session.
type Config struct {
	Root     string        // project root, watched recursively
	Debounce time.Duration // quiet period before a trigger; <=0 uses the default
	Ignore   []string      // extra doublestar patterns joined with the denylist
	OnChange func(ctx context.Context, changed []string) error
	Printer  *output.Printer
}

// Session is one running watch. Create with New, drive with Run.
type Session struct {
	cfg      Config
	fsw      *fsnotify.Watcher
	ignore   []string
	debounce time.Duration

	inFlight atomic.Bool
}

// New subscribes to every directory under the root. Denied directories
// are not descended into; directories created later are picked up from
// their create events.
func New(cfg Config) (*Session, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving watch root: %w", err)
	}
	cfg.Root = root

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	s := &Session{
		cfg:      cfg,
		fsw:      fsw,
		ignore:   append(append([]string{}, denylist...), cfg.Ignore...),
		debounce: debounce,
	}
	if err := s.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return s, nil
}

// Run processes events until ctx is cancelled. Cancellation is the clean
// exit and returns nil. A trigger that lands while a rebuild is running
// is dropped, not queued; at most one rebuild runs at a time.
func (s *Session) Run(ctx context.Context) error {
	var (
		mu      sync.Mutex
		pending = map[string]struct{}{}
		timer   *time.Timer
	)

	fire := func() {
		if ctx.Err() != nil {
			return
		}

		mu.Lock()
		changed := make([]string, 0, len(pending))
		for p := range pending {
			changed = append(changed, p)
		}
		clear(pending)
		mu.Unlock()
		if len(changed) == 0 {
			return
		}
		sort.Strings(changed)

		if !s.inFlight.CompareAndSwap(false, true) {
			s.cfg.Printer.Warnf("dropping %d changes, rebuild in progress", len(changed))
			return
		}
		defer s.inFlight.Store(false)

		if err := s.cfg.OnChange(ctx, changed); err != nil {
			s.cfg.Printer.Errorf("rebuild failed: %v", err)
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		s.fsw.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-s.fsw.Events:
			if !ok {
				return fmt.Errorf("watch event channel closed")
			}
			rel, err := filepath.Rel(s.cfg.Root, evt.Name)
			if err != nil || s.denied(rel) {
				continue
			}
			if evt.Has(fsnotify.Create) {
				s.maybeAddDir(evt.Name, rel)
			}

			mu.Lock()
			pending[filepath.ToSlash(rel)] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(s.debounce, fire)
			} else {
				timer.Reset(s.debounce)
			}
			mu.Unlock()

		case err, ok := <-s.fsw.Errors:
			if !ok {
				return fmt.Errorf("watch error channel closed")
			}
			s.cfg.Printer.Warnf("watch: %v", err)
		}
	}
}

// addTree registers the root and every non-denied directory below it.
func (s *Session) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			s.cfg.Printer.Warnf("not watching %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if rel != "." && (s.denied(rel) || s.denied(rel+"/")) {
			return filepath.SkipDir
		}
		if addErr := s.fsw.Add(path); addErr != nil {
			return fmt.Errorf("watching %s: %w", path, addErr)
		}
		return nil
	})
}

// maybeAddDir extends the watch to directories created after startup.
func (s *Session) maybeAddDir(path, rel string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if s.denied(rel) || s.denied(rel+"/") {
		return
	}
	if err := s.fsw.Add(path); err != nil {
		s.cfg.Printer.Warnf("not watching %s: %v", path, err)
	}
}

func (s *Session) denied(rel string) bool {
	normalized := filepath.ToSlash(rel)
	for _, pat := range s.ignore {
		if ok, err := doublestar.Match(pat, normalized); err == nil && ok {
			return true
		}
	}
	return false
}
