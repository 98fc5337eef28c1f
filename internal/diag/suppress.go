package diag

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Suppression is the per-diagnostic-counter enable/disable table spec.md
// §6 names: "An optional suppression/config file at a known path
// controls per-diagnostic-counter enable/disable." One line per counter
// name, case-insensitive; every listed name is disabled (a leading '-'
// is accepted and ignored) and names not listed stay enabled. Blank
// lines and lines starting with '#' are skipped.
type Suppression struct {
	mu       sync.RWMutex
	disabled map[string]bool
	watcher  *fsnotify.Watcher
}

// NewSuppression loads path if it exists and, like Orizon's
// vfs.FSNotifyWatcher, keeps watching it for edits so an operator can
// silence a noisy counter without restarting the process.
func NewSuppression(path string) (*Suppression, error) {
	s := &Suppression{disabled: map[string]bool{}}
	if path == "" {
		return s, nil
	}
	s.reload(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		// Watching is a convenience, not a correctness requirement:
		// the file was already loaded once above, so a watcher failure
		// just means future edits need a process restart to take
		// effect.
		return s, nil
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return s, nil
	}
	s.watcher = w
	go s.watch(path)
	return s, nil
}

func (s *Suppression) watch(path string) {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				s.reload(path)
			}
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (s *Suppression) reload(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	disabled := map[string]bool{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name := strings.TrimPrefix(line, "-")
		disabled[strings.ToLower(name)] = true
	}

	s.mu.Lock()
	s.disabled = disabled
	s.mu.Unlock()
}

// Enabled reports whether the named diagnostic counter should fire.
func (s *Suppression) Enabled(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.disabled[strings.ToLower(name)]
}

// Close stops the background watcher, if one was started.
func (s *Suppression) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}
