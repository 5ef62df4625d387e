package procmgr

import (
	"bufio"
	"os"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"

	"github.com/clovis-agent/clovis/pkg/logger"
)

// LogWatcher tails a promoted background process's log file, emitting new
// lines as they land: fsnotify watches the file, bep/debounce coalesces
// bursty write events before each re-read of the tail, so a flood of
// small writes triggers one read instead of one per event. Each line goes
// to the caller-supplied onLine callback; nothing else in this module
// constructs a LogWatcher, so log lines do not reach the Draw Queue.
type LogWatcher struct {
	path   string
	onLine func(string)

	mu     sync.Mutex
	offset int64
	stop   chan struct{}
}

// NewLogWatcher constructs a watcher for path. onLine is invoked once per
// newly-written line, in file order.
func NewLogWatcher(path string, onLine func(string)) *LogWatcher {
	return &LogWatcher{path: path, onLine: onLine, stop: make(chan struct{})}
}

// Start begins watching in a background goroutine.
func (w *LogWatcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.path); err != nil {
		watcher.Close()
		return err
	}

	debounced := debounce.New(150 * time.Millisecond)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-w.stop:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					debounced(w.readNewLines)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Debug().Err(err).Str("path", w.path).Msg("log watcher error")
			}
		}
	}()
	return nil
}

func (w *LogWatcher) readNewLines() {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		return
	}
	defer f.Close()

	if _, err := f.Seek(w.offset, 0); err != nil {
		return
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		w.offset += int64(len(line)) + 1
		if w.onLine != nil {
			w.onLine(line)
		}
	}
}

// Stop ends the watch goroutine. Safe to call once.
func (w *LogWatcher) Stop() {
	close(w.stop)
}
