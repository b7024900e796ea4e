package rules

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/scrapeforge/scrapeforge/internal/errs"
)

// Watcher reloads a Loader's rulebook when the file changes on disk.
// Rapid write bursts are debounced so one editor save triggers one reload.
type Watcher struct {
	loader  *Loader
	watcher *fsnotify.Watcher
	log     *zap.SugaredLogger

	mu       sync.Mutex
	debounce *time.Timer
	done     chan struct{}
	once     sync.Once
}

const debouncePeriod = 500 * time.Millisecond

// NewWatcher starts watching the loader's rulebook path.
func NewWatcher(loader *Loader, log *zap.SugaredLogger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.Wrap(err, "create rulebook watcher")
	}
	if err := fw.Add(loader.path); err != nil {
		fw.Close()
		return nil, errs.Wrapf(err, "watch rulebook %s", loader.path)
	}

	w := &Watcher{
		loader:  loader,
		watcher: fw,
		log:     log.With("component", "rules-watcher"),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.scheduleReload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warnw("rulebook watch error", "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(debouncePeriod, func() {
		if err := w.loader.Reload(); err != nil {
			w.log.Warnw("rulebook reload failed", "error", err)
			return
		}
		w.log.Infow("rulebook reloaded", "path", w.loader.path)
	})
}

// Stop ends the watch.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.done)
		w.watcher.Close()
		w.mu.Lock()
		if w.debounce != nil {
			w.debounce.Stop()
		}
		w.mu.Unlock()
	})
}
