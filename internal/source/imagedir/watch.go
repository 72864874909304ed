package imagedir

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// dirWatcher reports changes to the document directory.
type dirWatcher struct {
	src *Source
	fsw *fsnotify.Watcher

	mu       sync.Mutex
	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

func newDirWatcher(src *Source) (*dirWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(src.dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &dirWatcher{
		src:     src,
		fsw:     fsw,
		closeCh: make(chan struct{}),
	}
	w.closedWg.Add(1)
	go w.processLoop()
	return w, nil
}

func (w *dirWatcher) close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	err := w.fsw.Close()
	w.closedWg.Wait()
	return err
}

func (w *dirWatcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.src.logger.Warn("watch %s: %v", w.src.dir, err)
		}
	}
}

func (w *dirWatcher) handle(ev fsnotify.Event) {
	name := filepath.Clean(ev.Name)
	s := w.src

	// The directory itself went away.
	if name == s.dir && (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) {
		if s.unavailable.CompareAndSwap(false, true) {
			s.logger.Warn("document directory %s was removed", s.dir)
			w.notify(Change{Kind: ChangeUnavailable, Page: -1})
		}
		return
	}

	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) {
		return
	}
	i, ok := s.pageFor(name)
	if !ok {
		return
	}
	s.invalidate(i)
	s.logger.Debug("page %d changed: %s", i, ev.Op)
	w.notify(Change{Kind: ChangePage, Page: i})
}

func (w *dirWatcher) notify(c Change) {
	if w.src.onChange != nil {
		w.src.onChange(c)
	}
}
