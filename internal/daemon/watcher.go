// Package daemon keeps a device in sync while it runs: it turns local store
// writes, remote change notifications and an optional interval into sync
// triggers.
package daemon

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher reports writes to the local store's database files.
// Events carry no payload; receivers re-read the store to learn what changed.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	prefix  string
	events  chan struct{}
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewFileWatcher watches dir for writes to files whose name starts with prefix
// (the database file and its WAL).
func NewFileWatcher(dir, prefix string) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	fw := &FileWatcher{
		watcher: w,
		prefix:  prefix,
		events:  make(chan struct{}, 1),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}
	fw.wg.Add(1)
	go fw.processEvents()
	return fw, nil
}

// Events signals that a watched file changed. Bursts collapse into one
// pending signal.
func (fw *FileWatcher) Events() <-chan struct{} {
	return fw.events
}

// Errors returns watcher errors. Errors are dropped when nobody reads them.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// Close stops watching and waits for the event goroutine to exit.
func (fw *FileWatcher) Close() error {
	var err error
	fw.once.Do(func() {
		close(fw.done)
		err = fw.watcher.Close()
		fw.wg.Wait()
		close(fw.events)
		close(fw.errors)
	})
	return err
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()
	for {
		select {
		case <-fw.done:
			return

		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !fw.relevant(ev) {
				continue
			}
			select {
			case fw.events <- struct{}{}:
			default:
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case fw.errors <- err:
			default:
			}
		}
	}
}

func (fw *FileWatcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return false
	}
	return strings.HasPrefix(filepath.Base(ev.Name), fw.prefix)
}
