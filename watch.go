package passrec

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

type watcher struct {
	fs   *fsnotify.Watcher
	done chan struct{}
}

// Watch starts invalidating cached objects when any of paths changes on
// disk. A path may be a file or a directory; directories are not watched
// recursively. Calling Watch again adds paths to the running watcher.
func (d *Device) Watch(paths ...string) error {
	if d.closed {
		return ErrDeviceClosed
	}
	if d.watcher == nil {
		fs, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("passrec: watch: %w", err)
		}
		d.watcher = &watcher{fs: fs, done: make(chan struct{})}
		go d.watch(d.watcher)
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("passrec: watch %s: %w", p, err)
		}
		if err := d.watcher.fs.Add(abs); err != nil {
			return fmt.Errorf("passrec: watch %s: %w", p, err)
		}
		d.log.Debug("passrec: watching", "path", abs)
	}
	return nil
}

// watch forwards file events to Invalidate until the watcher is closed.
// It runs on its own goroutine and touches nothing but the invalidate queue.
func (d *Device) watch(w *watcher) {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			d.Invalidate(ev.Name)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			d.log.Warn("passrec: watcher error", "err", err)
		}
	}
}

// StopWatching stops the file watcher started by Watch. It is a no-op when
// nothing is watched.
func (d *Device) StopWatching() {
	if d.watcher == nil {
		return
	}
	if err := d.watcher.fs.Close(); err != nil {
		d.log.Warn("passrec: close watcher", "err", err)
	}
	<-d.watcher.done
	d.watcher = nil
}
