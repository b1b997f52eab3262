package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file on change and hands
// the fresh WebRTC section to a callback.
type Watcher struct {
	path     string
	onChange func(Webrtc)
	onError  func(error)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewWatcher(path string, onChange func(Webrtc), onError func(error)) *Watcher {
	if onError == nil {
		onError = func(error) {}
	}
	return &Watcher{path: path, onChange: onChange, onError: onError, done: make(chan struct{})}
}

// Run starts watching. The directory is watched rather than the file
// itself because editors often replace files on save.
func (w *Watcher) Run() {
	if w.path == "" {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.onError(err)
		return
	}
	if err = watcher.Add(filepath.Dir(w.path)); err != nil {
		w.onError(err)
		_ = watcher.Close()
		return
	}
	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	go func() {
		defer close(w.done)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(w.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				w.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.onError(err)
			}
		}
	}()
}

func (w *Watcher) reload() {
	var conf CoordinatorConfig
	if _, err := LoadConfig(&conf, filepath.Dir(w.path)); err != nil {
		w.onError(err)
		return
	}
	if len(conf.Webrtc.IceServers) == 0 {
		conf.Webrtc.IceServers = DefaultIceServers
	}
	w.onChange(conf.Webrtc)
}

func (w *Watcher) Shutdown(context.Context) error {
	w.mu.Lock()
	watcher := w.watcher
	w.watcher = nil
	w.mu.Unlock()
	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) String() string { return "config watcher" }
