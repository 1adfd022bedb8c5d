package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher reloads a config file whenever it changes on disk. Each successful
// reload is delivered on Configs; parse and watch failures go to Errors.
// Bursts of writes within the debounce window produce one reload.
type Watcher struct {
	Configs chan Config
	Errors  chan error

	path     string
	debounce time.Duration
	watcher  *fsnotify.Watcher
	closeCh  chan struct{}
	done     chan struct{}
	once     sync.Once
}

// NewWatcher watches the file at path. The directory is watched rather than
// the file so editors that replace the file on save are still seen.
func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	w := &Watcher{
		Configs:  make(chan Config, 1),
		Errors:   make(chan error, 1),
		path:     abs,
		debounce: defaultDebounce,
		watcher:  fw,
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops the watcher. Configs and Errors are closed once the watch loop
// has exited.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) run() {
	defer func() {
		close(w.Configs)
		close(w.Errors)
		close(w.done)
	}()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			cfg, err := Load(w.path)
			if err != nil {
				w.send(nil, err)
				continue
			}
			w.send(&cfg, nil)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.send(nil, err)

		case <-w.closeCh:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// send delivers a result, dropping a stale undelivered config in favor of the
// newer one.
func (w *Watcher) send(cfg *Config, err error) {
	if err != nil {
		select {
		case w.Errors <- err:
		case <-w.closeCh:
		default:
		}
		return
	}

	for {
		select {
		case w.Configs <- *cfg:
			return
		case <-w.closeCh:
			return
		default:
		}
		select {
		case <-w.Configs:
		default:
		}
	}
}
