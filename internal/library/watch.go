package library

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/llehouerou/wavesbot/internal/player"
)

const defaultRescanDelay = 2 * time.Second

// Watcher rescans a Resolver when audio files appear, change or disappear
// under its sources. Bursts of changes trigger a single rescan.
type Watcher struct {
	resolver *Resolver
	watcher  *fsnotify.Watcher
	delay    time.Duration
	logger   *zap.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Watch starts watching every directory under the resolver's sources. A zero
// delay uses two seconds.
func Watch(r *Resolver, delay time.Duration) (*Watcher, error) {
	if delay <= 0 {
		delay = defaultRescanDelay
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		resolver: r,
		watcher:  fw,
		delay:    delay,
		logger:   r.logger,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, src := range r.sources {
		w.addTree(src)
	}
	go w.loop()
	return w, nil
}

// Close stops watching and waits for a running rescan to give up.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.cancel()
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) addTree(root string) {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // intentionally skipping errors
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("cannot watch directory", zap.String("path", path), zap.Error(err))
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		w.logger.Warn("cannot watch source", zap.String("path", root), zap.Error(err))
	}
}

func (w *Watcher) loop() {
	defer close(w.done)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			fire = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("library watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			if err := w.resolver.Rescan(w.ctx); err != nil && w.ctx.Err() == nil {
				w.logger.Warn("library rescan failed", zap.Error(err))
			}
		}
	}
}

// relevant reports whether event can change the index. New directories are
// watched as they appear.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.addTree(event.Name)
			return true
		}
	}
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		// A removed directory no longer has an extension to check.
		return true
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		return player.IsPlayable(event.Name)
	}
	return false
}
