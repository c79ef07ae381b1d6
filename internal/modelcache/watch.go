package modelcache

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"iotml/internal/engine"
)

// Watcher invalidates cached models whose artifact files change on disk.
type Watcher struct {
	w    *fsnotify.Watcher
	done chan struct{}
	once sync.Once
}

// Watch starts watching the storage root. A write, create, remove or rename
// of <id>.model invalidates id. The watcher stops when ctx is done or Close
// is called.
func (c *Cache) Watch(ctx context.Context) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(c.root); err != nil {
		_ = fw.Close()
		return nil, err
	}
	w := &Watcher{w: fw, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if id, ok := artifactID(ev.Name); ok && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
					if c.Invalidate(id) {
						c.log.Debug().Str("model_id", id).Str("op", ev.Op.String()).Msg("artifact changed on disk")
					}
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				c.log.Warn().Err(err).Msg("storage watcher error")
			}
		}
	}()
	return w, nil
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() { err = w.w.Close() })
	return err
}

// Done is closed once the watch loop has exited.
func (w *Watcher) Done() <-chan struct{} { return w.done }

func artifactID(name string) (string, bool) {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || !strings.HasSuffix(base, engine.ArtifactExt) {
		return "", false
	}
	id := strings.TrimSuffix(base, engine.ArtifactExt)
	return id, id != ""
}
