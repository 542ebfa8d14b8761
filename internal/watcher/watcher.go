// Package watcher keeps the in-process settings snapshot in sync with the
// settings table and the YAML config file.
package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pollengate/pollengate/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Default timings for the watcher loop.
const (
	// defaultPollInterval controls how often DB settings are refreshed.
	defaultPollInterval = 2 * time.Second
	// defaultQueryTimeout bounds DB query duration.
	defaultQueryTimeout = 10 * time.Second
)

// Watcher refreshes settings on a poll interval and on config file changes.
type Watcher struct {
	db           *gorm.DB
	configPath   string
	pollInterval time.Duration
	onReload     func()
}

// New constructs a Watcher. onReload, when non-nil, runs after every
// successful refresh.
func New(db *gorm.DB, configPath string, onReload func()) *Watcher {
	return &Watcher{
		db:           db,
		configPath:   strings.TrimSpace(configPath),
		pollInterval: defaultPollInterval,
		onReload:     onReload,
	}
}

// Run blocks until ctx is done, refreshing the settings snapshot whenever
// the poll ticker fires or the config file changes on disk.
func (w *Watcher) Run(ctx context.Context) {
	if w == nil || w.db == nil {
		return
	}

	var fsEvents chan fsnotify.Event
	if w.configPath != "" {
		notifier, errWatch := fsnotify.NewWatcher()
		if errWatch != nil {
			log.WithError(errWatch).Warn("watcher: fsnotify unavailable, polling only")
		} else {
			defer func() { _ = notifier.Close() }()
			// Watch the directory: editors replace files rather than write
			// in place, which drops watches on the file itself.
			if errAdd := notifier.Add(filepath.Dir(w.configPath)); errAdd != nil {
				log.WithError(errAdd).Warn("watcher: cannot watch config dir")
			} else {
				fsEvents = make(chan fsnotify.Event, 16)
				go w.forwardConfigEvents(ctx, notifier, fsEvents)
			}
		}
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.refresh(ctx)
		case <-fsEvents:
			log.Info("watcher: config file changed, reloading settings")
			w.refresh(ctx)
		}
	}
}

// forwardConfigEvents filters notifier events down to writes of the config
// file itself.
func (w *Watcher) forwardConfigEvents(ctx context.Context, notifier *fsnotify.Watcher, out chan<- fsnotify.Event) {
	base := filepath.Base(w.configPath)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-notifier.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case out <- event:
			default:
			}
		case errWatch, ok := <-notifier.Errors:
			if !ok {
				return
			}
			log.WithError(errWatch).Warn("watcher: fsnotify error")
		}
	}
}

func (w *Watcher) refresh(ctx context.Context) {
	ctxQuery, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()
	if errRefresh := settings.RefreshFromDB(ctxQuery, w.db); errRefresh != nil {
		log.WithError(errRefresh).Warn("watcher: settings refresh failed")
		return
	}
	if w.onReload != nil {
		w.onReload()
	}
}
