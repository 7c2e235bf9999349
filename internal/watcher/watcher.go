// Package watcher observes the credential file so long-running collaborators
// (an open chat session, a status display) notice sign-in and sign-out without
// polling.
package watcher

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/overchat-app/overchat/internal/credstore"
)

// debounceWindow coalesces the write bursts that editors and atomic-rename
// saves produce into a single reload.
const debounceWindow = 200 * time.Millisecond

// Watch reloads the store on every change to its backing file and calls
// onChange with the fresh record. It blocks until ctx is cancelled. The
// credential file may not exist yet; the containing directory is watched so
// first creation counts as a change.
func Watch(ctx context.Context, store *credstore.Store, onChange func(*credstore.Record)) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		_ = fsWatcher.Close()
	}()

	dir := filepath.Dir(store.Path())
	if err = fsWatcher.Add(dir); err != nil {
		return err
	}
	log.Debugf("watching credential directory %s", dir)

	target := filepath.Clean(store.Path())
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(debounceWindow)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			record, errLoad := store.Load()
			if errLoad != nil {
				log.Warnf("credential reload failed: %v", errLoad)
				continue
			}
			onChange(record)
		case errWatch, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("credential watcher: %v", errWatch)
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		}
	}
}
