package rag

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

var watchedExtensions = []string{".pdf", ".txt", ".md"}

// Watcher monitors a drop directory and indexes documents as they appear.
type Watcher struct {
	watcher *fsnotify.Watcher
	index   *Index
	logger  *zap.Logger
}

// NewWatcher creates a directory watcher feeding the given index.
func NewWatcher(index *Index, logger *zap.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		watcher: w,
		index:   index,
		logger:  logger,
	}, nil
}

// Watch starts monitoring dir until ctx is cancelled. Existing files are not
// re-indexed; only documents created or modified after the watch begins.
func (w *Watcher) Watch(ctx context.Context, dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
					continue
				}
				if !isWatchedExtension(event.Name) {
					continue
				}
				w.ingest(ctx, event.Name)
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watch error", zap.Error(err))
			}
		}
	}()
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("read watched file failed", zap.String("path", path), zap.Error(err))
		return
	}
	text, err := ExtractText(path, content)
	if err != nil {
		w.logger.Warn("extract watched file failed", zap.String("path", path), zap.Error(err))
		return
	}
	added, err := w.index.AddDocument(ctx, filepath.Base(path), text)
	if err != nil {
		w.logger.Warn("index watched file failed", zap.String("path", path), zap.Error(err))
		return
	}
	w.logger.Info("indexed watched file", zap.String("path", path), zap.Int("fragments", added))
}

func isWatchedExtension(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range watchedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
