// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/internal/embedding"
)

// watchedExt are the file types that trigger a re-ingest.
var watchedExt = map[string]bool{".yaml": true, ".md": true}

// Watch re-runs Ingest whenever a trait or document file under the
// knowledge directory changes, until ctx is cancelled. Bursts of events are
// coalesced so one save triggers one ingest after debounce.
func (s *Store) Watch(ctx context.Context, emb embedding.Embedder, debounce time.Duration, w io.Writer) error {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	for _, sub := range []string{traitsDir, documentsDir} {
		dir := filepath.Join(s.knowledgeDir, sub)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
	}
	s.log.Info("watching knowledge directory", zap.String("dir", s.knowledgeDir))

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watchedExt[filepath.Ext(ev.Name)] || ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			s.log.Debug("knowledge file changed", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("knowledge watcher error", zap.Error(err))
		case <-timer.C:
			summary, err := s.Ingest(ctx, emb, w)
			if err != nil {
				s.log.Error("re-ingest failed", zap.Error(err))
				continue
			}
			s.log.Info("knowledge re-ingested",
				zap.Int("indexed", summary.Indexed),
				zap.Int("updated", summary.Updated),
				zap.Int("failed", summary.Failed))
		}
	}
}
