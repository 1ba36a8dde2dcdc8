package main

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/coursekit/coursekit"
	"github.com/coursekit/coursekit/internal/buildlog"
	"github.com/coursekit/coursekit/internal/config"
)

// debounceDelay batches rapid editor events into one recompile.
const debounceDelay = 300 * time.Millisecond

// watch compiles everything once, then recompiles a course whenever one of
// its source files changes. Edits under shared/ or translations/ rebuild
// every course, since any of them may depend on the changed file.
func watch(ctx context.Context, compiler *coursekit.Compiler, cfg *config.Config, log *buildlog.Logger) error {
	if err := buildAll(ctx, compiler, cfg, log); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watchTree(watcher, cfg.Content.Dir); err != nil {
		return err
	}
	// Translations live in a sibling tree of the content root.
	translationsDir := filepath.Join(cfg.Content.Dir, "..", "translations")
	_ = watchTree(watcher, translationsDir)
	log.Infof("watching %s for changes", cfg.Content.Dir)

	debounce := time.NewTimer(debounceDelay)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := map[string]bool{}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			// New directories must be added explicitly; fsnotify watches
			// are not recursive.
			if event.Op&fsnotify.Create != 0 {
				_ = watchTree(watcher, event.Name)
			}
			for _, id := range changedCourses(cfg, event.Name) {
				pending[id] = true
			}
			if len(pending) > 0 {
				debounce.Reset(debounceDelay)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("watch error: %v", err)

		case <-debounce.C:
			// The YAML bundles are memoized per run; a stale memo would put
			// the pre-edit glossary or hints into the rebuilt course.
			compiler.Bundler().Invalidate()
			for id := range pending {
				compiler.Cache().Invalidate(id)
				for _, loc := range cfg.Content.Locales {
					buildCourse(ctx, compiler, cfg, log, id, loc)
				}
			}
			pending = map[string]bool{}
			if err := compiler.Cache().Flush(); err != nil {
				log.Warnf("flushing change cache: %v", err)
			}
		}
	}
}

// watchTree adds every directory under root to the watcher.
func watchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil //nolint:nilerr // unreadable subtrees are skipped, not fatal
		}
		return watcher.Add(path)
	})
}

// changedCourses maps a changed path to the course ids that must recompile.
func changedCourses(cfg *config.Config, path string) []string {
	// translations/<locale>/<courseID>/... lives next to the content root.
	if rel, err := filepath.Rel(filepath.Join(cfg.Content.Dir, "..", "translations"), path); err == nil && !strings.HasPrefix(rel, "..") {
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) >= 2 {
			return []string{parts[1]}
		}
		return nil
	}

	rel, err := filepath.Rel(cfg.Content.Dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) == 0 || parts[0] == "" || parts[0] == "." {
		return nil
	}

	if parts[0] == "shared" {
		return selectedCourses(cfg)
	}
	if strings.HasPrefix(parts[0], "_") || strings.Contains(parts[0], ".") {
		return nil
	}
	return []string{parts[0]}
}
