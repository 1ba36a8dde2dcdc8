// Package locale loads the YAML localization bundles shipped alongside a
// course: glossary entries, biographies and hint strings. Course files
// override the shared files, and non-English locales fall back to the
// English entries of the same file.
package locale

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/coursekit/coursekit/internal/buildlog"
	"github.com/coursekit/coursekit/internal/yamlutil"
)

// MarkdownAll marks every top-level value as markdown, for files whose
// entries are plain strings or string arrays.
const MarkdownAll = "*"

// RenderFunc pre-renders a markdown snippet to HTML. Injected by the
// compiler so this package never depends on the pipeline.
type RenderFunc func(ctx context.Context, src string) (string, error)

// Bundler loads, renders and merges localization files. Parsed files are
// memoized per resolved path, so the shared files render once per run no
// matter how many courses reference them.
type Bundler struct {
	ContentDir string
	Log        *buildlog.Logger
	Render     RenderFunc

	mu   sync.Mutex
	memo map[string]map[string]any
}

func NewBundler(contentDir string, render RenderFunc, log *buildlog.Logger) *Bundler {
	return &Bundler{
		ContentDir: contentDir,
		Log:        log,
		Render:     render,
		memo:       map[string]map[string]any{},
	}
}

// Invalidate drops every memoized bundle so the next parse re-reads the
// files from disk. Called between watch-mode rebuilds, where any of the
// shared or per-course files may have changed.
func (b *Bundler) Invalidate() {
	b.mu.Lock()
	b.memo = map[string]map[string]any{}
	b.mu.Unlock()
}

// resolvePath locates the file for a locale. English lives next to the
// course source; translations live in a parallel tree keyed by locale and
// course id.
func resolvePath(dir, file, locale string) string {
	if locale == "en" {
		return filepath.Join(dir, file)
	}
	return filepath.Join(dir, "..", "..", "translations", locale, filepath.Base(dir), file)
}

// ParseYAML loads one localization file for one locale, pre-rendering its
// markdown fields. A missing or empty file is an empty bundle. Non-English
// results are merged over the English entries of the same file.
func (b *Bundler) ParseYAML(ctx context.Context, dir, file, locale, mdField string) (map[string]any, error) {
	path := resolvePath(dir, file, locale)

	b.mu.Lock()
	if cached, ok := b.memo[path]; ok {
		b.mu.Unlock()
		return cached, nil
	}
	b.mu.Unlock()

	entries := map[string]any{}
	if err := yamlutil.LoadFile(path, &entries); err != nil {
		// A missing or zero-byte file is an empty bundle, not a failure.
		if !errors.Is(err, os.ErrNotExist) && !errors.Is(err, yamlutil.ErrNilData) {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		entries = map[string]any{}
	}

	rendered, err := b.renderEntries(ctx, entries, mdField)
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", path, err)
	}

	if locale != "en" {
		base, err := b.ParseYAML(ctx, dir, file, "en", mdField)
		if err != nil {
			return nil, err
		}
		merged := make(map[string]any, len(base)+len(rendered))
		for k, v := range base {
			merged[k] = v
		}
		for k, v := range rendered {
			merged[k] = v
		}
		rendered = merged
	}

	b.mu.Lock()
	b.memo[path] = rendered
	b.mu.Unlock()
	return rendered, nil
}

// renderEntries pre-renders the markdown parts of a parsed file. mdField
// selects either every top-level value (MarkdownAll) or one named field of
// each entry map. Values of unexpected shape pass through untouched.
func (b *Bundler) renderEntries(ctx context.Context, entries map[string]any, mdField string) (map[string]any, error) {
	out := make(map[string]any, len(entries))
	for key, value := range entries {
		if mdField == MarkdownAll {
			switch v := value.(type) {
			case string:
				r, err := b.Render(ctx, v)
				if err != nil {
					return nil, err
				}
				out[key] = r
			case []any:
				list := make([]any, len(v))
				for i, item := range v {
					s, ok := item.(string)
					if !ok {
						list[i] = item
						continue
					}
					r, err := b.Render(ctx, s)
					if err != nil {
						return nil, err
					}
					list[i] = r
				}
				out[key] = list
			default:
				out[key] = value
			}
			continue
		}

		entry, ok := value.(map[string]any)
		if !ok {
			out[key] = value
			continue
		}
		copied := make(map[string]any, len(entry))
		for k, v := range entry {
			copied[k] = v
		}
		if text, ok := entry[mdField].(string); ok {
			r, err := b.Render(ctx, text)
			if err != nil {
				return nil, err
			}
			copied[mdField] = r
		}
		out[key] = copied
	}
	return out, nil
}

// Bundle merges the shared and course versions of one localization file,
// with course entries winning. When filterKeys is non-nil only those keys
// are retained; keys absent from the merged bundle warn for the English
// build only, since translations inherit the English fallback anyway.
func (b *Bundler) Bundle(ctx context.Context, dir, file, locale, mdField string, filterKeys []string) (map[string]any, error) {
	shared, err := b.ParseYAML(ctx, filepath.Join(b.ContentDir, "shared"), file, locale, mdField)
	if err != nil {
		return nil, err
	}
	course, err := b.ParseYAML(ctx, dir, file, locale, mdField)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(shared)+len(course))
	for k, v := range shared {
		merged[k] = v
	}
	for k, v := range course {
		merged[k] = v
	}

	if filterKeys == nil {
		return merged, nil
	}

	out := make(map[string]any, len(filterKeys))
	for _, key := range filterKeys {
		v, ok := merged[key]
		if !ok {
			if locale == "en" {
				b.Log.Warnf("missing %s entry: %s", file, key)
			}
			continue
		}
		out[key] = v
	}
	return out, nil
}

// Glossary bundles glossary.yaml filtered to the ids a course references.
func (b *Bundler) Glossary(ctx context.Context, dir, locale string, keys []string) (map[string]any, error) {
	return b.Bundle(ctx, dir, "glossary.yaml", locale, "text", keys)
}

// Bios bundles bios.yaml filtered to the ids a course references.
func (b *Bundler) Bios(ctx context.Context, dir, locale string, keys []string) (map[string]any, error) {
	return b.Bundle(ctx, dir, "bios.yaml", locale, "bio", keys)
}

// Hints bundles hints.yaml without filtering; hint keys are referenced at
// runtime, not statically.
func (b *Bundler) Hints(ctx context.Context, dir, locale string) (map[string]any, error) {
	return b.Bundle(ctx, dir, "hints.yaml", locale, MarkdownAll, nil)
}
