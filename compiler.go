package coursekit

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/coursekit/coursekit/internal/buildlog"
	"github.com/coursekit/coursekit/internal/config"
	"github.com/coursekit/coursekit/internal/fileutil"
	"github.com/coursekit/coursekit/internal/locale"
	"github.com/coursekit/coursekit/internal/pipeline"
	"github.com/coursekit/coursekit/internal/tex"
)

// Compiler compiles courses for one run. It owns the shared services: the
// equation cache, the change cache, the localization bundler and the URL
// set. Safe for concurrent Compile calls.
type Compiler struct {
	cfg     *config.Config
	log     *buildlog.Logger
	tex     pipeline.TexService
	cache   *Cache
	urls    *URLSet
	bundler *locale.Bundler
	simple  *pipeline.StepCompiler
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithTexService injects an equation service (used by tests).
func WithTexService(s pipeline.TexService) Option {
	return func(c *Compiler) { c.tex = s }
}

// WithCache injects a change cache.
func WithCache(cache *Cache) Option {
	return func(c *Compiler) { c.cache = cache }
}

// WithURLSet injects a shared URL collector.
func WithURLSet(urls *URLSet) Option {
	return func(c *Compiler) { c.urls = urls }
}

// New creates a Compiler for one run.
func New(cfg *config.Config, log *buildlog.Logger, opts ...Option) *Compiler {
	c := &Compiler{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(c)
	}
	if c.tex == nil {
		c.tex = tex.NewService(log)
	}
	if c.cache == nil {
		c.cache = NewCache(cfg.Output.Dir, log)
	}
	if c.urls == nil {
		c.urls = NewURLSet()
	}

	// Localization bundles are shared across courses and locales, so their
	// markdown renders without course-specific options.
	c.simple = &pipeline.StepCompiler{
		Tex: c.tex,
		Log: log,
		Opts: pipeline.Options{
			Locale:   "en",
			Domain:   cfg.Site.Domain,
			EmojiURL: cfg.Site.EmojiURL,
		},
	}
	c.bundler = locale.NewBundler(cfg.Content.Dir, c.simple.RenderSimple, log)
	return c
}

// Cache returns the change cache, for flushing at run boundaries.
func (c *Compiler) Cache() *Cache { return c.cache }

// Bundler returns the localization bundler, so watch mode can drop its
// memoized files alongside a cache invalidation.
func (c *Compiler) Bundler() *locale.Bundler { return c.bundler }

// URLs returns the section URLs collected so far.
func (c *Compiler) URLs() []string { return c.urls.URLs() }

// Close flushes and shuts down the shared services.
func (c *Compiler) Close() error {
	err := c.cache.FlushNow()
	if closer, ok := c.tex.(interface{ Close() error }); ok {
		if cerr := closer.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Compile compiles one (course, locale) pair. A missing source file returns
// (nil, nil) so callers can probe locales; an unchanged source returns a
// Result with Unchanged set.
func (c *Compiler) Compile(ctx context.Context, courseID, loc string) (*Result, error) {
	dir := filepath.Join(c.cfg.Content.Dir, courseID)
	srcFile := resolvePath(dir, "content.md", loc)

	content, ok, err := fileutil.ReadText(srcFile)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	hash := textHash(content)
	cacheKey := courseID + "-" + loc
	if c.cache.Get(cacheKey) == hash {
		return &Result{SrcFile: srcFile, Unchanged: true}, nil
	}

	steps, err := c.compileSteps(ctx, courseID, dir, loc, content)
	if err != nil {
		return nil, err
	}

	course, err := c.assemble(ctx, courseID, dir, loc, steps)
	if err != nil {
		return nil, err
	}

	c.cache.Set(cacheKey, hash)
	return &Result{Course: course, SrcFile: srcFile}, nil
}

// compileSteps splits the source into steps and compiles them concurrently,
// keeping document order in the result.
func (c *Compiler) compileSteps(ctx context.Context, courseID, dir, loc, content string) ([]*pipeline.StepResult, error) {
	segments := stepSeparator.Split(content, -1)
	steps := make([]*pipeline.StepResult, len(segments))

	sc := &pipeline.StepCompiler{
		Tex: c.tex,
		Log: c.log,
		Opts: pipeline.Options{
			CourseID: courseID,
			Dir:      dir,
			Locale:   loc,
			Domain:   c.cfg.Site.Domain,
			EmojiURL: c.cfg.Site.EmojiURL,
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, segment := range segments {
		i, segment := i, segment
		g.Go(func() error {
			step, err := sc.Compile(gctx, segment, i)
			if err != nil {
				return fmt.Errorf("step %d: %w", i, err)
			}
			steps[i] = step
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return steps, nil
}

// assemble builds the Course value from compiled steps: course metadata from
// step 0, section grouping, durations, and the localization bundles.
func (c *Compiler) assemble(ctx context.Context, courseID, dir, loc string, steps []*pipeline.StepResult) (*Course, error) {
	first := steps[0].Metadata

	course := &Course{
		ID:          courseID,
		Locale:      loc,
		NextCourse:  firstNonEmpty(first.Field("next"), nextCourse(c.cfg.Content.Dir, courseID, 1)),
		PrevCourse:  firstNonEmpty(first.Field("prev"), nextCourse(c.cfg.Content.Dir, courseID, -1)),
		Title:       firstNonEmpty(steps[0].CourseTitle, "Untitled Course"),
		Description: first.Field("description"),
		Color:       firstNonEmpty(first.Field("color"), c.cfg.Site.DefaultColor),
		Trailer:     first.Field("trailer"),
		Author:      first.Field("author"),
		Level:       first.Field("level"),
		Hero:        courseAsset(courseID, firstNonEmpty(first.Field("hero"), "hero.jpg")),
		Steps:       map[string]*Step{},
	}
	if icon := first.Field("icon"); icon != "" {
		course.Icon = courseAsset(courseID, icon)
	} else if fileutil.FileExists(filepath.Join(dir, "icon.png")) {
		course.Icon = courseAsset(courseID, "icon.png")
	}

	gloss := newOrderedSet()
	bios := newOrderedSet()
	var durations []float64

	for _, step := range steps {
		if _, exists := course.Steps[step.ID]; exists {
			c.log.Warnf("duplicate step ID: %s", step.ID)
		}
		course.Goals += len(step.Goals)
		gloss.add(step.Metadata.Gloss()...)
		bios.add(step.Metadata.Bios()...)

		if step.SectionTitle != "" {
			sectionID := pipeline.CheckID(step.Metadata.Field("section"), "section", c.log)
			if sectionID == "" {
				sectionID = sectionSlug(step.SectionTitle)
			}
			course.Sections = append(course.Sections, &Section{
				ID: sectionID,
				// Escape characters never belong in title strings.
				Title:          strings.ReplaceAll(step.SectionTitle, `\`, ""),
				Background:     step.Metadata.Field("sectionBackground"),
				Locked:         step.Metadata.Field("sectionStatus") == "dev",
				AutoTranslated: step.Metadata.Field("translated") == "auto",
				URL:            firstNonEmpty(step.Metadata.Field("url"), "/course/"+courseID+"/"+sectionID),
			})
			durations = append(durations, 0)
		}
		if len(course.Sections) == 0 {
			return nil, ErrNoFirstSection
		}

		section := course.Sections[len(course.Sections)-1]
		section.Steps = append(section.Steps, step.ID)
		section.Goals += len(step.Goals)
		durations[len(durations)-1] += step.Duration

		goals := step.Goals
		if goals == nil {
			goals = []string{}
		}
		keywords := strings.Fields(step.Metadata.Field("keywords"))
		if keywords == nil {
			keywords = []string{}
		}
		course.Steps[step.ID] = &Step{
			ID:       step.ID,
			Title:    firstNonEmpty(step.Metadata.Field("title"), stepTitle(step.ID)),
			HTML:     step.HTML,
			Goals:    goals,
			Keywords: keywords,
		}
	}

	for i, section := range course.Sections {
		section.Duration = sectionDuration(durations[i])
		if loc == "en" && !section.Locked {
			c.urls.Add(section.URL)
		}
	}

	if course.Description == "" {
		titles := make([]string, len(course.Sections))
		for i, s := range course.Sections {
			titles[i] = s.Title
		}
		course.Description = strings.Join(titles, ", ")
	}

	course.AvailableLocales = availableLocales(dir, c.cfg.Content.Locales)

	var err error
	if course.BiosJSON, err = c.bundleJSON(ctx, dir, loc, "bios", bios.keys); err != nil {
		return nil, err
	}
	if course.GlossJSON, err = c.bundleJSON(ctx, dir, loc, "glossary", gloss.keys); err != nil {
		return nil, err
	}
	if course.HintsJSON, err = c.bundleJSON(ctx, dir, loc, "hints", nil); err != nil {
		return nil, err
	}
	return course, nil
}

func (c *Compiler) bundleJSON(ctx context.Context, dir, loc, kind string, keys []string) (string, error) {
	var bundle map[string]any
	var err error
	if keys == nil && kind != "hints" {
		keys = []string{} // filter to nothing, not "no filter"
	}
	switch kind {
	case "bios":
		bundle, err = c.bundler.Bios(ctx, dir, loc, keys)
	case "glossary":
		bundle, err = c.bundler.Glossary(ctx, dir, loc, keys)
	default:
		bundle, err = c.bundler.Hints(ctx, dir, loc)
	}
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(bundle)
	if err != nil {
		return "", fmt.Errorf("encoding %s bundle: %w", kind, err)
	}
	return string(raw), nil
}

// sectionDuration rounds a section duration up to a multiple of five
// minutes, with a floor of five.
func sectionDuration(minutes float64) int {
	return int(math.Max(5, 5*math.Ceil(minutes/5)))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
