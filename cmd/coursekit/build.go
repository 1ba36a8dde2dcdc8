package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/coursekit/coursekit"
	"github.com/coursekit/coursekit/internal/buildlog"
	"github.com/coursekit/coursekit/internal/config"
	"github.com/coursekit/coursekit/internal/fileutil"
)

// resolveWorkers determines the compilation concurrency.
// Priority: explicit value > GOMAXPROCS-based calculation.
func resolveWorkers(configured int) int {
	if configured > 0 {
		return configured
	}

	// Auto-calculate based on GOMAXPROCS (adjusted by automaxprocs for containers)
	n := runtime.GOMAXPROCS(0) / 2
	if n < 1 {
		return 1
	}
	if n > 8 {
		return 8
	}
	return n
}

// selectedCourses returns the course ids to compile, either the configured
// subset or everything under the content root.
func selectedCourses(cfg *config.Config) []string {
	if len(cfg.Content.Courses) > 0 {
		return cfg.Content.Courses
	}
	return coursekit.ListCourses(cfg.Content.Dir)
}

// buildAll compiles every (course, locale) pair concurrently. Compilation
// errors are logged and counted rather than aborting the batch; the caller
// decides the exit code from the error count.
func buildAll(ctx context.Context, compiler *coursekit.Compiler, cfg *config.Config, log *buildlog.Logger) error {
	courses := selectedCourses(cfg)
	if len(courses) == 0 {
		return fmt.Errorf("no courses found in %s", cfg.Content.Dir)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveWorkers(cfg.Build.Workers))

	for _, courseID := range courses {
		for _, loc := range cfg.Content.Locales {
			courseID, loc := courseID, loc
			g.Go(func() error {
				buildCourse(gctx, compiler, cfg, log, courseID, loc)
				return gctx.Err()
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return compiler.Cache().FlushNow()
}

// buildCourse compiles one (course, locale) pair and writes its artifact.
func buildCourse(ctx context.Context, compiler *coursekit.Compiler, cfg *config.Config, log *buildlog.Logger, courseID, loc string) {
	result, err := compiler.Compile(ctx, courseID, loc)
	if err != nil {
		log.Errorf("compiling %s (%s): %v", courseID, loc, err)
		return
	}
	if result == nil {
		log.Debugf("skipping %s (%s): no source", courseID, loc)
		return
	}
	if result.Unchanged {
		log.Debugf("skipping %s (%s): unchanged", courseID, loc)
		return
	}

	raw, err := json.Marshal(result.Course)
	if err != nil {
		log.Errorf("encoding %s (%s): %v", courseID, loc, err)
		return
	}

	out := filepath.Join(cfg.Output.Dir, courseID, "data_"+loc+".json")
	if err := fileutil.WriteAtomic(out, raw, 0o644); err != nil {
		log.Errorf("writing %s: %v", out, err)
		return
	}

	log.Infof("compiled %s (%s): %d sections, %d goals",
		courseID, loc, len(result.Course.Sections), result.Course.Goals)
}
