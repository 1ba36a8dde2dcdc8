package main

import (
	"os"

	flag "github.com/spf13/pflag"

	"github.com/coursekit/coursekit/internal/config"
)

// buildFlags holds all CLI flags. Flags override config file values.
type buildFlags struct {
	config  string
	content string
	output  string
	locales []string
	courses []string
	workers int
	watch   bool
	quiet   bool
	verbose bool
}

// parseFlags parses the command line.
func parseFlags(args []string) (*buildFlags, error) {
	fs := flag.NewFlagSet("coursekit", flag.ContinueOnError)
	f := &buildFlags{}

	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.StringVar(&f.content, "content", "", "course source directory")
	fs.StringVarP(&f.output, "output", "o", "", "artifact output directory")
	fs.StringSliceVarP(&f.locales, "locales", "l", nil, "locales to compile")
	fs.StringSliceVar(&f.courses, "courses", nil, "course ids to compile (default: all)")
	fs.IntVarP(&f.workers, "workers", "w", 0, "concurrent course compilations (0 = auto)")
	fs.BoolVar(&f.watch, "watch", false, "recompile when sources change")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "show debug output")

	fs.Usage = func() {
		os.Stderr.WriteString("Usage: coursekit [flags]\n\nFlags:\n")
		os.Stderr.WriteString(fs.FlagUsages())
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// loadConfig resolves the effective configuration: the config file (or
// defaults) with explicit flags layered on top.
func loadConfig(f *buildFlags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if f.config != "" {
		loaded, err := config.LoadConfig(f.config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if f.content != "" {
		cfg.Content.Dir = f.content
	}
	if f.output != "" {
		cfg.Output.Dir = f.output
	}
	if len(f.locales) > 0 {
		cfg.Content.Locales = f.locales
	}
	if len(f.courses) > 0 {
		cfg.Content.Courses = f.courses
	}
	if f.workers > 0 {
		cfg.Build.Workers = f.workers
	}
	if f.watch {
		cfg.Build.Watch = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
