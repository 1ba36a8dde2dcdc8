package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/coursekit/coursekit"
	"github.com/coursekit/coursekit/internal/buildlog"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	mode := "dev"
	if flags.verbose {
		mode = "verbose"
	} else if flags.quiet {
		mode = "quiet"
	}
	log, err := buildlog.New(mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	// Error ignored: maxprocs.Set only fails if GOMAXPROCS env is invalid,
	// in which case Go runtime defaults apply and the program continues safely.
	_, _ = maxprocs.Set(maxprocs.Logger(log.Debugf))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	compiler := coursekit.New(cfg, log)
	defer func() {
		if err := compiler.Close(); err != nil {
			log.Warnf("shutting down: %v", err)
		}
	}()

	if cfg.Build.Watch {
		err = watch(ctx, compiler, cfg, log)
	} else {
		err = buildAll(ctx, compiler, cfg, log)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("%v", err)
	}

	log.Infof("done: %d warnings, %d errors", log.Warnings(), log.Errors())
	if log.Errors() > 0 {
		log.Sync()
		os.Exit(1)
	}
}
