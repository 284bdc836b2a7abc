// Package cli implements the distbuilder command-line interface.
//
// A build is two steps. configure resolves a request document against the
// recipe directories and writes a plan into a build directory; build reads
// that plan and compiles every library not yet installed:
//
//	distbuilder configure -B out request.toml
//	distbuilder build -B out
//
// # Commands
//
//   - configure: resolve a request into plan.json, toolchain.cmake and graph.dot
//   - build: build the configured plan, skipping installed libraries
//   - test: configure and build one library with explicit options
//   - graph: print or render the resolved dependency graph
//   - recipes: list the known recipes
//   - diff: create a patch from a pristine and an edited source file
//   - cache: inspect or clear the download cache
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging and --quiet
// (-q) for warnings only. The logger is passed through context.Context.
package cli

import (
	"context"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"

	"github.com/matzehuels/distbuilder/pkg/config"
	"github.com/matzehuels/distbuilder/pkg/scheduler"
	"github.com/matzehuels/distbuilder/pkg/session"
)

// appName is the application name used for directories and display.
const appName = config.AppName

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
	LogWarn  = log.WarnLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	logOutput  io.Writer
	preference string
	sources    []string

	// runner replaces the external tool runner of every session.
	runner scheduler.RunnerFactory
}

// New creates a new CLI instance logging to w.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger:    newLogger(w, level),
		logOutput: w,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// loadConfig reads the preference file given by --preference, or the
// default one.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.preference)
	if err != nil {
		return nil, err
	}
	if cfg.Path != "" {
		c.Logger.Debug("preferences loaded", "path", cfg.Path)
	}
	return cfg, nil
}

// newSession creates the session for one command.
func (c *CLI) newSession(opts session.Options) (*session.Session, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	opts.Sources = append(append([]string(nil), c.sources...), opts.Sources...)
	sess, err := session.New(cfg, opts, c.Logger)
	if err != nil {
		return nil, err
	}
	sess.LogOutput = c.logOutput
	if c.runner != nil {
		sess.Runner = c.runner
	}
	return sess, nil
}

// interactive reports whether progress indicators may be drawn on stderr.
// They are suppressed whenever log lines would interleave with them.
func (c *CLI) interactive() bool {
	return c.Logger.GetLevel() >= log.WarnLevel &&
		(isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()))
}

// startSpinner shows msg with a spinner when interactive and returns the
// function that removes it.
func (c *CLI) startSpinner(ctx context.Context, msg string) func() {
	if !c.interactive() {
		return func() {}
	}
	s := newSpinner(ctx, os.Stderr, msg)
	s.Start()
	return s.Stop
}
