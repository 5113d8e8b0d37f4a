//go:build linux

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/queer/boxxy/internal/boxxy"
	"github.com/queer/boxxy/internal/boxxylog"
	"github.com/queer/boxxy/internal/config"
)

const (
	programName = "boxxy"

	// exitCodeSIGINT is returned when the supervisor itself is interrupted
	// before the child could be waited on (128 + SIGINT).
	exitCodeSIGINT = 130

	// cleanupGrace bounds how long Run waits for a second Ctrl+C before
	// reporting a timed-out cleanup.
	cleanupGrace = 10 * time.Second
)

// enclosureMarkerPath is where the re-exec'd child writes a sentinel file
// after pivoting into the mirror (internal/boxxy's writeEnclosureMarker),
// read by --check to detect nested invocations (see runCheck).
const enclosureMarkerPath = "/.boxxy-enclosure"

// Run isolates the CLI's logic from global state (stdin/stdout/stderr,
// args, env), mirroring the teacher's Run(stdin, stdout, stderr, args, env,
// sigCh) shape so it stays testable without touching process globals.
// sigCh may be nil, e.g. in tests.
func Run(stdin io.Reader, stdout, stderr io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	flags := flag.NewFlagSet(programName, flag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.Usage = func() {}
	flags.SetOutput(io.Discard)

	flagHelp := flags.BoolP("help", "h", false, "Show help")
	flagCheck := flags.Bool("check", false, "Check whether this process is already inside a boxxy enclosure")
	flagImmutable := flags.BoolP("immutable", "i", false, "Remount / read-only once rule mounts are installed")
	flagVerbose := flags.BoolP("verbose", "v", false, "Raise the log level to debug")
	flagConfig := flags.StringP("config", "c", "", "Use the given config file instead of the project/global lookup")
	flagDryRun := flags.Bool("dry-run", false, "Print the computed rule plan without entering a namespace")

	if err := flags.Parse(args[1:]); err != nil {
		fprintError(stderr, err)
		fprintln(stderr)
		printUsage(stderr)

		return 1
	}

	if *flagCheck {
		return runCheck(stdout)
	}

	commandAndArgs := flags.Args()

	if *flagHelp || len(commandAndArgs) == 0 {
		printUsage(stdout)

		return 0
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fprintError(stderr, fmt.Errorf("resolving home directory: %w", err))

		return 1
	}

	cwd, err := os.Getwd()
	if err != nil {
		fprintError(stderr, fmt.Errorf("resolving working directory: %w", err))

		return 1
	}

	ruleSet, err := loadRuleSet(*flagConfig, homeDir, cwd, env)
	if err != nil {
		fprintError(stderr, err)

		return 1
	}

	logger := boxxylog.New(stderr, *flagVerbose)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inv := &boxxy.Invocation{
		RuleSet: ruleSet,
		Command: boxxy.Command{
			Program: commandAndArgs[0],
			Argv:    commandAndArgs,
			Env:     envMapToSlice(env),
		},
		HomeDir:   homeDir,
		Cwd:       cwd,
		Env:       env,
		Immutable: *flagImmutable,
		DryRun:    *flagDryRun,
		Stdin:     stdin,
		Stdout:    stdout,
		Stderr:    stderr,
		Logf:      logger.AsLogf(),
	}

	type result struct {
		code int
		err  error
	}

	done := make(chan result, 1)

	go func() {
		code, runErr := boxxy.Run(ctx, inv)
		done <- result{code: code, err: runErr}
	}()

	if sigCh == nil {
		r := <-done

		return finish(stderr, r.code, r.err)
	}

	select {
	case r := <-done:
		return finish(stderr, r.code, r.err)
	case <-sigCh:
		fprintln(stderr, "Interrupted, waiting up to 10s for the box to exit... (Ctrl+C again to force exit)")
		cancel()
	}

	select {
	case r := <-done:
		return finish(stderr, r.code, r.err)
	case <-time.After(cleanupGrace):
		fprintln(stderr, "Cleanup timed out.")

		return exitCodeSIGINT
	case <-sigCh:
		fprintln(stderr, "Forced exit.")

		return exitCodeSIGINT
	}
}

func finish(stderr io.Writer, code int, err error) int {
	if err != nil {
		fprintError(stderr, err)
	}

	return code
}

// runCheck implements --check (teacher precedent: cmd_check.go): it
// reports whether enclosureMarkerPath exists, meaning this process is
// already running inside a boxxy mirror.
func runCheck(stdout io.Writer) int {
	if _, err := os.Stat(enclosureMarkerPath); err == nil {
		fprintln(stdout, "inside enclosure")

		return 0
	}

	fprintln(stdout, "outside enclosure")

	return 1
}

// loadRuleSet loads the merged global+project RuleSet, or, if
// explicitConfig is set, that single named file in isolation (mirroring the
// teacher's --config override semantics, which replaces rather than
// supplements project lookup).
func loadRuleSet(explicitConfig, homeDir, cwd string, env map[string]string) (boxxy.RuleSet, error) {
	if explicitConfig != "" {
		path := explicitConfig
		if !filepath.IsAbs(path) {
			path = filepath.Join(cwd, path)
		}

		return config.LoadFile(path)
	}

	configDir := config.DefaultConfigDir(homeDir, env)

	return config.Load(configDir, cwd)
}

func envMapToSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))

	for k, v := range env {
		out = append(out, k+"="+v)
	}

	return out
}

func notifySignals(sigCh chan<- os.Signal) {
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
}

const usageHelp = `boxxy - transparent filesystem redirection for a child process

Usage: boxxy [flags] <program> [args...]

Flags:
  -h, --help               Show help
      --check               Report whether this process is already inside a boxxy enclosure
  -i, --immutable           Remount / read-only once rule mounts are installed
  -v, --verbose             Raise the log level to debug
  -c, --config <file>       Use this config file instead of the project/global lookup
      --dry-run             Print the computed rule plan without entering a namespace

Configuration is read from ~/.config/boxxy/boxxy.yaml, merged with an
optional ./boxxy.yaml in the current directory (project rules win on
identical target). boxxy does not load .env files; use your shell or
direnv for that.

Examples:
  boxxy -- git commit
  boxxy --immutable bash
  boxxy --dry-run npm install`

func printUsage(out io.Writer) {
	fprintln(out, usageHelp)
}

func fprintln(out io.Writer, a ...any) {
	_, _ = fmt.Fprintln(out, a...)
}

func fprintError(out io.Writer, err error) {
	fprintln(out, programName+": error:", err)
}
