//go:build linux

package boxxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Logf receives the supervisor's diagnostic lines ("loaded N rules", "boxed
// '<program>'", dry-run plan lines) plus per-rule ConfigError/PathError/
// MountError warnings raised before the re-exec. The "applying rule" and
// "redirect" lines are written by the re-exec'd child straight to its
// stderr, not through Logf.
// It must be safe to call from any goroutine; a nil Logf is a no-op.
type Logf func(format string, args ...any)

// Invocation is everything the supervisor needs that would otherwise be
// read from global state (env, cwd, stdio). Capturing it explicitly means
// it is read exactly once, before any namespace is entered — re-reading
// /proc-backed views after namespace entry would observe the box, not the
// host (§9 "Global state").
type Invocation struct {
	RuleSet RuleSet
	Command Command
	HomeDir string
	Cwd     string
	Env     map[string]string

	// Immutable remounts "/" read-only after rule mounts are installed.
	Immutable bool
	// DryRun computes and logs the plan without entering any namespace.
	DryRun bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Logf Logf
}

func (inv *Invocation) logf(format string, args ...any) {
	if inv.Logf == nil {
		return
	}

	inv.Logf(format, args...)
}

// Run is the Enclosure Supervisor (§4.F): it matches rules, canonicalizes
// and validates them, stages a mirror root, materializes host-side rewrite
// endpoints, re-execs itself into new user+mount namespaces to build the
// box, and waits for the target program, translating its termination into
// an exit code.
//
// ctx governs the lifetime of the target program only; once the box is
// built, cancelling ctx signals the child (SIGTERM then, after
// killGrace, SIGKILL) rather than the supervisor itself.
func Run(ctx context.Context, inv *Invocation) (int, error) {
	if len(inv.Command.Argv) == 0 {
		return 1, fmt.Errorf("boxxy: no command provided")
	}

	selected, diagnostics := Select(inv.RuleSet, inv.Cwd, inv.Command.Program, inv.HomeDir, inv.Env)
	for _, d := range diagnostics {
		inv.logf("skipping rule: %v", d.Err)
	}

	inv.logf("loaded %d rules", len(selected))

	if inv.DryRun {
		for _, r := range selected {
			inv.logf("would apply rule %q: %s -> %s", r.Name, r.Target, r.Rewrite)
		}

		return 0, nil
	}

	ready := make([]MatchedRule, 0, len(selected))

	for _, r := range selected {
		if err := materializeRewrite(r); err != nil {
			inv.logf("mount: rule %q: %v", r.Name, &MountError{Rule: r.Name, Err: err})

			continue
		}

		ready = append(ready, r)
	}

	stagingPath, err := stage()
	if err != nil {
		return 1, err
	}

	defer func() { _ = unstage(stagingPath) }()

	planRules := make([]planRule, 0, len(ready))
	for _, r := range ready {
		planRules = append(planRules, toPlanRule(r))
	}

	p := &plan{
		StagingPath: stagingPath,
		Immutable:   inv.Immutable,
		OriginalCwd: inv.Cwd,
		Program:     inv.Command.Program,
		Argv:        inv.Command.Argv,
		BaseEnv:     inv.Command.Env,
		Rules:       planRules,
	}

	encodedPlan, err := encodePlan(p)
	if err != nil {
		return 1, &NamespaceError{Op: "encode-plan", Err: err}
	}

	selfExe, err := os.Executable()
	if err != nil {
		return 1, &NamespaceError{Op: "find-self", Err: err}
	}

	errPipeRead, errPipeWrite, err := os.Pipe()
	if err != nil {
		return 1, &NamespaceError{Op: "create-error-pipe", Err: err}
	}

	childCmd := exec.Command(selfExe)
	childCmd.Stdin = inv.Stdin
	childCmd.Stdout = inv.Stdout
	childCmd.Stderr = inv.Stderr
	childCmd.Env = append(os.Environ(), planEnvVar+"="+encodedPlan)
	childCmd.ExtraFiles = []*os.File{errPipeWrite}

	uid := os.Getuid()
	gid := os.Getgid()

	childCmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags:                 unix.CLONE_NEWUSER | unix.CLONE_NEWNS,
		UidMappings:                []syscall.SysProcIDMap{{ContainerID: uid, HostID: uid, Size: 1}},
		GidMappings:                []syscall.SysProcIDMap{{ContainerID: gid, HostID: gid, Size: 1}},
		GidMappingsEnableSetgroups: false,
	}

	if err := childCmd.Start(); err != nil {
		_ = errPipeRead.Close()
		_ = errPipeWrite.Close()

		return 1, &NamespaceError{Op: "start-child", Err: err}
	}

	// The parent's copy of the write end must be closed so the pipe's read
	// end sees EOF once every other copy (the child's, and the target
	// program's if syscall.Exec never closes it) goes away — otherwise a
	// Read here would block forever on our own dangling fd.
	_ = errPipeWrite.Close()

	failureCh := make(chan childFailure, 1)

	go func() {
		data, _ := io.ReadAll(errPipeRead)
		_ = errPipeRead.Close()
		failureCh <- decodeChildFailure(data)
	}()

	inv.logf("boxed %q", inv.Command.Program)

	return waitForChild(ctx, childCmd, inv.Command.Program, failureCh)
}

// decodeChildFailure parses the childFailure payload ChildMain writes to
// errPipeFD on pre-exec failure. Empty or unparsable data means no failure
// was reported (the zero value's Kind is "").
func decodeChildFailure(data []byte) childFailure {
	if len(data) == 0 {
		return childFailure{}
	}

	var f childFailure
	if err := json.Unmarshal(data, &f); err != nil {
		return childFailure{}
	}

	return f
}

// materializeRewrite performs the host-side half of §4.E: creating the
// rewrite endpoint (and its parents) before the namespace sandbox is
// entered, so it persists beyond this invocation.
func materializeRewrite(r MatchedRule) error {
	return materialize(r.Rewrite, r.effectiveMode())
}

// killGrace is how long the supervisor waits after forwarding SIGTERM to
// the child before escalating to SIGKILL (§4 Design Notes, generalizing the
// teacher's two-stage termCtx/killCtx shutdown).
const killGrace = 10 * time.Second

// waitForChild waits for the re-exec'd child (and, once it execs, the
// target program occupying the same PID) to exit, translating the result
// per §7: a clean exit passes its code through unchanged, whatever that
// code happens to be. Whether the box ever got built is decided from
// failureCh (fed by the child's close-on-exec error pipe), never from the
// exit code itself — that code may belong to the target program.
func waitForChild(ctx context.Context, cmd *exec.Cmd, program string, failureCh <-chan childFailure) (int, error) {
	done := make(chan error, 1)

	go func() { done <- cmd.Wait() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			_ = cmd.Process.Signal(syscall.SIGTERM)

			select {
			case err := <-done:
				return exitCodeFor(cmd, err, program, <-failureCh)
			case <-time.After(killGrace):
				_ = cmd.Process.Kill()
				err := <-done

				return exitCodeFor(cmd, err, program, <-failureCh)
			}
		case sig := <-sigCh:
			_ = cmd.Process.Signal(sig.(syscall.Signal))
		case err := <-done:
			return exitCodeFor(cmd, err, program, <-failureCh)
		}
	}
}

func exitCodeFor(cmd *exec.Cmd, waitErr error, program string, failure childFailure) (int, error) {
	switch failure.Kind {
	case childFailureNamespace:
		return 1, &NamespaceError{Op: "child", Err: errors.New(failure.Message)}
	case childFailureExec:
		return 126, &ExecError{Program: program, Err: errors.New(failure.Message)}
	}

	state := cmd.ProcessState
	if state == nil {
		return 1, waitErr
	}

	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		cs := &ChildSignal{Signal: int(ws.Signal())}

		return cs.ExitCode(), cs
	}

	return state.ExitCode(), nil
}
