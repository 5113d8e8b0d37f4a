//go:build linux

package boxxy

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// planEnvVar is how the supervisor hands the re-exec'd child its plan: a
// base64-encoded JSON blob in the child's environment. The child is a fresh
// process (not a goroutine or thread of the parent), so an environment
// variable is the simplest channel that survives exec — see DESIGN.md's Key
// Adaptation note for why this process is cloned rather than unshared in
// place.
const planEnvVar = "__BOXXY_PLAN__"

// errPipeFD is the file descriptor the supervisor passes the child via
// exec.Cmd.ExtraFiles for reporting failures that happen before
// syscall.Exec. It must not be confused with the child's eventual exit
// code: once syscall.Exec succeeds the process becomes the target program,
// and that program is free to exit with any status — including values a
// naive sentinel scheme might otherwise misread as ours (e.g. the sysexits
// codes 70/71). Whether the box ever got built is instead reported out of
// band, over this pipe, exactly like os/exec's own child-side error pipe.
const errPipeFD = 3

// childFailureKind distinguishes the two ways ChildMain can fail before it
// hands control to the target program.
type childFailureKind string

const (
	childFailureNamespace childFailureKind = "namespace"
	childFailureExec      childFailureKind = "exec"
)

// childFailure is the JSON payload written to errPipeFD when ChildMain
// fails before exec. An empty read from that pipe (EOF, no bytes) means
// syscall.Exec succeeded and the process's exit status belongs to the
// target program, not to boxxy.
type childFailure struct {
	Kind    childFailureKind `json:"kind"`
	Message string           `json:"message"`
}

// openErrPipe wraps errPipeFD as an *os.File and marks it close-on-exec, so
// a successful syscall.Exec closes it automatically without boxxy having
// to track whether exec is about to succeed. os.NewFile never fails for a
// plain fd number, so this is always non-nil; if errPipeFD isn't actually
// open (ChildMain invoked directly, outside the supervisor's pipe plumbing)
// the later write simply fails and is ignored.
func openErrPipe() *os.File {
	f := os.NewFile(uintptr(errPipeFD), "boxxy-errpipe")
	unix.CloseOnExec(errPipeFD)

	return f
}

// reportChildFailure logs err to stderr and best-effort writes it to the
// parent as a childFailure so exitCodeFor can classify it without guessing
// from an exit code.
func reportChildFailure(errPipe *os.File, stderr logWriter, kind childFailureKind, err error) {
	fmt.Fprintf(stderr, "boxxy: %v\n", err)

	data, marshalErr := json.Marshal(childFailure{Kind: kind, Message: err.Error()})
	if marshalErr != nil {
		return
	}

	_, _ = errPipe.Write(data)
}

// IsChildReexec reports whether the current process is the re-exec'd child
// (i.e. cmd/boxxy should call ChildMain instead of the normal CLI path).
func IsChildReexec() bool {
	_, ok := os.LookupEnv(planEnvVar)

	return ok
}

// encodePlan renders p for transport through planEnvVar.
func encodePlan(p *plan) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

func decodePlan(encoded string) (*plan, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}

	var p plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}

	return &p, nil
}

// ChildMain is the entry point for the re-exec'd child process. It must be
// called as early as possible (before any flag parsing or other setup),
// since by the time it runs the process is already inside the new user and
// mount namespaces created by the parent's exec.Cmd.SysProcAttr
// (CLONE_NEWUSER|CLONE_NEWNS with identity UID/GID mappings) — see
// DESIGN.md.
//
// ChildMain never returns on success: it ends by calling syscall.Exec,
// replacing this process's image with the target program. On failure it
// logs to stderr and returns a process exit code for the caller to use with
// os.Exit.
func ChildMain(stderr logWriter) int {
	errPipe := openErrPipe()

	encoded, ok := os.LookupEnv(planEnvVar)
	if !ok {
		reportChildFailure(errPipe, stderr, childFailureNamespace, fmt.Errorf("internal error: ChildMain called without a plan"))

		return 1
	}

	p, err := decodePlan(encoded)
	if err != nil {
		reportChildFailure(errPipe, stderr, childFailureNamespace, fmt.Errorf("internal error: decoding plan: %w", err))

		return 1
	}

	if err := enterMirror(p); err != nil {
		reportChildFailure(errPipe, stderr, childFailureNamespace, err)

		return 1
	}

	applyRuleMounts(p, func(format string, args ...any) {
		fmt.Fprintf(stderr, format+"\n", args...)
	})

	if p.Immutable {
		if err := remountReadOnly("/"); err != nil {
			fmt.Fprintf(stderr, "boxxy: immutable remount failed, box runs writable: %v\n", err)
		}
	}

	if err := unix.Chdir(p.OriginalCwd); err != nil {
		// The invoker's working directory should exist at the same absolute
		// path in the mirror (the mirror mirrors /), but fall back to "/"
		// rather than failing the whole invocation over a stale cwd.
		_ = unix.Chdir("/")
	}

	childEnv := mergeRuleEnv(p.BaseEnv, p.Rules)

	argv0, err := lookPath(p.Program, childEnv)
	if err != nil {
		reportChildFailure(errPipe, stderr, childFailureExec, err)

		return 1
	}

	if err := syscall.Exec(argv0, p.Argv, childEnv); err != nil {
		reportChildFailure(errPipe, stderr, childFailureExec, fmt.Errorf("exec %q: %w", p.Program, err))

		return 1
	}

	// unreachable: syscall.Exec only returns on error, and on success
	// errPipe is closed by the kernel (FD_CLOEXEC) before the target
	// program's own main ever runs.
	return 1
}

// logWriter is the minimal interface ChildMain needs from stderr; defined
// narrowly so callers can pass os.Stderr directly without an import cycle
// concern.
type logWriter interface {
	Write([]byte) (int, error)
}

// enterMirror performs §4.D steps 4-6: make the mount namespace private,
// bind-mount the host root onto the staging directory, then pivot into it.
func enterMirror(p *plan) error {
	if err := makeMountPrivate("/"); err != nil {
		return &NamespaceError{Op: "make-private", Err: err}
	}

	if err := bindMountRec("/", p.StagingPath); err != nil {
		return &NamespaceError{Op: "mirror-bind", Err: err}
	}

	if err := unix.Chdir(p.StagingPath); err != nil {
		return &NamespaceError{Op: "chdir-staging", Err: err}
	}

	if err := unix.PivotRoot(".", "."); err != nil {
		return &NamespaceError{Op: "pivot-root", Err: err}
	}

	if err := unix.Unmount(".", unix.MNT_DETACH); err != nil {
		return &NamespaceError{Op: "detach-old-root", Err: err}
	}

	if err := unix.Chdir("/"); err != nil {
		return &NamespaceError{Op: "chdir-root", Err: err}
	}

	if err := writeEnclosureMarker(); err != nil {
		return &NamespaceError{Op: "enclosure-marker", Err: err}
	}

	return nil
}

// enclosureMarkerPath is a sentinel file created at a fixed path inside
// every mirror so a nested boxxy invocation's --check can detect it's
// already running inside an enclosure.
const enclosureMarkerPath = "/.boxxy-enclosure"

func writeEnclosureMarker() error {
	f, err := os.OpenFile(enclosureMarkerPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o444)
	if err != nil {
		return fmt.Errorf("create %s: %w", enclosureMarkerPath, err)
	}

	return f.Close()
}

// applyRuleMounts performs §4.D step 7 / §4.E: for each rule, materialize
// the target endpoint inside the (now-root) mirror and bind-mount rewrite
// onto it. Failures are per-rule: logged and skipped, never fatal.
func applyRuleMounts(p *plan, logf func(format string, args ...any)) {
	for _, r := range p.Rules {
		if err := materialize(r.Target, r.Mode); err != nil {
			logf("mount: rule %q: materializing target: %v", r.Name, &MountError{Rule: r.Name, Err: err})

			continue
		}

		if err := bindMount(r.Rewrite, r.Target); err != nil {
			logf("mount: rule %q: %v", r.Name, &MountError{Rule: r.Name, Err: err})

			continue
		}

		logf("applying rule %q", r.Name)
		logf("redirect: %s -> %s", r.Target, r.Rewrite)
	}
}

// lookPath resolves program to an executable path using env's PATH entry
// rather than the calling process's own environment, since by this point
// childEnv (which may carry rule-injected PATH overrides) is what should
// govern resolution, not the supervisor's original environment.
func lookPath(program string, env []string) (string, error) {
	if strings.ContainsRune(program, '/') {
		if err := unix.Access(program, unix.X_OK); err != nil {
			return "", fmt.Errorf("%s: %w", program, err)
		}

		return program, nil
	}

	for _, dir := range strings.Split(envValue(env, "PATH"), ":") {
		if dir == "" {
			dir = "."
		}

		candidate := filepath.Join(dir, program)
		if err := unix.Access(candidate, unix.X_OK); err == nil {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%s: executable file not found in $PATH", program)
}

func envValue(env []string, key string) string {
	prefix := key + "="

	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			return kv[len(prefix):]
		}
	}

	return ""
}

// mergeRuleEnv merges each applied rule's Env entries into base, later
// rules overriding earlier ones on key collision (§4.E "Env injection").
func mergeRuleEnv(base []string, rules []planRule) []string {
	merged := make(map[string]string, len(base))

	for _, kv := range base {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}

		merged[key] = value
	}

	for _, r := range rules {
		for k, v := range r.Env {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+merged[k])
	}

	return out
}
