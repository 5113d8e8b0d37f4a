// Package boxxy implements the enclosure engine: it constructs an isolated
// filesystem namespace containing a RuleSet's path redirections, drops
// privileges correctly, and execs a target program inside it.
//
// The package does not parse configuration files or CLI flags; callers
// produce a validated RuleSet and Command and hand them to Run inside an
// Invocation.
package boxxy

import (
	"fmt"
	"strings"
)

// Mode selects how a rule's endpoints are materialized and mounted.
type Mode string

const (
	// ModeDirectory is the default: missing endpoints are created as empty
	// directories, and the bind mount carries directory semantics.
	ModeDirectory Mode = "directory"
	// ModeFile requires both endpoints, once materialized, to be regular
	// files.
	ModeFile Mode = "file"
)

// Rule is a single redirection directive: when the target program, invoked
// from a matching context, touches Target, it transparently observes
// Rewrite's contents instead.
type Rule struct {
	// Name is a free-form identifier used only in diagnostics.
	Name string

	// Target is the path the child will observe. Absolute after
	// canonicalization.
	Target string

	// Rewrite is the host path whose contents appear at Target inside the
	// box. Absolute after canonicalization.
	Rewrite string

	// Mode determines how missing endpoints are materialized and what kind
	// of bind mount is installed. Zero value means ModeDirectory.
	Mode Mode

	// Context is an ordered set of absolute directory paths the rule is
	// active under. Empty means global.
	Context []string

	// Only is a set of program basenames the rule applies to. Empty means
	// any program.
	Only []string

	// Env is merged into the child's environment when the rule applies.
	Env map[string]string
}

// RuleSet is an ordered sequence of Rules. Order is preserved for
// deterministic mount layering: when two active rules share a Target, the
// later rule wins.
type RuleSet struct {
	Rules []Rule
}

// effectiveMode returns r.Mode, defaulting to ModeDirectory.
func (r Rule) effectiveMode() Mode {
	if r.Mode == "" {
		return ModeDirectory
	}

	return r.Mode
}

// validate checks invariants that don't require filesystem access or
// canonicalization: non-empty Target/Rewrite, a known Mode. Canonicalization
// and the ancestor/descendant check (invariant 3.2) happen in the matcher,
// since they require resolving paths first.
func (r Rule) validate() error {
	if strings.TrimSpace(r.Target) == "" {
		return fmt.Errorf("empty target")
	}

	if strings.TrimSpace(r.Rewrite) == "" {
		return fmt.Errorf("empty rewrite")
	}

	switch r.effectiveMode() {
	case ModeDirectory, ModeFile:
	default:
		return fmt.Errorf("unknown mode %q", r.Mode)
	}

	return nil
}

// Command describes the program to run inside the box.
type Command struct {
	// Program is the executable to exec, resolved against PATH if not
	// already a path.
	Program string
	// Argv is the full argument vector, including argv[0].
	Argv []string
	// Env is the base environment the child starts with, before rule Env
	// entries are merged in.
	Env []string
}
