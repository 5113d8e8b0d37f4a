package boxxy

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// MatchedRule is a Rule whose endpoints have been canonicalized and that
// applies to the current invocation (cwd, program).
type MatchedRule struct {
	Rule
	// these duplicate Rule.Target/Rewrite post-canonicalization; kept as
	// separate fields so a caller can't confuse pre- and post-canonical
	// values.
	Target  string
	Rewrite string
}

// MatchDiagnostic is a non-fatal problem found while matching rule i, e.g.
// a ConfigError or PathError. The rule is skipped; matching continues.
type MatchDiagnostic struct {
	Index int
	Err   error
}

// Select filters rs to the rules that apply to cwd and program, in RuleSet
// order, with each surviving rule's endpoints canonicalized (§4.B).
//
// homeDir/env are used by the path canonicalizer for "~" and $VAR
// expansion. Diagnostics accumulates problems for rules that were skipped
// (invalid mode, self-nested endpoints, bad paths); it never includes fatal
// errors — matching always returns a (possibly empty) selection.
func Select(rs RuleSet, cwd, program, homeDir string, env map[string]string) ([]MatchedRule, []MatchDiagnostic) {
	var (
		selected    []MatchedRule
		diagnostics []MatchDiagnostic
	)

	programBase := filepath.Base(program)

	for i, rule := range rs.Rules {
		if !matchesOnly(rule.Only, programBase) {
			continue
		}

		if !matchesContext(rule.Context, cwd, homeDir, env) {
			continue
		}

		if err := rule.validate(); err != nil {
			diagnostics = append(diagnostics, MatchDiagnostic{Index: i, Err: &ConfigError{Rule: rule.Name, Err: err}})

			continue
		}

		target, err := canonicalize(rule.Target, homeDir, cwd, env)
		if err != nil {
			diagnostics = append(diagnostics, MatchDiagnostic{Index: i, Err: err})

			continue
		}

		rewrite, err := canonicalize(rule.Rewrite, homeDir, cwd, env)
		if err != nil {
			diagnostics = append(diagnostics, MatchDiagnostic{Index: i, Err: err})

			continue
		}

		if err := checkNotNested(target, rewrite); err != nil {
			diagnostics = append(diagnostics, MatchDiagnostic{Index: i, Err: &ConfigError{Rule: rule.Name, Err: err}})

			continue
		}

		selected = append(selected, MatchedRule{Rule: rule, Target: target, Rewrite: rewrite})
	}

	return selected, diagnostics
}

// matchesOnly implements §4.B step 1: empty Only matches everything,
// otherwise the program's basename must be listed.
func matchesOnly(only []string, programBase string) bool {
	if len(only) == 0 {
		return true
	}

	return slices.Contains(only, programBase)
}

// matchesContext implements §4.B step 2: empty Context matches everything,
// otherwise cwd must equal or nest under one of the context directories,
// at a path-component boundary.
func matchesContext(context []string, cwd, homeDir string, env map[string]string) bool {
	if len(context) == 0 {
		return true
	}

	for _, dir := range context {
		resolvedDir, err := canonicalize(dir, homeDir, cwd, env)
		if err != nil {
			continue
		}

		if isWithin(cwd, resolvedDir) {
			return true
		}
	}

	return false
}

// isWithin reports whether cwd is base or nested under base, at a
// path-component boundary (so "/home/foobar" is not considered nested
// under "/home/foo").
func isWithin(cwd, base string) bool {
	cwd = filepath.Clean(cwd)
	base = filepath.Clean(base)

	if cwd == base {
		return true
	}

	return strings.HasPrefix(cwd, base+string(filepath.Separator))
}

// checkNotNested implements invariant 3.2: rewrite must not be a strict
// ancestor of target, nor vice versa.
func checkNotNested(target, rewrite string) error {
	if target == rewrite {
		return fmt.Errorf("target and rewrite are the same path %q", target)
	}

	if isWithin(target, rewrite) {
		return fmt.Errorf("rewrite %q is an ancestor of target %q", rewrite, target)
	}

	if isWithin(rewrite, target) {
		return fmt.Errorf("target %q is an ancestor of rewrite %q", target, rewrite)
	}

	return nil
}
