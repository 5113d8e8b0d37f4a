package boxxy

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_Select_Applies_Rule_With_No_Only_Or_Context(t *testing.T) {
	t.Parallel()

	rs := RuleSet{Rules: []Rule{
		{Name: "aws", Target: "/home/user/.aws", Rewrite: "/home/user/.config/aws"},
	}}

	selected, diags := Select(rs, "/work", "claude", "/home/user", nil)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	if len(selected) != 1 {
		t.Fatalf("got %d selected rules, want 1", len(selected))
	}

	if selected[0].Target != "/home/user/.aws" {
		t.Errorf("Target = %q, want /home/user/.aws", selected[0].Target)
	}
}

func Test_Select_Skips_Rule_Not_Matching_Only(t *testing.T) {
	t.Parallel()

	rs := RuleSet{Rules: []Rule{
		{Name: "aws", Target: "/home/user/.aws", Rewrite: "/home/user/.config/aws", Only: []string{"claude"}},
	}}

	selected, diags := Select(rs, "/work", "bash", "/home/user", nil)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	if len(selected) != 0 {
		t.Fatalf("got %d selected rules, want 0", len(selected))
	}
}

func Test_Select_Matches_Only_On_Program_Basename(t *testing.T) {
	t.Parallel()

	rs := RuleSet{Rules: []Rule{
		{Name: "aws", Target: "/t", Rewrite: "/r", Only: []string{"claude"}},
	}}

	selected, _ := Select(rs, "/work", "/usr/local/bin/claude", "/home/user", nil)
	if len(selected) != 1 {
		t.Fatalf("got %d selected rules, want 1", len(selected))
	}
}

func Test_Select_Skips_Rule_Outside_Context(t *testing.T) {
	t.Parallel()

	rs := RuleSet{Rules: []Rule{
		{Name: "aws", Target: "/t", Rewrite: "/r", Context: []string{"/home/user/work"}},
	}}

	selected, _ := Select(rs, "/home/user/other", "claude", "/home/user", nil)
	if len(selected) != 0 {
		t.Fatalf("got %d selected rules, want 0", len(selected))
	}
}

func Test_Select_Applies_Rule_In_Nested_Context(t *testing.T) {
	t.Parallel()

	rs := RuleSet{Rules: []Rule{
		{Name: "aws", Target: "/t", Rewrite: "/r", Context: []string{"/home/user/work"}},
	}}

	selected, _ := Select(rs, "/home/user/work/sub/dir", "claude", "/home/user", nil)
	if len(selected) != 1 {
		t.Fatalf("got %d selected rules, want 1", len(selected))
	}
}

func Test_Select_Does_Not_Match_Context_At_Non_Boundary(t *testing.T) {
	t.Parallel()

	rs := RuleSet{Rules: []Rule{
		{Name: "aws", Target: "/t", Rewrite: "/r", Context: []string{"/home/foo"}},
	}}

	selected, _ := Select(rs, "/home/foobar", "claude", "/home/user", nil)
	if len(selected) != 0 {
		t.Fatalf("got %d selected rules, want 0 (foobar must not match foo prefix)", len(selected))
	}
}

func Test_Select_Reports_Diagnostic_For_Nested_Endpoints(t *testing.T) {
	t.Parallel()

	rs := RuleSet{Rules: []Rule{
		{Name: "bad", Target: "/home/user/.aws", Rewrite: "/home/user"},
	}}

	selected, diags := Select(rs, "/work", "claude", "/home/user", nil)
	if len(selected) != 0 {
		t.Fatalf("got %d selected rules, want 0", len(selected))
	}

	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
}

func Test_Select_Reports_Diagnostic_For_Identical_Endpoints(t *testing.T) {
	t.Parallel()

	rs := RuleSet{Rules: []Rule{
		{Name: "bad", Target: "/home/user/.aws", Rewrite: "/home/user/.aws"},
	}}

	_, diags := Select(rs, "/work", "claude", "/home/user", nil)
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
}

func Test_Select_Preserves_Order_And_Later_Duplicate_Target_Wins_On_Apply(t *testing.T) {
	t.Parallel()

	rs := RuleSet{Rules: []Rule{
		{Name: "first", Target: "/t", Rewrite: "/r1"},
		{Name: "second", Target: "/t", Rewrite: "/r2"},
	}}

	selected, diags := Select(rs, "/work", "claude", "/home/user", nil)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}

	want := []string{"/r1", "/r2"}

	got := make([]string, 0, len(selected))
	for _, r := range selected {
		got = append(got, r.Rewrite)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rewrite order mismatch (-want +got):\n%s", diff)
	}
}

func Test_IsWithin_Same_Path(t *testing.T) {
	t.Parallel()

	if !isWithin("/a/b", "/a/b") {
		t.Error("expected isWithin to be true for identical paths")
	}
}

func Test_IsWithin_Rejects_Sibling_With_Shared_Prefix(t *testing.T) {
	t.Parallel()

	if isWithin("/home/foobar", "/home/foo") {
		t.Error("expected isWithin to be false at a non-component boundary")
	}
}

func Test_CheckNotNested_Rejects_Ancestor_Rewrite(t *testing.T) {
	t.Parallel()

	if err := checkNotNested("/a/b", "/a"); err == nil {
		t.Error("expected an error when rewrite is an ancestor of target")
	}
}

func Test_CheckNotNested_Rejects_Descendant_Rewrite(t *testing.T) {
	t.Parallel()

	if err := checkNotNested("/a", "/a/b"); err == nil {
		t.Error("expected an error when rewrite is a descendant of target")
	}
}

func Test_CheckNotNested_Accepts_Disjoint_Paths(t *testing.T) {
	t.Parallel()

	if err := checkNotNested("/a/b", "/c/d"); err != nil {
		t.Errorf("unexpected error for disjoint paths: %v", err)
	}
}
