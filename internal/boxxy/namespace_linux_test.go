package boxxy

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_EncodePlan_DecodePlan_Round_Trip(t *testing.T) {
	t.Parallel()

	p := &plan{
		StagingPath: "/tmp/boxxy-containers/bold-surf-1234",
		Immutable:   true,
		OriginalCwd: "/home/user/work",
		Program:     "claude",
		Argv:        []string{"claude", "--flag"},
		BaseEnv:     []string{"PATH=/usr/bin", "HOME=/home/user"},
		Rules: []planRule{
			{Name: "aws", Target: "/home/user/.aws", Rewrite: "/home/user/.config/aws", Mode: ModeDirectory},
		},
	}

	encoded, err := encodePlan(p)
	if err != nil {
		t.Fatalf("encodePlan: %v", err)
	}

	decoded, err := decodePlan(encoded)
	if err != nil {
		t.Fatalf("decodePlan: %v", err)
	}

	if diff := cmp.Diff(p, decoded); diff != "" {
		t.Errorf("plan round-trip mismatch (-want +got):\n%s", diff)
	}
}

func Test_DecodePlan_Rejects_Invalid_Base64(t *testing.T) {
	t.Parallel()

	if _, err := decodePlan("not valid base64!!"); err == nil {
		t.Error("expected an error for malformed input")
	}
}

func Test_IsChildReexec_True_When_Plan_Env_Var_Is_Set(t *testing.T) {
	t.Setenv(planEnvVar, "anything")

	if !IsChildReexec() {
		t.Error("expected IsChildReexec to be true once the plan env var is set")
	}
}

func Test_IsChildReexec_False_Without_Plan_Env_Var(t *testing.T) {
	if err := os.Unsetenv(planEnvVar); err != nil {
		t.Fatalf("unsetenv: %v", err)
	}

	if IsChildReexec() {
		t.Error("expected IsChildReexec to be false without the plan env var")
	}
}

func Test_MergeRuleEnv_Later_Rule_Overrides_Earlier_On_Same_Key(t *testing.T) {
	t.Parallel()

	base := []string{"PATH=/usr/bin", "FOO=bar"}
	rules := []planRule{
		{Name: "r1", Env: map[string]string{"FOO": "first"}},
		{Name: "r2", Env: map[string]string{"FOO": "second"}},
	}

	merged := mergeRuleEnv(base, rules)

	want := map[string]string{"PATH": "/usr/bin", "FOO": "second"}
	got := map[string]string{}

	for _, kv := range merged {
		k, v, _ := cutOnce(kv)
		got[k] = v
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mergeRuleEnv mismatch (-want +got):\n%s", diff)
	}
}

func Test_MergeRuleEnv_Output_Is_Sorted(t *testing.T) {
	t.Parallel()

	base := []string{"ZEBRA=1", "APPLE=2"}

	merged := mergeRuleEnv(base, nil)
	if len(merged) != 2 {
		t.Fatalf("got %d entries, want 2", len(merged))
	}

	if merged[0] != "APPLE=2" || merged[1] != "ZEBRA=1" {
		t.Errorf("mergeRuleEnv not sorted: %v", merged)
	}
}

func Test_EnvValue_Returns_Empty_For_Missing_Key(t *testing.T) {
	t.Parallel()

	if got := envValue([]string{"FOO=bar"}, "MISSING"); got != "" {
		t.Errorf("envValue = %q, want empty string", got)
	}
}

func cutOnce(kv string) (string, string, bool) {
	for i := range kv {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}

	return kv, "", false
}
