package boxxy

// planRule is the JSON-serializable, already-canonicalized subset of a
// MatchedRule the re-exec'd child needs. It intentionally drops Context/Only
// (matching already happened in the parent) and keeps only what mount
// installation and env injection need.
type planRule struct {
	Name    string            `json:"name"`
	Target  string            `json:"target"`
	Rewrite string            `json:"rewrite"`
	Mode    Mode              `json:"mode"`
	Env     map[string]string `json:"env,omitempty"`
}

// plan is handed from the supervisor (parent) to the re-exec'd child over
// the marker environment variable. It is the entire closure the child needs
// to build the mirror, pivot into it, install rule mounts, and exec the
// target — the child process has no other access to the parent's state
// (§9 "capture them into an immutable snapshot passed down").
type plan struct {
	StagingPath string     `json:"staging_path"`
	Immutable   bool       `json:"immutable"`
	OriginalCwd string     `json:"original_cwd"`
	Program     string     `json:"program"`
	Argv        []string   `json:"argv"`
	BaseEnv     []string   `json:"base_env"`
	Rules       []planRule `json:"rules"`
}

func toPlanRule(r MatchedRule) planRule {
	return planRule{
		Name:    r.Name,
		Target:  r.Target,
		Rewrite: r.Rewrite,
		Mode:    r.effectiveMode(),
		Env:     r.Env,
	}
}
