// Package config loads a boxxy.RuleSet from YAML (or JSONC) files on disk:
// a global file under the user's config directory, merged with an optional
// project-local file, project rules overriding the global file on identical
// target (§6, §9 of the engine's contract).
//
// This package is one of the "external collaborators" the enclosure engine
// itself never touches — it hands the engine a plain boxxy.RuleSet.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/queer/boxxy/internal/boxxy"
)

// globalConfigName is the file the user maintains under their home
// directory's config dir.
const globalConfigName = "boxxy.yaml"

// projectConfigName is the optional override file looked up in the
// invoker's working directory.
const projectConfigName = "boxxy.yaml"

// fileRule mirrors boxxy.Rule's fields for YAML/JSONC decoding.
type fileRule struct {
	Name    string            `yaml:"name" json:"name"`
	Target  string            `yaml:"target" json:"target"`
	Rewrite string            `yaml:"rewrite" json:"rewrite"`
	Mode    string            `yaml:"mode,omitempty" json:"mode,omitempty"`
	Context []string          `yaml:"context,omitempty" json:"context,omitempty"`
	Only    []string          `yaml:"only,omitempty" json:"only,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// fileRuleSet is the on-disk shape of a single config file: a top-level
// "rules" list, one entry per Rule.
type fileRuleSet struct {
	Rules []fileRule `yaml:"rules" json:"rules"`
}

func (r fileRule) toRule() boxxy.Rule {
	return boxxy.Rule{
		Name:    r.Name,
		Target:  r.Target,
		Rewrite: r.Rewrite,
		Mode:    boxxy.Mode(r.Mode),
		Context: r.Context,
		Only:    r.Only,
		Env:     r.Env,
	}
}

// Load reads the global config (under configDir, usually
// "~/.config/boxxy") and an optional project config (in workDir),
// returning the merged RuleSet. Neither file is required to exist; a
// missing file is not an error.
func Load(configDir, workDir string) (boxxy.RuleSet, error) {
	global, err := loadOptional(configDir, globalConfigName)
	if err != nil {
		return boxxy.RuleSet{}, fmt.Errorf("loading global config: %w", err)
	}

	project, err := loadOptional(workDir, projectConfigName)
	if err != nil {
		return boxxy.RuleSet{}, fmt.Errorf("loading project config: %w", err)
	}

	return merge(global, project), nil
}

// LoadFile reads a single config file at the exact path given, used for an
// explicit --config/-c override: unlike Load, it never derives a directory
// or falls back to the default "boxxy.*" name, so the file the user named
// is the file that gets read.
func LoadFile(path string) (boxxy.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return boxxy.RuleSet{}, fmt.Errorf("reading %s: %w", path, err)
	}

	frs, err := parse(path, data)
	if err != nil {
		return boxxy.RuleSet{}, err
	}

	rules := make([]boxxy.Rule, 0, len(frs.Rules))
	for _, r := range frs.Rules {
		rules = append(rules, r.toRule())
	}

	return boxxy.RuleSet{Rules: rules}, nil
}

// loadOptional looks for base.yaml, then base.yml, then base.jsonc, then
// base.json in dir, in that order, parsing whichever is found first. It is not an error for
// none to exist.
func loadOptional(dir, base string) ([]boxxy.Rule, error) {
	name := base
	ext := filepath.Ext(base)
	stem := name[:len(name)-len(ext)]

	candidates := []string{
		filepath.Join(dir, stem+".yaml"),
		filepath.Join(dir, stem+".yml"),
		filepath.Join(dir, stem+".jsonc"),
		filepath.Join(dir, stem+".json"),
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}

			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		frs, err := parse(path, data)
		if err != nil {
			return nil, err
		}

		rules := make([]boxxy.Rule, 0, len(frs.Rules))
		for _, r := range frs.Rules {
			rules = append(rules, r.toRule())
		}

		return rules, nil
	}

	return nil, nil
}

// parse decodes data according to path's extension: YAML for .yaml/.yml,
// tolerant JSON-with-comments (via hujson) for .jsonc/.json.
func parse(path string, data []byte) (fileRuleSet, error) {
	var frs fileRuleSet

	switch filepath.Ext(path) {
	case ".jsonc", ".json":
		standardized, err := standardizeJSONC(data)
		if err != nil {
			return fileRuleSet{}, fmt.Errorf("parsing %s: %w", path, err)
		}

		if err := unmarshalJSON(standardized, &frs); err != nil {
			return fileRuleSet{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &frs); err != nil {
			return fileRuleSet{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	return frs, nil
}

// merge concatenates global then project rules, with a project rule
// replacing a global rule in place when their raw (pre-canonicalization)
// Target strings match, and appending otherwise. This is the target-level
// "later file wins" precedence the config format promises; canonicalization
// and the ancestor/descendant invariant are the engine's concern, not this
// package's.
func merge(global, project []boxxy.Rule) boxxy.RuleSet {
	merged := make([]boxxy.Rule, len(global))
	copy(merged, global)

	indexByTarget := make(map[string]int, len(merged))
	for i, r := range merged {
		indexByTarget[r.Target] = i
	}

	for _, r := range project {
		if i, ok := indexByTarget[r.Target]; ok {
			merged[i] = r

			continue
		}

		merged = append(merged, r)
		indexByTarget[r.Target] = len(merged) - 1
	}

	return boxxy.RuleSet{Rules: merged}
}

// DefaultConfigDir returns "<home>/.config/boxxy", honoring XDG_CONFIG_HOME
// when set, mirroring the teacher's getUserConfigBasePath.
func DefaultConfigDir(homeDir string, env map[string]string) string {
	if xdg, ok := env["XDG_CONFIG_HOME"]; ok && xdg != "" {
		return filepath.Join(xdg, "boxxy")
	}

	return filepath.Join(homeDir, ".config", "boxxy")
}
