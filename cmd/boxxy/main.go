//go:build linux

// Command boxxy runs a program inside a filesystem enclosure: a subset of
// paths it touches are transparently redirected to alternate locations via
// bind mounts, using unprivileged user and mount namespaces.
package main

import (
	"os"

	"github.com/queer/boxxy/internal/boxxy"
)

func main() {
	if boxxy.IsChildReexec() {
		os.Exit(boxxy.ChildMain(os.Stderr))
	}

	env := envToMap(os.Environ())

	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)

	os.Exit(Run(os.Stdin, os.Stdout, os.Stderr, os.Args, env, sigCh))
}

func envToMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))

	for _, kv := range environ {
		for i := range kv {
			if kv[i] == '=' {
				m[kv[:i]] = kv[i+1:]

				break
			}
		}
	}

	return m
}
