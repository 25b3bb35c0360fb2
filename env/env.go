// Package env implements a thin factory for launching a worker subprocess
// from an already-resolved command line (spec component I). Resolving a
// language or environment name ("python", a Conda/Pixi prefix, a JVM
// classpath) into a concrete executable, working directory, and
// environment variables is explicitly out of the core's scope (spec.md's
// Non-goals); this package only wires whatever the caller already
// resolved into a running service.Service, the way the teacher's
// connector.NewDriver wires an already-resolved endpoint spec into a
// running Driver rather than resolving the endpoint itself.
package env

import "github.com/apposed/appose-go/service"

// Environment is a resolved worker launch command: everything
// service.Start needs to spawn the subprocess, plus the two named
// conveniences spec.md's Environment façade calls out ("python" / "groovy"
// style workers).
type Environment struct {
	Executable string
	Args       []string
	Env        []string
	Dir        string

	// InitScript, if non-empty, is exported to the worker subprocess as
	// APPOSE_INIT_SCRIPT: an absolute path to a one-shot script the
	// worker runs (and deletes) before opening its stdin loop.
	InitScript string
}

// New wraps an already-resolved executable and arguments as an
// Environment.
func New(executable string, args ...string) Environment {
	return Environment{Executable: executable, Args: args}
}

// Python is the "python" style worker convenience: executable defaults to
// "python3" when unset, leaving the caller free to supply whatever Args a
// given worker script needs (e.g. "-u", "worker.py").
func Python(executable string, args ...string) Environment {
	if executable == "" {
		executable = "python3"
	}
	return New(executable, args...)
}

// Groovy is the "groovy" style worker convenience.
func Groovy(executable string, args ...string) Environment {
	if executable == "" {
		executable = "groovy"
	}
	return New(executable, args...)
}

// WithEnv returns a copy of e with additional environment entries
// (os/exec's "KEY=VALUE" form) appended.
func (e Environment) WithEnv(env ...string) Environment {
	e.Env = append(append([]string{}, e.Env...), env...)
	return e
}

// WithDir returns a copy of e with its working directory set.
func (e Environment) WithDir(dir string) Environment {
	e.Dir = dir
	return e
}

// WithInitScript returns a copy of e that exports path to the worker as
// APPOSE_INIT_SCRIPT.
func (e Environment) WithInitScript(path string) Environment {
	e.InitScript = path
	return e
}

// Start launches e as a worker subprocess. Any opts given are applied
// after e's own Args/Env/Dir/InitScript, so a caller can still override
// them explicitly.
func (e Environment) Start(opts ...service.Option) (*service.Service, error) {
	wireEnv := append([]string{}, e.Env...)
	if e.InitScript != "" {
		wireEnv = append(wireEnv, "APPOSE_INIT_SCRIPT="+e.InitScript)
	}

	base := []service.Option{service.WithArgs(e.Args...)}
	if len(wireEnv) > 0 {
		base = append(base, service.WithEnv(wireEnv...))
	}
	if e.Dir != "" {
		base = append(base, service.WithDir(e.Dir))
	}
	return service.Start(e.Executable, append(base, opts...)...)
}
