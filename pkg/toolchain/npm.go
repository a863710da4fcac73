package toolchain

import (
	"context"
	"time"
)

// DefaultInstallFlags keep installs to runtime dependencies and stop
// package scripts from running.
var DefaultInstallFlags = []string{"--omit=dev", "--ignore-scripts", "--no-audit"}

// NPM describes the package manager invocations.
type NPM struct {
	Runner   Runner
	Command  string        // default "npm"
	LogLevel string        // npm_config_loglevel; default "silent"
	Flags    []string      // install flags; default DefaultInstallFlags
	Timeout  time.Duration // per invocation
}

func (n *NPM) command(dir string, args ...string) Command {
	name := n.Command
	if name == "" {
		name = "npm"
	}
	level := n.LogLevel
	if level == "" {
		level = "silent"
	}
	return Command{
		Name:    name,
		Args:    args,
		Dir:     dir,
		Env:     []string{"npm_config_loglevel=" + level},
		Timeout: n.Timeout,
	}
}

func (n *NPM) flags() []string {
	if n.Flags == nil {
		return DefaultInstallFlags
	}
	return n.Flags
}

// Install installs the runtime dependencies of the package in dir:
// npm install --omit=dev --ignore-scripts --no-audit
func (n *NPM) Install(ctx context.Context, dir string) (*Result, error) {
	args := append([]string{"install"}, n.flags()...)
	return n.Runner.Run(ctx, n.command(dir, args...))
}

// List prints the resolved runtime dependency tree as paths:
// npm ls --all --parseable --omit=dev
func (n *NPM) List(ctx context.Context, dir string) (*Result, error) {
	return n.Runner.Run(ctx, n.command(dir, "ls", "--all", "--parseable", "--omit=dev"))
}

// InstallPackage adds one package to dir:
// npm install <pkg> --omit=dev --ignore-scripts --no-audit
func (n *NPM) InstallPackage(ctx context.Context, dir, pkg string) (*Result, error) {
	args := append([]string{"install", pkg}, n.flags()...)
	return n.Runner.Run(ctx, n.command(dir, args...))
}

// TypeScript describes the type-checker invocation.
type TypeScript struct {
	Runner  Runner
	Command string   // default "tsc"
	Args    []string // extra arguments; the tsconfig in dir drives the build
	Timeout time.Duration
}

// Compile runs the type-checker in dir. Diagnostics are payload: a
// non-zero exit code is not an error.
func (t *TypeScript) Compile(ctx context.Context, dir string) (*Result, error) {
	name := t.Command
	if name == "" {
		name = "tsc"
	}
	return t.Runner.Run(ctx, Command{Name: name, Args: t.Args, Dir: dir, Timeout: t.Timeout})
}
