// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"posh.dev/posh/expand"
)

// ExitStatus is a non-zero status code returned by a handler to set
// the exit status of the command being run without halting the Runner
// (spec §7 "Exec error", §6 "Exit codes").
type ExitStatus uint8

func (s ExitStatus) Error() string { return fmt.Sprintf("exit status %d", s) }

func statusFromErr(err error) (int, bool) {
	var es ExitStatus
	if errors.As(err, &es) {
		return int(es), true
	}
	return 0, false
}

type handlerCtxKey struct{}

// HandlerContext is the data available to handlers through ctx (spec
// §6 "Wire contract with externals").
type HandlerContext struct {
	Env    expand.Environ
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// HandlerCtx retrieves the HandlerContext stored by the Runner.
func HandlerCtx(ctx context.Context) HandlerContext {
	hc, _ := ctx.Value(handlerCtxKey{}).(HandlerContext)
	return hc
}

func (r *Runner) handlerCtx(ctx context.Context) context.Context {
	return context.WithValue(ctx, handlerCtxKey{}, HandlerContext{
		Env:    varEnviron{r},
		Dir:    r.Dir,
		Stdin:  r.Stdin,
		Stdout: r.Stdout,
		Stderr: r.Stderr,
	})
}

// ExecHandlerFunc runs an external command (spec §4.4 "For externals,
// fork a child that installs redirections then execve's"). A nil
// return means status 0; an ExitStatus sets a specific non-zero
// status without halting the Runner; any other error halts it.
type ExecHandlerFunc func(ctx context.Context, args []string) error

// OpenHandlerFunc opens a redirection target.
type OpenHandlerFunc func(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error)

// DefaultExecHandler looks args[0] up on PATH and execs it, wiring the
// three standard streams directly (spec §4.4 "fork a child that
// installs redirections then execve's"; §6 "Signal disposition in the
// child resets SIGINT... to SIG_DFL before exec" is delegated to
// os/exec's default child behavior).
func DefaultExecHandler() ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		hc := HandlerCtx(ctx)
		path, err := LookPathDir(hc.Dir, hc.Env, args[0])
		if err != nil {
			fmt.Fprintln(hc.Stderr, err)
			return ExitStatus(127)
		}
		cmd := exec.Cmd{
			Path:   path,
			Args:   args,
			Env:    execEnv(hc.Env),
			Dir:    hc.Dir,
			Stdin:  hc.Stdin,
			Stdout: hc.Stdout,
			Stderr: hc.Stderr,
		}
		setProcAttr(&cmd)
		err = cmd.Run()
		if err == nil {
			return nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return ExitStatus(uint8(exitErr.ExitCode()))
		}
		if os.IsPermission(err) {
			return ExitStatus(126)
		}
		if os.IsNotExist(err) {
			return ExitStatus(127)
		}
		return ExitStatus(126)
	}
}

// execEnv builds the name=value environment for a forked child from
// every EXPORTED, non-unset entry (spec §4.5 "Environment construction
// for a child process").
func execEnv(env expand.Environ) []string {
	var out []string
	env.Each(func(name string, vr expand.Variable) bool {
		if vr.Exported && vr.IsSet() {
			out = append(out, name+"="+vr.String())
		}
		return true
	})
	return out
}

// LookPathDir resolves file against PATH relative to cwd, the way the
// shell's command-name resolution does (spec §4.4 step 5, "external").
func LookPathDir(cwd string, env expand.Environ, file string) (string, error) {
	if strings.ContainsRune(file, '/') {
		path := file
		if !filepath.IsAbs(path) {
			path = filepath.Join(cwd, path)
		}
		if isExecutable(path) {
			return path, nil
		}
		return "", fmt.Errorf("%s: not found", file)
	}
	for _, dir := range filepath.SplitList(env.Get("PATH").String()) {
		if dir == "" {
			dir = "."
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(cwd, dir)
		}
		path := filepath.Join(dir, file)
		if isExecutable(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("%s: not found", file)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

// DefaultOpenHandler opens path on the real filesystem.
func DefaultOpenHandler() OpenHandlerFunc {
	return func(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
		return os.OpenFile(path, flag, perm)
	}
}
