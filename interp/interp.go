// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package interp implements the executor: the AST walker that manages
// variable scopes and positional parameters, dispatches builtins,
// forks external commands, builds pipelines, applies redirections,
// runs functions with local scopes, honors traps and shell options,
// tracks jobs, and propagates break/continue/return control flow
// (spec §4.4-§4.7).
package interp

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"posh.dev/posh/arena"
	"posh.dev/posh/expand"
	"posh.dev/posh/syntax"
)

// options holds the subset of `set` options spec §4.4 requires the
// executor to honor.
type options struct {
	errexit   bool // -e
	xtrace    bool // -x
	nounset   bool // -u
	noglob    bool // -f
	noexec    bool // -n
	noclobber bool // -C
	monitor   bool // -m
	notify    bool // -b
	allexport bool // -a
}

// Runner is a shell interpreter instance: a single-threaded,
// cooperatively scheduled executor that owns all mutable interpreter
// state (spec §9 "encapsulate as an Interpreter value owning all
// mutable state").
type Runner struct {
	Env  expand.WriteEnviron
	Dir  string
	Name string // $0

	vars       map[string]expand.Variable
	funcs      map[string]*syntax.FunctionDef
	positional []string

	scopes []scope

	aliases map[string]string
	expanding map[string]bool

	traps       map[int]string
	trapIgnored map[int]bool
	pending     []int
	exitTrapRun bool

	jobs    []*Job
	lastBg  int

	retStatus  int
	noErrExit  bool
	inFunc     bool
	exitCalled bool

	exit   int
	lastID int

	opts options

	execHandler ExecHandlerFunc
	openHandler OpenHandlerFunc

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	ecfg *expand.Config

	// arena backs the scratch buffers each command's word expansion
	// builds (spec §3 Arena; §9 "a scope-owning arena object returning
	// slice handles"). The zero value is ready to use; fields/literal
	// bracket every use with a push_mark/pop_mark pair so no allocation
	// outlives the expansion that requested it.
	arena arena.Arena
}

// RunnerOption configures a Runner constructed by New.
type RunnerOption func(*Runner) error

// New builds a Runner, applying opts in order and filling unset fields
// with the same defaults the teacher uses: the process environment,
// the current directory, and discarding stdio that was left nil.
func New(opts ...RunnerOption) (*Runner, error) {
	r := &Runner{
		vars:        map[string]expand.Variable{},
		funcs:       map[string]*syntax.FunctionDef{},
		aliases:     map[string]string{},
		expanding:   map[string]bool{},
		traps:       map[int]string{},
		trapIgnored: map[int]bool{},
		execHandler: DefaultExecHandler(),
		openHandler: DefaultOpenHandler(),
	}
	for _, name := range fixedVars {
		r.vars[name] = expand.Variable{Set: true, Fixed: true}
	}
	r.vars["IFS"] = expand.Variable{Set: true, Fixed: true, Str: " \t\n"}
	// PPID is fixed at startup (spec "Environment consumption... PPID...
	// maintained by the shell"); unlike LINENO it never changes mid-run.
	r.vars["PPID"] = expand.Variable{Set: true, Fixed: true, Str: strconv.Itoa(os.Getppid())}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.Env == nil {
		if err := Env(nil)(r); err != nil {
			return nil, err
		}
	}
	if r.Dir == "" {
		if err := Dir("")(r); err != nil {
			return nil, err
		}
	}
	if r.Stdout == nil {
		r.Stdout = io.Discard
	}
	if r.Stderr == nil {
		r.Stderr = io.Discard
	}
	if r.Name == "" {
		r.Name = "posh"
	}
	return r, nil
}

// Env sets the process environment the Runner starts from. A nil env
// falls back to os.Environ.
func Env(env expand.WriteEnviron) RunnerOption {
	return func(r *Runner) error {
		if env == nil {
			env = expand.NewWriteEnviron(os.Environ()...)
		}
		env.Each(func(name string, vr expand.Variable) bool {
			vr.Exported = true
			r.vars[name] = vr
			return true
		})
		r.Env = env
		return nil
	}
}

// Dir sets the working directory. An empty path resolves to os.Getwd.
func Dir(path string) RunnerOption {
	return func(r *Runner) error {
		if path == "" {
			wd, err := os.Getwd()
			if err != nil {
				return err
			}
			path = wd
		}
		r.Dir = path
		return nil
	}
}

// Params sets the initial positional parameters ($1, $2, ...).
func Params(args ...string) RunnerOption {
	return func(r *Runner) error {
		r.positional = args
		return nil
	}
}

// StdIO sets the three standard streams.
func StdIO(in io.Reader, out, err io.Writer) RunnerOption {
	return func(r *Runner) error {
		r.Stdin, r.Stdout, r.Stderr = in, out, err
		return nil
	}
}

// WithExecHandler overrides how external commands are executed.
func WithExecHandler(fn ExecHandlerFunc) RunnerOption {
	return func(r *Runner) error { r.execHandler = fn; return nil }
}

// WithOpenHandler overrides how redirection targets are opened.
func WithOpenHandler(fn OpenHandlerFunc) RunnerOption {
	return func(r *Runner) error { r.openHandler = fn; return nil }
}

// WithOptions sets the `set` options a CLI front-end exposes as flags
// (spec §4.4 "the executor honors -x, -e, -u, -f, -n, -C").
func WithOptions(xtrace, errexit, nounset, noglob, noexec, noclobber bool) RunnerOption {
	return func(r *Runner) error {
		r.opts.xtrace = xtrace
		r.opts.errexit = errexit
		r.opts.nounset = nounset
		r.opts.noglob = noglob
		r.opts.noexec = noexec
		r.opts.noclobber = noclobber
		return nil
	}
}

func (r *Runner) fillExpandConfig(ctx context.Context) {
	r.ecfg = &expand.Config{
		Env:   varEnviron{r},
		Arena: &r.arena,
		Special: &expand.Special{
			LastStatus: r.exit,
			PID:        os.Getpid(),
			BgPID:      r.lastBg,
			Options:    r.optionLetters(),
			ShellName:  r.Name,
			Positional: r.positional,
		},
		NoGlob:  r.opts.noglob,
		NoUnset: r.opts.nounset,
		Dir:     r.Dir,
		CmdSubst: func(stmts []*syntax.Stmt) (string, error) {
			return r.captureStdout(ctx, stmts)
		},
	}
}

func (r *Runner) optionLetters() string {
	var s string
	if r.opts.errexit {
		s += "e"
	}
	if r.opts.xtrace {
		s += "x"
	}
	if r.opts.nounset {
		s += "u"
	}
	if r.opts.noglob {
		s += "f"
	}
	if r.opts.noexec {
		s += "n"
	}
	if r.opts.noclobber {
		s += "C"
	}
	if r.opts.monitor {
		s += "m"
	}
	if r.opts.allexport {
		s += "a"
	}
	return s
}

// Run executes file's statements in order and returns the shell's
// final exit status (spec §4.4 "Entry. execute(node) returns an
// integer status").
func (r *Runner) Run(ctx context.Context, file *syntax.File) (int, error) {
	r.fillExpandConfig(ctx)
	if r.opts.noexec {
		return 0, nil
	}
	c := r.stmts(ctx, file.Stmts)
	r.runExitTrap(ctx)
	if c.fatal != nil {
		return r.exit, c.fatal
	}
	return r.exit, nil
}

// literal expands word with no splitting or globbing (assignment
// right-hand sides, heredoc bodies, case scrutinees, singular for-loop
// names; spec §4.3). The arena mark brackets the scratch buffer the
// expansion may build, so it never outlives this single call (spec §5
// "every word expansion must bracket its allocations with
// push_mark/pop_mark pairs that are correctly nested").
func (r *Runner) literal(word *syntax.Word) (string, error) {
	mark := r.arena.PushMark()
	defer r.arena.PopMark(mark)
	return r.ecfg.Literal(word)
}

func (r *Runner) fields(words ...*syntax.Word) ([]string, error) {
	mark := r.arena.PushMark()
	defer r.arena.PopMark(mark)
	return r.ecfg.Fields(words...)
}

func (r *Runner) arithm(x syntax.ArithmExpr) (int64, error) {
	return expand.Arithm(varEnviron{r}, x)
}

// traceCmd writes a PS4-prefixed trace line to stderr when -x is set
// (spec §4.4 "trace if -x is enabled").
func (r *Runner) traceCmd(args []string) {
	if !r.opts.xtrace {
		return
	}
	ps4 := r.vars["PS4"].Str
	if ps4 == "" {
		ps4 = "+ "
	}
	fmt.Fprintln(r.Stderr, ps4+quoteArgs(args))
}

func quoteArgs(args []string) string {
	s := ""
	for i, a := range args {
		if i > 0 {
			s += " "
		}
		s += a
	}
	return s
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
