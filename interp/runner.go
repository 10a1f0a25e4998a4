// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"posh.dev/posh/expand"
	"posh.dev/posh/pattern"
	"posh.dev/posh/syntax"
)

// ctrl is the non-local control sentinel every statement-execution
// method returns alongside the implicit exit status stored on the
// Runner (spec §4.4 "Entry. execute(node) returns status plus a
// sentinel indicating non-local control: BREAK-n, CONTINUE-n, or
// RETURN-n"). The zero value means "ran to completion, no unwind in
// progress".
type ctrl struct {
	breakN int
	contN  int
	ret    bool
	// fatal carries expansion failures that POSIX has no per-command
	// status for (${x:?}, arithmetic errors, an unset `-u` reference):
	// these unwind every enclosing statement back to Run rather than
	// just failing the current command. Acceptable for a non-interactive
	// CLI that exits on them anyway; an interactive front end wanting
	// "stay alive after a bad expansion" would need to catch fatal at
	// the command-loop level and turn it into a nonzero status instead.
	fatal error
}

func (c ctrl) unwinding() bool { return c.breakN > 0 || c.contN > 0 || c.ret || c.fatal != nil }

// stop reports whether the shell has decided to exit (a fatal error,
// or `exit` having been invoked) and no further statements should run.
func (r *Runner) stop(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
	}
	return r.exitCalled
}

func (r *Runner) stmts(ctx context.Context, stmts []*syntax.Stmt) ctrl {
	var c ctrl
	for _, st := range stmts {
		c = r.stmt(ctx, st)
		if c.unwinding() || r.stop(ctx) {
			return c
		}
		r.pollTraps(ctx)
	}
	return c
}

func (r *Runner) stmt(ctx context.Context, st *syntax.Stmt) ctrl {
	if r.stop(ctx) {
		return ctrl{}
	}
	r.vars["LINENO"] = expand.Variable{Set: true, Str: strconv.Itoa(st.Line())}
	// Rebuild the expansion config so $?, $!, $-, the positional
	// parameters, IFS and the -f/-u options reflect the current state.
	r.fillExpandConfig(ctx)
	if st.Background {
		r.runBackground(ctx, st)
		r.exit = 0
		return ctrl{}
	}
	restore, err := r.pushRedirs(ctx, st.Redirs)
	if err != nil {
		r.exit = 1
		restore()
		return ctrl{}
	}
	noErrExit := r.noErrExit
	pl, isPipeline := st.Cmd.(*syntax.Pipeline)
	negated := isPipeline && pl.Negate
	if negated {
		r.noErrExit = true
	}
	c := r.cmd(ctx, st.Cmd)
	restore()
	r.noErrExit = noErrExit
	_, isAndOr := st.Cmd.(*syntax.AndOr)
	if !c.unwinding() && r.opts.errexit && !r.noErrExit && !negated && !isAndOr && r.exit != 0 {
		// -e: a failing simple/compound command ends the shell, except
		// inside the contexts that set noErrExit (spec §4.4 "errexit is
		// suppressed inside if/while/until conditions, all-but-last terms
		// of &&/||, and the negated term of !"). An &&/|| statement is not
		// checked here: its last term, when it runs, is checked by its
		// own stmt call.
		r.exitCalled = true
	}
	return c
}

func (r *Runner) cmd(ctx context.Context, cm syntax.Command) ctrl {
	if r.stop(ctx) {
		return ctrl{}
	}
	switch cm := cm.(type) {
	case *syntax.SimpleCommand:
		return r.simpleCommand(ctx, cm)
	case *syntax.Pipeline:
		return r.pipeline(ctx, cm)
	case *syntax.AndOr:
		noErrExit := r.noErrExit
		r.noErrExit = true
		c := r.stmt(ctx, cm.X)
		r.noErrExit = noErrExit
		if c.unwinding() {
			return c
		}
		cond := r.exit == 0
		if (cm.Op == syntax.AndOp) == cond {
			return r.stmt(ctx, cm.Y)
		}
		return ctrl{}
	case *syntax.If:
		return r.ifStmt(ctx, cm)
	case *syntax.WhileStmt:
		return r.whileStmt(ctx, cm)
	case *syntax.ForStmt:
		return r.forStmt(ctx, cm)
	case *syntax.CaseStmt:
		return r.caseStmt(ctx, cm)
	case *syntax.Subshell:
		return r.subshell(ctx, cm)
	case *syntax.Group:
		return r.stmts(ctx, cm.Stmts)
	case *syntax.FunctionDef:
		r.funcs[cm.Name] = cloneFuncDef(cm)
		r.exit = 0
		return ctrl{}
	default:
		return ctrl{fatal: fmt.Errorf("interp: unhandled command node %T", cm)}
	}
}

// cloneFuncDef copies a function body into long-lived storage so
// it survives the parse that produced it (spec §9 "Self-referential
// AST"). The AST nodes are already immutable once parsed, so a shallow
// copy of the top node plus reuse of its subtree is sufficient and
// matches the teacher's own "bodies are owned by the function table,
// execution borrows them immutably" strategy: nothing under Body is
// ever mutated after parsing, so no recursive copy is required.
func cloneFuncDef(fd *syntax.FunctionDef) *syntax.FunctionDef {
	clone := *fd
	return &clone
}

func (r *Runner) ifStmt(ctx context.Context, s *syntax.If) ctrl {
	noErrExit := r.noErrExit
	r.noErrExit = true
	c := r.stmts(ctx, s.Cond)
	r.noErrExit = noErrExit
	if c.unwinding() {
		return c
	}
	if r.exit == 0 {
		return r.stmts(ctx, s.Then)
	}
	switch e := s.Else.(type) {
	case nil:
		r.exit = 0
		return ctrl{}
	case *syntax.If:
		return r.ifStmt(ctx, e)
	case *syntax.Group:
		return r.stmts(ctx, e.Stmts)
	default:
		return r.cmd(ctx, e)
	}
}

func (r *Runner) whileStmt(ctx context.Context, s *syntax.WhileStmt) ctrl {
	for {
		noErrExit := r.noErrExit
		r.noErrExit = true
		c := r.stmts(ctx, s.Cond)
		r.noErrExit = noErrExit
		if c.unwinding() {
			return c
		}
		cond := r.exit == 0
		if cond == s.Until {
			r.exit = 0
			return ctrl{}
		}
		c = r.loopBody(ctx, s.Do)
		if c.fatal != nil || c.ret {
			return c
		}
		if c.breakN > 0 {
			if c.breakN > 1 {
				c.breakN--
				return c
			}
			return ctrl{}
		}
		if r.stop(ctx) {
			return ctrl{}
		}
	}
}

func (r *Runner) forStmt(ctx context.Context, s *syntax.ForStmt) ctrl {
	var items []string
	if s.HasList {
		var err error
		items, err = r.fields(s.Items...)
		if err != nil {
			return ctrl{fatal: err}
		}
	} else {
		items = r.positional
	}
	for _, item := range items {
		if err := r.setVar(s.Name, expand.Variable{Set: true, Str: item}); err != nil {
			return ctrl{fatal: err}
		}
		c := r.loopBody(ctx, s.Do)
		if c.fatal != nil || c.ret {
			return c
		}
		if c.breakN > 0 {
			if c.breakN > 1 {
				c.breakN--
				return c
			}
			return ctrl{}
		}
		if r.stop(ctx) {
			return ctrl{}
		}
	}
	r.exit = 0
	return ctrl{}
}

// loopBody runs a loop body and absorbs a single level of `continue`.
func (r *Runner) loopBody(ctx context.Context, stmts []*syntax.Stmt) ctrl {
	c := r.stmts(ctx, stmts)
	if c.contN > 0 {
		if c.contN > 1 {
			c.contN--
			return c
		}
		return ctrl{}
	}
	return c
}

func (r *Runner) caseStmt(ctx context.Context, s *syntax.CaseStmt) ctrl {
	word, err := r.literal(s.Word)
	if err != nil {
		return ctrl{fatal: err}
	}
	for _, item := range s.Items {
		for _, patWord := range item.Patterns {
			pat, err := r.literal(patWord)
			if err != nil {
				return ctrl{fatal: err}
			}
			if caseMatch(pat, word) {
				return r.stmts(ctx, item.Body)
			}
		}
	}
	r.exit = 0
	return ctrl{}
}

func caseMatch(pat, name string) bool {
	if !pattern.HasMeta(pat) {
		return pat == name
	}
	restr, err := pattern.Regexp(pat, pattern.EntireString)
	if err != nil {
		return pat == name
	}
	re, err := regexp.Compile(restr)
	if err != nil {
		return pat == name
	}
	return re.MatchString(name)
}

func (r *Runner) subshell(ctx context.Context, s *syntax.Subshell) ctrl {
	sub := r.sub()
	c := sub.stmts(ctx, s.Stmts)
	r.exit = sub.exit
	if c.fatal != nil {
		return ctrl{fatal: c.fatal}
	}
	return ctrl{}
}

// sub forks a child Runner for a subshell or a command substitution:
// a shallow copy of variables/funcs/positional so the child can
// mutate its own view without affecting the parent (spec §8
// "(subshell) leaves parent state unchanged").
func (r *Runner) sub() *Runner {
	r2 := &Runner{
		Env:         r.Env,
		Dir:         r.Dir,
		Name:        r.Name,
		vars:        make(map[string]expand.Variable, len(r.vars)),
		funcs:       make(map[string]*syntax.FunctionDef, len(r.funcs)),
		positional:  r.positional,
		aliases:     make(map[string]string, len(r.aliases)),
		expanding:   r.expanding,
		traps:       make(map[int]string, len(r.traps)),
		trapIgnored: make(map[int]bool, len(r.trapIgnored)),
		opts:        r.opts,
		execHandler: r.execHandler,
		openHandler: r.openHandler,
		Stdin:       r.Stdin,
		Stdout:      r.Stdout,
		Stderr:      r.Stderr,
	}
	for k, v := range r.vars {
		r2.vars[k] = v
	}
	for k, v := range r.funcs {
		r2.funcs[k] = v
	}
	for k, v := range r.aliases {
		r2.aliases[k] = v
	}
	for k, v := range r.traps {
		r2.traps[k] = v
	}
	for k, v := range r.trapIgnored {
		r2.trapIgnored[k] = v
	}
	r2.fillExpandConfig(context.Background())
	return r2
}

func (r *Runner) simpleCommand(ctx context.Context, cm *syntax.SimpleCommand) ctrl {
	if len(cm.Args) == 0 {
		// A bare assignment with no command word reports status 0 unless
		// its value's expansion runs a command substitution, in which
		// case $? keeps that substitution's status (spec §4.4 step 3,
		// "the status of the last command substitution if any");
		// captureStdout sets r.exit as a side effect of expansion, so it
		// must not be clobbered afterwards.
		r.exit = 0
		for _, as := range cm.Assigns {
			val, err := r.assignValue(as)
			if err != nil {
				return ctrl{fatal: err}
			}
			if err := r.setVar(as.Name, expand.Variable{Set: true, Str: val}); err != nil {
				return ctrl{fatal: err}
			}
		}
		return ctrl{}
	}

	args, err := r.fields(cm.Args...)
	if err != nil {
		return ctrl{fatal: err}
	}
	if len(args) == 0 {
		r.exit = 0
		return ctrl{}
	}

	type restoreVar struct {
		name string
		vr   expand.Variable
		had  bool
	}
	var restores []restoreVar
	for _, as := range cm.Assigns {
		val, err := r.assignValue(as)
		if err != nil {
			return ctrl{fatal: err}
		}
		prior, had := r.vars[as.Name]
		restores = append(restores, restoreVar{as.Name, prior, had})
		vr := expand.Variable{Set: true, Str: val, Exported: true}
		if err := r.setVar(as.Name, vr); err != nil {
			return ctrl{fatal: err}
		}
	}
	r.traceCmd(args)
	c := r.call(ctx, args, cm.Redirs)
	for _, rv := range restores {
		if rv.had {
			r.vars[rv.name] = rv.vr
		} else {
			delete(r.vars, rv.name)
		}
	}
	return c
}

func (r *Runner) assignValue(as *syntax.Assign) (string, error) {
	if as.Value == nil {
		return "", nil
	}
	return r.literal(as.Value)
}

// call resolves name in priority order — special builtin, function,
// regular builtin, external — per spec §4.4 step 5.
func (r *Runner) call(ctx context.Context, args []string, redirs []*syntax.Redirect) ctrl {
	name := args[0]
	if name == "exec" && len(args) == 1 {
		// Bare `exec > file` installs redirections permanently, unlike
		// every other builtin/function whose redirections are restored
		// on return (spec §4.4 "For builtins and functions, save/redirect
		// FDs locally... restoring on return" does not apply to exec with
		// no command name).
		if err := r.applyRedirsPermanent(ctx, redirs); err != nil {
			fmt.Fprintln(r.Stderr, err)
			r.exit = 1
			return ctrl{}
		}
		r.exit = 0
		return ctrl{}
	}
	if fn, ok := specialBuiltins[name]; ok {
		restore, err := r.pushRedirs(ctx, redirs)
		defer restore()
		if err != nil {
			r.exit = 1
			return ctrl{}
		}
		return fn(r, ctx, args)
	}
	if fd, ok := r.funcs[name]; ok {
		return r.callFunc(ctx, fd, args, redirs)
	}
	if fn, ok := regularBuiltins[name]; ok {
		restore, err := r.pushRedirs(ctx, redirs)
		defer restore()
		if err != nil {
			r.exit = 1
			return ctrl{}
		}
		r.exit = fn(r, ctx, args)
		return ctrl{}
	}
	restore, err := r.pushRedirs(ctx, redirs)
	defer restore()
	if err != nil {
		r.exit = 1
		return ctrl{}
	}
	if err := r.execHandler(r.handlerCtx(ctx), args); err != nil {
		if status, ok := statusFromErr(err); ok {
			r.exit = status
			return ctrl{}
		}
		return ctrl{fatal: err}
	}
	r.exit = 0
	return ctrl{}
}

func (r *Runner) callFunc(ctx context.Context, fd *syntax.FunctionDef, args []string, redirs []*syntax.Redirect) ctrl {
	restore, err := r.pushRedirs(ctx, redirs)
	defer restore()
	if err != nil {
		r.exit = 1
		return ctrl{}
	}
	restorePos := r.setPositional(args[1:])
	r.pushScope()
	inFunc := r.inFunc
	r.inFunc = true
	c := r.cmd(ctx, fd.Body)
	r.inFunc = inFunc
	r.popScope()
	restorePos()
	if c.ret {
		r.exit = r.retStatus
		return ctrl{}
	}
	return c
}

func (r *Runner) captureStdout(ctx context.Context, stmts []*syntax.Stmt) (string, error) {
	var buf strings.Builder
	sub := r.sub()
	sub.Stdout = &buf
	sub.fillExpandConfig(ctx)
	c := sub.stmts(ctx, stmts)
	r.exit = sub.exit
	if c.fatal != nil {
		return "", c.fatal
	}
	return buf.String(), nil
}

func (r *Runner) runBackground(ctx context.Context, st *syntax.Stmt) {
	sub := r.sub()
	label := syntax.Print(&syntax.File{Stmts: []*syntax.Stmt{st}})
	job := r.addJob(label)
	sub.fillExpandConfig(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		st2 := *st
		st2.Background = false
		sub.stmt(ctx, &st2)
		job.setStatus(sub.exit)
	}()
	job.done = done
	r.lastBg = job.id
}
