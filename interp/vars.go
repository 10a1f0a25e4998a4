// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import "posh.dev/posh/expand"

// fixedVars are the structurally permanent entries pre-installed into
// every Runner's variable table (spec §4.5 "FIXED entries for the
// small set of shell-special variables are pre-installed").
var fixedVars = []string{"IFS", "PATH", "PS1", "PS2", "PS4", "OPTIND"}

// localSave is a per-scope record used to restore a variable's prior
// state on scope exit (spec §3 "Local-var save").
type localSave struct {
	name    string
	wasNew  bool
	prior   expand.Variable
}

// scope is one frame of the scope stack, pushed on function entry and
// popped on return (spec §4.5 "Scopes are a singly linked stack").
type scope struct {
	saves []localSave
}

// varEnviron adapts Runner's variable table to expand.WriteEnviron, the
// contract the word expander depends on.
type varEnviron struct {
	r *Runner
}

func (v varEnviron) Get(name string) expand.Variable { return v.r.getVar(name) }
func (v varEnviron) Set(name string, vr expand.Variable) error { return v.r.setVar(name, vr) }
func (v varEnviron) Each(fn func(string, expand.Variable) bool) {
	for name, vr := range v.r.vars {
		if !fn(name, vr) {
			return
		}
	}
}

func (r *Runner) getVar(name string) expand.Variable {
	return r.vars[name]
}

// setVar writes name, honoring READONLY rejection and FIXED
// persistence (spec §3 "Variable", §4.5).
func (r *Runner) setVar(name string, vr expand.Variable) error {
	cur := r.vars[name]
	if cur.ReadOnly && (vr.Str != cur.Str || vr.Set != cur.Set) {
		return &readOnlyVarError{name}
	}
	if cur.Fixed {
		vr.Fixed = true
	}
	if !vr.Set && vr.Fixed {
		vr.Str = ""
	}
	if r.opts.allexport {
		vr.Exported = true
	}
	if len(r.scopes) > 0 && !r.localDeclared(name) {
		// A plain assignment inside a function writes through to the
		// nearest existing binding rather than creating a local one
		// (spec §4.5 "a write without prior local creates a global
		// unless inside a local-declared binding").
		r.vars[name] = vr
		return nil
	}
	r.vars[name] = vr
	return nil
}

// local records name's current state in the active scope frame (if
// any) before overwriting it, so popScope can restore it (spec §4.5
// "local name[=value]").
func (r *Runner) local(name string, vr expand.Variable) error {
	if len(r.scopes) == 0 {
		return r.setVar(name, vr)
	}
	top := &r.scopes[len(r.scopes)-1]
	prior, wasNew := r.vars[name]
	top.saves = append(top.saves, localSave{name: name, wasNew: !wasNew, prior: prior})
	return r.setVar(name, vr)
}

func (r *Runner) localDeclared(name string) bool {
	for i := len(r.scopes) - 1; i >= 0; i-- {
		for _, s := range r.scopes[i].saves {
			if s.name == name {
				return true
			}
		}
	}
	return false
}

// pushScope opens a new scope frame (spec §4.5 "Scopes nest
// arbitrarily").
func (r *Runner) pushScope() {
	r.scopes = append(r.scopes, scope{})
}

// popScope restores every variable touched inside the top frame to its
// prior observable state (spec §8 "the matching pop exactly restores
// the variable table").
func (r *Runner) popScope() {
	top := r.scopes[len(r.scopes)-1]
	r.scopes = r.scopes[:len(r.scopes)-1]
	for i := len(top.saves) - 1; i >= 0; i-- {
		s := top.saves[i]
		if s.wasNew {
			delete(r.vars, s.name)
		} else {
			r.vars[s.name] = s.prior
		}
	}
}

type readOnlyVarError struct{ name string }

func (e *readOnlyVarError) Error() string { return e.name + ": readonly variable" }

// setPositional replaces the positional parameters, returning a
// restore function that swaps the old ones back in O(1) (spec §4.5
// "Saving/restoring is O(1) via pointer/length swap").
func (r *Runner) setPositional(args []string) (restore func()) {
	old := r.positional
	r.positional = args
	return func() { r.positional = old }
}

func (r *Runner) exportedPairs() []string {
	var out []string
	for name, vr := range r.vars {
		if vr.Exported && vr.Set {
			out = append(out, name+"="+vr.Str)
		}
	}
	return out
}
