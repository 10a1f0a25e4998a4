// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package expand

import (
	"sort"
	"strings"
)

// Environ is the base interface the expander and executor use to read
// shell variables (spec §3 "Variable").
type Environ interface {
	// Get retrieves a variable by name. Check Variable.IsSet to tell a
	// declared-but-empty variable from one that was never set.
	Get(name string) Variable

	// Each iterates over every stored variable, including entries whose
	// Set is false (check Variable.IsSet). Iteration stops
	// if fn returns false. Each must forward exported variables so the
	// executor can build an external command's environment block.
	Each(fn func(name string, vr Variable) bool)
}

// WriteEnviron extends Environ with mutation, matching the executor's
// scope stack (spec §3 "Scope stack", "Local-var save").
type WriteEnviron interface {
	Environ
	// Set assigns name to vr. Setting vr.Set=false unsets the variable,
	// unless vr.Fixed is also true, in which case the value is cleared
	// but the name-slot is kept (spec §3 "FIXED marks structurally
	// permanent entries").
	//
	// Set returns an error if name is empty, or if the variable is
	// ReadOnly and vr would change its value or set state.
	Set(name string, vr Variable) error
}

// Variable is a shell variable's value and attribute flags (spec §3
// "Variable" — flags subset EXPORTED, READONLY, UNSET, FIXED).
type Variable struct {
	Set      bool // false means UNSET
	Str      string
	Exported bool
	ReadOnly bool
	Fixed    bool // structurally permanent: IFS, PATH, PS1, PS2, PS4, OPTIND
}

// IsSet reports whether the variable currently holds a value.
func (v Variable) IsSet() bool { return v.Set }

// String returns the variable's value, or "" if unset.
func (v Variable) String() string { return v.Str }

// FuncEnviron adapts a name->value lookup function into an Environ. All
// variables it reports are treated as exported. Each is a no-op, since
// the function gives no way to enumerate names.
func FuncEnviron(fn func(string) string) Environ { return funcEnviron(fn) }

type funcEnviron func(string) string

func (f funcEnviron) Get(name string) Variable {
	v := f(name)
	if v == "" {
		return Variable{}
	}
	return Variable{Set: true, Exported: true, Str: v}
}

func (funcEnviron) Each(func(string, Variable) bool) {}

// ListEnviron builds a read-only Environ from "name=value" pairs, such
// as os.Environ(). All variables are exported. When a name repeats, the
// last occurrence wins.
func ListEnviron(pairs ...string) Environ {
	return newMapEnviron(pairs)
}

// NewWriteEnviron wraps a base set of "name=value" pairs (as from
// os.Environ()) in a mutable WriteEnviron suitable for an interpreter's
// top-level scope.
func NewWriteEnviron(pairs ...string) WriteEnviron {
	return newMapEnviron(pairs)
}

func newMapEnviron(pairs []string) *mapEnviron {
	m := &mapEnviron{values: make(map[string]Variable, len(pairs))}
	for _, p := range pairs {
		name, val, ok := strings.Cut(p, "=")
		if name == "" || !ok {
			continue
		}
		if _, exists := m.values[name]; !exists {
			m.names = append(m.names, name)
		}
		m.values[name] = Variable{Set: true, Exported: true, Str: val}
	}
	sort.Strings(m.names)
	return m
}

// mapEnviron is a simple, mutable Environ/WriteEnviron backed by a map,
// grounded on the same idea as the teacher's listEnviron but simplified
// since the core has no array or nameref variable kinds to track (spec
// §1 Non-goals excludes bash arrays).
type mapEnviron struct {
	names  []string
	values map[string]Variable
}

func (m *mapEnviron) Get(name string) Variable {
	return m.values[name]
}

func (m *mapEnviron) Set(name string, vr Variable) error {
	if name == "" {
		return errEmptyName
	}
	cur := m.values[name]
	if cur.ReadOnly && (vr.Str != cur.Str || vr.Set != cur.Set) {
		return &readOnlyError{name: name}
	}
	if cur.Fixed {
		vr.Fixed = true
	}
	if !vr.Set && vr.Fixed {
		vr.Str = ""
	}
	if _, ok := m.values[name]; !ok {
		m.names = append(m.names, name)
	}
	m.values[name] = vr
	return nil
}

func (m *mapEnviron) Each(fn func(string, Variable) bool) {
	for _, name := range m.names {
		if !fn(name, m.values[name]) {
			return
		}
	}
}

var errEmptyName = &invalidNameError{}

type invalidNameError struct{}

func (*invalidNameError) Error() string { return "expand: empty variable name" }

type readOnlyError struct{ name string }

func (e *readOnlyError) Error() string { return "expand: " + e.name + " is read-only" }
