// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"posh.dev/posh/syntax"
)

// runErr parses src and executes it with a fresh Runner, returning stdout,
// stderr, the final exit status, and any fatal error Run returned
// (spec §7 "Fatal... exits with status 2 after best-effort flush").
func runErr(t *testing.T, src string, opts ...RunnerOption) (stdout, stderr string, status int, runErr error) {
	t.Helper()
	file, err := syntax.Parse(src)
	qt.New(t).Assert(err, qt.IsNil)
	var out, errb bytes.Buffer
	allOpts := append([]RunnerOption{StdIO(nil, &out, &errb)}, opts...)
	r, err := New(allOpts...)
	qt.New(t).Assert(err, qt.IsNil)
	st, rerr := r.Run(context.Background(), file)
	return out.String(), errb.String(), st, rerr
}

// run is runErr for the common case where Run is expected to return no
// fatal error.
func run(t *testing.T, src string, opts ...RunnerOption) (stdout, stderr string, status int) {
	t.Helper()
	out, errb, st, err := runErr(t, src, opts...)
	qt.New(t).Assert(err, qt.IsNil)
	return out, errb, st
}

// TestPipelineFunctionAndBuiltin is spec.md §8 end-to-end scenario 1.
func TestPipelineFunctionAndBuiltin(t *testing.T) {
	c := qt.New(t)
	out, _, status := run(t, `f() { echo 1; echo 2; }; f | wc -l`)
	c.Assert(status, qt.Equals, 0)
	c.Assert(out, qt.Equals, "2\n")
}

// TestCaseWithPatterns is spec.md §8 end-to-end scenario 2.
func TestCaseWithPatterns(t *testing.T) {
	c := qt.New(t)
	out, _, status := run(t, `x=foo; case $x in bar) echo B;; f*) echo F;; *) echo E;; esac`)
	c.Assert(status, qt.Equals, 0)
	c.Assert(out, qt.Equals, "F\n")
}

// TestParamExpansionModifiers is spec.md §8 end-to-end scenario 3.
func TestParamExpansionModifiers(t *testing.T) {
	c := qt.New(t)
	out, _, status := run(t, `unset a; echo ${a:-default}; a=; echo ${a:-default}; echo ${a-set}; echo ${#a}`)
	c.Assert(status, qt.Equals, 0)
	c.Assert(out, qt.Equals, "default\ndefault\n\n0\n")
}

// TestHeredocExpansion is spec.md §8 end-to-end scenario 4.
func TestHeredocExpansion(t *testing.T) {
	c := qt.New(t)
	out, _, status := run(t, "V=world; cat <<EOF\nhello $V\nEOF\n")
	c.Assert(status, qt.Equals, 0)
	c.Assert(out, qt.Equals, "hello world\n")
}

// TestLoopWithBreak is spec.md §8 end-to-end scenario 5, and also
// exercises the `test`/`[` builtin's -ge operator.
func TestLoopWithBreak(t *testing.T) {
	c := qt.New(t)
	out, _, status := run(t, `i=0; while :; do i=$((i+1)); if [ $i -ge 3 ]; then break; fi; done; echo $i`)
	c.Assert(status, qt.Equals, 0)
	c.Assert(out, qt.Equals, "3\n")
}

// TestTrapExitOrdering is spec.md §8 end-to-end scenario 6.
func TestTrapExitOrdering(t *testing.T) {
	c := qt.New(t)
	out, _, status := run(t, `trap 'echo bye' EXIT; echo hi`)
	c.Assert(status, qt.Equals, 0)
	c.Assert(out, qt.Equals, "hi\nbye\n")
}

// TestEmptyInputIsNoop is spec.md §8 "Boundary behaviors: Empty input
// yields no-op, status 0".
func TestEmptyInputIsNoop(t *testing.T) {
	c := qt.New(t)
	out, errb, status := run(t, "")
	c.Assert(status, qt.Equals, 0)
	c.Assert(out, qt.Equals, "")
	c.Assert(errb, qt.Equals, "")
}

// TestForLoopEmptyList is spec.md §8 "for x in ; do echo $x; done
// prints nothing and returns 0".
func TestForLoopEmptyList(t *testing.T) {
	c := qt.New(t)
	out, _, status := run(t, `for x in ; do echo $x; done`)
	c.Assert(status, qt.Equals, 0)
	c.Assert(out, qt.Equals, "")
}

// TestPositionalAtZeroExpandsToZeroFields is spec.md §8 "\"$@\" with
// zero positional parameters expands to zero fields, not one empty
// field".
func TestPositionalAtZeroExpandsToZeroFields(t *testing.T) {
	c := qt.New(t)
	out, _, status := run(t, `f() { echo before "$@" after; }; f`)
	c.Assert(status, qt.Equals, 0)
	c.Assert(out, qt.Equals, "before after\n")
}

// TestArithDivisionByZeroFails is spec.md §8 "$((0/0)) fails with
// status != 0; shell does not crash". This Runner surfaces a fatal
// expansion error (spec §7 "Fatal") as Run's returned error rather
// than crashing the process.
func TestArithDivisionByZeroFails(t *testing.T) {
	c := qt.New(t)
	out, _, _, err := runErr(t, `echo $((0/0))`)
	c.Assert(err, qt.ErrorMatches, ".*division by zero.*")
	c.Assert(out, qt.Equals, "")
}

// TestAndOrShortCircuit exercises && and || short-circuiting (spec
// §4.4 "Lists and async").
func TestAndOrShortCircuit(t *testing.T) {
	c := qt.New(t)
	out, _, status := run(t, `true && echo a || echo b; false && echo c || echo d`)
	c.Assert(status, qt.Equals, 0)
	c.Assert(out, qt.Equals, "a\nd\n")
}

// TestSubshellLeavesParentUnchanged is spec.md §8 "(subshell) leaves
// parent state unchanged for variables...".
func TestSubshellLeavesParentUnchanged(t *testing.T) {
	c := qt.New(t)
	out, _, status := run(t, `x=outer; (x=inner; echo $x); echo $x`)
	c.Assert(status, qt.Equals, 0)
	c.Assert(out, qt.Equals, "inner\nouter\n")
}

// TestSubshellFunctionDefinitionDoesNotLeak is spec §8 "(subshell)
// leaves parent state unchanged" extended to function definitions: a
// function defined inside `(...)` must not become visible afterwards.
func TestSubshellFunctionDefinitionDoesNotLeak(t *testing.T) {
	c := qt.New(t)
	_, stderr, status, rerr := runErr(t, `(greet() { echo hi; }); greet`)
	c.Assert(rerr, qt.IsNil)
	c.Assert(status, qt.Not(qt.Equals), 0)
	c.Assert(stderr, qt.Not(qt.Equals), "")
}

// TestSubshellUnsetFunctionDoesNotLeak covers the inverse direction:
// `unset -f` inside a subshell must not remove a function the parent
// still has defined.
func TestSubshellUnsetFunctionDoesNotLeak(t *testing.T) {
	c := qt.New(t)
	out, _, status := run(t, `greet() { echo hi; }; (unset -f greet); greet`)
	c.Assert(status, qt.Equals, 0)
	c.Assert(out, qt.Equals, "hi\n")
}

// TestBareAssignmentKeepsCommandSubstitutionStatus is spec §4.4 step 3:
// a bare assignment with no command word reports the status of the
// last command substitution its value expanded, not an unconditional 0.
func TestBareAssignmentKeepsCommandSubstitutionStatus(t *testing.T) {
	c := qt.New(t)
	_, _, status := run(t, `x=$(exit 3)`)
	c.Assert(status, qt.Equals, 3)
}

// TestFunctionLocalScopeRestored is spec.md §8 "the matching pop
// exactly restores the variable table to its prior observable state".
func TestFunctionLocalScopeRestored(t *testing.T) {
	c := qt.New(t)
	out, _, status := run(t, `x=outer; f() { local x=inner; echo $x; }; f; echo $x`)
	c.Assert(status, qt.Equals, 0)
	c.Assert(out, qt.Equals, "inner\nouter\n")
}

// TestReadonlyRejectsMutation is spec.md §3 "a READONLY variable
// cannot be mutated nor unset". A plain assignment statement (no
// command word) surfaces the rejection as a fatal Run error.
func TestReadonlyRejectsMutation(t *testing.T) {
	c := qt.New(t)
	_, _, _, err := runErr(t, `readonly x=1; x=2`)
	c.Assert(err, qt.ErrorMatches, ".*readonly variable.*")
}

// TestReadonlyRejectsMutationViaBuiltin covers the same invariant when
// the mutation goes through a command word rather than a bare
// assignment, where the rejection surfaces as a non-fatal non-zero
// status with a diagnostic on stderr instead.
func TestReadonlyRejectsMutationViaBuiltin(t *testing.T) {
	c := qt.New(t)
	_, errb, status := run(t, `readonly x=1; export x=2`)
	c.Assert(status, qt.Not(qt.Equals), 0)
	c.Assert(errb, qt.Not(qt.Equals), "")
}

// TestShiftOutOfRange is spec.md §4.5 "shift n removes the first n
// (error if n > count)".
func TestShiftOutOfRange(t *testing.T) {
	c := qt.New(t)
	_, _, status := run(t, `shift 3`)
	c.Assert(status, qt.Not(qt.Equals), 0)
}

// TestBreakContinueLevels exercises `break n`/`continue n` unwinding
// through nested loops (spec §4.4 "break n ... exits loops up to n
// levels").
func TestBreakContinueLevels(t *testing.T) {
	c := qt.New(t)
	out, _, status := run(t, `
for i in 1 2; do
	for j in a b c; do
		if [ "$j" = b ]; then continue; fi
		if [ "$i" = 2 ] && [ "$j" = c ]; then break 2; fi
		echo "$i$j"
	done
done`)
	c.Assert(status, qt.Equals, 0)
	c.Assert(out, qt.Equals, "1a\n1c\n2a\n")
}

// TestTestBuiltinOperators exercises the classic test(1) grammar the
// executor needs to run `[ ... ]` conditionals (spec §8 scenario 5).
func TestTestBuiltinOperators(t *testing.T) {
	c := qt.New(t)
	cases := []struct {
		src  string
		want int
	}{
		{`[ -z "" ]`, 0},
		{`[ -n "x" ]`, 0},
		{`[ 1 -eq 1 ]`, 0},
		{`[ 1 -lt 2 ]`, 0},
		{`[ a = a ]`, 0},
		{`[ a != b ]`, 0},
		{`[ ! -z x ]`, 0},
		{`[ 1 -eq 1 -a 2 -eq 2 ]`, 0},
		{`[ 1 -eq 2 -o 2 -eq 2 ]`, 0},
		{`test 1 -eq 2`, 1},
		{`[ \( 1 -eq 1 \) ]`, 0},
	}
	for _, tc := range cases {
		_, _, status := run(t, tc.src)
		c.Assert(status, qt.Equals, tc.want, qt.Commentf("src=%s", tc.src))
	}
}

// TestErrexitSuppressedInConditions is spec §7 "errexit is suppressed
// inside if/while/until conditions, all-but-last terms of &&/||".
func TestErrexitSuppressedInConditions(t *testing.T) {
	c := qt.New(t)
	out, _, status := run(t, `set -e; if false; then echo no; else echo yes; fi; echo after`,
	)
	c.Assert(status, qt.Equals, 0)
	c.Assert(out, qt.Equals, "yes\nafter\n")
}

// TestExportedVarsReachChildEnv is spec §4.5 "Environment construction
// for a child process: walk the table, emit name=value for every
// EXPORTED, non-UNSET entry".
func TestExportedVarsReachChildEnv(t *testing.T) {
	c := qt.New(t)
	out, _, status := run(t, `export FOO=bar; sh -c 'echo $FOO'`)
	c.Assert(status, qt.Equals, 0)
	c.Assert(out, qt.Equals, "bar\n")
}

// TestReadSplitsFieldsByIFS is spec §5 Open Question: "read with IFS
// splitting": the remainder after the last named variable keeps its
// internal delimiters and only has trailing IFS-whitespace stripped.
func TestReadSplitsFieldsByIFS(t *testing.T) {
	c := qt.New(t)
	file, err := syntax.Parse(`read a b c; echo "$a|$b|$c"`)
	c.Assert(err, qt.IsNil)
	var out bytes.Buffer
	r, err := New(StdIO(strings.NewReader("one two three four  \n"), &out, io.Discard))
	c.Assert(err, qt.IsNil)
	status, rerr := r.Run(context.Background(), file)
	c.Assert(rerr, qt.IsNil)
	c.Assert(status, qt.Equals, 0)
	c.Assert(out.String(), qt.Equals, "one|two|three four\n")
}

// TestLinenoTracksCurrentStatement is spec "Environment consumption:
// LINENO... maintained by the shell".
func TestLinenoTracksCurrentStatement(t *testing.T) {
	c := qt.New(t)
	out, _, status := run(t, "echo $LINENO\n\necho $LINENO")
	c.Assert(status, qt.Equals, 0)
	c.Assert(out, qt.Equals, "1\n3\n")
}

// TestReadDefaultsToREPLY covers `read` called with no variable names.
func TestReadDefaultsToREPLY(t *testing.T) {
	c := qt.New(t)
	file, err := syntax.Parse(`read; echo "got $REPLY"`)
	c.Assert(err, qt.IsNil)
	var out bytes.Buffer
	r, err := New(StdIO(strings.NewReader("hello\n"), &out, io.Discard))
	c.Assert(err, qt.IsNil)
	status, rerr := r.Run(context.Background(), file)
	c.Assert(rerr, qt.IsNil)
	c.Assert(status, qt.Equals, 0)
	c.Assert(out.String(), qt.Equals, "got hello\n")
}
