package expand

import (
	"os"
	"path/filepath"
	"testing"

	"posh.dev/posh/arena"
	"posh.dev/posh/syntax"
)

func parseWords(t *testing.T, src string) []*syntax.Word {
	t.Helper()
	f, err := syntax.Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	sc := f.Stmts[0].Cmd.(*syntax.SimpleCommand)
	return sc.Args
}

func newCfg(env WriteEnviron) *Config {
	return &Config{
		Env: env,
		CmdSubst: func(stmts []*syntax.Stmt) (string, error) {
			return "sub", nil
		},
	}
}

func TestLiteralNoSplitNoGlob(t *testing.T) {
	env := NewWriteEnviron("HOME=/home/u", "IFS= \t\n")
	cfg := newCfg(env)
	words := parseWords(t, `echo "a b  c"`)
	got, err := cfg.Literal(words[1])
	if err != nil {
		t.Fatal(err)
	}
	if got != "a b  c" {
		t.Fatalf("got %q", got)
	}
}

func TestFieldsBasicSplitting(t *testing.T) {
	env := NewWriteEnviron("X=one  two\tthree")
	cfg := newCfg(env)
	words := parseWords(t, "echo $X")
	fields, err := cfg.Fields(words[1:]...)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"one", "two", "three"}
	if len(fields) != len(want) {
		t.Fatalf("got %v", fields)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Fatalf("got %v want %v", fields, want)
		}
	}
}

func TestFieldsQuotedNotSplit(t *testing.T) {
	env := NewWriteEnviron("X=one two three")
	cfg := newCfg(env)
	words := parseWords(t, `echo "$X"`)
	fields, err := cfg.Fields(words[1:]...)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 1 || fields[0] != "one two three" {
		t.Fatalf("got %v", fields)
	}
}

func TestFieldsEmptyQuotedYieldsOneField(t *testing.T) {
	env := NewWriteEnviron()
	cfg := newCfg(env)
	words := parseWords(t, `echo ""`)
	fields, err := cfg.Fields(words[1:]...)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 1 || fields[0] != "" {
		t.Fatalf("got %v", fields)
	}
}

func TestFieldsUnquotedEmptyYieldsNoField(t *testing.T) {
	env := NewWriteEnviron("X=")
	cfg := newCfg(env)
	words := parseWords(t, "echo $X")
	fields, err := cfg.Fields(words[1:]...)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 0 {
		t.Fatalf("got %v", fields)
	}
}

func TestSplitIFSNonWhitespaceDelimiters(t *testing.T) {
	got := splitIFS(",a,", ",")
	want := []string{"", "a", ""}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestSplitIFSWhitespaceCollapsesAndTrims(t *testing.T) {
	got := splitIFS("  a   b  ", " \t\n")
	want := []string{"a", "b"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v", got)
	}
}

func TestSplitIFSEmptyIFSNoSplit(t *testing.T) {
	got := splitIFS("a b c", "")
	if len(got) != 1 || got[0] != "a b c" {
		t.Fatalf("got %v", got)
	}
}

func TestTildeExpansion(t *testing.T) {
	env := NewWriteEnviron("HOME=/home/tester")
	cfg := newCfg(env)
	words := parseWords(t, "echo ~/docs")
	got, err := cfg.Literal(words[1])
	if err != nil {
		t.Fatal(err)
	}
	if got != "/home/tester/docs" {
		t.Fatalf("got %q", got)
	}
}

func TestCommandSubstitutionTrimsTrailingNewlines(t *testing.T) {
	env := NewWriteEnviron()
	cfg := &Config{
		Env: env,
		CmdSubst: func(stmts []*syntax.Stmt) (string, error) {
			return "value\n\n", nil
		},
	}
	words := parseWords(t, "echo $(anything)")
	got, err := cfg.Literal(words[1])
	if err != nil {
		t.Fatal(err)
	}
	if got != "value" {
		t.Fatalf("got %q", got)
	}
}

func TestParamModifierThroughExpand(t *testing.T) {
	env := NewWriteEnviron()
	cfg := newCfg(env)
	words := parseWords(t, "echo ${MISSING:-fallback}")
	got, err := cfg.Literal(words[1])
	if err != nil {
		t.Fatal(err)
	}
	if got != "fallback" {
		t.Fatalf("got %q", got)
	}
}

func TestGlobbingExpandsMatches(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.log"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	env := NewWriteEnviron()
	cfg := newCfg(env)
	cfg.Dir = dir
	words := parseWords(t, "echo *.txt")
	fields, err := cfg.Fields(words[1:]...)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 2 {
		t.Fatalf("got %v", fields)
	}
}

func TestGlobbingNoMatchLeavesPatternLiteral(t *testing.T) {
	dir := t.TempDir()
	env := NewWriteEnviron()
	cfg := newCfg(env)
	cfg.Dir = dir
	words := parseWords(t, "echo *.nomatch")
	fields, err := cfg.Fields(words[1:]...)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 1 || fields[0] != "*.nomatch" {
		t.Fatalf("got %v", fields)
	}
}

func TestNoGlobOptionDisablesExpansion(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	env := NewWriteEnviron()
	cfg := newCfg(env)
	cfg.Dir = dir
	cfg.NoGlob = true
	words := parseWords(t, "echo *.txt")
	fields, err := cfg.Fields(words[1:]...)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 1 || fields[0] != "*.txt" {
		t.Fatalf("got %v", fields)
	}
}

// TestArenaBackedJoinRoundTrips checks that a multi-part literal joined
// through an explicit Arena (spec §3 Arena, §9 "per-command expansion
// buffers rely on scoped, stack-like lifetimes") still produces a
// normal, independent string after the mark that covered it pops.
func TestArenaBackedJoinRoundTrips(t *testing.T) {
	var a arena.Arena
	env := NewWriteEnviron("X=bar")
	cfg := newCfg(env)
	cfg.Arena = &a
	words := parseWords(t, `echo foo${X}baz`)

	mark := a.PushMark()
	got, err := cfg.Literal(words[1])
	a.PopMark(mark)
	if err != nil {
		t.Fatal(err)
	}
	if got != "foobarbaz" {
		t.Fatalf("got %q", got)
	}
}

func TestSpecialPositionalParameters(t *testing.T) {
	env := NewWriteEnviron()
	cfg := newCfg(env)
	cfg.Special = &Special{Positional: []string{"one", "two"}}
	words := parseWords(t, `echo "$*"`)
	got, err := cfg.Literal(words[1])
	if err != nil {
		t.Fatal(err)
	}
	if got != "one two" {
		t.Fatalf("got %q", got)
	}
}

// TestQuotedAtSplitsOnePerParameter is spec §4.3 "the well-defined
// double-quote split behaviour of \"$@\"": unlike "$*", "$@" expands
// to one field per positional parameter rather than a single
// IFS-joined string.
func TestQuotedAtSplitsOnePerParameter(t *testing.T) {
	env := NewWriteEnviron()
	cfg := newCfg(env)
	cfg.Special = &Special{Positional: []string{"one two", "three"}}
	words := parseWords(t, `echo before "$@" after`)
	fields, err := cfg.Fields(words[1:]...)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"before", "one two", "three", "after"}
	if len(fields) != len(want) {
		t.Fatalf("got %v", fields)
	}
	for i, w := range want {
		if fields[i] != w {
			t.Fatalf("got %v", fields)
		}
	}
}

// TestQuotedAtEmptyYieldsZeroFields is spec §8 "\"$@\" with zero
// positional parameters expands to zero fields, not one empty field".
func TestQuotedAtEmptyYieldsZeroFields(t *testing.T) {
	env := NewWriteEnviron()
	cfg := newCfg(env)
	cfg.Special = &Special{Positional: nil}
	words := parseWords(t, `echo before "$@" after`)
	fields, err := cfg.Fields(words[1:]...)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"before", "after"}
	if len(fields) != len(want) {
		t.Fatalf("got %v", fields)
	}
	for i, w := range want {
		if fields[i] != w {
			t.Fatalf("got %v", fields)
		}
	}
}
