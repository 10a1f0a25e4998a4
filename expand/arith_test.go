// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package expand

import (
	"strings"
	"testing"

	"posh.dev/posh/syntax"
)

func parseArithmWord(t *testing.T, src string) syntax.ArithmExpr {
	t.Helper()
	f, err := syntax.Parse("echo $((" + src + "))")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sc := f.Stmts[0].Cmd.(*syntax.SimpleCommand)
	for _, part := range sc.Args[1].Parts {
		if ae, ok := part.(*syntax.ArithmExp); ok {
			return ae.X
		}
	}
	t.Fatalf("no arithmetic expansion found in %q", src)
	return nil
}

func TestArithmBasic(t *testing.T) {
	cases := []struct {
		expr string
		want int64
	}{
		{"1+2", 3},
		{"2*3+4", 10},
		{"2+3*4", 14},
		{"(2+3)*4", 20},
		{"10-3-2", 5},
		{"7/2", 3},
		{"7%2", 1},
		{"-5+10", 5},
		{"+5", 5},
	}
	env := ListEnviron()
	for _, c := range cases {
		x := parseArithmWord(t, c.expr)
		got, err := Arithm(env, x)
		if err != nil {
			t.Fatalf("Arithm(%q): %v", c.expr, err)
		}
		if got != c.want {
			t.Errorf("Arithm(%q) = %d, want %d", c.expr, got, c.want)
		}
	}
}

func TestArithmVariableLookup(t *testing.T) {
	env := ListEnviron("N=4")
	x := parseArithmWord(t, "N*2")
	got, err := Arithm(env, x)
	if err != nil {
		t.Fatal(err)
	}
	if got != 8 {
		t.Fatalf("got %d, want 8", got)
	}
}

func TestArithmUnsetVariableIsZero(t *testing.T) {
	env := ListEnviron()
	x := parseArithmWord(t, "N+1")
	got, err := Arithm(env, x)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
}

func TestArithmDivisionByZero(t *testing.T) {
	env := ListEnviron()
	x := parseArithmWord(t, "1/0")
	if _, err := Arithm(env, x); err == nil {
		t.Fatalf("expected division-by-zero error")
	}
}

func TestArithmNonNumericOperand(t *testing.T) {
	env := ListEnviron("N=abc")
	x := parseArithmWord(t, "N+1")
	_, err := Arithm(env, x)
	if err == nil || !strings.Contains(err.Error(), "valid integer") {
		t.Fatalf("got err=%v, want a non-numeric-operand error", err)
	}
}
