// Copyright (c) 2018, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package expand

import "testing"

func TestListEnvironGet(t *testing.T) {
	env := ListEnviron("FOO=bar", "EMPTY=", "DUP=first", "DUP=second")
	if got := env.Get("FOO").String(); got != "bar" {
		t.Fatalf("got %q, want bar", got)
	}
	if !env.Get("EMPTY").IsSet() {
		t.Fatalf("EMPTY should be set (to empty string)")
	}
	if got := env.Get("DUP").String(); got != "second" {
		t.Fatalf("duplicate name: got %q, want %q (last wins)", got, "second")
	}
	if env.Get("MISSING").IsSet() {
		t.Fatalf("MISSING should be unset")
	}
}

func TestListEnvironEach(t *testing.T) {
	env := ListEnviron("B=2", "A=1")
	var names []string
	env.Each(func(name string, vr Variable) bool {
		names = append(names, name)
		return true
	})
	if len(names) != 2 {
		t.Fatalf("got %d names, want 2", len(names))
	}
}

func TestWriteEnvironSetAndUnset(t *testing.T) {
	env := NewWriteEnviron("FOO=bar")
	if err := env.Set("FOO", Variable{Set: true, Str: "baz"}); err != nil {
		t.Fatal(err)
	}
	if got := env.Get("FOO").String(); got != "baz" {
		t.Fatalf("got %q, want baz", got)
	}
	if err := env.Set("FOO", Variable{Set: false}); err != nil {
		t.Fatal(err)
	}
	if env.Get("FOO").IsSet() {
		t.Fatalf("FOO should be unset after Set with Set:false")
	}
}

func TestWriteEnvironReadOnly(t *testing.T) {
	env := NewWriteEnviron()
	if err := env.Set("RO", Variable{Set: true, Str: "1", ReadOnly: true}); err != nil {
		t.Fatal(err)
	}
	if err := env.Set("RO", Variable{Set: true, Str: "2"}); err == nil {
		t.Fatalf("expected error writing to read-only variable")
	}
}

func TestWriteEnvironFixedSurvivesUnset(t *testing.T) {
	env := NewWriteEnviron("IFS= \t\n")
	if err := env.Set("IFS", Variable{Set: true, Str: " ", Fixed: true}); err != nil {
		t.Fatal(err)
	}
	if err := env.Set("IFS", Variable{Set: false}); err != nil {
		t.Fatal(err)
	}
	got := env.Get("IFS")
	if !got.Fixed {
		t.Fatalf("IFS should keep its Fixed flag after unset")
	}
}

func TestFuncEnviron(t *testing.T) {
	env := FuncEnviron(func(name string) string {
		if name == "HOME" {
			return "/home/user"
		}
		return ""
	})
	if got := env.Get("HOME").String(); got != "/home/user" {
		t.Fatalf("got %q", got)
	}
	if env.Get("MISSING").IsSet() {
		t.Fatalf("MISSING should be unset")
	}
}
