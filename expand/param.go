// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package expand

import (
	"regexp"
	"strconv"
	"unicode/utf8"

	"posh.dev/posh/pattern"
)

// UnsetParameterError is raised by the ":?"/"?" modifier when the
// parameter is unset or null (spec §4.3 "${NAME:?word}").
type UnsetParameterError struct {
	Param   string
	Message string
}

func (e *UnsetParameterError) Error() string {
	if e.Message != "" {
		return e.Param + ": " + e.Message
	}
	return e.Param + ": parameter null or not set"
}

// ParamLookup resolves a parameter name to its value, distinguishing
// unset from empty, plus the special parameters that don't come from
// Environ (spec §4.3 "Special parameters").
type ParamLookup interface {
	// Lookup returns (value, set). Special parameters $?, $$, $!, $#,
	// $-, $@, $*, $0..$N are resolved by the caller before falling
	// back to Environ.
	Lookup(name string) (value string, set bool)
}

// Param evaluates a single ParamExp node to its string value, applying
// its modifier (if any) per spec §4.3 phase 2. argWord evaluates the
// modifier's argument word to a string (also the pattern argument of
// #/##/%/%%). env is where ":="/"=" write the variable back.
func Param(name string, op string, argWord func() (string, error), env WriteEnviron) (string, error) {
	vr := env.Get(name)
	set := vr.IsSet()
	str := vr.Str

	switch op {
	case "":
		return str, nil
	case "-", ":-":
		if set && !(op == ":-" && str == "") {
			return str, nil
		}
		return argWord()
	case "=", ":=":
		if set && !(op == ":=" && str == "") {
			return str, nil
		}
		arg, err := argWord()
		if err != nil {
			return "", err
		}
		if err := env.Set(name, Variable{Set: true, Str: arg}); err != nil {
			return "", err
		}
		return arg, nil
	case "+", ":+":
		if !set || (op == ":+" && str == "") {
			return "", nil
		}
		return argWord()
	case "?", ":?":
		if set && !(op == ":?" && str == "") {
			return str, nil
		}
		msg, err := argWord()
		if err != nil {
			return "", err
		}
		return "", &UnsetParameterError{Param: name, Message: msg}
	case "#", "##", "%", "%%":
		pat, err := argWord()
		if err != nil {
			return "", err
		}
		return trimPattern(str, pat, op), nil
	default:
		return str, nil
	}
}

// Length implements ${#NAME}: the rune count of the value, or 0 if
// unset (spec §4.3 "${#NAME}").
func Length(env Environ, name string) int {
	return utf8.RuneCountInString(env.Get(name).Str)
}

// trimPattern removes the shortest ("#"/"%") or longest ("##"/"%%")
// prefix ("#"/"##") or suffix ("%"/"%%") of str matching the glob
// pattern pat, using the same matching rules as case patterns (spec
// §4.3 "Pattern matching uses the same globbing rules as case
// patterns").
func trimPattern(str, pat, op string) string {
	if pat == "" {
		return str
	}
	suffix := op == "%" || op == "%%"
	greedy := op == "##" || op == "%%"

	var mode pattern.Mode
	if !greedy {
		mode |= pattern.Shortest
	}
	restr, err := pattern.Regexp(pat, mode)
	if err != nil {
		return str
	}

	var anchored string
	switch {
	case suffix && !greedy:
		// A greedy ".*" ahead of the (already non-greedy) suffix
		// pattern eats as much of str as it can before backtracking
		// just enough to let the suffix match, which yields the
		// shortest possible matching suffix without needing a
		// separately ungreedy outer expression.
		anchored = ".*(" + restr + ")$"
	case suffix:
		anchored = "(" + restr + ")$"
	default:
		anchored = "^(" + restr + ")"
	}
	re, err := regexp.Compile(anchored)
	if err != nil {
		return str
	}
	loc := re.FindStringSubmatchIndex(str)
	if loc == nil {
		return str
	}
	return str[:loc[2]] + str[loc[3]:]
}

// Special resolves the non-Environ special parameters named in spec
// §4.3 ("$?", "$$", "$!", "$#", "$-", "$@", "$*", "$0"..).
type Special struct {
	LastStatus int
	PID        int
	BgPID      int
	Options    string
	ShellName  string
	Positional []string
}

func (s *Special) Lookup(name string) (string, bool) {
	switch name {
	case "?":
		return strconv.Itoa(s.LastStatus), true
	case "$":
		return strconv.Itoa(s.PID), true
	case "!":
		if s.BgPID == 0 {
			return "", false
		}
		return strconv.Itoa(s.BgPID), true
	case "#":
		return strconv.Itoa(len(s.Positional)), true
	case "-":
		return s.Options, true
	case "0":
		return s.ShellName, true
	}
	if n, err := strconv.Atoi(name); err == nil && n >= 1 {
		if n <= len(s.Positional) {
			return s.Positional[n-1], true
		}
		return "", false
	}
	return "", false
}
