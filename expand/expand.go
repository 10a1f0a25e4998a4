// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// Package expand implements the word expansion pipeline: tilde
// expansion, parameter/command/arithmetic expansion, quote removal,
// field splitting on IFS, and pathname expansion (spec §4.3).
package expand

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"posh.dev/posh/arena"
	"posh.dev/posh/pattern"
	"posh.dev/posh/syntax"
)

// CmdSubster runs a captured command list in a subshell and returns its
// standard output, for $(...) and `...` (spec §4.3 "parse and execute
// cmd in a subshell, capture stdout"). The executor supplies the
// implementation; expand only depends on this narrow contract so it
// never imports the interpreter package.
type CmdSubster func(stmts []*syntax.Stmt) (string, error)

// Config carries everything the expander needs beyond the AST node
// being expanded.
type Config struct {
	Env      WriteEnviron
	Special  *Special
	CmdSubst CmdSubster
	NoGlob   bool // set -f (spec §4.4 "Shell options")
	NoUnset  bool // set -u (spec §4.4 "treat unset expansion as error")
	Dir      string

	// Arena backs the scratch byte buffers this Config builds up while
	// joining a word's parts into a field (spec §3 "per-command
	// expansion buffers rely on scoped, stack-like lifetimes"). A nil
	// Arena falls back to an ordinary strings.Builder, so Config is
	// still usable standalone in tests that never set one.
	Arena *arena.Arena

	ifsCache    string
	ifsComputed bool
}

// scratch returns a byte slice of capacity n drawn from cfg.Arena when
// one is set, so repeated field-joins across a command's words reuse
// the same backing blocks instead of growing a fresh heap buffer each
// time (spec §9 "Arena allocator with macro-driven inlined fast
// paths").
func (cfg *Config) scratch(n int) []byte {
	if cfg.Arena == nil {
		return make([]byte, 0, n)
	}
	return cfg.Arena.Alloc(n, 1)[:0]
}

// isPlainQuotedAt reports whether pe is an unmodified, double-quoted
// "$@" with Special parameters available, the one parameter expansion
// shape that field-splits differently from every other (spec §4.3
// "$@ / $* positional parameters (with the well-defined double-quote
// split behaviour of \"$@\")").
func (cfg *Config) isPlainQuotedAt(pe *syntax.ParamExp) bool {
	return pe.Param == "@" && pe.DQuoted && pe.Op == "" && !pe.Length && cfg.Special != nil
}

func (cfg *Config) ifs() string {
	if !cfg.ifsComputed {
		vr := cfg.Env.Get("IFS")
		if vr.IsSet() {
			cfg.ifsCache = vr.Str
		} else {
			cfg.ifsCache = " \t\n"
		}
		cfg.ifsComputed = true
	}
	return cfg.ifsCache
}

// fieldPart is one piece of a field before joining: a value plus
// whether it came from inside quotes (and so must not be split or
// globbed).
type fieldPart struct {
	val    string
	quoted bool
}

// Literal expands word to a single string with no field splitting or
// globbing: the shape needed for assignment right-hand sides, heredoc
// body expansion, case scrutinees, and a singular for-loop name (spec
// §4.3 "single string (in unquoted-but-no-split contexts)").
func (cfg *Config) Literal(word *syntax.Word) (string, error) {
	if word == nil {
		return "", nil
	}
	parts, err := cfg.wordParts(word.Parts)
	if err != nil {
		return "", err
	}
	if len(parts) == 1 {
		return parts[0].val, nil
	}
	n := 0
	for _, p := range parts {
		n += len(p.val)
	}
	buf := cfg.scratch(n)
	for _, p := range parts {
		buf = append(buf, p.val...)
	}
	return string(buf), nil
}

// Fields expands every word into a, possibly empty, sequence of strings
// in argument position: split on IFS and pathname-expanded (spec §4.3
// phases 4 and 5).
func (cfg *Config) Fields(words ...*syntax.Word) ([]string, error) {
	var out []string
	for _, w := range words {
		fs, err := cfg.wordFields(w)
		if err != nil {
			return nil, err
		}
		for _, field := range fs {
			matches, isGlob, err := cfg.globField(field)
			if err != nil {
				return nil, err
			}
			if isGlob && len(matches) > 0 {
				out = append(out, matches...)
				continue
			}
			out = append(out, cfg.joinField(field))
		}
	}
	return out, nil
}

// joinField concatenates a field's parts using the Config's arena
// scratch space, the per-command expansion buffer spec §3 calls out
// as relying on a scoped, stack-like lifetime: each call to Fields
// brackets its allocations with a push_mark/pop_mark pair (see
// Runner.fields in package interp), so the buffers this builds are
// released as soon as the command they were expanded for finishes.
func (cfg *Config) joinField(field []fieldPart) string {
	if len(field) == 1 {
		return field[0].val
	}
	n := 0
	for _, p := range field {
		n += len(p.val)
	}
	buf := cfg.scratch(n)
	for _, p := range field {
		buf = append(buf, p.val...)
	}
	return string(buf)
}

// wordParts expands every WordPart to a flat, unsplit sequence (used by
// Literal, and as the basis for wordFields).
func (cfg *Config) wordParts(wps []syntax.WordPart) ([]fieldPart, error) {
	var out []fieldPart
	for i, wp := range wps {
		switch x := wp.(type) {
		case *syntax.Lit:
			s := x.Value
			if i == 0 {
				s = cfg.expandTildeText(s)
			}
			out = append(out, fieldPart{val: s, quoted: x.Quoted})
		case *syntax.Tilde:
			out = append(out, fieldPart{val: cfg.expandTilde(x.User)})
		case *syntax.ParamExp:
			s, err := cfg.paramExp(x)
			if err != nil {
				return nil, err
			}
			out = append(out, fieldPart{val: s, quoted: x.DQuoted})
		case *syntax.CmdSubst:
			s, err := cfg.cmdSubst(x)
			if err != nil {
				return nil, err
			}
			out = append(out, fieldPart{val: s, quoted: x.DQuoted})
		case *syntax.ArithmExp:
			n, err := Arithm(cfg.Env, x.X)
			if err != nil {
				return nil, err
			}
			out = append(out, fieldPart{val: strconv.FormatInt(n, 10), quoted: x.DQuoted})
		default:
			return nil, fmt.Errorf("expand: unhandled word part %T", x)
		}
	}
	return out, nil
}

// wordFields is like wordParts, but further splits the result of any
// unquoted expansion on IFS, producing one or more fields (spec §4.3
// "Quoting-empty-field rule").
func (cfg *Config) wordFields(word *syntax.Word) ([][]fieldPart, error) {
	if word == nil {
		return nil, nil
	}
	var fields [][]fieldPart
	var cur []fieldPart
	sawQuote := false
	flush := func() {
		if len(cur) > 0 {
			fields = append(fields, cur)
			cur = nil
		}
	}
	splitAdd := func(val string, quoted bool) {
		if quoted {
			cur = append(cur, fieldPart{val: val, quoted: true})
			sawQuote = true
			return
		}
		parts := splitIFS(val, cfg.ifs())
		for i, p := range parts {
			if i > 0 {
				flush()
			}
			cur = append(cur, fieldPart{val: p})
		}
	}
	for i, wp := range word.Parts {
		switch x := wp.(type) {
		case *syntax.Lit:
			s := x.Value
			if i == 0 {
				s = cfg.expandTildeText(s)
			}
			if x.Quoted {
				sawQuote = true
			}
			cur = append(cur, fieldPart{val: s, quoted: x.Quoted})
		case *syntax.Tilde:
			cur = append(cur, fieldPart{val: cfg.expandTilde(x.User)})
		case *syntax.ParamExp:
			if cfg.isPlainQuotedAt(x) {
				// "$@" is not a single string to split: it expands to
				// one field per positional parameter, and to zero
				// fields (not one empty field) when there are none
				// (spec §4.3 "the well-defined double-quote split
				// behaviour of \"$@\""; spec §8 "\"$@\" with zero
				// positional parameters expands to zero fields").
				for j, v := range cfg.Special.Positional {
					if j > 0 {
						flush()
					}
					cur = append(cur, fieldPart{val: v, quoted: true})
				}
				if len(cfg.Special.Positional) > 0 {
					sawQuote = true
				}
				continue
			}
			s, err := cfg.paramExp(x)
			if err != nil {
				return nil, err
			}
			splitAdd(s, x.DQuoted)
		case *syntax.CmdSubst:
			s, err := cfg.cmdSubst(x)
			if err != nil {
				return nil, err
			}
			splitAdd(s, x.DQuoted)
		case *syntax.ArithmExp:
			n, err := Arithm(cfg.Env, x.X)
			if err != nil {
				return nil, err
			}
			cur = append(cur, fieldPart{val: strconv.FormatInt(n, 10), quoted: x.DQuoted})
		default:
			return nil, fmt.Errorf("expand: unhandled word part %T", x)
		}
	}
	flush()
	if len(fields) == 0 && sawQuote {
		fields = append(fields, nil)
	}
	return fields, nil
}

// splitIFS implements spec §4.3 phase 4's two delimiter classes:
// IFS-whitespace runs collapse and are trimmed at the edges, while each
// non-whitespace IFS character is its own delimiter and can produce
// empty fields, including a trailing one.
func splitIFS(val, ifs string) []string {
	if ifs == "" {
		return []string{val}
	}
	isWS := func(b byte) bool {
		return (b == ' ' || b == '\t' || b == '\n') && strings.IndexByte(ifs, b) >= 0
	}
	isNonWS := func(b byte) bool {
		return !isWS(b) && strings.IndexByte(ifs, b) >= 0
	}
	var fields []string
	var cur strings.Builder
	n := len(val)
	i := 0
	for i < n && isWS(val[i]) {
		i++
	}
	started := false
	trailingDelim := false
	for i < n {
		b := val[i]
		switch {
		case isWS(b):
			fields = append(fields, cur.String())
			cur.Reset()
			started = false
			trailingDelim = false
			for i < n && isWS(val[i]) {
				i++
			}
		case isNonWS(b):
			fields = append(fields, cur.String())
			cur.Reset()
			started = false
			trailingDelim = true
			i++
		default:
			cur.WriteByte(b)
			started = true
			trailingDelim = false
			i++
		}
	}
	if started || cur.Len() > 0 || trailingDelim {
		fields = append(fields, cur.String())
	}
	return fields
}

// ReadFields implements the `read` builtin's line-splitting contract
// (spec §5 Open Question: "the line is split by IFS with non-whitespace
// IFS characters each delimiting exactly one field; remaining text
// after the last named variable is assigned to that last variable with
// trailing IFS-whitespace stripped"). raw disables backslash handling,
// matching `read -r`.
func ReadFields(ifs, s string, n int, raw bool) []string {
	if !raw {
		// A backslash removes the special meaning of the following
		// byte (including being an IFS delimiter) and is itself
		// dropped, matching `read` without -r.
		var unescaped []byte
		for i := 0; i < len(s); i++ {
			if s[i] == '\\' && i+1 < len(s) {
				unescaped = append(unescaped, s[i+1])
				i++
				continue
			}
			unescaped = append(unescaped, s[i])
		}
		s = string(unescaped)
	}

	fields := splitIFS(s, ifs)
	if len(fields) == 0 || n <= 0 || n >= len(fields) {
		return fields
	}

	isWS := func(b byte) bool {
		return (b == ' ' || b == '\t' || b == '\n') && strings.IndexByte(ifs, b) >= 0
	}
	// Recombine every field past the n-th into the last kept field,
	// using byte offsets into the (already unescaped) line so the
	// original delimiters between them are preserved verbatim.
	offsets := make([]int, 0, len(fields)+1)
	pos := 0
	for _, f := range fields {
		idx := strings.Index(s[pos:], f)
		offsets = append(offsets, pos+idx)
		pos += idx + len(f)
	}
	offsets = append(offsets, len(s))
	tail := strings.TrimRightFunc(s[offsets[n-1]:], func(r rune) bool {
		return r <= 0xff && isWS(byte(r))
	})
	kept := append([]string{}, fields[:n-1]...)
	kept = append(kept, tail)
	return kept
}

// expandTildeText expands a bare leading "~" or "~user" when it shows
// up as plain literal text rather than a dedicated Tilde node (this can
// happen for a word whose very first byte the lexer already classified
// before the tilde rule applied). Kept narrow: only the exact prefix up
// to the first '/' is considered.
func (cfg *Config) expandTildeText(s string) string {
	if s == "" || s[0] != '~' {
		return s
	}
	name, rest, _ := strings.Cut(s[1:], "/")
	if strings.ContainsAny(name, " \t$`\"'") {
		return s
	}
	home := cfg.expandTilde(name)
	if home == "~"+name {
		return s
	}
	if rest != "" || strings.HasSuffix(s[1:], "/") {
		return home + "/" + rest
	}
	return home
}

// expandTilde resolves ~ (to $HOME) or ~user (to that user's home
// directory), per spec §4.3 phase 1. An unknown user leaves the tilde
// prefix unchanged.
func (cfg *Config) expandTilde(name string) string {
	if name == "" {
		return cfg.Env.Get("HOME").Str
	}
	u, err := user.Lookup(name)
	if err != nil {
		return "~" + name
	}
	return u.HomeDir
}

func (cfg *Config) cmdSubst(cs *syntax.CmdSubst) (string, error) {
	out, err := cfg.CmdSubst(cs.Stmts)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(out, "\n"), nil
}

func (cfg *Config) paramExp(pe *syntax.ParamExp) (string, error) {
	name := pe.Param
	if pe.Length {
		return strconv.Itoa(Length(cfg.Env, name)), nil
	}
	if cfg.NoUnset && pe.Op == "" && !pe.Length {
		if _, ok := cfg.specialLookup(name); !ok && !cfg.Env.Get(name).IsSet() {
			return "", &UnsetParameterError{Param: name, Message: "unbound variable"}
		}
	}
	if special, ok := cfg.specialLookup(name); ok {
		if pe.Op == "" {
			return special, nil
		}
		// Modifiers on special parameters only ever see a "set"
		// value (special parameters are never truly unset once
		// named), so evaluate them directly rather than through
		// Environ.
		return applySpecialOp(name, special, pe.Op, func() (string, error) {
			if pe.Arg == nil {
				return "", nil
			}
			return cfg.Literal(pe.Arg)
		})
	}
	return Param(name, pe.Op, func() (string, error) {
		if pe.Arg == nil {
			return "", nil
		}
		return cfg.Literal(pe.Arg)
	}, cfg.Env)
}

func (cfg *Config) specialLookup(name string) (string, bool) {
	if cfg.Special == nil {
		return "", false
	}
	switch name {
	case "@", "*":
		sep := " "
		if ifs := cfg.ifs(); ifs != "" {
			sep = ifs[:1]
		}
		return strings.Join(cfg.Special.Positional, sep), true
	}
	return cfg.Special.Lookup(name)
}

// applySpecialOp evaluates a parameter modifier against a special
// parameter ($@, $#, $?, ...), which is always considered set.
func applySpecialOp(name, str, op string, argWord func() (string, error)) (string, error) {
	switch op {
	case "":
		return str, nil
	case "-", ":-":
		if !(op == ":-" && str == "") {
			return str, nil
		}
		return argWord()
	case "+", ":+":
		if op == ":+" && str == "" {
			return "", nil
		}
		return argWord()
	case "?", ":?":
		if !(op == ":?" && str == "") {
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

// globField turns a field into the shell glob it would denote (escaping
// quoted bytes so they're matched literally) and, if it contains
// unescaped metacharacters, expands it against the filesystem (spec
// §4.3 phase 5).
func (cfg *Config) globField(field []fieldPart) (matches []string, isGlob bool, err error) {
	if cfg.NoGlob {
		return nil, false, nil
	}
	var sb strings.Builder
	for _, p := range field {
		if p.quoted {
			sb.WriteString(pattern.QuoteMeta(p.val))
			continue
		}
		sb.WriteString(p.val)
		if pattern.HasMeta(p.val) {
			isGlob = true
		}
	}
	if !isGlob {
		return nil, false, nil
	}
	matches, err = glob(cfg.dir(), sb.String())
	return matches, true, err
}

func (cfg *Config) dir() string {
	if cfg.Dir != "" {
		return cfg.Dir
	}
	if d, err := os.Getwd(); err == nil {
		return d
	}
	return "."
}

// glob expands a shell pattern against the filesystem, matching one
// path component at a time (spec §4.3 phase 5). baseDir anchors a
// relative pattern; results are returned relative unless pat is
// absolute.
func glob(baseDir, pat string) ([]string, error) {
	abs := filepath.IsAbs(pat)
	comps := strings.Split(pat, "/")
	matches := []string{baseDir}
	start := 0
	if abs {
		matches = []string{"/"}
		start = 1
	}
	for _, comp := range comps[start:] {
		if comp == "" {
			continue
		}
		restr, err := pattern.Regexp(comp, pattern.EntireString|pattern.Filenames)
		if err != nil {
			return nil, nil
		}
		var next []string
		for _, dir := range matches {
			next = append(next, globDir(dir, comp, restr)...)
		}
		matches = next
		if len(matches) == 0 {
			break
		}
	}
	if !abs {
		for i, m := range matches {
			if rel, err := filepath.Rel(baseDir, m); err == nil {
				matches[i] = rel
			}
		}
	}
	sort.Strings(matches)
	return matches, nil
}

func globDir(dir, rawPat, restr string) []string {
	re, err := regexp.Compile(restr)
	if err != nil {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer f.Close()
	names, _ := f.Readdirnames(-1)
	sort.Strings(names)
	var out []string
	for _, name := range names {
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(rawPat, ".") {
			continue
		}
		if re.MatchString(name) {
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out
}
