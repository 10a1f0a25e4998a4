// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package syntax

import (
	"fmt"
	"strings"

	"posh.dev/posh/token"
)

// Parser holds the mutable parse-time state that must persist across
// calls: the alias table (spec §4.2 "Alias substitution"). Everything
// else is local to a single Parse call.
type Parser struct {
	aliases map[string]string
}

// NewParser returns a ready-to-use Parser with an empty alias table.
func NewParser() *Parser {
	return &Parser{aliases: map[string]string{}}
}

// SetAlias registers or replaces an alias, as the `alias` builtin does.
func (pr *Parser) SetAlias(name, value string) { pr.aliases[name] = value }

// RemoveAlias removes an alias, as the `unalias` builtin does.
func (pr *Parser) RemoveAlias(name string) { delete(pr.aliases, name) }

// Alias returns the registered value for name, if any.
func (pr *Parser) Alias(name string) (string, bool) {
	v, ok := pr.aliases[name]
	return v, ok
}

// Parse parses a complete shell program (spec §4.2 "program := list? EOF").
func (pr *Parser) Parse(src string) (*File, error) {
	stmts, err := parseProgram(src, 1, pr.aliases)
	return &File{Stmts: stmts}, err
}

// Parse is the package-level convenience entry point with no alias
// table, used by tests and by command substitution when no Parser
// instance is threaded through.
func Parse(src string) (*File, error) {
	return NewParser().Parse(src)
}

func parseProgram(src string, line int, aliases map[string]string) ([]*Stmt, error) {
	p := &parser{src: src, line: line, aliases: aliases}
	p.next()
	stmts := p.parseStmtListUntil(func() bool { return p.tok == token.EOF })
	if p.err != nil {
		return stmts, p.err
	}
	return stmts, nil
}

func (p *parser) errorf(format string, args ...any) {
	if p.err == nil {
		p.err = &ParseError{Line: p.line, Msg: fmt.Sprintf("line %d: %s", p.line, fmt.Sprintf(format, args...))}
	}
}

func (p *parser) isKeyword(s string) bool { return p.tok == token.KEYWORD && p.opText == s }
func (p *parser) isOp(s string) bool      { return p.tok == token.OPERATOR && p.opText == s }

func (p *parser) skipNewlines() {
	for p.tok == token.NEWLINE {
		p.next()
	}
}

// parseStmtListUntil parses statements separated by ';', '&', or newline
// until stop() reports true or EOF is reached (spec §4.2 "list").
func (p *parser) parseStmtListUntil(stop func() bool) []*Stmt {
	var stmts []*Stmt
	for {
		for p.tok == token.NEWLINE || p.isOp(";") {
			p.next()
		}
		if p.tok == token.EOF || stop() {
			break
		}
		st := p.parseAndOrStmt()
		if st == nil {
			p.errorf("unexpected token")
			break
		}
		switch {
		case p.isOp("&"):
			st.Background = true
			p.next()
		case p.isOp(";"):
			p.next()
		case p.tok == token.NEWLINE:
			p.next()
		}
		stmts = append(stmts, st)
		if p.err != nil {
			break
		}
	}
	return stmts
}

func (p *parser) parseStmtListUntilKeyword(kws ...string) []*Stmt {
	return p.parseStmtListUntil(func() bool {
		if p.tok != token.KEYWORD {
			return false
		}
		for _, k := range kws {
			if p.opText == k {
				return true
			}
		}
		return false
	})
}

func (p *parser) parseStmtListUntilOp(op string) []*Stmt {
	return p.parseStmtListUntil(func() bool { return p.isOp(op) })
}

func (p *parser) parseStmtListUntilCaseEnd() []*Stmt {
	return p.parseStmtListUntil(func() bool {
		return p.isOp(";;") || p.isKeyword("esac")
	})
}

// parseAndOrStmt implements "and_or := pipeline (('&&'|'||') linebreak pipeline)*".
func (p *parser) parseAndOrStmt() *Stmt {
	left := p.parsePipelineStmt()
	if left == nil {
		return nil
	}
	for p.isOp("&&") || p.isOp("||") {
		op := p.opText
		line := p.line
		p.next()
		p.skipNewlines()
		right := p.parsePipelineStmt()
		if right == nil {
			p.errorf("expected command after %q", op)
			return left
		}
		aoOp := AndOp
		if op == "||" {
			aoOp = OrOp
		}
		left = &Stmt{base: base{line}, Cmd: &AndOr{base: base{line}, Op: aoOp, X: left, Y: right}}
	}
	return left
}

// parsePipelineStmt implements "pipeline := '!'? simple_or_compound ('|' linebreak simple_or_compound)*".
func (p *parser) parsePipelineStmt() *Stmt {
	line := p.line
	negate := false
	if p.isKeyword("!") {
		negate = true
		p.next()
	}
	first := p.parseSimpleOrCompoundStmt()
	if first == nil {
		if negate {
			p.errorf("expected command after !")
		}
		return nil
	}
	stages := []*Stmt{first}
	for p.isOp("|") {
		p.next()
		p.skipNewlines()
		next := p.parseSimpleOrCompoundStmt()
		if next == nil {
			p.errorf("expected command after |")
			break
		}
		stages = append(stages, next)
	}
	if len(stages) == 1 && !negate {
		return stages[0]
	}
	return &Stmt{base: base{line}, Cmd: &Pipeline{base: base{line}, Stages: stages, Negate: negate}}
}

// parseSimpleOrCompoundStmt implements
// "simple_or_compound := compound_command redirs* | function_def | simple_command".
func (p *parser) parseSimpleOrCompoundStmt() *Stmt {
	if p.isKeyword("function") {
		return p.parseFunctionDefKeyword()
	}
	if p.tok == token.WORD {
		if st := p.tryParseFunctionDef(); st != nil {
			return st
		}
	}
	if p.isCompoundStart() {
		line := p.line
		cmd := p.parseCompoundCommand()
		redirs := p.parseRedirs()
		return &Stmt{base: base{line}, Cmd: cmd, Redirs: redirs}
	}
	return p.parseSimpleCommand()
}

func (p *parser) isCompoundStart() bool {
	if p.tok == token.KEYWORD {
		switch p.opText {
		case "if", "while", "until", "for", "case", "{":
			return true
		}
	}
	return p.isOp("(")
}

func (p *parser) parseCompoundCommand() Command {
	switch {
	case p.isKeyword("if"):
		return p.parseIf()
	case p.isKeyword("while"):
		return p.parseWhileUntil(false)
	case p.isKeyword("until"):
		return p.parseWhileUntil(true)
	case p.isKeyword("for"):
		return p.parseFor()
	case p.isKeyword("case"):
		return p.parseCase()
	case p.isKeyword("{"):
		return p.parseGroup()
	case p.isOp("("):
		return p.parseSubshell()
	}
	p.errorf("unexpected token parsing compound command")
	return nil
}

func (p *parser) parseIf() *If {
	p.next() // "if"
	cond := p.parseStmtListUntilKeyword("then")
	if p.isKeyword("then") {
		p.next()
	} else {
		p.errorf("expected 'then'")
	}
	then := p.parseStmtListUntilKeyword("elif", "else", "fi")
	node := &If{Cond: cond, Then: then}
	switch {
	case p.isKeyword("elif"):
		node.Else = p.parseElif()
	case p.isKeyword("else"):
		p.next()
		body := p.parseStmtListUntilKeyword("fi")
		node.Else = &Group{Stmts: body}
		p.expectKeyword("fi")
	case p.isKeyword("fi"):
		p.next()
	default:
		p.errorf("expected 'fi'")
	}
	return node
}

func (p *parser) parseElif() *If {
	p.next() // "elif"
	cond := p.parseStmtListUntilKeyword("then")
	if p.isKeyword("then") {
		p.next()
	} else {
		p.errorf("expected 'then'")
	}
	then := p.parseStmtListUntilKeyword("elif", "else", "fi")
	node := &If{Cond: cond, Then: then}
	switch {
	case p.isKeyword("elif"):
		node.Else = p.parseElif()
	case p.isKeyword("else"):
		p.next()
		body := p.parseStmtListUntilKeyword("fi")
		node.Else = &Group{Stmts: body}
		p.expectKeyword("fi")
	case p.isKeyword("fi"):
		p.next()
	default:
		p.errorf("expected 'fi'")
	}
	return node
}

func (p *parser) parseWhileUntil(until bool) *WhileStmt {
	p.next() // "while"/"until"
	cond := p.parseStmtListUntilKeyword("do")
	p.expectKeyword("do")
	body := p.parseStmtListUntilKeyword("done")
	p.expectKeyword("done")
	return &WhileStmt{Until: until, Cond: cond, Do: body}
}

func (p *parser) parseFor() *ForStmt {
	p.next() // "for"
	name, ok := wordLiteralText(p.word)
	if p.tok != token.WORD || !ok || !isValidName(name) {
		p.errorf("expected name after 'for'")
		return &ForStmt{}
	}
	p.next()
	for p.tok == token.NEWLINE {
		p.next()
	}
	node := &ForStmt{Name: name}
	if p.isKeyword("in") {
		node.HasList = true
		p.next()
		for p.tok == token.WORD {
			node.Items = append(node.Items, p.word)
			p.next()
		}
	}
	switch {
	case p.isOp(";"):
		p.next()
	case p.tok == token.NEWLINE:
		p.next()
	}
	p.skipNewlines()
	p.expectKeyword("do")
	node.Do = p.parseStmtListUntilKeyword("done")
	p.expectKeyword("done")
	return node
}

func (p *parser) parseCase() *CaseStmt {
	p.next() // "case"
	word := p.word
	if p.tok != token.WORD {
		p.errorf("expected word after 'case'")
	}
	p.next()
	p.expectKeyword("in")
	p.skipNewlines()
	node := &CaseStmt{Word: word}
	for !p.isKeyword("esac") && p.tok != token.EOF {
		if p.isOp("(") {
			p.next()
		}
		item := &CaseItem{base: base{p.line}}
		item.Patterns = append(item.Patterns, p.word)
		if p.tok != token.WORD {
			p.errorf("expected case pattern")
			break
		}
		p.next()
		for p.isOp("|") {
			p.next()
			item.Patterns = append(item.Patterns, p.word)
			p.next()
		}
		if !p.isOp(")") {
			p.errorf("expected ')' after case pattern")
			break
		}
		p.next()
		p.skipNewlines()
		item.Body = p.parseStmtListUntilCaseEnd()
		node.Items = append(node.Items, item)
		if p.isOp(";;") {
			p.next()
		}
		p.skipNewlines()
	}
	p.expectKeyword("esac")
	return node
}

func (p *parser) parseSubshell() *Subshell {
	p.next() // "("
	body := p.parseStmtListUntilOp(")")
	if p.isOp(")") {
		p.next()
	} else {
		p.errorf("expected ')'")
	}
	return &Subshell{Stmts: body}
}

func (p *parser) parseGroup() *Group {
	p.next() // "{"
	body := p.parseStmtListUntilKeyword("}")
	p.expectKeyword("}")
	return &Group{Stmts: body}
}

func (p *parser) expectKeyword(kw string) {
	if p.isKeyword(kw) {
		p.next()
		return
	}
	p.errorf("expected %q", kw)
}

// parserSnapshot captures enough state to backtrack a tentative
// function-definition lookahead.
type parserSnapshot struct {
	pos, line int
	tok       token.Kind
	opText    string
	word      *Word
	ioNumber  int
}

func (p *parser) snapshot() parserSnapshot {
	return parserSnapshot{p.pos, p.line, p.tok, p.opText, p.word, p.ioNumber}
}

func (p *parser) restore(s parserSnapshot) {
	p.pos, p.line, p.tok, p.opText, p.word, p.ioNumber = s.pos, s.line, s.tok, s.opText, s.word, s.ioNumber
}

// tryParseFunctionDef recognizes "NAME ( ) compound_command" (spec §4.2
// "Function definition").
func (p *parser) tryParseFunctionDef() *Stmt {
	name, ok := wordLiteralText(p.word)
	if !ok || !isValidName(name) {
		return nil
	}
	save := p.snapshot()
	line := p.line
	p.next()
	if !p.isOp("(") {
		p.restore(save)
		return nil
	}
	p.next()
	if !p.isOp(")") {
		p.restore(save)
		return nil
	}
	p.next()
	p.skipNewlines()
	if !p.isCompoundStart() {
		p.restore(save)
		return nil
	}
	body := p.parseCompoundCommand()
	return &Stmt{base: base{line}, Cmd: &FunctionDef{base: base{line}, Name: name, Body: body}}
}

func (p *parser) parseFunctionDefKeyword() *Stmt {
	line := p.line
	p.next() // "function"
	name, ok := wordLiteralText(p.word)
	if p.tok != token.WORD || !ok {
		p.errorf("expected function name")
		return nil
	}
	p.next()
	if p.isOp("(") {
		p.next()
		if p.isOp(")") {
			p.next()
		}
	}
	p.skipNewlines()
	body := p.parseCompoundCommand()
	return &Stmt{base: base{line}, Cmd: &FunctionDef{base: base{line}, Name: name, Body: body}}
}

// parseSimpleCommand implements
// "simple_command := (io_redir | assignment)* cmd_word (io_redir | cmd_arg)*"
// including alias substitution at command-name position (spec §4.2
// "Alias substitution").
func (p *parser) parseSimpleCommand() *Stmt {
	line := p.line
	var assigns []*Assign
	var redirs []*Redirect
	var args []*Word

	for {
		if r := p.tryParseRedir(); r != nil {
			redirs = append(redirs, r)
			continue
		}
		if a := p.tryParseAssign(); a != nil {
			assigns = append(assigns, a)
			continue
		}
		break
	}

	for p.maybeExpandAlias() {
	}

	if p.tok == token.WORD || p.tok == token.KEYWORD {
		args = append(args, p.currentArgWord())
		p.next()
		for {
			if r := p.tryParseRedir(); r != nil {
				redirs = append(redirs, r)
				continue
			}
			if p.tok == token.WORD || p.tok == token.KEYWORD {
				args = append(args, p.currentArgWord())
				p.next()
				continue
			}
			break
		}
	}

	if len(args) == 0 && len(assigns) == 0 && len(redirs) == 0 {
		return nil
	}
	return &Stmt{base: base{line}, Cmd: &SimpleCommand{Assigns: assigns, Args: args, Redirs: redirs}}
}

// currentArgWord returns the word to use for the current token when it
// is being consumed as a command-name or argument. A KEYWORD token in
// this position is demoted back to a plain word (spec §4.1 "falling
// back to treating the text as a plain word when in argument position").
func (p *parser) currentArgWord() *Word {
	if p.tok == token.KEYWORD {
		return &Word{base: base{p.line}, Parts: []WordPart{&Lit{base: base{p.line}, Value: p.opText}}}
	}
	return p.word
}

// maybeExpandAlias implements alias substitution at command-name
// position only (spec §4.2, Open Question "Alias re-lexing inside
// control-structure keywords"): it never fires for a KEYWORD token,
// and is bounded against recursive aliases by tracking which alias
// names are currently being expanded.
func (p *parser) maybeExpandAlias() bool {
	p.popExpiredAliases()
	if p.tok != token.WORD || p.aliases == nil {
		return false
	}
	name, ok := wordLiteralText(p.word)
	if !ok {
		return false
	}
	val, exists := p.aliases[name]
	if !exists || p.aliasActive(name) {
		return false
	}
	rest := p.src[p.pos:]
	p.src = val + rest
	p.pos = 0
	p.aliasStack = append(p.aliasStack, aliasFrame{name: name, end: len(val)})
	p.next()
	return true
}

type aliasFrame struct {
	name string
	end  int
}

func (p *parser) popExpiredAliases() {
	for len(p.aliasStack) > 0 && p.pos >= p.aliasStack[len(p.aliasStack)-1].end {
		p.aliasStack = p.aliasStack[:len(p.aliasStack)-1]
	}
}

func (p *parser) aliasActive(name string) bool {
	for _, f := range p.aliasStack {
		if f.name == name {
			return true
		}
	}
	return false
}

// tryParseAssign recognizes a NAME=VALUE prefix token (spec §4.2
// "Simple-command assembly").
func (p *parser) tryParseAssign() *Assign {
	if p.tok != token.WORD {
		return nil
	}
	w := p.word
	if len(w.Parts) == 0 {
		return nil
	}
	lit, ok := w.Parts[0].(*Lit)
	if !ok || lit.Quoted {
		return nil
	}
	eq := strings.IndexByte(lit.Value, '=')
	if eq <= 0 {
		return nil
	}
	name := lit.Value[:eq]
	if !isValidName(name) {
		return nil
	}
	line := p.line
	value := &Word{base: base{line}}
	if rest := lit.Value[eq+1:]; rest != "" {
		value.Parts = append(value.Parts, &Lit{base: base{line}, Value: rest})
	}
	value.Parts = append(value.Parts, w.Parts[1:]...)
	p.next()
	return &Assign{base: base{line}, Name: name, Value: value}
}

func isValidName(s string) bool {
	if s == "" || !isNameStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isNameCont(s[i]) {
			return false
		}
	}
	return true
}

var redirKinds = map[string]RedirKind{
	"<": RedirIn, ">": RedirOut, ">|": RedirOutClobber, ">>": RedirAppend,
	"<&": RedirInDup, ">&": RedirOutDup, "<>": RedirReadWrite,
	"<<": RedirHeredoc, "<<-": RedirHeredocDash,
}

func isRedirOp(op string) bool {
	_, ok := redirKinds[op]
	return ok
}

func isInputLikeRedir(k RedirKind) bool {
	switch k {
	case RedirIn, RedirInDup, RedirReadWrite, RedirHeredoc, RedirHeredocDash:
		return true
	}
	return false
}

// tryParseRedir recognizes a single redirection: an optional IO_NUMBER
// followed by one of the closed redirection operators and a target word
// (spec §3 "Redirection", §4.2 "IO_NUMBER or redirection operators may
// appear anywhere").
func (p *parser) tryParseRedir() *Redirect {
	line := p.line
	hasIO := false
	io := 0
	if p.tok == token.IONUMBER {
		io = p.ioNumber
		hasIO = true
		p.next()
		if p.tok != token.OPERATOR || !isRedirOp(p.opText) {
			p.errorf("expected redirection operator after IO number")
			return nil
		}
	} else if !(p.tok == token.OPERATOR && isRedirOp(p.opText)) {
		return nil
	}
	kind := redirKinds[p.opText]
	isHeredoc := kind == RedirHeredoc || kind == RedirHeredocDash
	if !hasIO {
		if isInputLikeRedir(kind) {
			io = 0
		} else {
			io = 1
		}
	}
	p.next()
	if p.tok != token.WORD {
		p.errorf("expected word after redirection operator")
		return nil
	}
	target := p.word
	p.next()
	r := &Redirect{base: base{line}, Kind: kind, IONumber: io, HasIONum: hasIO, Target: target}
	if isHeredoc {
		p.heredocs = append(p.heredocs, r)
	}
	return r
}

func (p *parser) parseRedirs() []*Redirect {
	var out []*Redirect
	for {
		r := p.tryParseRedir()
		if r == nil {
			break
		}
		out = append(out, r)
	}
	return out
}
