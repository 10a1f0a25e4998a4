// Copyright (c) 2016, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package syntax

import "strings"

// Print unparses f back into shell source. It is not a pretty-printer;
// it exists to support the testable property in spec §8 ("For any
// successful parse, unparse(parse(text)) and parse(text) are
// observationally equivalent under execution").
func Print(f *File) string {
	var sb strings.Builder
	printStmts(&sb, f.Stmts)
	return sb.String()
}

func printStmts(sb *strings.Builder, stmts []*Stmt) {
	for i, s := range stmts {
		if i > 0 {
			sb.WriteString("; ")
		}
		printStmt(sb, s)
	}
}

func printStmt(sb *strings.Builder, s *Stmt) {
	printCommand(sb, s.Cmd)
	for _, r := range s.Redirs {
		sb.WriteByte(' ')
		printRedirect(sb, r)
	}
	if s.Background {
		sb.WriteString(" &")
	}
}

func printCommand(sb *strings.Builder, c Command) {
	switch c := c.(type) {
	case *SimpleCommand:
		printSimpleCommand(sb, c)
	case *Pipeline:
		if c.Negate {
			sb.WriteString("! ")
		}
		for i, st := range c.Stages {
			if i > 0 {
				sb.WriteString(" | ")
			}
			printStmt(sb, st)
		}
	case *AndOr:
		printStmt(sb, c.X)
		if c.Op == AndOp {
			sb.WriteString(" && ")
		} else {
			sb.WriteString(" || ")
		}
		printStmt(sb, c.Y)
	case *If:
		sb.WriteString("if ")
		printStmts(sb, c.Cond)
		sb.WriteString("; then ")
		printStmts(sb, c.Then)
		switch e := c.Else.(type) {
		case nil:
		case *If:
			sb.WriteString("; elif ")
			sb.WriteString(strings.TrimPrefix(printCommandString(e), "if "))
			return
		case *Group:
			sb.WriteString("; else ")
			printStmts(sb, e.Stmts)
		}
		sb.WriteString("; fi")
	case *WhileStmt:
		if c.Until {
			sb.WriteString("until ")
		} else {
			sb.WriteString("while ")
		}
		printStmts(sb, c.Cond)
		sb.WriteString("; do ")
		printStmts(sb, c.Do)
		sb.WriteString("; done")
	case *ForStmt:
		sb.WriteString("for ")
		sb.WriteString(c.Name)
		if c.HasList {
			sb.WriteString(" in")
			for _, w := range c.Items {
				sb.WriteByte(' ')
				printWord(sb, w)
			}
		}
		sb.WriteString("; do ")
		printStmts(sb, c.Do)
		sb.WriteString("; done")
	case *CaseStmt:
		sb.WriteString("case ")
		printWord(sb, c.Word)
		sb.WriteString(" in ")
		for _, item := range c.Items {
			for i, pat := range item.Patterns {
				if i > 0 {
					sb.WriteString("|")
				}
				printWord(sb, pat)
			}
			sb.WriteString(") ")
			printStmts(sb, item.Body)
			sb.WriteString(";; ")
		}
		sb.WriteString("esac")
	case *Subshell:
		sb.WriteString("(")
		printStmts(sb, c.Stmts)
		sb.WriteString(")")
	case *Group:
		sb.WriteString("{ ")
		printStmts(sb, c.Stmts)
		sb.WriteString("; }")
	case *FunctionDef:
		sb.WriteString(c.Name)
		sb.WriteString("() ")
		printCommand(sb, c.Body)
	}
}

func printCommandString(c Command) string {
	var sb strings.Builder
	printCommand(&sb, c)
	return sb.String()
}

func printSimpleCommand(sb *strings.Builder, c *SimpleCommand) {
	first := true
	for _, a := range c.Assigns {
		if !first {
			sb.WriteByte(' ')
		}
		sb.WriteString(a.Name)
		sb.WriteByte('=')
		if a.Value != nil {
			printWord(sb, a.Value)
		}
		first = false
	}
	for _, w := range c.Args {
		if !first {
			sb.WriteByte(' ')
		}
		printWord(sb, w)
		first = false
	}
	for _, r := range c.Redirs {
		if !first {
			sb.WriteByte(' ')
		}
		printRedirect(sb, r)
		first = false
	}
}

var redirOpText = map[RedirKind]string{
	RedirIn: "<", RedirOut: ">", RedirOutClobber: ">|", RedirAppend: ">>",
	RedirInDup: "<&", RedirOutDup: ">&", RedirReadWrite: "<>",
	RedirHeredoc: "<<", RedirHeredocDash: "<<-",
}

func printRedirect(sb *strings.Builder, r *Redirect) {
	if r.HasIONum {
		sb.WriteString(itoa(r.IONumber))
	}
	sb.WriteString(redirOpText[r.Kind])
	if r.Kind == RedirHeredoc || r.Kind == RedirHeredocDash {
		sb.WriteString("EOF")
		return
	}
	printWord(sb, r.Target)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}

func printWord(sb *strings.Builder, w *Word) {
	if w == nil {
		return
	}
	for _, part := range w.Parts {
		printWordPart(sb, part)
	}
}

func printWordPart(sb *strings.Builder, part WordPart) {
	switch p := part.(type) {
	case *Lit:
		if p.Quoted {
			sb.WriteByte('\'')
			sb.WriteString(strings.ReplaceAll(p.Value, "'", `'\''`))
			sb.WriteByte('\'')
		} else {
			sb.WriteString(p.Value)
		}
	case *ParamExp:
		if p.DQuoted {
			sb.WriteByte('"')
		}
		sb.WriteString("${")
		if p.Length {
			sb.WriteByte('#')
		}
		sb.WriteString(p.Param)
		sb.WriteString(p.Op)
		if p.Arg != nil {
			printWord(sb, p.Arg)
		}
		sb.WriteByte('}')
		if p.DQuoted {
			sb.WriteByte('"')
		}
	case *CmdSubst:
		if p.DQuoted {
			sb.WriteByte('"')
		}
		sb.WriteString("$(")
		printStmts(sb, p.Stmts)
		sb.WriteString(")")
		if p.DQuoted {
			sb.WriteByte('"')
		}
	case *ArithmExp:
		if p.DQuoted {
			sb.WriteByte('"')
		}
		sb.WriteString("$((")
		printArithm(sb, p.X)
		sb.WriteString("))")
		if p.DQuoted {
			sb.WriteByte('"')
		}
	case *Tilde:
		sb.WriteByte('~')
		sb.WriteString(p.User)
	}
}

func printArithm(sb *strings.Builder, x ArithmExpr) {
	switch x := x.(type) {
	case *ArithmLit:
		sb.WriteString(x.Value)
	case *ArithmVar:
		sb.WriteString(x.Name)
	case *ArithmUnaryExpr:
		sb.WriteString(x.Op)
		printArithm(sb, x.X)
	case *ArithmBinaryExpr:
		printArithm(sb, x.X)
		sb.WriteString(x.Op)
		printArithm(sb, x.Y)
	case *ArithmParenExpr:
		sb.WriteString("(")
		printArithm(sb, x.X)
		sb.WriteString(")")
	}
}
