// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package expand

import (
	"fmt"
	"strconv"
	"strings"

	"posh.dev/posh/syntax"
)

// Arithm evaluates an arithmetic expression (spec §4.3 "$((expr))"):
// unary +/-, */%, +- over bare names (looked up as variables, empty
// string reads as 0), integer literals, and parenthesized
// sub-expressions. Division or remainder by zero is a fatal error, per
// the spec's explicit callout.
func Arithm(env Environ, x syntax.ArithmExpr) (int64, error) {
	switch x := x.(type) {
	case *syntax.ArithmLit:
		return atoi(x.Value)
	case *syntax.ArithmVar:
		val := env.Get(x.Name).String()
		if val == "" {
			return 0, nil
		}
		return atoi(val)
	case *syntax.ArithmParenExpr:
		return Arithm(env, x.X)
	case *syntax.ArithmUnaryExpr:
		v, err := Arithm(env, x.X)
		if err != nil {
			return 0, err
		}
		if x.Op == "-" {
			return -v, nil
		}
		return v, nil
	case *syntax.ArithmBinaryExpr:
		left, err := Arithm(env, x.X)
		if err != nil {
			return 0, err
		}
		right, err := Arithm(env, x.Y)
		if err != nil {
			return 0, err
		}
		switch x.Op {
		case "+":
			return left + right, nil
		case "-":
			return left - right, nil
		case "*":
			return left * right, nil
		case "/":
			if right == 0 {
				return 0, fmt.Errorf("arithmetic: division by zero")
			}
			return left / right, nil
		case "%":
			if right == 0 {
				return 0, fmt.Errorf("arithmetic: division by zero")
			}
			return left % right, nil
		default:
			return 0, fmt.Errorf("arithmetic: unknown operator %q", x.Op)
		}
	default:
		return 0, fmt.Errorf("arithmetic: unexpected expression %T", x)
	}
}

// atoi parses s as a base-10 integer, trimming surrounding whitespace.
// A non-numeric operand is a fatal expansion error (spec §4.3).
func atoi(s string) (int64, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("arithmetic: %q is not a valid integer", s)
	}
	return n, nil
}
