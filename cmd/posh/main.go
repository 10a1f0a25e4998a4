// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

// posh is a thin demonstration CLI over the interp/syntax/expand core:
// option parsing only, no line editor, history, or TTY job control
// (spec §1 "Explicitly out of scope: external collaborators").
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"posh.dev/posh/interp"
	"posh.dev/posh/syntax"
)

var (
	command = flag.String("c", "", "command to execute")
	xtrace  = flag.Bool("x", false, "trace commands as they execute")
	errexit = flag.Bool("e", false, "exit immediately on command failure")
	nounset = flag.Bool("u", false, "treat unset variable expansion as an error")
	noglob  = flag.Bool("f", false, "disable pathname expansion")
	noexec  = flag.Bool("n", false, "parse only, do not execute")
	noclob  = flag.Bool("C", false, "do not overwrite existing files with >")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		var es interp.ExitStatus
		if errors.As(err, &es) {
			os.Exit(int(es))
		}
		fmt.Fprintln(os.Stderr, "posh: "+err.Error())
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := interp.WithOptions(*xtrace, *errexit, *nounset, *noglob, *noexec, *noclob)

	if *command != "" {
		r, err := interp.New(interp.StdIO(os.Stdin, os.Stdout, os.Stderr), opts, interp.Params(flag.Args()...))
		if err != nil {
			return err
		}
		return runSource(ctx, r, *command, "posh")
	}
	if flag.NArg() == 0 {
		src, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		r, err := interp.New(interp.StdIO(os.Stdin, os.Stdout, os.Stderr), opts)
		if err != nil {
			return err
		}
		return runSource(ctx, r, string(src), "posh")
	}
	path := flag.Arg(0)
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	r, err := interp.New(interp.StdIO(os.Stdin, os.Stdout, os.Stderr), opts, interp.Params(flag.Args()[1:]...))
	if err != nil {
		return err
	}
	return runSource(ctx, r, string(src), path)
}

func runSource(ctx context.Context, r *interp.Runner, src, name string) error {
	file, err := syntax.Parse(src)
	if err != nil {
		return fmt.Errorf("syntax error: %w", err)
	}
	r.Name = name
	status, err := r.Run(ctx, file)
	if err != nil {
		return err
	}
	if status != 0 {
		return interp.ExitStatus(status)
	}
	return nil
}
