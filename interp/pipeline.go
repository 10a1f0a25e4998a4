// Copyright (c) 2017, Daniel Martí <mvdan@mvdan.cc>
// See LICENSE for licensing information

package interp

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"

	"posh.dev/posh/syntax"
)

// pipeline runs an n-stage pipeline: n-1 in-process pipes connect each
// stage's stdout to the next stage's stdin, every stage runs
// concurrently in its own forked Runner, and the pipeline's status is
// the final stage's (spec §4.4 "Pipelines"). Variable assignments made
// inside a stage never escape, since each stage is a sub().
func (r *Runner) pipeline(ctx context.Context, p *syntax.Pipeline) ctrl {
	n := len(p.Stages)
	if n == 1 {
		c := r.stmt(ctx, p.Stages[0])
		if p.Negate {
			r.exit = negate(r.exit)
		}
		return c
	}

	subs := make([]*Runner, n)
	pipes := make([]*io.PipeWriter, n-1)
	readers := make([]*io.PipeReader, n-1)
	for i := 0; i < n-1; i++ {
		readers[i], pipes[i] = io.Pipe()
	}
	for i := 0; i < n; i++ {
		subs[i] = r.sub()
		if i > 0 {
			subs[i].Stdin = readers[i-1]
		}
		if i < n-1 {
			subs[i].Stdout = pipes[i]
		}
		subs[i].fillExpandConfig(ctx)
	}

	var g errgroup.Group
	var ctrls = make([]ctrl, n)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			ctrls[i] = subs[i].stmt(ctx, p.Stages[i])
			if i < n-1 {
				pipes[i].Close()
			}
			if i > 0 {
				readers[i-1].Close()
			}
			return nil
		})
	}
	g.Wait()

	for _, c := range ctrls {
		if c.fatal != nil {
			return ctrl{fatal: c.fatal}
		}
	}
	r.exit = subs[n-1].exit
	if p.Negate {
		r.exit = negate(r.exit)
	}
	return ctrl{}
}

func negate(status int) int {
	if status == 0 {
		return 1
	}
	return 0
}
