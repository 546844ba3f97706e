// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/google/subcommands"

	"go.ubxlib.dev/automation/tools/lib/logger"
	"go.ubxlib.dev/automation/tools/lib/subprocess"
)

// ExecCommand runs a build or flash step, relaying its output through the
// logger, under a guard time.
type ExecCommand struct {
	// guardTime bounds the command. Zero means unbounded.
	guardTime time.Duration

	// dir is the working directory of the command.
	dir string
}

func (*ExecCommand) Name() string {
	return "exec"
}

func (*ExecCommand) Usage() string {
	return `
monitor exec [flags...] command [args...]

flags:
`
}

func (*ExecCommand) Synopsis() string {
	return "runs a command with a guard time, logging its output"
}

func (c *ExecCommand) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.guardTime, "t", 0, "guard time for the command, e.g. 10m; 0 for none")
	f.StringVar(&c.dir, "dir", "", "working directory of the command")
}

func (c *ExecCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		logger.Errorf(ctx, "no command given")
		return subcommands.ExitUsageError
	}
	if err := c.execute(ctx, f.Args()); err != nil {
		logger.Errorf(ctx, "%v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (c *ExecCommand) execute(ctx context.Context, args []string) error {
	// A single argument may hold a whole command line.
	if len(args) == 1 {
		var err error
		if args, err = subprocess.Split(args[0]); err != nil {
			return err
		}
	}
	if c.guardTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.guardTime)
		defer cancel()
	}

	l := logger.LoggerFromContext(ctx)
	if l == nil {
		return errors.New("no logger")
	}
	stdout := l.LineWriter(logger.InfoLevel)
	stderr := l.LineWriter(logger.WarningLevel)
	defer stdout.Close()
	defer stderr.Close()

	r := subprocess.Runner{Dir: c.dir}
	start := time.Now()
	err := r.RunWithStdin(ctx, args, stdout, stderr, nil)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("guard time (%s) expired running %q", c.guardTime, args[0])
	case err != nil:
		return fmt.Errorf("%q failed: %w", args[0], err)
	}
	logger.Infof(ctx, "%q completed in %s.", args[0], time.Since(start).Round(time.Millisecond))
	return nil
}
