// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"syscall"

	"github.com/google/subcommands"

	"go.ubxlib.dev/automation/tools/lib/color"
	"go.ubxlib.dev/automation/tools/lib/command"
	"go.ubxlib.dev/automation/tools/lib/logger"
)

var (
	colors = color.ColorAuto
	level  = logger.InfoLevel
)

func init() {
	flag.Var(&colors, "color", "use color in output, can be never, auto, always")
	flag.Var(&level, "level", "output verbosity, can be fatal, error, warning, info, debug or trace")
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&WatchCommand{}, "")
	subcommands.Register(&ExecCommand{}, "")

	flag.Parse()

	l := logger.NewLogger(level, color.NewColor(colors), os.Stdout, os.Stderr, "monitor: ")
	l.SetFlags(log.Ltime)
	ctx := logger.WithLogger(context.Background(), l)

	ctx = command.CancelOnSignals(ctx, syscall.SIGINT, syscall.SIGTERM)
	os.Exit(int(subcommands.Execute(ctx)))
}
