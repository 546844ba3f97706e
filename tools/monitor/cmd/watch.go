// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/subcommands"
	"go.uber.org/multierr"

	"go.ubxlib.dev/automation/tools/lib/color"
	"go.ubxlib.dev/automation/tools/lib/logger"
	"go.ubxlib.dev/automation/tools/lib/streams"
	"go.ubxlib.dev/automation/tools/monitor"
	"go.ubxlib.dev/automation/tools/testing/report"
)

// WatchCommand is a Command implementation that watches the output of a
// device under test until its run completes.
type WatchCommand struct {
	// configFile is a YAML file supplying defaults for the flags.
	configFile string

	flags sessionConfig
}

func (*WatchCommand) Name() string {
	return "watch"
}

func (*WatchCommand) Usage() string {
	return `
monitor watch [flags...] port

port is the source of device output: a serial device, a serial relay
socket, a port number on which a telnet session is opened on localhost, or
an executable to run which prints the output of the tests.

The exit code is the number of failed items plus the number of reboots,
or negative if the run could not be watched to completion.

flags:
`
}

func (*WatchCommand) Synopsis() string {
	return "watches a device's test output and reports the outcome"
}

func (c *WatchCommand) SetFlags(f *flag.FlagSet) {
	def := defaultSessionConfig()
	f.StringVar(&c.configFile, "config", "", "path to a YAML file of session settings; flags override it")
	f.StringVar(&c.flags.Transport, "transport", def.Transport, "auto, serial, socket, telnet, rtt or exe")
	f.StringVar(&c.flags.Terminator, "terminator", "", "line terminator, cr or lf; picked from the transport if unset")
	f.StringVar(&c.flags.SendString, "s", "", "select items through the device's test menu with this string before watching")
	f.IntVar(&c.flags.GuardSeconds, "t", 0, "guard time in seconds for the whole run; 0 for none")
	f.IntVar(&c.flags.InactivitySeconds, "i", 0, "inactivity time in seconds; 0 for none")
	f.StringVar(&c.flags.Instance, "instance", "", "dotted instance identifier, e.g. 0.1")
	f.StringVar(&c.flags.LogFile, "l", "", "file to write the output to; any existing file is overwritten")
	f.StringVar(&c.flags.EventLogFile, "event-log", "", "file to write time-stamped progress events to")
	f.StringVar(&c.flags.Reports.XML, "x", "", "file to write an XML test report to; any existing file is overwritten")
	f.StringVar(&c.flags.Reports.SummaryJSON, "summary-json", "", "file to write a JSON test summary to")
	f.StringVar(&c.flags.Reports.TAP, "tap", "", "file to write TAP output to")
	f.IntVar(&c.flags.BaudRate, "baud", def.BaudRate, "serial baud rate")
	f.BoolVar(&c.flags.PortableSerial, "portable-serial", false, "use the cross-platform serial driver")
	f.BoolVar(&c.flags.PTY, "pty", false, "run an executable on a pseudo-terminal rather than a pipe")
	f.StringVar(&c.flags.RTTAddress, "rtt-address", def.RTTAddress, "address of the debugger's RTT log relay")
}

// resolve merges the config file, the flags set on the command line and the
// positional port.
func (c *WatchCommand) resolve(f *flag.FlagSet) (*sessionConfig, error) {
	cfg := defaultSessionConfig()
	if c.configFile != "" {
		if err := loadSessionConfig(c.configFile, &cfg); err != nil {
			return nil, err
		}
	}
	set := make(map[string]bool)
	f.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	cfg.overlay(&c.flags, set)
	switch f.NArg() {
	case 0:
	case 1:
		cfg.Port = f.Arg(0)
	default:
		return nil, fmt.Errorf("expected one port, got %q", f.Args())
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *WatchCommand) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := c.resolve(f)
	if err != nil {
		logger.Errorf(ctx, "%v", err)
		return subcommands.ExitUsageError
	}
	instance, err := monitor.ParseInstance(cfg.Instance)
	if err != nil {
		logger.Errorf(ctx, "%v", err)
		return subcommands.ExitUsageError
	}
	return subcommands.ExitStatus(c.execute(ctx, cfg, instance))
}

// execute runs a session and returns its return code.
func (c *WatchCommand) execute(ctx context.Context, cfg *sessionConfig, instance []int) (code int) {
	code = monitor.AbnormalReturn
	var closers []io.Closer
	defer func() {
		var errs error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = multierr.Append(errs, closers[i].Close())
		}
		if errs != nil {
			logger.Warningf(ctx, "failed to clean up: %v", errs)
		}
	}()

	if cfg.LogFile != "" {
		f, err := os.Create(cfg.LogFile)
		if err != nil {
			logger.Errorf(ctx, "unable to open log file %q for writing: %v.", cfg.LogFile, err)
			return code
		}
		closers = append(closers, f)
		ctx = streams.Tee(ctx, f)
	}
	l := logger.NewLogger(level, color.NewColor(colors), streams.Stdout(ctx), streams.Stderr(ctx), monitor.Prompt(instance))
	l.SetFlags(log.Ltime)
	ctx = logger.WithLogger(ctx, l)
	if cfg.LogFile != "" {
		logger.Infof(ctx, "writing log output to %q.", cfg.LogFile)
	}

	var eventLog io.Writer
	if cfg.EventLogFile != "" {
		f, err := os.Create(cfg.EventLogFile)
		if err != nil {
			logger.Errorf(ctx, "unable to open event log %q for writing: %v.", cfg.EventLogFile, err)
			return code
		}
		closers = append(closers, f)
		eventLog = f
	}

	d, err := openDevice(ctx, cfg)
	if err != nil {
		logger.Errorf(ctx, "%v.", err)
		return code
	}
	closers = append(closers, d)

	deviceLog := l.LineWriter(logger.InfoLevel)
	closers = append(closers, deviceLog)

	res := monitor.Watch(ctx, d.handle, monitor.Config{
		Kind:           d.kind,
		Terminator:     terminator(cfg, d),
		GuardTime:      cfg.guardTime(),
		InactivityTime: cfg.inactivityTime(),
		SendString:     cfg.SendString,
		Instance:       instance,
		DeviceLog:      deviceLog,
		Reporter:       report.NewEventLog(ctx, eventLog, instance),
	})
	code = res.ReturnCode

	if err := report.WriteAll(ctx, report.SuiteName(instance), res, cfg.Reports); err != nil {
		logger.Errorf(ctx, "%v.", err)
	}
	logger.Infof(ctx, "end with return value %d.", code)
	return code
}
