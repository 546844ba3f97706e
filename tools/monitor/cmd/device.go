// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"go.ubxlib.dev/automation/tools/lib/logger"
	"go.ubxlib.dev/automation/tools/lib/retry"
	"go.ubxlib.dev/automation/tools/lib/serial"
	"go.ubxlib.dev/automation/tools/lib/subprocess"
	"go.ubxlib.dev/automation/tools/monitor"
	"go.ubxlib.dev/automation/tools/telnet"
)

const (
	transportAuto   = "auto"
	transportSerial = "serial"
	transportSocket = "socket"
	transportTelnet = "telnet"
	transportRTT    = "rtt"
	transportExe    = "exe"

	telnetHost  = "localhost"
	dialTimeout = 5 * time.Second

	openRetries = 5
)

// A port may briefly vanish while the device re-enumerates after flashing.
var openRetryInterval = time.Second

// detectTransport picks a transport for port: a serial device, a serial
// relay socket, a local telnet port number, or otherwise an executable.
func detectTransport(port string) string {
	switch {
	case serial.IsPort(port):
		return transportSerial
	case serial.IsSocket(port):
		return transportSocket
	}
	if _, err := strconv.ParseUint(port, 10, 16); err == nil {
		return transportTelnet
	}
	return transportExe
}

// device is an open source of device output.
type device struct {
	transport string
	kind      monitor.TransportKind
	handle    io.Reader
	closer    io.Closer
}

func (d *device) Close() error {
	return d.closer.Close()
}

func openDevice(ctx context.Context, cfg *sessionConfig) (*device, error) {
	transport := cfg.Transport
	if transport == "" || transport == transportAuto {
		transport = detectTransport(cfg.Port)
		logger.Debugf(ctx, "%q looks like a %s transport", cfg.Port, transport)
	}
	if transport == transportExe {
		return startExe(ctx, cfg)
	}

	var d *device
	open := func() error {
		var err error
		d, err = dial(ctx, transport, cfg)
		return err
	}
	retries := make(chan error)
	logged := make(chan struct{})
	go func() {
		defer close(logged)
		for err := range retries {
			logger.Warningf(ctx, "unable to open %s %q, retrying in %s: %v", transport, cfg.Port, openRetryInterval, err)
		}
	}()
	b := retry.WithMaxRetries(retry.NewConstantBackoff(openRetryInterval), openRetries)
	err := retry.Retry(ctx, b, open, retries)
	close(retries)
	<-logged
	if err != nil {
		return nil, fmt.Errorf("unable to open %s %q: %w", transport, cfg.Port, err)
	}
	logger.Infof(ctx, "opened %s %q.", transport, cfg.Port)
	return d, nil
}

func dial(ctx context.Context, transport string, cfg *sessionConfig) (*device, error) {
	switch transport {
	case transportSerial:
		p, err := serial.OpenWithOptions(cfg.Port, serial.Options{BaudRate: cfg.BaudRate, Portable: cfg.PortableSerial})
		if err != nil {
			return nil, err
		}
		return &device{transport: transport, kind: monitor.StreamTransport, handle: p, closer: p}, nil
	case transportSocket:
		c, err := serial.DialSocket(ctx, cfg.Port)
		if err != nil {
			return nil, err
		}
		return &device{transport: transport, kind: monitor.StreamTransport, handle: c, closer: c}, nil
	case transportTelnet:
		port, err := strconv.ParseUint(cfg.Port, 10, 16)
		if err != nil {
			return nil, retry.Fatal(fmt.Errorf("invalid telnet port %q", cfg.Port))
		}
		c, err := telnet.DialTimeout(telnetHost, uint16(port), dialTimeout)
		if err != nil {
			return nil, err
		}
		return &device{transport: transport, kind: monitor.ReadUntilTransport, handle: c, closer: c}, nil
	case transportRTT:
		addr := cfg.RTTAddress
		if _, err := strconv.ParseUint(cfg.Port, 10, 16); err == nil {
			addr = net.JoinHostPort(telnetHost, cfg.Port)
		}
		var d net.Dialer
		dctx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()
		c, err := d.DialContext(dctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return &device{transport: transport, kind: monitor.RTTTransport, handle: c, closer: c}, nil
	}
	return nil, retry.Fatal(fmt.Errorf("unknown transport %q", transport))
}

func startExe(ctx context.Context, cfg *sessionConfig) (*device, error) {
	args, err := subprocess.Split(cfg.Port)
	if err != nil {
		return nil, err
	}
	var r subprocess.Runner
	p, err := r.Start(ctx, args, cfg.PTY)
	if err != nil {
		return nil, fmt.Errorf("unable to start %q: %w", cfg.Port, err)
	}
	logger.Infof(ctx, "started %q, process ID %d.", cfg.Port, p.Pid())
	return &device{transport: transportExe, kind: monitor.PipeTransport, handle: p.Output, closer: p}, nil
}

// terminator picks the line terminator. Devices end lines with "\r\n", so
// '\r' suits everything except a subprocess writing to a plain pipe, which
// sends bare newlines; a pseudo-terminal turns those into "\r\n".
func terminator(cfg *sessionConfig, d *device) byte {
	switch cfg.Terminator {
	case "cr":
		return '\r'
	case "lf":
		return '\n'
	}
	if d.transport == transportExe && !cfg.PTY {
		return '\n'
	}
	return '\r'
}
