// Copyright 2018 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package serial opens the serial ports that devices under test log to.
package serial

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	bugst "go.bug.st/serial"

	"go.ubxlib.dev/automation/tools/lib/isatty"
)

// DefaultBaudRate is the rate used when none is given.
const DefaultBaudRate = 115200

// Port is an open serial port. Reads honour SetReadDeadline, and a read that
// times out fails with an error satisfying errors.Is(err, os.ErrDeadlineExceeded).
type Port interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

// Options configure how a port is opened.
type Options struct {
	// BaudRate defaults to DefaultBaudRate.
	BaudRate int

	// Portable selects the cross-platform driver even where a native
	// termios implementation exists.
	Portable bool
}

// Open opens a new serial port using defaults.
func Open(name string) (Port, error) {
	return OpenWithOptions(name, Options{})
}

// OpenWithOptions opens a new serial port with the given name and options.
func OpenWithOptions(name string, opts Options) (Port, error) {
	if opts.BaudRate == 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if opts.Portable {
		return openPortable(name, opts.BaudRate)
	}
	return open(name, opts.BaudRate)
}

// IsPort reports whether name looks like a serial device: either the
// platform enumerates it as a port, or it is a character device attached to
// a terminal line discipline.
func IsPort(name string) bool {
	if ports, err := bugst.GetPortsList(); err == nil {
		for _, p := range ports {
			if p == name {
				return true
			}
		}
	}
	fi, err := os.Stat(name)
	if err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		return false
	}
	f, err := os.OpenFile(name, os.O_RDONLY|nonblockFlag, 0)
	if err != nil {
		return false
	}
	defer f.Close()
	return isatty.IsTerminalFile(f)
}

// IsSocket reports whether name is a unix domain socket, as created by
// serial relays that expose a UART to several readers.
func IsSocket(name string) bool {
	fi, err := os.Stat(name)
	return err == nil && fi.Mode()&os.ModeSocket != 0
}

// DialSocket connects to a serial relay listening on a unix domain socket.
func DialSocket(ctx context.Context, socketPath string) (net.Conn, error) {
	if socketPath == "" {
		return nil, fmt.Errorf("serial socket path not set")
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial socket connection: %w", err)
	}
	return conn, nil
}
