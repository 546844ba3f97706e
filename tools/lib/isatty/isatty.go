// Copyright 2018 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package isatty reports whether a file descriptor refers to a terminal.
package isatty

import (
	"os"
)

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return IsTerminalFile(os.Stdout)
}

// IsTerminalFile reports whether f is attached to a terminal. Serial device
// nodes count as terminals, which is how the monitor tells a serial port
// apart from a regular file or an executable.
func IsTerminalFile(f *os.File) bool {
	if f == nil {
		return false
	}
	return isTerminal(f.Fd())
}
