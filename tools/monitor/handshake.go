// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.ubxlib.dev/automation/tools/lib/clock"
	"go.ubxlib.dev/automation/tools/lib/logger"
)

const (
	// testMenuPrompt is printed by the Unity test menu before it accepts a
	// selection.
	testMenuPrompt = "Press ENTER to see the list of tests."
	// handshakeTerminator ends lines printed by the test menu.
	handshakeTerminator = '\r'
	// maxHandshakeLines bounds how much menu text is read, so a device that
	// never goes quiet cannot hold the session in STARTING forever.
	maxHandshakeLines = 10000
)

// ErrHandshake is returned, wrapped, when the pre-run exchange with the
// device fails.
var ErrHandshake = errors.New("handshake failed")

// handshake drives the interactive test menu: it reads the opening text
// until the menu prompt appears or the device goes quiet, asks for the test
// list, reads it, and then sends the selection followed by "\r\n".
//
// lr, if non-nil, must split lines at handshakeTerminator; it is then used
// for the menu too, so a line the device had only half sent when the menu
// went quiet is completed by the watch that follows.
func handshake(ctx context.Context, handle io.Reader, lr LineReader, kind TransportKind, selection string, settle time.Duration, deviceLog io.Writer) error {
	w, ok := handle.(io.Writer)
	if !ok {
		return fmt.Errorf("%w: transport %T is not writable", ErrHandshake, handle)
	}
	if lr == nil {
		var err error
		if lr, err = NewLineReader(kind, handle, handshakeTerminator); err != nil {
			return fmt.Errorf("%w: %v", ErrHandshake, err)
		}
	}

	logger.Infof(ctx, "reading initial text from input...")
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrHandshake, ctx.Err())
	case <-time.After(settle):
	}
	if err := echoUntilQuiet(ctx, lr, testMenuPrompt, deviceLog); err != nil {
		return err
	}

	logger.Infof(ctx, "listing items...")
	if _, err := io.WriteString(w, "\r\n"); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if err := echoUntilQuiet(ctx, lr, "", deviceLog); err != nil {
		return err
	}

	logger.Infof(ctx, "sending %s", selection)
	if _, err := io.WriteString(w, selection+"\r\n"); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	logger.Infof(ctx, "run started on %s.", clock.Now(ctx).Format(time.ANSIC))
	return nil
}

// echoUntilQuiet logs lines until none is available, or until a line
// containing stopAt, if stopAt is set.
func echoUntilQuiet(ctx context.Context, lr LineReader, stopAt string, deviceLog io.Writer) error {
	for i := 0; i < maxHandshakeLines; i++ {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrHandshake, ctx.Err())
		}
		line, ok, err := lr.ReadLine()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrHandshake, err)
		}
		if !ok {
			return nil
		}
		logger.Infof(ctx, "%s", line)
		if deviceLog != nil {
			fmt.Fprintln(deviceLog, line)
		}
		if stopAt != "" && strings.Contains(line, stopAt) {
			return nil
		}
	}
	return nil
}
