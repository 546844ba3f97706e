// Copyright 2021 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package streams lets a context carry the writers that stand in for the
// process's stdout and stderr, so that commands can be run from tests and
// their console output captured or copied to a log file.
package streams

import (
	"context"
	"io"
	"os"
)

type streamKey int

const (
	stdoutKey streamKey = iota
	stderrKey
)

// Stdout returns the stdout writer carried by ctx, or os.Stdout.
func Stdout(ctx context.Context) io.Writer {
	return get(ctx, stdoutKey, os.Stdout)
}

// Stderr returns the stderr writer carried by ctx, or os.Stderr.
func Stderr(ctx context.Context) io.Writer {
	return get(ctx, stderrKey, os.Stderr)
}

func get(ctx context.Context, key streamKey, def io.Writer) io.Writer {
	if w, ok := ctx.Value(key).(io.Writer); ok && w != nil {
		return w
	}
	return def
}

// ContextWithStdout replaces stdout for code that writes through Stdout(ctx).
func ContextWithStdout(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, stdoutKey, w)
}

// ContextWithStderr replaces stderr for code that writes through Stderr(ctx).
func ContextWithStderr(ctx context.Context, w io.Writer) context.Context {
	return context.WithValue(ctx, stderrKey, w)
}

// Tee copies everything written to either stream of ctx to w as well.
func Tee(ctx context.Context, w io.Writer) context.Context {
	ctx = ContextWithStdout(ctx, io.MultiWriter(Stdout(ctx), w))
	return ContextWithStderr(ctx, io.MultiWriter(Stderr(ctx), w))
}
