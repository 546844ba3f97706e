// Copyright 2018 The Fuchsia Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package retry runs an operation until it succeeds or its back-off policy
// gives up.
package retry

import (
	"context"
	"time"
)

// fatalError wraps an error that must not be retried.
type fatalError struct {
	error
}

func (e fatalError) Unwrap() error { return e.error }

// Fatal marks err as not worth retrying; Retry returns it immediately.
func Fatal(err error) error {
	return fatalError{err}
}

// Retry calls f until it returns nil, the context is done, or the back-off
// returns Stop. Each intermediate error is sent to c if c is non-nil. The
// last error from f is returned when retries are exhausted.
func Retry(ctx context.Context, b Backoff, f func() error, c chan<- error) error {
	b.Reset()
	for {
		err := f()
		if err == nil {
			return nil
		}
		if fe, ok := err.(fatalError); ok {
			return fe.error
		}
		next := b.Next()
		if next == Stop {
			return err
		}
		if c != nil {
			c <- err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(next):
		}
	}
}
